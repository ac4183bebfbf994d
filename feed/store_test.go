package feed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a live server: REDIS_URL=redis://localhost:6379/0 go test ./feed
func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := ConnectRedis(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	prefix := "sited-test:" + uuid.NewString() + ":"
	s := NewRedisStore(client, prefix)
	t.Cleanup(func() { client.Del(ctx, s.key) })

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	want := Result{
		Posts:   []Post{{ID: "p1", Title: "Satu", URL: "#", Source: "https://a.example"}},
		Sources: 1,
		Fetched: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Save(ctx, want))
	got, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Posts[0].Title, got.Posts[0].Title)
	assert.True(t, want.Fetched.Equal(got.Fetched))
}

func TestConnectRedisBadURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "redis://:bad:url")
	assert.Error(t, err)
}
