package feed

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap/zaptest"
)

type fakeAggregate struct {
	calls   atomic.Int32
	release chan struct{}
	next    func(n int32) Result
}

func (f *fakeAggregate) Aggregate(ctx context.Context) Result {
	n := f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.next(n)
}

func okResult(ids ...string) Result {
	r := Result{Sources: 1, Fetched: time.Now()}
	for _, id := range ids {
		r.Posts = append(r.Posts, Post{ID: id, Title: id})
	}
	return r
}

func TestCacheGetWithinTTL(t *testing.T) {
	agg := &fakeAggregate{next: func(int32) Result { return okResult("a") }}
	c := NewCache(agg, time.Hour, nil, zaptest.NewLogger(t).Sugar())

	_, have := c.Peek()
	assert.False(t, have)

	c.Get(context.Background())
	r := c.Get(context.Background())
	assert.Len(t, r.Posts, 1)
	assert.EqualValues(t, 1, agg.calls.Load())

	c.Refresh(context.Background())
	assert.EqualValues(t, 2, agg.calls.Load())
}

func TestCacheExpires(t *testing.T) {
	agg := &fakeAggregate{next: func(int32) Result { return okResult("a") }}
	c := NewCache(agg, time.Minute, nil, nil)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Get(context.Background())
	now = now.Add(2 * time.Minute)
	c.Get(context.Background())
	assert.EqualValues(t, 2, agg.calls.Load())
}

func TestCacheSharesConcurrentRefresh(t *testing.T) {
	agg := &fakeAggregate{
		release: make(chan struct{}),
		next:    func(int32) Result { return okResult("a") },
	}
	c := NewCache(agg, time.Hour, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := c.Get(context.Background())
			assert.Len(t, r.Posts, 1)
		}()
	}
	require.Eventually(t, func() bool { return agg.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(agg.release)
	wg.Wait()
	assert.EqualValues(t, 1, agg.calls.Load())
}

func TestCacheKeepsPostsOnTotalFailure(t *testing.T) {
	agg := &fakeAggregate{next: func(n int32) Result {
		if n == 1 {
			return okResult("a", "b")
		}
		return Result{Sources: 1, Failed: 1, Fetched: time.Now()}
	}}
	c := NewCache(agg, time.Hour, nil, nil)

	c.Refresh(context.Background())
	r := c.Refresh(context.Background())
	assert.Len(t, r.Posts, 2)
	assert.Equal(t, 1, r.Failed)
	assert.ErrorIs(t, r.Err(), ErrSourceFailed)
}

func TestCacheServeReturnsStale(t *testing.T) {
	agg := &fakeAggregate{next: func(n int32) Result { return okResult("a") }}
	c := NewCache(agg, time.Minute, nil, nil)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Serve(context.Background())
	assert.EqualValues(t, 1, agg.calls.Load())

	now = now.Add(time.Hour)
	r := c.Serve(context.Background())
	assert.Len(t, r.Posts, 1)
	require.Eventually(t, func() bool { return agg.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBoltStoreWarm(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "feed.db"), 0600, nil)
	require.NoError(t, err)
	defer db.Close()

	store, err := NewBoltStore(db)
	require.NoError(t, err)

	_, found, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)

	agg := &fakeAggregate{next: func(int32) Result { return okResult("a", "b") }}
	NewCache(agg, time.Hour, store, nil).Refresh(context.Background())

	// a second process starts from the persisted result
	c := NewCache(agg, time.Hour, store, nil)
	require.NoError(t, c.Warm(context.Background()))
	r, have := c.Peek()
	require.True(t, have)
	assert.Len(t, r.Posts, 2)

	c.Get(context.Background())
	assert.EqualValues(t, 1, agg.calls.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	agg := &fakeAggregate{next: func(int32) Result { return okResult("a") }}
	c := NewCache(agg, 10*time.Millisecond, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return agg.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCacheReset(t *testing.T) {
	first := &fakeAggregate{next: func(int32) Result { return okResult("a") }}
	second := &fakeAggregate{next: func(int32) Result { return okResult("b", "c") }}
	c := NewCache(first, time.Hour, nil, nil)

	c.Get(context.Background())
	c.Reset(second)
	r, have := c.Peek()
	require.True(t, have)
	assert.Len(t, r.Posts, 1)

	r = c.Get(context.Background())
	assert.Len(t, r.Posts, 2)
	assert.EqualValues(t, 1, first.calls.Load())
	assert.EqualValues(t, 1, second.calls.Load())
}
