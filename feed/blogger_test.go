package feed

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// entryJSON renders one Blogger feed entry.
func entryJSON(id, title, published string) string {
	return fmt.Sprintf(`{
		"id": {"$t": %[1]q},
		"title": {"$t": %[2]q},
		"link": [
			{"rel": "replies", "href": "https://blog.example/%[1]s#comments"},
			{"rel": "alternate", "href": "https://blog.example/%[1]s.html"}
		],
		"published": {"$t": %[3]q},
		"content": {"$t": "<p>Isi <b>%[2]s</b></p><img src=\"https://bp.example/x/s1600/%[1]s.jpg\">"},
		"author": [{"name": {"$t": "Budi"}}],
		"category": [{"term": "Berita"}, {"term": "IT"}]
	}`, id, title, published)
}

func feedJSON(entries ...string) string {
	return `{"version":"1.0","feed":{"entry":[` + strings.Join(entries, ",") + `]}}`
}

func TestDecodeJSON(t *testing.T) {
	posts, err := Decode([]byte(feedJSON(
		entryJSON("p1", "Satu", "2025-01-02T10:00:00.000+07:00"),
		entryJSON("p2", "Dua", "2025-02-03T08:30:00.000+07:00"),
	)), "")
	require.NoError(t, err)
	require.Len(t, posts, 2)

	p := posts[0]
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "Satu", p.Title)
	assert.Equal(t, "https://blog.example/p1.html", p.URL)
	assert.Equal(t, "Budi", p.Author)
	assert.Equal(t, []string{"Berita", "IT"}, p.Labels)
	assert.True(t, p.Published.Equal(time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)))
	assert.Equal(t, "https://bp.example/x/s0/p1.jpg", p.Thumbnail())
	assert.Equal(t, "Isi Satu", p.Excerpt(120))
}

func TestDecodeScript(t *testing.T) {
	body := "// API callback\n" + CallbackName(3) + "(" + feedJSON(entryJSON("p1", "Satu", "2025-01-02T10:00:00Z")) + ");"

	posts, err := Decode([]byte(body), CallbackName(3))
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].ID)

	_, err = Decode([]byte(body), CallbackName(4))
	assert.ErrorIs(t, err, ErrCallbackMismatch)

	// callback not checked when none is expected
	posts, err = Decode([]byte(body), "")
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestDecodeEmptyAndMalformed(t *testing.T) {
	posts, err := Decode([]byte(`{"feed":{"title":{"$t":"kosong"}}}`), "")
	require.NoError(t, err)
	assert.Empty(t, posts)

	for _, body := range []string{"", "<html>", "cb({nope", "cb({}) trailing", "// only a comment"} {
		_, err := Decode([]byte(body), "")
		assert.Error(t, err, "body %q", body)
	}
}

func TestDecodeSparseEntry(t *testing.T) {
	posts, err := Decode([]byte(`{"feed":{"entry":{
		"id":{"$t":"solo"},
		"title":{"$t":"Tanpa Link"},
		"summary":{"$t":"ringkasan"},
		"published":{"$t":"bukan tanggal"}
	}}}`), "")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	p := posts[0]
	assert.Equal(t, "#", p.URL)
	assert.Equal(t, "ringkasan", p.Content)
	assert.Empty(t, p.Author)
	assert.Empty(t, p.Labels)
	assert.True(t, p.Published.IsZero())
}
