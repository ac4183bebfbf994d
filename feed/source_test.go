package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSources(t *testing.T) {
	got := ParseSources(" https://a.blogspot.com/ ,ftp://nope, ,http://b.blogspot.com,not-a-url")
	assert.Equal(t, []string{"https://a.blogspot.com", "http://b.blogspot.com"}, got)
	assert.Empty(t, ParseSources(""))
}

func TestParseMaxResults(t *testing.T) {
	for raw, want := range map[string]int{
		"":      50,
		"abc":   50,
		"10":    10,
		" 25 ":  25,
		"30abc": 30,
		"0":     50,
		"-3":    50,
		"51":    50,
		"500":   50,
		"50":    50,
		"1":     1,
	} {
		assert.Equal(t, want, ParseMaxResults(raw), "raw %q", raw)
	}
}

func TestFeedURL(t *testing.T) {
	assert.Equal(t,
		"https://a.blogspot.com/feeds/posts/default?alt=json&max-results=50",
		FeedURL("https://a.blogspot.com/", 0, ""))
	assert.Equal(t,
		"https://a.blogspot.com/feeds/posts/default?alt=json-in-script&callback=bloggerjsonp_2&max-results=10",
		FeedURL("https://a.blogspot.com", 10, CallbackName(2)))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Blogger, KindOf("https://a.blogspot.com"))
	assert.Equal(t, RSS, KindOf("https://example.com/feed"))
	assert.Equal(t, RSS, KindOf("https://example.com/index.xml?x=1"))
	assert.Equal(t, RSS, KindOf("https://example.com/ATOM"))
}

func TestBuildSources(t *testing.T) {
	got := BuildSources(
		[]string{"https://a.blogspot.com", "https://b.example/rss"},
		[]string{"https://c.example/atom.xml", "junk"},
	)
	assert.Equal(t, []Source{
		{Index: 0, URL: "https://a.blogspot.com", Kind: Blogger},
		{Index: 1, URL: "https://b.example/rss", Kind: RSS},
		{Index: 2, URL: "https://c.example/atom.xml", Kind: RSS},
	}, got)
	assert.Equal(t, "bloggerjsonp_1", got[1].CallbackName())
}
