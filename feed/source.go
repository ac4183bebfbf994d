package feed

import (
	"net/url"
	"strconv"
	"strings"
)

// MaxResultsLimit is the most entries Blogger returns per request.
const MaxResultsLimit = 50

// Kind tells how a source is fetched and decoded.
type Kind int

const (
	Blogger Kind = iota
	RSS
)

func (k Kind) String() string {
	if k == RSS {
		return "rss"
	}
	return "blogger"
}

// Source is one configured blog.
type Source struct {
	Index int
	URL   string
	Kind  Kind
}

// CallbackName is the unique script callback used when the source is
// requested in json-in-script form.
func (s Source) CallbackName() string { return CallbackName(s.Index) }

// ParseSources splits a comma separated list of blog URLs.
func ParseSources(raw string) []string {
	return CleanSources(strings.Split(raw, ","))
}

// CleanSources trims each entry, drops anything that is not an http(s)
// URL and strips trailing slashes.
func CleanSources(list []string) []string {
	var out []string
	for _, u := range list {
		u = strings.TrimSpace(u)
		if !strings.HasPrefix(u, "http") {
			continue
		}
		out = append(out, strings.TrimRight(u, "/"))
	}
	return out
}

// BuildSources numbers Blogger roots first, then RSS/Atom feeds. A URL in
// the Blogger list that points straight at a feed document is read as RSS.
func BuildSources(blogger, rss []string) []Source {
	var out []Source
	for _, u := range CleanSources(blogger) {
		out = append(out, Source{Index: len(out), URL: u, Kind: KindOf(u)})
	}
	for _, u := range CleanSources(rss) {
		out = append(out, Source{Index: len(out), URL: u, Kind: RSS})
	}
	return out
}

// KindOf guesses the source kind from its URL.
func KindOf(u string) Kind {
	p := strings.ToLower(u)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	for _, suffix := range []string{".xml", ".rss", ".atom", "/feed", "/rss", "/atom"} {
		if strings.HasSuffix(p, suffix) {
			return RSS
		}
	}
	return Blogger
}

// ParseMaxResults reads a leading integer the way a lenient form parser
// would ("30abc" is 30) and clamps it. Anything unreadable yields the limit.
func ParseMaxResults(raw string) int {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) && (raw[end] >= '0' && raw[end] <= '9' || end == 0 && (raw[end] == '-' || raw[end] == '+')) {
		end++
	}
	n, err := strconv.Atoi(raw[:end])
	if err != nil {
		return MaxResultsLimit
	}
	return ClampMaxResults(n)
}

// ClampMaxResults maps non-positive values to the limit and caps the rest.
func ClampMaxResults(n int) int {
	if n <= 0 || n > MaxResultsLimit {
		return MaxResultsLimit
	}
	return n
}

// CallbackName returns the script callback name for the source at index.
func CallbackName(index int) string {
	return "bloggerjsonp_" + strconv.Itoa(index)
}

// FeedURL builds the Blogger posts feed URL for a blog root. With a
// callback the response is wrapped in a call to that function.
func FeedURL(base string, max int, callback string) string {
	q := url.Values{}
	if callback != "" {
		q.Set("alt", "json-in-script")
		q.Set("callback", callback)
	} else {
		q.Set("alt", "json")
	}
	q.Set("max-results", strconv.Itoa(ClampMaxResults(max)))
	return strings.TrimRight(base, "/") + "/feeds/posts/default?" + q.Encode()
}
