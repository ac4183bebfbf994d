// Package feed merges posts from several external blogs into one list.
//
// Blogger blogs are read through their JSON feed API, other sites through
// RSS or Atom. Every source is fetched in parallel; the posts are
// normalized to Post, de-duplicated and sorted newest first. A failing
// source does not prevent the others from rendering.
package feed

import (
	"errors"
	"sort"
	"time"
)

var (
	// ErrNoSources means the blog source list is empty.
	ErrNoSources = errors.New("feed: no blog sources configured")
	// ErrSourceFailed means at least one source could not be fetched or decoded.
	ErrSourceFailed = errors.New("feed: at least one source failed")
	// ErrCallbackMismatch is returned when a script payload calls an unexpected callback.
	ErrCallbackMismatch = errors.New("feed: callback name mismatch")
	// ErrMalformed is returned for payloads that are not JSON.
	ErrMalformed = errors.New("feed: malformed payload")
)

// Post is one normalized blog entry.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Published time.Time `json:"published"`
	Content   string    `json:"content"`
	Author    string    `json:"author,omitempty"`
	Labels    []string  `json:"labels,omitempty"`
	Image     string    `json:"image,omitempty"` // explicit thumbnail, RSS only
	Source    string    `json:"source"`
}

// Excerpt is the plain text of the post content cut to n runes.
func (p Post) Excerpt(n int) string { return Excerpt(p.Content, n) }

// Thumbnail is the feed supplied image, else the first image of the
// post content, or "".
func (p Post) Thumbnail() string {
	if p.Image != "" {
		return p.Image
	}
	return Thumbnail(p.Content)
}

// FirstLabel returns the label shown over the thumbnail.
func (p Post) FirstLabel() string {
	if len(p.Labels) == 0 {
		return ""
	}
	return p.Labels[0]
}

// Result is the outcome of one aggregation round.
type Result struct {
	Posts   []Post    `json:"posts"`
	Sources int       `json:"sources"`
	Failed  int       `json:"failed"`
	Home    string    `json:"home,omitempty"` // first source, linked as the main portal
	Fetched time.Time `json:"fetched"`
}

// Err reports the aggregate failure, if any. Posts may still be present
// when it returns ErrSourceFailed.
func (r Result) Err() error {
	switch {
	case r.Sources == 0:
		return ErrNoSources
	case r.Failed > 0:
		return ErrSourceFailed
	}
	return nil
}

// Merge de-duplicates posts by ID, keeping the first occurrence, and sorts
// them by publication date, newest first. Posts without a date go last.
func Merge(posts []Post) []Post {
	seen := make(map[string]struct{}, len(posts))
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p.ID != "" {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Published, out[j].Published
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		return a.After(b)
	})
	return out
}
