package system

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/teknomedia/sited/feed"
)

type JSONError struct {
	Error string `json:"error"`
}

func (s *System) serveJsonError(w http.ResponseWriter, e string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(JSONError{e}); err != nil {
		s.log.Debugw("error writing json error", "err", err)
	}
}

type postsReply struct {
	Posts   []feed.Post `json:"posts"`
	Sources int         `json:"sources"`
	Failed  int         `json:"failed"`
	Home    string      `json:"home,omitempty"`
	Fetched time.Time   `json:"fetched"`
	Error   string      `json:"error,omitempty"`
}

// PostsHandler serves the merged blog posts as JSON. Partial failures still
// return 200 with the posts that loaded and an error message.
func (s *System) PostsHandler(w http.ResponseWriter, r *http.Request) {
	res := s.feeds.Serve(r.Context())
	reply := postsReply{
		Posts:   res.Posts,
		Sources: res.Sources,
		Failed:  res.Failed,
		Home:    res.Home,
		Fetched: res.Fetched,
		Error:   feedMessage(res.Err()),
	}
	if reply.Posts == nil {
		reply.Posts = []feed.Post{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=60")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		s.log.Debugw("error writing posts", "err", err)
	}
}

// feedMessage is the visitor facing text for an aggregation error.
func feedMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, feed.ErrNoSources):
		return "URL Blog tidak ditemukan. Harap atur BLOG_URLS pada konfigurasi."
	case errors.Is(err, feed.ErrSourceFailed):
		return "Gagal memuat data dari setidaknya satu blog. Cek URL pada konfigurasi."
	}
	return "Gagal memuat artikel."
}
