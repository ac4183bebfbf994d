package system

import (
	"encoding/json"
	"math"
	"net/http"
	"time"
)

type statusReply struct {
	Hits    uint64     `json:"hits"`
	Average float64    `json:"hits-per-second,omitempty"`
	Uptime  float64    `json:"uptime,omitempty"`
	Posts   int        `json:"posts"`
	Sources int        `json:"sources"`
	Failed  int        `json:"failed"`
	Fetched *time.Time `json:"fetched,omitempty"` // nil before the first fetch
}

func (s *System) StatusHandler(w http.ResponseWriter, r *http.Request) {
	stats := statusReply{Hits: s.Stats.hits.Load()}
	if !s.Stats.t1.IsZero() {
		d := time.Since(s.Stats.t1)
		stats.Uptime = d.Truncate(time.Second).Seconds()
		if stats.Uptime > 0 {
			stats.Average = math.Round(float64(stats.Hits)/stats.Uptime*100) / 100
		}
	}
	if res, ok := s.feeds.Peek(); ok {
		stats.Posts, stats.Sources, stats.Failed = len(res.Posts), res.Sources, res.Failed
		if !res.Fetched.IsZero() {
			stats.Fetched = &res.Fetched
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.log.Debugw("error writing status", "err", err)
	}
}

// Healthz reports liveness: the database answers.
func (s *System) Healthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.contacts.Count(); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}
