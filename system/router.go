package system

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
)

// MaxFormBytes caps request bodies on the form routes.
const MaxFormBytes = 64 << 10

// Handler builds the router. Every request is counted and greylisted;
// pages with forms also go through CSRF protection.
func (s *System) Handler() http.Handler {
	cfg := s.Config()
	CSRF := csrf.Protect([]byte(cfg.Sec.CSRFKey),
		csrf.Secure(!cfg.Meta.DevelopmentMode),
		csrf.FieldName("_csrf"),
		csrf.Path("/"),
		csrf.CookieName(cfg.Sec.CookieName+"_csrf"),
		csrf.ErrorHandler(http.HandlerFunc(s.csrfFailure)))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.HitCounter)
	r.Use(middleware.Recoverer)
	r.Use(s.greylist.Protect)

	// static files
	for _, p := range []string{"/favicon.ico", "/favicon.svg", "/robots.txt", "/css/*", "/js/*", "/img/*"} {
		r.Get(p, s.StaticHandler)
	}

	r.Get("/status", s.StatusHandler)
	r.Get("/healthz", s.Healthz)
	r.Get("/api/posts", s.PostsHandler)

	r.Group(func(r chi.Router) {
		// limit form bodies before csrf parses them
		r.Use(middleware.RequestSize(MaxFormBytes))
		r.Use(CSRF)
		r.Get("/", s.HomeHandler)
		r.Head("/", s.HomeHandler)
		r.Get("/contact", s.ContactHandler)
		r.Post("/contact", s.ContactSubmitHandler)

		r.Get("/admin/login", s.LoginHandler)
		r.Post("/admin/login", s.LoginHandler)
		r.Group(func(r chi.Router) {
			r.Use(s.RequireAdmin)
			r.Get("/admin", s.DashboardHandler)
			r.Post("/admin/logout", s.LogoutHandler)
			r.Post("/admin/refresh", s.RefreshHandler)
			r.Post("/admin/messages/{id}/delete", s.DeleteMessageHandler)
		})
	})

	r.NotFound(s.NotFoundHandler)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.serveJsonError(w, "bad method", http.StatusMethodNotAllowed)
			return
		}
		http.Error(w, "bad method", http.StatusMethodNotAllowed)
	})
	return r
}

func (s *System) csrfFailure(w http.ResponseWriter, r *http.Request) {
	s.log.Infow("csrf failure", "path", r.URL.Path, "reason", csrf.FailureReason(r))
	http.Error(w, "Forbidden - CSRF token invalid. Refresh the page and try again.", http.StatusForbidden)
}
