package system

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/teknomedia/sited/greylist"
)

type ctxKey int

const userKey ctxKey = iota

// currentUser returns the logged in admin, or nil.
func (s *System) currentUser(r *http.Request) *User {
	if u, ok := r.Context().Value(userKey).(*User); ok {
		return u
	}
	cookieinfo, err := s.readCookie(r, s.cookieName())
	if err != nil || !s.authkeyCheck(cookieinfo) {
		return nil
	}
	u, err := s.getUserByLogin(cookieinfo["user"])
	if err != nil {
		s.log.Warnw("error getting userinfo", "user", cookieinfo["user"], "err", err)
		return nil
	}
	return u
}

// RequireAdmin redirects visitors without a valid session to the login page.
func (s *System) RequireAdmin(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := s.currentUser(r)
		if u == nil {
			http.Redirect(w, r, "/admin/login", http.StatusFound)
			return
		}
		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func (s *System) LoginHandler(w http.ResponseWriter, r *http.Request) {
	// already logged in?
	if s.currentUser(r) != nil {
		http.Redirect(w, r, "/admin", http.StatusFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		status, msg := http.StatusOK, ""
		switch {
		case s.greylist.Banned(r):
			status, msg = http.StatusForbidden, "Terlalu banyak percobaan. Silakan coba lagi nanti."
		case r.URL.Query().Get("error") != "":
			msg = "Autentikasi gagal."
		}
		s.serveTemplate(w, r, status, "login.html", nil, map[string]any{"error": msg})
	case http.MethodPost:
		user := r.PostFormValue("user")
		u, err := s.doLogin(user, r.PostFormValue("password"))
		if err != nil {
			s.auditlog("failed login for %q from %s: %v", user, greylist.ClientIP(r), err)
			s.greylist.Strike(r)
			http.Redirect(w, r, "/admin/login?error=1", http.StatusFound)
			return
		}
		value := map[string]string{
			"user":    u.ID,
			"authkey": u.authkey,
		}
		if err := s.writeCookie(w, s.cookieName(), value, 0); err != nil {
			s.log.Errorw("error writing cookie", "err", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		s.greylist.Forgive(greylist.ClientIP(r))
		s.auditlog("login %q from %s", u.ID, greylist.ClientIP(r))
		http.Redirect(w, r, "/admin", http.StatusFound)
	default:
		http.Error(w, "bad method", http.StatusMethodNotAllowed)
	}
}

// LogoutHandler revokes the session key so copies of the cookie stop working.
func (s *System) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookieinfo, err := s.readCookie(r, s.cookieName()); err == nil && s.authkeyCheck(cookieinfo) {
		uid := cookieinfo["user"]
		if err := s.authkeyRevoke(uid); err != nil {
			s.log.Errorw("error revoking authkey", "user", uid, "err", err)
		} else {
			s.auditlog("logout %q", uid)
		}
	}
	s.clearCookie(w, s.cookieName())
	http.Redirect(w, r, "/", http.StatusFound)
}

// DashboardHandler lists the stored contact messages, newest first.
func (s *System) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := s.contacts.List(0)
	if err != nil {
		s.log.Errorw("error listing messages", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	res, _ := s.feeds.Peek()
	s.serveTemplate(w, r, http.StatusOK, "dashboard.html", s.currentUser(r), map[string]any{
		"messages":  messages,
		"count":     len(messages),
		"feed":      res,
		"feedError": feedMessage(res.Err()),
	})
}

// RefreshHandler re-fetches every feed now.
func (s *System) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	res := s.feeds.Refresh(r.Context())
	s.auditlog("feed refresh by %q: %d posts, %d failed", s.currentUser(r).ID, len(res.Posts), res.Failed)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (s *System) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.contacts.Delete(id); err != nil {
		s.log.Errorw("error deleting message", "id", id, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.auditlog("message %s deleted by %q", id, s.currentUser(r).ID)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}
