package system

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/teknomedia/sited/greylist"
	"github.com/teknomedia/sited/i18n"
	"golang.org/x/text/language"
)

var funcs = template.FuncMap{
	"formatDate": i18n.FormatDate,
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("2006-01-02 15:04")
	},
}

var pageTitles = map[string]string{
	"index.html":     "Beranda",
	"contact.html":   "Hubungi Kami",
	"login.html":     "Login",
	"dashboard.html": "Kotak Masuk",
	"404.html":       "Tidak Ditemukan",
}

// serveTemplate renders tname with the common page data plus data.
// The page is rendered to a buffer first so template errors become a 500
// instead of half a page.
func (s *System) serveTemplate(w http.ResponseWriter, r *http.Request, status int, tname string, userinfo *User, data map[string]any) {
	templates := *s.templates.Load()
	t, ok := templates[tname]
	if !ok {
		s.log.Errorw("missing template", "template", tname)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	cfg := s.Config()
	lang := s.language(w, r)

	var pageTitle = cfg.Meta.SiteName
	if pageTitle != "" {
		pageTitle += " | "
	}
	pageTitle += pageTitles[tname]

	page := map[string]any{
		"csrfField":     csrf.TemplateField(r),
		"csrfToken":     csrf.Token(r),
		"user":          userinfo,
		"pageTitle":     pageTitle,
		"sitename":      cfg.Meta.SiteName,
		"copyrightname": cfg.Meta.CopyrightName,
		"meta":          cfg.Meta.TemplateData,
		"lang":          lang,
		"path":          r.URL.Path,
		"site":          s.site.Load(),
		"year":          time.Now().Year(),
	}
	for k, v := range data {
		page[k] = v
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, tname, page); err != nil {
		s.log.Errorw("error executing template", "template", tname, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.SetCSPHeader(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-CSRF-Token", csrf.Token(r))
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *System) SetCSPHeader(w http.ResponseWriter) {
	w.Header().Set("Content-Security-Policy", s.csp)
}

// language resolves the page language and remembers an explicit ?lang= choice.
func (s *System) language(w http.ResponseWriter, r *http.Request) language.Tag {
	tag := i18n.Resolve(r, s.defaultLang())
	if r.URL.Query().Get("lang") != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     i18n.CookieName,
			Value:    tag.String(),
			Path:     "/",
			MaxAge:   365 * 24 * 3600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return tag
}

func (s *System) cookieName() string {
	return s.Config().Sec.CookieName
}

func (s *System) writeCookie(w http.ResponseWriter, name string, value map[string]string, maxAge int) error {
	encoded, err := s.cookies.Encode(name, value)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !s.Config().Meta.DevelopmentMode,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// read cookie
func (s *System) readCookie(r *http.Request, name string) (map[string]string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return nil, err
	}
	value := make(map[string]string)
	if err := s.cookies.Decode(name, cookie.Value, &value); err != nil {
		s.log.Debugw("error decoding cookie", "cookie", name, "err", err)
		return nil, err
	}
	return value, nil
}

func (s *System) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
}

// setFlash stores a one-shot message for the page after a redirect.
func (s *System) setFlash(w http.ResponseWriter, msg string) {
	if err := s.writeCookie(w, s.cookieName()+"_flash", map[string]string{"msg": msg}, 60); err != nil {
		s.log.Errorw("error writing flash cookie", "err", err)
	}
}

// popFlash returns and clears the flash message, "" if none.
func (s *System) popFlash(w http.ResponseWriter, r *http.Request) string {
	name := s.cookieName() + "_flash"
	v, err := s.readCookie(r, name)
	if err != nil {
		return ""
	}
	s.clearCookie(w, name)
	return v["msg"]
}

// HitCounter http middleware that logs and counts
func (s *System) HitCounter(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Stats.hits.Add(1)
		s.log.Debugw("request", "host", r.Host, "method", r.Method, "path", r.URL.Path,
			"ip", greylist.ClientIP(r), "ua", truncate(r.UserAgent(), 50))
		h.ServeHTTP(w, r)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (s *System) HomeHandler(w http.ResponseWriter, r *http.Request) {
	// return OK if HEAD on main page
	if r.Method == http.MethodHead {
		return
	}
	res := s.feeds.Serve(r.Context())
	s.serveTemplate(w, r, http.StatusOK, "index.html", s.currentUser(r), map[string]any{
		"feed":      res,
		"feedError": feedMessage(res.Err()),
	})
}

// NotFoundHandler serves files from the public dir when ServePublic is set,
// else the 404 page.
func (s *System) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	if s.Config().Sec.ServePublic && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if fi, err := fs.Stat(s.publicFS, name); err == nil && !fi.IsDir() {
			s.StaticHandler(w, r)
			return
		}
	}
	s.serveTemplate(w, r, http.StatusNotFound, "404.html", nil, nil)
}

func (s *System) StaticHandler(w http.ResponseWriter, r *http.Request) {
	// no directory listings
	if strings.HasSuffix(r.URL.Path, "/") {
		s.NotFoundHandler(w, r)
		return
	}
	w.Header().Set("Expires", time.Now().Add(time.Hour*24).UTC().Truncate(time.Second).Format(http.TimeFormat))
	http.FileServerFS(s.publicFS).ServeHTTP(w, r)
}
