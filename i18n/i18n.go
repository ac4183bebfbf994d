// Package i18n picks the page language and formats dates for it.
package i18n

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/text/language"
)

// Supported lists the page languages, default first.
var Supported = []language.Tag{language.Indonesian, language.English}

var matcher = language.NewMatcher(Supported)

// CookieName stores an explicit language choice.
const CookieName = "lang"

// Resolve picks the language from ?lang=, the lang cookie, then
// Accept-Language, falling back to fallback (or Indonesian).
func Resolve(r *http.Request, fallback language.Tag) language.Tag {
	var prefs []string
	if q := r.URL.Query().Get("lang"); q != "" {
		prefs = append(prefs, q)
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		prefs = append(prefs, c.Value)
	}
	for _, p := range prefs {
		if t, err := language.Parse(p); err == nil {
			if m, _, conf := matcher.Match(t); conf != language.No {
				return base(m)
			}
		}
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		tags, _, err := language.ParseAcceptLanguage(accept)
		if err == nil && len(tags) > 0 {
			if m, _, conf := matcher.Match(tags...); conf != language.No {
				return base(m)
			}
		}
	}
	if fallback == language.Und {
		return language.Indonesian
	}
	return fallback
}

// Parse reads a configured language, defaulting to Indonesian.
func Parse(s string) language.Tag {
	t, err := language.Parse(s)
	if err != nil {
		return language.Indonesian
	}
	m, _, _ := matcher.Match(t)
	return base(m)
}

// base drops the -u-rg extensions the matcher adds so tags compare equal
// to the Supported entries.
func base(t language.Tag) language.Tag {
	b, _ := t.Base()
	for _, s := range Supported {
		if sb, _ := s.Base(); sb == b {
			return s
		}
	}
	return Supported[0]
}

var months = map[language.Tag][12]string{
	language.Indonesian: {"Januari", "Februari", "Maret", "April", "Mei", "Juni", "Juli", "Agustus", "September", "Oktober", "November", "Desember"},
	language.English:    {"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
}

// FormatDate renders t as a long date: "2 Januari 2025" or "January 2, 2025".
// The zero time renders as "".
func FormatDate(t time.Time, tag language.Tag) string {
	if t.IsZero() {
		return ""
	}
	tag = base(tag)
	m := months[tag][t.Month()-1]
	day, year := strconv.Itoa(t.Day()), strconv.Itoa(t.Year())
	if tag == language.English {
		return m + " " + day + ", " + year
	}
	return day + " " + m + " " + year
}
