package system

import (
	"net/http"
	"time"

	"github.com/teknomedia/sited/contact"
	"github.com/teknomedia/sited/greylist"
)

const (
	flashSent   = "sent"
	flashFailed = "failed"
)

func (s *System) ContactHandler(w http.ResponseWriter, r *http.Request) {
	s.serveContact(w, r, http.StatusOK, contact.Form{}, contact.Errors{}, s.popFlash(w, r))
}

func (s *System) serveContact(w http.ResponseWriter, r *http.Request, status int, form contact.Form, errs contact.Errors, flash string) {
	s.serveTemplate(w, r, status, "contact.html", s.currentUser(r), map[string]any{
		"form":     form,
		"errors":   errs,
		"flash":    flash,
		"honeypot": s.Config().Contact.Honeypot,
	})
}

// ContactSubmitHandler validates and stores a contact message, then
// redirects back to the form with a flash banner.
func (s *System) ContactSubmitHandler(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config()
	if err := r.ParseForm(); err != nil {
		s.log.Infow("error parsing form", "err", err)
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	// bots fill every field; pretend it worked
	if r.PostFormValue(cfg.Contact.Honeypot) != "" {
		s.log.Infow("dropping contact message with honeypot field", "ip", greylist.ClientIP(r))
		s.greylist.Strike(r)
		s.setFlash(w, flashSent)
		http.Redirect(w, r, "/contact", http.StatusSeeOther)
		return
	}

	form := contact.FromRequest(r)
	if errs := contact.Validate(form); errs.Any() {
		s.serveContact(w, r, http.StatusUnprocessableEntity, form, errs, "")
		return
	}

	if d := cfg.Contact.Delay.Std(); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	sub := &contact.Submission{Form: form, IP: greylist.ClientIP(r), Referer: r.Referer()}
	if err := s.contacts.Save(sub); err != nil {
		s.log.Errorw("error saving contact message", "err", err)
		s.serveContact(w, r, http.StatusInternalServerError, form, contact.Errors{}, flashFailed)
		return
	}
	s.log.Infow("stored contact message", "id", sub.ID, "ip", sub.IP)
	s.setFlash(w, flashSent)
	http.Redirect(w, r, "/contact", http.StatusSeeOther)
}
