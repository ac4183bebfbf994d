// Package contact holds the contact form rules and the submission inbox.
package contact

import (
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"
)

const MinMessageLength = 10

// Field error messages shown next to the inputs.
const (
	ErrName    = "Nama harus diisi."
	ErrEmail   = "Email tidak valid."
	ErrSubject = "Subjek harus diisi."
	ErrMessage = "Pesan minimal 10 karakter."
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// Form is what a visitor typed.
type Form struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Errors holds one message per field; empty means the field is fine.
type Errors struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`
}

// Any reports whether at least one field failed.
func (e Errors) Any() bool {
	return e.Name != "" || e.Email != "" || e.Subject != "" || e.Message != ""
}

// FromRequest reads and trims the form fields of a parsed request.
func FromRequest(r *http.Request) Form {
	return Form{
		Name:    strings.TrimSpace(r.FormValue("name")),
		Email:   strings.TrimSpace(r.FormValue("email")),
		Subject: strings.TrimSpace(r.FormValue("subject")),
		Message: strings.TrimSpace(r.FormValue("message")),
	}
}

// Validate checks every field and returns all failures at once.
func Validate(f Form) Errors {
	var e Errors
	if f.Name == "" {
		e.Name = ErrName
	}
	if f.Email == "" || !emailPattern.MatchString(f.Email) {
		e.Email = ErrEmail
	}
	if f.Subject == "" {
		e.Subject = ErrSubject
	}
	if utf8.RuneCountInString(f.Message) < MinMessageLength {
		e.Message = ErrMessage
	}
	return e
}
