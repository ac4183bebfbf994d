package feed

import (
	"bytes"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Decode reads a Blogger feed payload. The payload is either plain JSON or
// a script of the form `callback({...});`, optionally preceded by comment
// lines. When callback is not empty a script payload must call it.
//
// A payload without entries is an empty feed, not an error.
func Decode(body []byte, callback string) ([]Post, error) {
	payload, err := unwrapScript(body, callback)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(payload) {
		return nil, ErrMalformed
	}
	entries := gjson.GetBytes(payload, "feed.entry")
	if !entries.Exists() {
		return nil, nil
	}
	var posts []Post
	for _, e := range entries.Array() {
		posts = append(posts, decodeEntry(e))
	}
	return posts, nil
}

func decodeEntry(e gjson.Result) Post {
	p := Post{
		ID:      e.Get("id.$t").String(),
		Title:   e.Get("title.$t").String(),
		URL:     e.Get(`link.#(rel=="alternate").href`).String(),
		Content: e.Get("content.$t").String(),
		Author:  e.Get("author.0.name.$t").String(),
	}
	if p.URL == "" {
		p.URL = "#"
	}
	if p.Content == "" {
		p.Content = e.Get("summary.$t").String()
	}
	if t, err := time.Parse(time.RFC3339, e.Get("published.$t").String()); err == nil {
		p.Published = t
	}
	for _, c := range e.Get("category.#.term").Array() {
		if c.String() != "" {
			p.Labels = append(p.Labels, c.String())
		}
	}
	return p
}

// unwrapScript strips the callback wrapper from a json-in-script payload.
func unwrapScript(body []byte, callback string) ([]byte, error) {
	b := bytes.TrimSpace(body)
	for bytes.HasPrefix(b, []byte("//")) {
		nl := bytes.IndexByte(b, '\n')
		if nl < 0 {
			return nil, ErrMalformed
		}
		b = bytes.TrimSpace(b[nl+1:])
	}
	if len(b) == 0 {
		return nil, ErrMalformed
	}
	if b[0] == '{' || b[0] == '[' {
		return b, nil
	}
	open := bytes.IndexByte(b, '(')
	end := bytes.LastIndexByte(b, ')')
	if open <= 0 || end < open {
		return nil, ErrMalformed
	}
	name := string(bytes.TrimSpace(b[:open]))
	if callback != "" && name != callback {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrCallbackMismatch, name, callback)
	}
	if rest := bytes.TrimSpace(b[end+1:]); len(rest) > 0 && !bytes.Equal(rest, []byte(";")) {
		return nil, ErrMalformed
	}
	return bytes.TrimSpace(b[open+1 : end]), nil
}
