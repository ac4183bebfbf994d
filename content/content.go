// Package content holds the static copy of the site: hero slides, the
// informational sections, team, testimonials and gallery.
package content

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed site.yaml
var embedded []byte

// DefaultSlideInterval is how long the hero carousel shows each slide.
const DefaultSlideInterval = 5 * time.Second

type Slide struct {
	ID    int    `yaml:"id"`
	Image string `yaml:"image"`
	Alt   string `yaml:"alt"`
}

// Section is the heading block of a page section.
type Section struct {
	Badge    string   `yaml:"badge"`
	Title    string   `yaml:"title"`
	Subtitle string   `yaml:"subtitle"`
	Body     []string `yaml:"body"`
}

type Hero struct {
	Greeting      string        `yaml:"greeting"`
	Title         string        `yaml:"title"`
	Subtitle      string        `yaml:"subtitle"`
	CTA           string        `yaml:"cta"`
	SlideInterval time.Duration `yaml:"slide-interval"`
	Slides        []Slide       `yaml:"slides"`
}

type About struct {
	Section  `yaml:",inline"`
	Vision   string   `yaml:"vision"`
	Mission  []string `yaml:"mission"`
	Partners Section  `yaml:"partners"`
}

type Service struct {
	Icon        string `yaml:"icon"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Reason is one entry of the why-us grid.
type Reason Service

type Achievement struct {
	Image       string `yaml:"image"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Tag         string `yaml:"tag"`
}

type Member struct {
	Image       string            `yaml:"image"`
	Name        string            `yaml:"name"`
	Role        string            `yaml:"role"`
	Description string            `yaml:"description"`
	Socials     map[string]string `yaml:"socials"`
}

type Testimonial struct {
	Quote  string `yaml:"quote"`
	Name   string `yaml:"name"`
	Role   string `yaml:"role"`
	Avatar string `yaml:"avatar"`
	Rating int    `yaml:"rating"`
}

// Stars returns Rating as a slice for ranging in templates.
func (t Testimonial) Stars() []struct{} {
	return make([]struct{}, t.Rating)
}

type GalleryItem struct {
	ID          int    `yaml:"id"`
	Image       string `yaml:"image"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Contact is the company's reachable addresses shown beside the form.
type Contact struct {
	Email   string `yaml:"email"`
	Phone   string `yaml:"phone"`
	Address string `yaml:"address"`
	MapURL  string `yaml:"map"`
}

// Site is everything the pages render apart from posts.
type Site struct {
	Hero         Hero          `yaml:"hero"`
	About        About         `yaml:"about"`
	WhyUs        Section       `yaml:"why-us"`
	Reasons      []Reason      `yaml:"reasons"`
	Services     Section       `yaml:"services"`
	ServiceList  []Service     `yaml:"service-list"`
	Featured     Section       `yaml:"featured"`
	Achievements []Achievement `yaml:"achievements"`
	Testimonials Section       `yaml:"testimonials"`
	Quotes       []Testimonial `yaml:"quotes"`
	Team         Section       `yaml:"team"`
	Members      []Member      `yaml:"members"`
	Gallery      Section       `yaml:"gallery"`
	Photos       []GalleryItem `yaml:"photos"`
	News         Section       `yaml:"news"`
	Contact      Contact       `yaml:"contact"`
}

// Load decodes a YAML document and normalizes it.
func Load(r io.Reader) (*Site, error) {
	var s Site
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	s.normalize()
	return &s, nil
}

// LoadFile reads content from path, or the embedded document when path is "".
func LoadFile(path string) (*Site, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Default returns the embedded content.
func Default() *Site {
	s, err := Load(bytes.NewReader(embedded))
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Site) normalize() {
	if s.Hero.SlideInterval <= 0 {
		s.Hero.SlideInterval = DefaultSlideInterval
	}
	for i := range s.Hero.Slides {
		if s.Hero.Slides[i].ID == 0 {
			s.Hero.Slides[i].ID = i + 1
		}
	}
	for i := range s.Photos {
		if s.Photos[i].ID == 0 {
			s.Photos[i].ID = i + 1
		}
	}
	for i := range s.Quotes {
		s.Quotes[i].Rating = clampRating(s.Quotes[i].Rating)
	}
}

// clampRating keeps a rating within 1..5; unset means 5.
func clampRating(n int) int {
	switch {
	case n == 0:
		return 5
	case n < 1:
		return 1
	case n > 5:
		return 5
	}
	return n
}
