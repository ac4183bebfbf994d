package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()

	assert.Equal(t, DefaultSlideInterval, s.Hero.SlideInterval)
	require.Len(t, s.Hero.Slides, 3)
	assert.Equal(t, "Education Technology", s.Hero.Slides[0].Alt)
	assert.Equal(t, 3, s.Hero.Slides[2].ID)

	assert.Len(t, s.ServiceList, 6)
	assert.Len(t, s.Reasons, 4)
	assert.Len(t, s.Achievements, 3)
	assert.Len(t, s.Members, 4)
	assert.Len(t, s.Photos, 6)
	assert.Equal(t, 6, s.Photos[5].ID)

	require.Len(t, s.Quotes, 3)
	for _, q := range s.Quotes {
		assert.Equal(t, 5, q.Rating, q.Name)
		assert.Len(t, q.Stars(), 5)
	}
	assert.Equal(t, "teknomediainfo77@gmail.com", s.Contact.Email)
	assert.True(t, strings.HasPrefix(s.Contact.MapURL, "https://www.google.com/maps/embed"))
}

func TestLoadNormalizes(t *testing.T) {
	doc := `
hero:
  slide-interval: 2s
  slides:
    - alt: one
quotes:
  - name: unset
  - name: low
    rating: -3
  - name: high
    rating: 9
  - name: ok
    rating: 4
`
	s, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, s.Hero.SlideInterval)
	assert.Equal(t, 1, s.Hero.Slides[0].ID)

	var got []int
	for _, q := range s.Quotes {
		got = append(got, q.Rating)
	}
	assert.Equal(t, []int{5, 1, 5, 4}, got)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader("heroes: []\n"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	s, err := LoadFile("")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Members)

	p := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(p, []byte("team:\n  title: Tim\n"), 0600))
	s, err = LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "Tim", s.Team.Title)
	assert.Equal(t, DefaultSlideInterval, s.Hero.SlideInterval)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
