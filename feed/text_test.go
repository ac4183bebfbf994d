package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "", StripHTML(""))
	assert.Equal(t, "Halo dunia & teman", StripHTML("<div><p>Halo</p>\n<b>dunia</b> &amp; teman</div>"))
	assert.Equal(t, "sebelum sesudah", StripHTML("sebelum<script>alert(1)</script><style>p{}</style> sesudah"))

	// inline markup does not split words
	assert.Equal(t, "Bahasa Indonesia", StripHTML("<b>B</b>ahasa Indonesia"))
	assert.Equal(t, "H2O", StripHTML("H<sub>2</sub>O"))
	assert.Equal(t, "satu dua tiga", StripHTML("<span>satu</span> <i>dua</i> <a href=\"#\">tiga</a>"))

	// blocks and line breaks do
	assert.Equal(t, "satu dua tiga empat", StripHTML("<p>satu</p><p>dua</p>tiga<br>empat"))
	assert.Equal(t, "Judul a b", StripHTML("<h2>Judul</h2><ul><li>a</li><li>b</li></ul>"))
	assert.Equal(t, "baris baru", StripHTML("baris<br/>baru"))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "", Excerpt("", 10))
	assert.Equal(t, "pendek", Excerpt("<p>pendek</p>", 10))
	assert.Equal(t, "0123456789...", Excerpt("<p>0123456789abc</p>", 10))

	long := strings.Repeat("é", DefaultExcerpt+5)
	got := Excerpt(long, 0)
	assert.Equal(t, strings.Repeat("é", DefaultExcerpt)+"...", got)
}

func TestThumbnail(t *testing.T) {
	assert.Equal(t, "", Thumbnail("<p>no image</p>"))
	assert.Equal(t, "", Thumbnail(`<img alt="x">`))
	assert.Equal(t,
		"https://bp.example/a/s0/b/s1600/c.png",
		Thumbnail(`<p>x</p><img class="a" src="https://bp.example/a/s1600/b/s1600/c.png"/><img src="second.png">`))

	p := Post{Content: `<img src="inline.png">`, Image: "feed.png"}
	assert.Equal(t, "feed.png", p.Thumbnail())
	p.Image = ""
	assert.Equal(t, "inline.png", p.Thumbnail())
	assert.Equal(t, "", p.FirstLabel())
}
