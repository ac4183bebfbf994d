package feed

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultExcerpt is the excerpt length used by the news cards.
const DefaultExcerpt = 120

// StripHTML returns the text content of an HTML fragment with runs of
// whitespace collapsed. Text nodes join without separators, so inline
// markup inside a word keeps it whole; block elements and br separate
// words. Script and style bodies are dropped.
func StripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	var (
		sb   strings.Builder
		skip int
	)
	for {
		switch tt := z.Next(); tt {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken, html.SelfClosingTagToken:
			a := tagAtom(z)
			if tt == html.StartTagToken && (a == atom.Script || a == atom.Style) {
				skip++
			}
			if blockBreak[a] {
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			a := tagAtom(z)
			if (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
			if blockBreak[a] {
				sb.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

// blockBreak elements start a new line when rendered.
var blockBreak = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Pre: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.Table: true, atom.Section: true, atom.Article: true, atom.Hr: true, atom.Img: true,
	atom.Figure: true, atom.Figcaption: true,
}

func tagAtom(z *html.Tokenizer) atom.Atom {
	name, _ := z.TagName()
	return atom.Lookup(name)
}

// Excerpt strips content to plain text and truncates it to n runes,
// appending "..." when something was cut. n <= 0 means DefaultExcerpt.
func Excerpt(content string, n int) string {
	if content == "" {
		return ""
	}
	if n <= 0 {
		n = DefaultExcerpt
	}
	text := []rune(StripHTML(content))
	if len(text) <= n {
		return string(text)
	}
	return string(text[:n]) + "..."
}

// Thumbnail returns the src of the first img in content. Blogger serves
// "/s1600/" images downscaled; "/s0/" asks for the original size.
func Thumbnail(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return ""
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if atom.Lookup(name) != atom.Img {
			continue
		}
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			if string(key) == "src" && len(val) > 0 {
				return strings.Replace(string(val), "/s1600/", "/s0/", 1)
			}
		}
	}
}
