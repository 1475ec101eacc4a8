package reflow

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// maxEntityLen bounds the name of a character reference such as "&hellip;".
const maxEntityLen = 10

// segment is a byte range of the source: either text or one complete
// markup token (tag, comment, doctype).
type segment struct {
	start, end int
	text       bool
	tt         html.TokenType
	name       string
}

// segments splits content the way an HTML tokenizer does. A '<' that does
// not open a tag stays text, and so does a trailing tag with no closing
// '>'. The segments cover content exactly.
func segments(content string) []segment {
	var segs []segment
	z := html.NewTokenizer(strings.NewReader(content))
	off := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := z.Raw()
		seg := segment{start: off, end: off + len(raw), tt: tt}
		switch {
		case tt == html.TextToken:
			seg.text = true
		case !bytes.HasSuffix(raw, []byte(">")):
			seg.text = true
		case tt == html.StartTagToken || tt == html.EndTagToken || tt == html.SelfClosingTagToken:
			name, _ := z.TagName()
			seg.name = string(name)
		}
		segs = append(segs, seg)
		off = seg.end
	}
	if off < len(content) {
		segs = append(segs, segment{start: off, end: len(content), text: true, tt: html.TextToken})
	}
	return segs
}

// entityLen returns the length of the character reference at the start of
// s, or 0 when s does not start with one.
func entityLen(s string) int {
	if len(s) < 3 || s[0] != '&' {
		return 0
	}
	for i := 1; i < len(s) && i <= maxEntityLen+1; i++ {
		c := s[i]
		switch {
		case c == ';':
			if i == 1 {
				return 0
			}
			return i + 1
		case c == '#' && i == 1,
			c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return 0
		}
	}
	return 0
}

// CutPoints returns the ascending byte offsets where content may be split
// without breaking a rune, a tag, or a character entity. The first offset is
// always 0 and the last is always len(content).
func CutPoints(content string) []int {
	cuts := make([]int, 0, utf8.RuneCountInString(content)+1)
	cuts = append(cuts, 0)
	add := func(i int) {
		if cuts[len(cuts)-1] != i {
			cuts = append(cuts, i)
		}
	}
	for _, seg := range segments(content) {
		if !seg.text {
			continue
		}
		add(seg.start)
		for i := seg.start; i < seg.end; {
			if n := entityLen(content[i:seg.end]); n > 0 {
				i += n
			} else {
				_, size := utf8.DecodeRuneInString(content[i:seg.end])
				i += size
			}
			add(i)
		}
	}
	add(len(content))
	return cuts
}

// breaksLine reports whether a tag ends a visual line.
func breaksLine(seg segment) bool {
	switch seg.name {
	case "br":
		return true
	case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6":
		return seg.tt == html.EndTagToken
	}
	return false
}

// Visible returns the text a reader would see: tags removed, entities
// decoded, and line-breaking tags turned into '\n'.
func Visible(content string) string {
	if !strings.ContainsAny(content, "<&") {
		return content
	}
	var b strings.Builder
	b.Grow(len(content))
	for _, seg := range segments(content) {
		switch {
		case seg.text:
			b.WriteString(html.UnescapeString(content[seg.start:seg.end]))
		case breaksLine(seg):
			b.WriteByte('\n')
		}
	}
	return b.String()
}
