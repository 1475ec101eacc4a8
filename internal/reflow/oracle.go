package reflow

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// RuneCapacity fits at most n visible runes on every page.
func RuneCapacity(n int) Oracle {
	return OracleFunc(func(_ int, content string) bool {
		return utf8.RuneCountInString(Visible(content)) <= n
	})
}

// LineCapacity fits content that wraps into at most lines rows of cols
// terminal cells. East Asian wide runes take two cells.
func LineCapacity(cols, lines int) Oracle {
	if cols < 1 {
		cols = 1
	}
	return OracleFunc(func(_ int, content string) bool {
		return WrappedLines(Visible(content), cols) <= lines
	})
}

// WrappedLines counts the rows text occupies when hard-wrapped at cols cells.
func WrappedLines(text string, cols int) int {
	n := 0
	for _, para := range strings.Split(text, "\n") {
		w := runewidth.StringWidth(para)
		rows := (w + cols - 1) / cols
		if rows == 0 {
			rows = 1
		}
		n += rows
	}
	return n
}

// PerPage uses a separate oracle for each page index, repeating the last one
// for pages beyond the list. Useful when the first page carries a header.
func PerPage(oracles ...Oracle) Oracle {
	return OracleFunc(func(page int, content string) bool {
		if len(oracles) == 0 {
			return true
		}
		if page >= len(oracles) {
			page = len(oracles) - 1
		}
		return oracles[page].Fits(page, content)
	})
}
