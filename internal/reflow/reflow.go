// Package reflow redistributes overflowing page content onto following pages.
//
// The engine never measures anything itself. A capacity Oracle answers whether
// a candidate prefix fits on a given page, and the engine binary-searches for
// the longest fitting prefix. Oracles must be monotone: if a prefix of length
// k fits, every shorter prefix fits too.
package reflow

import "strings"

// Oracle reports whether content fits on the page with the given index.
type Oracle interface {
	Fits(page int, content string) bool
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(page int, content string) bool

func (f OracleFunc) Fits(page int, content string) bool { return f(page, content) }

// Result describes the outcome of a reflow pass.
type Result struct {
	Pages   []string
	Changed bool
	// Stuck is the index of a page that overflows but where not even the
	// smallest non-empty prefix fits, or -1. Reflow stops at that page and
	// leaves it as it is.
	Stuck int
}

// Fit returns the byte length of the longest prefix of content that fits on
// page. Only cut points outside markup are considered.
func Fit(o Oracle, page int, content string) int {
	cuts := CutPoints(content)
	lo, hi := 1, len(cuts)-1
	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if o.Fits(page, content[:cuts[mid]]) {
			best = cuts[mid]
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// Reflow checks pages starting at start and pushes overflow forward. The
// input slice is not modified. Under-filled pages are never merged back.
func Reflow(pages []string, start int, o Oracle) Result {
	out := make([]string, len(pages))
	copy(out, pages)
	if len(out) == 0 {
		out = []string{""}
	}
	res := Result{Pages: out, Stuck: -1}
	if start < 0 {
		start = 0
	}

	for i := start; i < len(res.Pages); i++ {
		content := res.Pages[i]
		if o.Fits(i, content) {
			break
		}
		best := Fit(o, i, content)
		if best == 0 {
			res.Stuck = i
			break
		}
		overflow := content[best:]
		res.Pages[i] = content[:best]
		res.Changed = true
		if strings.TrimSpace(overflow) == "" {
			break
		}
		if i+1 < len(res.Pages) {
			res.Pages[i+1] = overflow + res.Pages[i+1]
		} else {
			res.Pages = append(res.Pages, overflow)
		}
	}
	return res
}

// All reflows from the first page.
func All(pages []string, o Oracle) Result {
	return Reflow(pages, 0, o)
}
