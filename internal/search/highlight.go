package search

import (
	"strings"
	"unicode"

	"github.com/franz/project-copilot/internal/store"
)

// Highlight wraps every case-insensitive occurrence of each whitespace
// separated term of query in text with the store's highlight delimiters.
// Overlapping and adjacent matches are merged into one span.
func Highlight(text, query string) string {
	terms := strings.Fields(query)
	if text == "" || len(terms) == 0 {
		return text
	}

	runes := []rune(text)
	marked := make([]bool, len(runes))
	for _, term := range terms {
		tr := []rune(term)
		for i := 0; i+len(tr) <= len(runes); i++ {
			if foldEqual(runes[i:i+len(tr)], tr) {
				for j := i; j < i+len(tr); j++ {
					marked[j] = true
				}
			}
		}
	}

	var b strings.Builder
	b.Grow(len(text) + 8)
	for i, r := range runes {
		if marked[i] && (i == 0 || !marked[i-1]) {
			b.WriteString(store.HighlightOpen)
		}
		b.WriteRune(r)
		if marked[i] && (i == len(runes)-1 || !marked[i+1]) {
			b.WriteString(store.HighlightClose)
		}
	}
	return b.String()
}

// StripHighlight removes highlight delimiters for plain rendering
func StripHighlight(s string) string {
	s = strings.ReplaceAll(s, store.HighlightOpen, "")
	return strings.ReplaceAll(s, store.HighlightClose, "")
}

func foldEqual(a, b []rune) bool {
	for i := range a {
		if !equalFoldRune(a[i], b[i]) {
			return false
		}
	}
	return true
}

func equalFoldRune(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
