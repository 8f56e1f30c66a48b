package search

import (
	"html"
	"strings"
)

// highlightTerms reconstructs match spans for terms within content,
// wrapping each case-insensitive occurrence in <mark> tags. Content is
// HTML-escaped first so injected markup can't be mistaken for the
// caller's log content.
func highlightTerms(content string, terms []string) []string {
	escaped := html.EscapeString(content)
	lower := strings.ToLower(escaped)

	var fragments []string
	for _, term := range terms {
		needle := strings.ToLower(html.EscapeString(term))
		if needle == "" {
			continue
		}
		start := 0
		for {
			idx := strings.Index(lower[start:], needle)
			if idx < 0 {
				break
			}
			pos := start + idx
			fragStart := maxInt(0, pos-40)
			fragEnd := minInt(len(escaped), pos+len(needle)+40)
			frag := escaped[fragStart:pos] + "<mark>" + escaped[pos:pos+len(needle)] + "</mark>" + escaped[pos+len(needle):fragEnd]
			fragments = append(fragments, frag)
			start = pos + len(needle)
			if start >= len(lower) {
				break
			}
		}
	}
	return fragments
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
