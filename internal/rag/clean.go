// Package rag turns documents into searchable chunks and retrieves ranked
// passages for a query.
package rag

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	controlChars   = regexp.MustCompile(`[\x00-\x09\x0B\x0C\x0E-\x1F\x7F]`)
	horizontalRuns = regexp.MustCompile(`[ \t]+`)
	hyphenBreak    = regexp.MustCompile(`([a-zA-Z])-\s*\n\s*([a-zA-Z])`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes extracted document text: NFKC normalization, control
// characters other than line breaks removed, runs of spaces and tabs
// collapsed, words hyphenated across a line break rejoined, and at most one
// blank line kept between paragraphs.
func CleanText(raw string) string {
	s := norm.NFKC.String(raw)
	s = controlChars.ReplaceAllString(s, "")
	s = horizontalRuns.ReplaceAllString(s, " ")
	s = hyphenBreak.ReplaceAllString(s, "$1$2")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
