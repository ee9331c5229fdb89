// Package mustache lexes {{ ... }} placeholders out of workflow text and
// classifies them by namespace.
package mustache

import (
	"regexp"
	"strings"
)

// placeholderPattern matches "{{", optional whitespace, a lazy capture,
// optional whitespace and "}}".
var placeholderPattern = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// Extract returns the inner text of every placeholder in text, in order of
// appearance. Empty captures and captures ending in "." (an incomplete path)
// are dropped, except the bare "." foreach shorthand. Duplicates are kept;
// use Unique when a set is needed.
func Extract(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	captures := make([]string, 0, len(matches))
	for _, match := range matches {
		capture := match[1]
		if capture == "" || (capture != "." && strings.HasSuffix(capture, ".")) {
			continue
		}
		captures = append(captures, capture)
	}
	return captures
}

// Contains reports whether text holds at least one placeholder.
func Contains(text string) bool {
	return placeholderPattern.MatchString(text)
}

// Clean strips the surrounding braces and whitespace from an expression such
// as "{{ steps.a.results }}". Text without braces is only trimmed.
func Clean(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "{{") && strings.HasSuffix(expr, "}}") {
		expr = strings.TrimSuffix(strings.TrimPrefix(expr, "{{"), "}}")
	}
	return strings.TrimSpace(expr)
}

// Wrap renders name as a placeholder, "{{ name }}".
func Wrap(name string) string {
	return "{{ " + name + " }}"
}

// Unique drops repeated captures while keeping first-occurrence order.
func Unique(captures []string) []string {
	seen := make(map[string]bool, len(captures))
	out := make([]string, 0, len(captures))
	for _, c := range captures {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
