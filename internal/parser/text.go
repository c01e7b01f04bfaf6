package parser

import (
	"strings"
)

// editableText is a string split into literal runs and replaceable values.
// Odd indexes hold values; even indexes hold the text between them.
type editableText struct {
	parts []string
	bare  map[int]bool
}

func newEditableText(s string) *editableText {
	return &editableText{parts: []string{s}, bare: make(map[int]bool)}
}

// appendValue replaces the trailing literal with literal, value and rest,
// and returns the index of value.
func (e *editableText) appendValue(literal, value, rest string, bare bool) int {
	last := len(e.parts) - 1
	e.parts[last] = literal
	e.parts = append(e.parts, value, rest)
	idx := last + 1
	if bare {
		e.bare[idx] = true
	}
	return idx
}

func (e *editableText) set(i int, v string) {
	if e.bare[i] && strings.ContainsAny(v, " \t\r\n()'\"") {
		v = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	e.parts[i] = v
}

func (e *editableText) String() string {
	return strings.Join(e.parts, "")
}

// textToken is a value found by one of the text scanners.
type textToken struct {
	index    int
	value    string
	isImport bool
}

// scanSpans builds editable text from spans sorted by offset. Each span
// is a [start,end) byte range of s holding one value.
func scanSpans(s string, spans [][2]int, bare []bool, imports []bool) (*editableText, []textToken) {
	text := newEditableText(s)
	var tokens []textToken
	prev := 0
	for i, sp := range spans {
		tail := s[prev:]
		start, end := sp[0]-prev, sp[1]-prev
		idx := text.appendValue(tail[:start], tail[start:end], tail[end:], bare[i])
		tokens = append(tokens, textToken{index: idx, value: s[sp[0]:sp[1]], isImport: imports[i]})
		prev = sp[1]
	}
	return text, tokens
}
