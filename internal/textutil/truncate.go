// Package textutil holds small string helpers shared by path mapping and
// progress display.
package textutil

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Ellipsis is the marker spliced into middle-truncated strings.
const Ellipsis = "..."

// ErrWidthTooSmall is returned when a truncation width leaves no room for
// at least one leading and one trailing character around the ellipsis.
var ErrWidthTooSmall = errors.New("truncation width too small")

// MiddleTruncate shortens s to exactly width runes by removing runes from
// the middle and inserting ellipsis. Strings that already fit are returned
// unchanged. Widths are counted in runes.
func MiddleTruncate(s string, width int, ellipsis string) (string, error) {
	el := utf8.RuneCountInString(ellipsis)
	if width < el+2 {
		return "", fmt.Errorf("%w: %d < %d", ErrWidthTooSmall, width, el+2)
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s, nil
	}
	keep := width - el
	head := (keep + 1) / 2
	tail := keep - head

	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(string(runes[:head]))
	b.WriteString(ellipsis)
	b.WriteString(string(runes[len(runes)-tail:]))
	return b.String(), nil
}
