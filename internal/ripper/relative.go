package ripper

import (
	"path/filepath"
	"strings"
)

var relativeEscaper = strings.NewReplacer("%", "%25", "#", "%23", "?", "%3F")

// relativeRef returns the reference from the file at from to the file at
// to, readable but still a valid relative URI. fragment is appended as is.
func relativeRef(from, to, fragment string) string {
	rel, err := filepath.Rel(filepath.Dir(from), to)
	if err != nil {
		rel = to
	}
	rel = relativeEscaper.Replace(filepath.ToSlash(rel))

	// a colon in the first segment would read as a scheme
	first := rel
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		first = rel[:i]
	}
	if strings.Contains(first, ":") {
		rel = "./" + rel
	}
	if fragment != "" {
		rel += "#" + fragment
	}
	return rel
}
