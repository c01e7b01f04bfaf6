package textutil

import "strings"

// invalidFileChars are rejected by at least one supported filesystem.
const invalidFileChars = `<>:"/\|?*`

// SanitizeFileName replaces every character that is invalid in a file
// name with an underscore. Control characters are invalid too.
func SanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(invalidFileChars, r) {
			return '_'
		}
		return r
	}, name)
}
