// Package mimetype maps content types to filesystem extensions.
// The table answers two questions for a mime type: which extension a
// mirrored file should get, and which other extensions are acceptable
// for content of that type.
package mimetype

import (
	"mime"
	"sort"
	"strings"
)

// Extensions is the read-only view of an extension table used by parsers
// and path mapping.
type Extensions interface {
	DefaultExtension(mimeType string) (string, bool)
	OtherExtensions(mimeType string) []string
}

// entry holds the preferred extension first, followed by alternates
type entry []string

// Table is an immutable mime type to extension table. It is safe for
// concurrent use once constructed.
type Table struct {
	entries map[string]entry
}

var builtin = map[string]entry{
	"text/html":                {".html", ".htm", ".shtml"},
	"application/xhtml+xml":    {".xhtml", ".html", ".htm", ".xht"},
	"text/css":                 {".css"},
	"text/plain":               {".txt", ".text", ".log"},
	"text/javascript":          {".js", ".mjs"},
	"application/javascript":   {".js", ".mjs"},
	"application/x-javascript": {".js"},
	"application/json":         {".json", ".map"},
	"application/xml":          {".xml", ".xsd", ".xsl", ".rdf"},
	"text/xml":                 {".xml", ".xsd", ".xsl"},
	"application/xslt+xml":     {".xsl", ".xslt"},
	"text/xsl":                 {".xsl", ".xslt"},
	"application/rss+xml":      {".rss", ".xml"},
	"application/atom+xml":     {".atom", ".xml"},
	"image/svg+xml":            {".svg", ".svgz"},
	"image/png":                {".png"},
	"image/jpeg":               {".jpg", ".jpeg", ".jpe"},
	"image/gif":                {".gif"},
	"image/webp":               {".webp"},
	"image/x-icon":             {".ico"},
	"image/vnd.microsoft.icon": {".ico"},
	"font/woff":                {".woff"},
	"font/woff2":               {".woff2"},
	"font/ttf":                 {".ttf"},
	"application/pdf":          {".pdf"},
	"application/zip":          {".zip"},
	"application/octet-stream": {".bin"},
}

// NewTable returns the built-in table. Extra entries override built-in
// ones; the first extension of each extra entry is the preferred one.
func NewTable(extra map[string][]string) *Table {
	t := &Table{entries: make(map[string]entry, len(builtin)+len(extra))}
	for k, v := range builtin {
		t.entries[k] = v
	}
	for k, v := range extra {
		if len(v) == 0 {
			continue
		}
		exts := make(entry, 0, len(v))
		for _, e := range v {
			exts = append(exts, normalizeExt(e))
		}
		t.entries[Normalize(k)] = exts
	}
	return t
}

// DefaultExtension returns the preferred extension, including the leading
// dot, for mimeType. Types missing from the table fall back to the
// system mime database.
func (t *Table) DefaultExtension(mimeType string) (string, bool) {
	mimeType = Normalize(mimeType)
	if mimeType == "" {
		return "", false
	}
	if e, ok := t.entries[mimeType]; ok {
		return e[0], true
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return "", false
	}
	sort.Strings(exts)
	return exts[0], true
}

// OtherExtensions returns the acceptable alternates for mimeType, never
// including the default extension.
func (t *Table) OtherExtensions(mimeType string) []string {
	mimeType = Normalize(mimeType)
	if e, ok := t.entries[mimeType]; ok {
		out := make([]string, 0, len(e)-1)
		for _, ext := range e[1:] {
			if ext != e[0] {
				out = append(out, ext)
			}
		}
		return out
	}
	def, ok := t.DefaultExtension(mimeType)
	if !ok {
		return nil
	}
	exts, _ := mime.ExtensionsByType(mimeType)
	var out []string
	for _, ext := range exts {
		if ext = normalizeExt(ext); ext != def {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// Normalize strips parameters from a Content-Type value and lowercases it.
func Normalize(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// ByExtension guesses a content type from a file extension.
func ByExtension(ext string) string {
	ext = normalizeExt(ext)
	for mt, e := range builtin {
		if e[0] == ext && !strings.HasPrefix(mt, "application/x-") {
			switch mt {
			// ambiguous defaults, prefer the registered types
			case "application/javascript", "text/xml", "text/xsl", "image/vnd.microsoft.icon":
				continue
			}
			return mt
		}
	}
	return Normalize(mime.TypeByExtension(ext))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
