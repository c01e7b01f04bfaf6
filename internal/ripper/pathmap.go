package ripper

import (
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/masahif/webripper/internal/mimetype"
	"github.com/masahif/webripper/internal/textutil"
)

// DefaultMaxPath is the path length ceiling in bytes: 260 minus the
// terminating NUL, applied on every platform.
const DefaultMaxPath = 259

// PathMapper derives the local file of a URI. Map is a pure function of
// its inputs.
type PathMapper struct {
	Root       string
	MaxPath    int
	Extensions mimetype.Extensions
}

func (m PathMapper) limit() int {
	if m.MaxPath <= 0 {
		return DefaultMaxPath
	}
	return m.MaxPath
}

// Map returns the local path for u holding content of mimeType.
// defaultFileName names the file when u addresses a directory.
func (m PathMapper) Map(u *url.URL, mimeType, defaultFileName string) (string, error) {
	segs := pathSegments(u.Path)
	name := defaultFileName
	if len(segs) > 0 && !strings.HasSuffix(u.Path, "/") {
		if last := segs[len(segs)-1]; m.keepsName(last, mimeType) {
			name = last
			segs = segs[:len(segs)-1]
		}
	}

	parts := make([]string, 0, len(segs)+2)
	parts = append(parts, m.Root, hostSegment(u))
	for _, s := range segs {
		parts = append(parts, sanitizeSegment(s))
	}
	dir := filepath.Join(parts...)
	name = sanitizeSegment(name)

	if u.RawQuery != "" {
		return m.withQuery(u, dir, name)
	}
	full := filepath.Join(dir, name)
	if len(full) > m.limit() {
		return "", &PathTooLongError{URI: u.String(), Path: full, Limit: m.limit()}
	}
	return full, nil
}

// Unmap returns the URI whose local file is local. from supplies the
// scheme, and the host when the top directory is its own. A trailing
// file accepted by isIndex maps back to its directory. Names changed by
// sanitizing cannot be recovered.
func (m PathMapper) Unmap(local string, from *url.URL, isIndex func(string) bool) (*url.URL, bool) {
	rel, err := filepath.Rel(m.Root, local)
	if err != nil {
		return nil, false
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	if len(segs) < 2 || segs[0] == ".." {
		return nil, false
	}

	host := from.Host
	if segs[0] != hostSegment(from) {
		host = segs[0]
		if i := strings.LastIndexByte(host, '_'); i > 0 {
			if _, err := strconv.Atoi(host[i+1:]); err == nil {
				host = host[:i] + ":" + host[i+1:]
			}
		}
	}
	p := "/" + strings.Join(segs[1:], "/")
	if last := segs[len(segs)-1]; isIndex != nil && isIndex(last) {
		p = strings.TrimSuffix(p, last)
	}
	return &url.URL{Scheme: from.Scheme, Host: host, Path: p}, true
}

// keepsName reports whether the last URI segment can be the file name:
// it needs an extension, and a known type must accept that extension.
func (m PathMapper) keepsName(last, mimeType string) bool {
	ext := strings.ToLower(path.Ext(last))
	if ext == "" || ext == "." {
		return false
	}
	if m.Extensions == nil {
		return true
	}
	def, ok := m.Extensions.DefaultExtension(mimeType)
	if !ok {
		return true
	}
	if ext == def {
		return true
	}
	for _, other := range m.Extensions.OtherExtensions(mimeType) {
		if strings.EqualFold(ext, other) {
			return true
		}
	}
	return false
}

// withQuery splices the decoded query into the file name, middle
// truncated until the whole path fits the ceiling.
func (m PathMapper) withQuery(u *url.URL, dir, name string) (string, error) {
	q, err := url.QueryUnescape(u.RawQuery)
	if err != nil {
		q = strings.ReplaceAll(u.RawQuery, "+", " ")
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	limit := m.limit()

	full := filepath.Join(dir, textutil.SanitizeFileName(stem+"?"+q+ext))
	over := len(full) - limit
	width := utf8.RuneCountInString(q)
	for over > 0 {
		width -= over
		folded, err := textutil.MiddleTruncate(q, width, textutil.Ellipsis)
		if err != nil {
			return "", &PathTooLongError{URI: u.String(), Path: full, Limit: limit}
		}
		full = filepath.Join(dir, textutil.SanitizeFileName(stem+"?"+folded+ext))
		over = len(full) - limit
	}
	return full, nil
}

func pathSegments(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// hostSegment names the top directory of a host. Two-label hosts get a
// www. prefix; a port is kept after an underscore.
func hostSegment(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if host == "" {
		host = "localhost"
	}
	if strings.Count(host, ".") == 1 {
		host = "www." + host
	}
	if port := u.Port(); port != "" {
		host += "_" + port
	}
	return sanitizeSegment(host)
}

func sanitizeSegment(s string) string {
	switch s {
	case "":
		return "_"
	case ".":
		return "_"
	case "..":
		return "__"
	}
	return textutil.SanitizeFileName(s)
}
