package ripper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/masahif/webripper/internal/parser"
)

// Scope decides which discovered references are followed. External
// resources always are; hyperlinks must satisfy depth and either the
// base prefix or the include pattern.
type Scope struct {
	maxDepth int
	base     *url.URL
	include  *regexp.Regexp
}

// NewScope builds the policy for a seed. maxDepth <= 0 means unbounded.
// With isBase, hyperlinks must stay below the seed's directory.
func NewScope(seed *url.URL, isBase bool, maxDepth int, includePattern string) (*Scope, error) {
	s := &Scope{maxDepth: maxDepth}
	if isBase {
		dir := seed.Path
		if i := strings.LastIndex(dir, "/"); i >= 0 {
			dir = dir[:i+1]
		} else {
			dir = "/"
		}
		s.base = &url.URL{Scheme: seed.Scheme, Host: seed.Host, Path: dir}
	}
	if includePattern != "" {
		re, err := regexp.Compile("(?i)" + includePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", includePattern, err)
		}
		s.include = re
	}
	return s, nil
}

// Allows reports whether a reference of kind to target, reached at depth,
// is followed.
func (s *Scope) Allows(kind parser.Kind, target *url.URL, depth int) bool {
	switch kind {
	case parser.ExternalResource:
		return true
	case parser.Hyperlink:
	default:
		return false
	}
	if s.maxDepth > 0 && depth > s.maxDepth {
		return false
	}
	if s.base == nil && s.include == nil {
		return true
	}
	if s.base != nil && s.underBase(target) {
		return true
	}
	return s.include != nil && s.include.MatchString(target.String())
}

func (s *Scope) underBase(target *url.URL) bool {
	if !strings.EqualFold(target.Scheme, s.base.Scheme) || !strings.EqualFold(target.Host, s.base.Host) {
		return false
	}
	p := target.Path
	if p == "" {
		p = "/"
	}
	return strings.HasPrefix(strings.ToLower(p), strings.ToLower(s.base.Path))
}
