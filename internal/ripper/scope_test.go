package ripper

import (
	"net/url"
	"testing"

	"github.com/masahif/webripper/internal/parser"
)

func TestScopeAllows(t *testing.T) {
	seed, _ := url.Parse("http://site.test/docs/guide/index.html")

	tests := []struct {
		name     string
		isBase   bool
		maxDepth int
		include  string
		kind     parser.Kind
		target   string
		depth    int
		want     bool
	}{
		{"unrestricted hyperlink", false, 0, "", parser.Hyperlink, "http://other.test/", 7, true},
		{"skip", false, 0, "", parser.Skip, "http://site.test/", 0, false},
		{"external ignores depth", false, 1, "", parser.ExternalResource, "http://cdn.test/a.css", 9, true},
		{"external ignores base", true, 0, "", parser.ExternalResource, "http://cdn.test/a.css", 0, true},
		{"depth within limit", false, 2, "", parser.Hyperlink, "http://site.test/x", 2, true},
		{"depth over limit", false, 2, "", parser.Hyperlink, "http://site.test/x", 3, false},
		{"under base", true, 0, "", parser.Hyperlink, "http://site.test/docs/guide/ch1/", 1, true},
		{"under base ignoring case", true, 0, "", parser.Hyperlink, "HTTP://SITE.test/Docs/Guide/a.html", 1, true},
		{"above base", true, 0, "", parser.Hyperlink, "http://site.test/docs/", 1, false},
		{"other host", true, 0, "", parser.Hyperlink, "http://other.test/docs/guide/", 1, false},
		{"include match", true, 0, `/blog/`, parser.Hyperlink, "http://site.test/BLOG/post", 1, true},
		{"include only", false, 0, `^http://site\.test/news/`, parser.Hyperlink, "http://site.test/about", 1, false},
		{"include cannot lift depth", false, 1, `.*`, parser.Hyperlink, "http://site.test/a", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScope(seed, tt.isBase, tt.maxDepth, tt.include)
			if err != nil {
				t.Fatalf("NewScope failed: %v", err)
			}
			target, err := url.Parse(tt.target)
			if err != nil {
				t.Fatal(err)
			}
			if got := s.Allows(tt.kind, target, tt.depth); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNewScopeInvalidPattern(t *testing.T) {
	seed, _ := url.Parse("http://site.test/")
	if _, err := NewScope(seed, false, 0, "[a-"); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}
