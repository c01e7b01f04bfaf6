package parser

import (
	"os"
	"path"
	"strings"
	"sync"

	"github.com/masahif/webripper/internal/mimetype"
)

// FallbackExtension names files whose mime type has no known extension.
const FallbackExtension = ".html"

// indexStem names directory URIs of documents and unregistered types.
const indexStem = "index"

// IsIndexFileName reports whether name is a default file name given to a
// directory URI, such as index.html.
func IsIndexFileName(name string) bool {
	ext := path.Ext(name)
	if ext == "" || ext == "." || ext == name {
		return false
	}
	return strings.EqualFold(strings.TrimSuffix(name, ext), indexStem)
}

// Factory creates a parser for one file.
type Factory func(mimeType, defaultFileName string) Parser

type registration struct {
	stem    string
	factory Factory
}

// Registry maps mime types to parser factories. Unregistered types get
// the default parser.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
	exts    mimetype.Extensions
}

// NewRegistry creates an empty registry naming files from exts.
func NewRegistry(exts mimetype.Extensions) *Registry {
	return &Registry{entries: make(map[string]registration), exts: exts}
}

// Register binds mimeType to factory. stem is the base of the default
// file name, completed with the type's preferred extension.
func (r *Registry) Register(mimeType, stem string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[mimetype.Normalize(mimeType)] = registration{stem: stem, factory: factory}
}

// Registered reports whether mimeType has its own parser.
func (r *Registry) Registered(mimeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[mimetype.Normalize(mimeType)]
	return ok
}

// New creates a parser for mimeType.
func (r *Registry) New(mimeType string) Parser {
	mt := mimetype.Normalize(mimeType)
	r.mu.RLock()
	reg, ok := r.entries[mt]
	r.mu.RUnlock()
	if !ok {
		reg = registration{stem: indexStem, factory: NewDefaultParser}
	}
	return reg.factory(mt, reg.stem+r.extension(mt))
}

func (r *Registry) extension(mimeType string) string {
	if r.exts != nil {
		if ext, ok := r.exts.DefaultExtension(mimeType); ok {
			return ext
		}
	}
	return FallbackExtension
}

// RegisterDefaults installs the built-in parsers.
func RegisterDefaults(r *Registry) {
	for _, mt := range []string{"text/html", "application/xhtml+xml"} {
		r.Register(mt, indexStem, NewHTMLParser)
	}
	r.Register("text/css", "style", NewCSSParser)
	for _, mt := range []string{
		"application/xml", "text/xml", "application/xslt+xml", "text/xsl",
		"application/rss+xml", "application/atom+xml", "image/svg+xml",
	} {
		r.Register(mt, "document", NewXMLParser)
	}
}

// DefaultParser stores content as is and has no references.
type DefaultParser struct {
	base
}

// NewDefaultParser is the Factory for every unregistered type.
func NewDefaultParser(mimeType, defaultFileName string) Parser {
	return &DefaultParser{base: newBase(mimeType, defaultFileName)}
}

func (p *DefaultParser) Load(localPath string) error {
	if err := p.beginLoad(); err != nil {
		return err
	}
	_, err := os.Stat(localPath)
	return err
}

func (p *DefaultParser) References() ([]*Reference, error) {
	if !p.isLoaded() {
		return nil, ErrNotLoaded
	}
	return nil, nil
}

func (p *DefaultParser) Save(string) error {
	return nil
}
