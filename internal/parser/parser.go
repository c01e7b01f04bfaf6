// Package parser defines how mirrored content is scanned for references
// to other resources and how rewritten references are written back.
// One Parser instance serves one downloaded file: it is loaded once,
// enumerates its references, and is saved only when a reference changed.
package parser

import (
	"sync"
)

// Kind classifies a reference found in a document.
type Kind int

const (
	// Skip references are present in the source but never followed.
	Skip Kind = iota
	// Hyperlink references are navigational and subject to scope narrowing.
	Hyperlink
	// ExternalResource references are rendering dependencies, always
	// followed when their scheme is supported.
	ExternalResource
)

func (k Kind) String() string {
	switch k {
	case Hyperlink:
		return "hyperlink"
	case ExternalResource:
		return "external"
	default:
		return "skip"
	}
}

// Parser loads one file, exposes its references and saves it back.
type Parser interface {
	// MimeType is the content type the parser was created for.
	MimeType() string
	// DefaultFileName is used when a URI addresses a directory.
	DefaultFileName() string
	// Load parses the file at localPath. It may be called once.
	Load(localPath string) error
	// References enumerates references in document order.
	References() ([]*Reference, error)
	// Dirty reports whether a reference was rewritten since the last save.
	Dirty() bool
	// Save writes the document to localPath if it is dirty.
	Save(localPath string) error
}

// base carries the bookkeeping shared by every parser.
type base struct {
	mimeType        string
	defaultFileName string

	mu     sync.Mutex
	loaded bool
	dirty  bool
}

func newBase(mimeType, defaultFileName string) base {
	return base{mimeType: mimeType, defaultFileName: defaultFileName}
}

func (b *base) MimeType() string {
	return b.mimeType
}

func (b *base) DefaultFileName() string {
	return b.defaultFileName
}

func (b *base) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

// beginLoad marks the parser loaded, failing on a second call.
func (b *base) beginLoad() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		return ErrAlreadyLoaded
	}
	b.loaded = true
	return nil
}

func (b *base) isLoaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// changed receives the change notification of every reference.
func (b *base) changed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = true
}

// takeDirty clears the dirty flag and reports whether it was set.
func (b *base) takeDirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.dirty
	b.dirty = false
	return d
}

func (b *base) restoreDirty() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = true
}
