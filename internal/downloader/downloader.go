// Package downloader provides the transport abstraction used by the ripper.
// A Downloader sends one request for one URI and exposes the response
// metadata and body stream. Implementations are selected by URI scheme
// through a Registry populated explicitly at startup.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Downloader fetches a single URI.
type Downloader interface {
	// SendRequest performs the request and waits for the response headers.
	// Error statuses are reported as errors.
	SendRequest(ctx context.Context) error
	// ResponseURI is the final URI after redirects.
	ResponseURI() *url.URL
	ContentType() string
	// ContentLength is -1 when unknown.
	ContentLength() int64
	// LastModified is the zero time when unknown.
	LastModified() time.Time
	// ResponseStream returns the body. It is valid until Close.
	ResponseStream() (io.Reader, error)
	// Close releases the transport handle. It is safe to call more than once.
	Close() error
}

// Request describes what to fetch.
type Request struct {
	URI       *url.URL
	MimeHint  string        // expected content type, may be empty
	Timeout   time.Duration // bounds the request/response header exchange
	Languages []string      // preferred languages, most preferred first
}

// Factory creates a Downloader for a request.
type Factory func(req Request) (Downloader, error)

// Registry maps URI schemes to downloader factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs f for scheme, replacing any previous factory.
func (r *Registry) Register(scheme string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(scheme)] = f
}

// Supports reports whether a factory is registered for scheme.
func (r *Registry) Supports(scheme string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[strings.ToLower(scheme)]
	return ok
}

// Create returns a Downloader for req.URI's scheme.
func (r *Registry) Create(req Request) (Downloader, error) {
	if req.URI == nil {
		return nil, fmt.Errorf("%w: nil URI", ErrUnsupportedScheme)
	}
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(req.URI.Scheme)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, req.URI.Scheme)
	}
	return f(req)
}

// RegisterDefaults installs the http, https and file downloaders.
func RegisterDefaults(r *Registry, client *HTTPClient) {
	r.Register("http", client.NewDownloader)
	r.Register("https", client.NewDownloader)
	r.Register("file", NewFileDownloader)
}
