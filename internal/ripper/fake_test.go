package ripper

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/masahif/webripper/internal/downloader"
	"github.com/masahif/webripper/internal/mimetype"
	"github.com/masahif/webripper/internal/parser"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

// page is one canned response of a fakeSite.
type page struct {
	contentType  string
	body         string
	lastModified time.Time
	redirect     string

	// beforeSend runs at the start of SendRequest, outside the site lock.
	beforeSend func()
	// onOpen runs when the body stream is opened.
	onOpen func()
	// stream replaces the body reader. ctx is the one given to SendRequest.
	stream func(ctx context.Context) io.Reader
}

// stagedReader yields one chunk per Read and fails once ctx is done.
// wait runs before every chunk after the first and done runs at EOF.
type stagedReader struct {
	ctx    context.Context
	chunks []string
	wait   func()
	done   func()
	n      int
	off    int
}

func (r *stagedReader) Read(p []byte) (int, error) {
	if r.n >= len(r.chunks) {
		if r.done != nil {
			r.done()
			r.done = nil
		}
		return 0, io.EOF
	}
	if r.n > 0 && r.off == 0 && r.wait != nil {
		r.wait()
	}
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n := copy(p, r.chunks[r.n][r.off:])
	r.off += n
	if r.off == len(r.chunks[r.n]) {
		r.n, r.off = r.n+1, 0
	}
	return n, nil
}

// waitFor blocks until ch is closed, giving up after five seconds.
func waitFor(ch <-chan struct{}) {
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
	}
}

// fakeSite serves canned pages for the http scheme and counts requests
// and body transfers per URI.
type fakeSite struct {
	mu        sync.Mutex
	pages     map[string]page
	requests  map[string]int
	transfers map[string]int
}

func newFakeSite(pages map[string]page) *fakeSite {
	return &fakeSite{pages: pages, requests: make(map[string]int), transfers: make(map[string]int)}
}

func (s *fakeSite) setPage(uri string, p page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[uri] = p
}

func (s *fakeSite) transferCount(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfers[uri]
}

func (s *fakeSite) totalTransfers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.transfers {
		n += c
	}
	return n
}

func (s *fakeSite) env() *Env {
	exts := mimetype.NewTable(nil)
	downloaders := downloader.NewRegistry()
	downloaders.Register("http", func(req downloader.Request) (downloader.Downloader, error) {
		return &fakeDownloader{site: s, req: req}, nil
	})
	parsers := parser.NewRegistry(exts)
	parser.RegisterDefaults(parsers)
	return &Env{Downloaders: downloaders, Parsers: parsers, Extensions: exts}
}

type fakeDownloader struct {
	site  *fakeSite
	req   downloader.Request
	ctx   context.Context
	page  page
	final *url.URL
	sent  bool
}

func (d *fakeDownloader) SendRequest(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := d.site
	s.mu.Lock()
	hook := s.pages[d.req.URI.String()].beforeSend
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uri := d.req.URI.String()
	s.requests[uri]++
	current := d.req.URI
	for i := 0; i < 5; i++ {
		p, ok := s.pages[current.String()]
		if !ok {
			return &downloader.StatusError{URL: uri, StatusCode: 404}
		}
		if p.redirect == "" {
			d.page, d.final, d.ctx, d.sent = p, current, ctx, true
			return nil
		}
		next, _ := url.Parse(p.redirect)
		current = current.ResolveReference(next)
	}
	return &downloader.StatusError{URL: uri, StatusCode: 508}
}

func (d *fakeDownloader) ResponseURI() *url.URL {
	if d.final == nil {
		return d.req.URI
	}
	return d.final
}

func (d *fakeDownloader) ContentType() string     { return d.page.contentType }
func (d *fakeDownloader) ContentLength() int64    { return int64(len(d.page.body)) }
func (d *fakeDownloader) LastModified() time.Time { return d.page.lastModified }
func (d *fakeDownloader) Close() error            { return nil }

func (d *fakeDownloader) ResponseStream() (io.Reader, error) {
	if !d.sent {
		return nil, downloader.ErrNoResponse
	}
	d.site.mu.Lock()
	d.site.transfers[d.final.String()]++
	d.site.mu.Unlock()
	if d.page.onOpen != nil {
		d.page.onOpen()
	}
	if d.page.stream != nil {
		return d.page.stream(d.ctx), nil
	}
	var chunks []string
	if d.page.body != "" {
		chunks = []string{d.page.body}
	}
	return &stagedReader{ctx: d.ctx, chunks: chunks}, nil
}

// memoryJournal records journal calls.
type memoryJournal struct {
	mu        sync.Mutex
	runs      []RunRecord
	resources []ResourceRecord
	summaries []RunSummary
}

func (j *memoryJournal) StartRun(run RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, run)
	return nil
}

func (j *memoryJournal) RecordResource(runID string, rec ResourceRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.resources = append(j.resources, rec)
	return nil
}

func (j *memoryJournal) FinishRun(runID string, summary RunSummary) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.summaries = append(j.summaries, summary)
	return nil
}

func newTestRipper(t *testing.T, site *fakeSite, opts Options) *Ripper {
	t.Helper()
	if opts.RootPath == "" {
		opts.RootPath = t.TempDir()
	}
	r, err := New(opts, site.env())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func readLocal(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected %s not to exist", path)
	}
}
