package ripper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/masahif/webripper/internal/downloader"
	"github.com/masahif/webripper/internal/mimetype"
	"github.com/masahif/webripper/internal/parser"
)

const copyBufferSize = 4096

// Resource is one remote URI mapped to one local file. Its local path is
// fixed at construction.
type Resource struct {
	ripper       *Ripper
	original     *url.URL
	final        *url.URL
	mimeType     string
	path         string
	parser       parser.Parser
	lastModified time.Time
	ttfb         time.Duration
	failure      error

	mu      sync.Mutex
	dl      downloader.Downloader
	ripped  bool
	outcome Outcome
	bytes   int64
}

// newResource sends the request for u. A failed request still yields a
// Resource, returned inside an UnavailableError.
func newResource(ctx context.Context, r *Ripper, u *url.URL, mimeHint string) (*Resource, error) {
	res := &Resource{ripper: r, original: u, final: u}

	dl, err := r.env.Downloaders.Create(downloader.Request{
		URI:       u,
		MimeHint:  mimeHint,
		Timeout:   r.opts.Timeout,
		Languages: r.opts.Languages,
	})
	if err == nil {
		if err = r.acquire(ctx); err == nil {
			err = dl.SendRequest(ctx)
			r.release()
		}
	}
	if err != nil {
		if dl != nil {
			_ = dl.Close()
		}
		res.failure = err
		res.outcome = OutcomeUnavailable
		res.parser = r.env.Parsers.New("")
		path, perr := r.paths.Map(u, "", res.parser.DefaultFileName())
		if perr != nil {
			return nil, perr
		}
		res.path = path
		return res, &UnavailableError{Resource: res, Err: err}
	}

	if final := dl.ResponseURI(); final != nil {
		res.final = final
	}
	res.mimeType = mimetype.Normalize(dl.ContentType())
	if res.mimeType == "" {
		res.mimeType = mimetype.Normalize(mimeHint)
	}
	res.parser = r.env.Parsers.New(res.mimeType)
	res.lastModified = dl.LastModified()
	if t, ok := dl.(ttfbReporter); ok {
		res.ttfb = t.TTFB()
	}

	path, err := r.paths.Map(res.final, res.mimeType, res.parser.DefaultFileName())
	if err != nil {
		_ = dl.Close()
		return nil, err
	}
	res.path = path
	res.dl = dl
	return res, nil
}

// OriginalURI is the URI as first requested.
func (res *Resource) OriginalURI() *url.URL {
	return res.original
}

// URI is the final URI after redirects.
func (res *Resource) URI() *url.URL {
	return res.final
}

func (res *Resource) LocalPath() string {
	return res.path
}

func (res *Resource) MimeType() string {
	return res.mimeType
}

func (res *Resource) LastModified() time.Time {
	return res.lastModified
}

// Available reports whether the request for the resource succeeded.
func (res *Resource) Available() bool {
	return res.failure == nil
}

// Outcome is empty until the resource has been ripped.
func (res *Resource) Outcome() Outcome {
	res.mu.Lock()
	defer res.mu.Unlock()
	return res.outcome
}

// claim lets exactly one caller rip the resource.
func (res *Resource) claim() bool {
	res.mu.Lock()
	defer res.mu.Unlock()
	if res.ripped {
		return false
	}
	res.ripped = true
	return true
}

// rip transfers the content when needed and recurses into its references.
// Only the first call does anything.
func (res *Resource) rip(ctx context.Context, depth int) error {
	if !res.claim() || res.failure != nil {
		return nil
	}
	r := res.ripper

	outcome, err := res.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.finish(OutcomeFailed, depth, err)
		r.logger.Warn("Failed to transfer resource", "url", res.final.String(), "error", err)
		return err
	}
	res.finish(outcome, depth, nil)
	return r.expand(ctx, res, depth)
}

// fetch writes the body to the local path unless the local copy is
// current. The transport handle is released either way.
func (res *Resource) fetch(ctx context.Context) (Outcome, error) {
	defer res.closeDownloader()
	r := res.ripper
	if !r.overwrite && !res.stale() {
		r.logger.Debug("Local copy is up to date", "url", res.final.String(), "path", res.path)
		return OutcomeUpToDate, nil
	}
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	defer r.release()

	n, err := res.transfer(ctx)
	if err != nil {
		return "", err
	}
	res.mu.Lock()
	res.bytes = n
	res.mu.Unlock()
	r.downloaded.Add(1)
	r.logger.Info("Downloaded", "url", res.final.String(), "path", res.path, "bytes", n)
	return OutcomeDownloaded, nil
}

// stale reports whether the local file is missing or older than the remote.
func (res *Resource) stale() bool {
	info, err := os.Stat(res.path)
	if err != nil {
		return true
	}
	if res.lastModified.IsZero() {
		return true
	}
	return res.lastModified.After(info.ModTime())
}

func (res *Resource) transfer(ctx context.Context) (int64, error) {
	r := res.ripper
	res.mu.Lock()
	dl := res.dl
	res.mu.Unlock()
	if dl == nil {
		return 0, fmt.Errorf("%s: %w", res.final, downloader.ErrNoResponse)
	}
	body, err := dl.ResponseStream()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(res.path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(res.path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	uri := res.final.String()
	total := dl.ContentLength()
	if total <= 0 {
		r.progress(ProgressEvent{URI: uri, TotalBytes: total})
	}

	var received int64
	buf := make([]byte, copyBufferSize)
	err = func() error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, rerr := body.Read(buf)
			if n > 0 {
				if _, werr := f.Write(buf[:n]); werr != nil {
					return fmt.Errorf("failed to write file: %w", werr)
				}
				received += int64(n)
				r.progress(ProgressEvent{URI: uri, BytesReceived: received, TotalBytes: total})
			}
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			if rerr != nil {
				return fmt.Errorf("failed to read response: %w", rerr)
			}
		}
	}()
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(res.path)
		return 0, err
	}

	if !res.lastModified.IsZero() {
		if err := os.Chtimes(res.path, res.lastModified, res.lastModified); err != nil {
			r.logger.Debug("Failed to set modification time", "path", res.path, "error", err)
		}
	}
	r.progress(ProgressEvent{URI: uri, BytesReceived: received, TotalBytes: total, Done: true})
	return received, nil
}

func (res *Resource) closeDownloader() {
	res.mu.Lock()
	dl := res.dl
	res.dl = nil
	res.mu.Unlock()
	if dl != nil {
		_ = dl.Close()
	}
}

func (res *Resource) finish(outcome Outcome, depth int, err error) {
	res.mu.Lock()
	res.outcome = outcome
	res.mu.Unlock()
	res.ripper.record(res, depth, err)
}

func (res *Resource) record(depth int, err error) ResourceRecord {
	res.mu.Lock()
	defer res.mu.Unlock()
	rec := ResourceRecord{
		URI:         res.original.String(),
		FinalURI:    res.final.String(),
		LocalPath:   res.path,
		ContentType: res.mimeType,
		Outcome:     res.outcome,
		Depth:       depth,
		Bytes:       res.bytes,
		TTFB:        res.ttfb,
		RecordedAt:  time.Now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
