package downloader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/masahif/webripper/internal/mimetype"
)

// fileDownloader serves file:// URIs from the local filesystem.
type fileDownloader struct {
	req  Request
	file *os.File
	info os.FileInfo
}

// NewFileDownloader implements Factory for the file scheme.
func NewFileDownloader(req Request) (Downloader, error) {
	return &fileDownloader{req: req}, nil
}

func (d *fileDownloader) SendRequest(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.FromSlash(d.req.URI.Path)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("request failed: %w", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return fmt.Errorf("request failed: %s is a directory", path)
	}
	d.file = f
	d.info = info
	return nil
}

func (d *fileDownloader) ResponseURI() *url.URL {
	return d.req.URI
}

func (d *fileDownloader) ContentType() string {
	if ct := mimetype.ByExtension(filepath.Ext(d.req.URI.Path)); ct != "" {
		return ct
	}
	return d.req.MimeHint
}

func (d *fileDownloader) ContentLength() int64 {
	if d.info == nil {
		return -1
	}
	return d.info.Size()
}

func (d *fileDownloader) LastModified() time.Time {
	if d.info == nil {
		return time.Time{}
	}
	return d.info.ModTime()
}

func (d *fileDownloader) ResponseStream() (io.Reader, error) {
	if d.file == nil {
		return nil, ErrNoResponse
	}
	return d.file, nil
}

func (d *fileDownloader) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
