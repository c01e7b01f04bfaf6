package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/masahif/webripper/internal/ripper"
	"github.com/masahif/webripper/internal/textutil"
)

// uriWidth is the column width of URIs in progress lines
const uriWidth = 60

// progressReporter prints one line per completed transfer. Intermediate
// chunks only reach the debug log.
type progressReporter struct {
	out    io.Writer
	logger *slog.Logger
	quiet  bool

	mu    sync.Mutex
	bytes atomic.Int64
	files atomic.Int64
}

func newProgressReporter(out io.Writer, logger *slog.Logger, quiet bool) *progressReporter {
	return &progressReporter{out: out, logger: logger, quiet: quiet}
}

// Report is a ripper.Options.Progress callback; it is called from many
// goroutines.
func (p *progressReporter) Report(e ripper.ProgressEvent) {
	if !e.Done {
		p.logger.Debug("Transfer progress", "url", e.URI, "percent", e.Percent(), "bytes", e.BytesReceived)
		return
	}
	p.bytes.Add(e.BytesReceived)
	p.files.Add(1)
	if p.quiet {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, progressLine(e))
}

// Bytes is the total of completed transfers
func (p *progressReporter) Bytes() int64 {
	return p.bytes.Load()
}

// Files is the number of completed transfers
func (p *progressReporter) Files() int64 {
	return p.files.Load()
}

func progressLine(e ripper.ProgressEvent) string {
	return fmt.Sprintf("%3d%% %-*s %8s", e.Percent(), uriWidth, shortURI(e.URI), humanize.Bytes(uint64(e.BytesReceived)))
}

func shortURI(uri string) string {
	s, err := textutil.MiddleTruncate(uri, uriWidth, textutil.Ellipsis)
	if err != nil {
		return uri
	}
	return s
}
