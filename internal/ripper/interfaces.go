package ripper

import (
	"time"

	"github.com/masahif/webripper/internal/downloader"
	"github.com/masahif/webripper/internal/mimetype"
	"github.com/masahif/webripper/internal/parser"
)

// Journal records runs and resource outcomes. Journal errors are logged
// and never stop a rip.
type Journal interface {
	StartRun(run RunRecord) error
	RecordResource(runID string, rec ResourceRecord) error
	FinishRun(runID string, summary RunSummary) error
}

// Env holds the collaborators shared by every resource of a run. It is
// built once at startup and read-only afterwards.
type Env struct {
	Downloaders *downloader.Registry
	Parsers     *parser.Registry
	Extensions  mimetype.Extensions
}

// DefaultEnv registers the built-in downloaders on client and the
// built-in parsers.
func DefaultEnv(client *downloader.HTTPClient) *Env {
	exts := mimetype.NewTable(nil)

	downloaders := downloader.NewRegistry()
	downloader.RegisterDefaults(downloaders, client)

	parsers := parser.NewRegistry(exts)
	parser.RegisterDefaults(parsers)

	return &Env{Downloaders: downloaders, Parsers: parsers, Extensions: exts}
}

// ttfbReporter is implemented by downloaders that time the first byte.
type ttfbReporter interface {
	TTFB() time.Duration
}
