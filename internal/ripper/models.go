package ripper

import "time"

// Status is the terminal state of a rip.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

// Outcome is what happened to one resource.
type Outcome string

const (
	OutcomeDownloaded  Outcome = "downloaded"
	OutcomeUpToDate    Outcome = "up_to_date"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeFailed      Outcome = "failed"
)

// Result is delivered once per rip.
type Result struct {
	RunID      string
	Status     Status
	Root       string // local path of the root resource
	Resources  int    // distinct resources discovered
	Downloaded int    // resources whose bytes were transferred
	Err        error  // terminal error for failed and canceled rips
	Failures   error  // per-branch failures that did not stop the rip
	StartedAt  time.Time
	Duration   time.Duration
}

// ProgressEvent reports bytes streamed for one resource. TotalBytes is
// <= 0 when the length is unknown.
type ProgressEvent struct {
	URI           string
	BytesReceived int64
	TotalBytes    int64
	Done          bool
}

// Percent is BytesReceived*100/TotalBytes clamped to [0,100]. Unknown
// lengths report 0 until Done, then 100.
func (e ProgressEvent) Percent() int {
	if e.TotalBytes <= 0 {
		if e.Done {
			return 100
		}
		return 0
	}
	p := e.BytesReceived * 100 / e.TotalBytes
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(p)
}

// RunRecord describes a rip when it starts.
type RunRecord struct {
	ID        string
	SeedURI   string
	RootPath  string
	Mode      Mode
	StartedAt time.Time
}

// ResourceRecord describes the outcome for one resource.
type ResourceRecord struct {
	URI         string // first-seen URI
	FinalURI    string
	LocalPath   string
	ContentType string
	Outcome     Outcome
	Depth       int
	Bytes       int64
	TTFB        time.Duration
	Error       string
	RecordedAt  time.Time
}

// RunSummary describes a rip when it ends.
type RunSummary struct {
	Status     Status
	Resources  int
	Downloaded int
	Failures   int
	Error      string
	FinishedAt time.Time
}
