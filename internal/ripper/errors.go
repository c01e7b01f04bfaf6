package ripper

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRootExists is returned by CreateNew when the root directory is not empty
	ErrRootExists = errors.New("root directory already exists and is not empty")
	// ErrRootMissing is returned by Update and Truncate when the root directory does not exist
	ErrRootMissing = errors.New("root directory does not exist")
	// ErrInvalidMode is returned for an unknown rip mode
	ErrInvalidMode = errors.New("invalid rip mode")
	// ErrAlreadyStarted is returned when a Ripper is started twice
	ErrAlreadyStarted = errors.New("rip already started")
	// ErrNotStarted is returned when Cancel is called before the rip started
	ErrNotStarted = errors.New("rip not started")
	// ErrResourceUnavailable marks resources whose request failed
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrPathTooLong marks resources whose local path exceeds the ceiling
	ErrPathTooLong = errors.New("local path too long")
	// ErrCanceled is the terminal error of a cancelled rip
	ErrCanceled = fmt.Errorf("rip canceled: %w", context.Canceled)
)

// UnavailableError reports a failed request. Resource is usable for
// rewriting references even though it has no content.
type UnavailableError struct {
	Resource *Resource
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Resource.OriginalURI(), e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrResourceUnavailable
}

// PathTooLongError reports a synthesized path longer than Limit bytes.
type PathTooLongError struct {
	URI   string
	Path  string
	Limit int
}

func (e *PathTooLongError) Error() string {
	return fmt.Sprintf("%s: local path exceeds %d bytes: %s", e.URI, e.Limit, e.Path)
}

func (e *PathTooLongError) Is(target error) bool {
	return target == ErrPathTooLong
}
