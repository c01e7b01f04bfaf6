package config

import "errors"

var (
	// ErrNoSeedURL is returned when no seed URL is provided
	ErrNoSeedURL = errors.New("no seed URL provided")
	// ErrEmptyRootPath is returned when the root path is empty
	ErrEmptyRootPath = errors.New("root_path cannot be empty")
	// ErrInvalidMaxDepth is returned when max_depth is negative
	ErrInvalidMaxDepth = errors.New("max_depth cannot be negative")
	// ErrInvalidIncludePattern is returned when include_pattern is not a valid regular expression
	ErrInvalidIncludePattern = errors.New("invalid include_pattern")
	// ErrInvalidConcurrency is returned when concurrency is negative
	ErrInvalidConcurrency = errors.New("concurrency cannot be negative")
	// ErrInvalidTimeout is returned when request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("request_timeout must be greater than 0")
	// ErrInvalidDelay is returned when request delay is negative
	ErrInvalidDelay = errors.New("request_delay cannot be negative")
	// ErrInvalidMaxPath is returned when max_path is too small to hold any file
	ErrInvalidMaxPath = errors.New("max_path must be at least 16")
	// ErrInvalidHeader is returned for a header entry without a name
	ErrInvalidHeader = errors.New("header must be in 'Name: value' form")
	// ErrInvalidLogFormat is returned for a log format other than json or text
	ErrInvalidLogFormat = errors.New("log format must be json or text")
)
