package parser

import "errors"

var (
	// ErrAlreadyLoaded is returned by a second Load on the same parser
	ErrAlreadyLoaded = errors.New("parser already loaded")
	// ErrNotLoaded is returned when references are requested before Load
	ErrNotLoaded = errors.New("parser not loaded")
	// ErrDuplicateBase is returned when a document declares conflicting base URIs
	ErrDuplicateBase = errors.New("document declares more than one base URI")
)
