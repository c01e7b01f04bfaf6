package downloader

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnsupportedScheme is returned when no downloader handles a URI scheme
	ErrUnsupportedScheme = errors.New("scheme not supported")
	// ErrDisallowed is returned when robots.txt forbids fetching a URI
	ErrDisallowed = errors.New("disallowed by robots.txt")
	// ErrNoResponse is returned when response data is requested before a successful SendRequest
	ErrNoResponse = errors.New("request has not been sent")
)

// StatusError reports a 4xx or 5xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}
