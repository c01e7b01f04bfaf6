package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPClient holds the shared transport and request decoration for all
// http and https downloaders of a run.
type HTTPClient struct {
	client        *http.Client
	userAgent     string
	username      string            // Basic auth username
	password      string            // Basic auth password
	customHeaders map[string]string // Custom headers
	limiter       *RateLimiter
	robots        *RobotsPolicy
}

// NewHTTPClient creates a client that follows up to 10 redirects.
func NewHTTPClient(userAgent string) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &HTTPClient{
		client:        client,
		userAgent:     userAgent,
		customHeaders: make(map[string]string),
		limiter:       NewRateLimiter(0),
	}
}

// SetBasicAuth configures basic authentication for every request
func (h *HTTPClient) SetBasicAuth(username, password string) {
	h.username = username
	h.password = password
}

// SetCustomHeaders adds headers sent with every request
func (h *HTTPClient) SetCustomHeaders(headers map[string]string) {
	for k, v := range headers {
		h.customHeaders[k] = v
	}
}

// SetRequestDelay paces requests to the same host.
func (h *HTTPClient) SetRequestDelay(delay time.Duration) {
	h.limiter = NewRateLimiter(delay)
}

// RespectRobots enables robots.txt checks for every request.
func (h *HTTPClient) RespectRobots() {
	h.robots = NewRobotsPolicy(h.client, h.userAgent)
}

// Close releases idle connections.
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}

// NewDownloader implements Factory.
func (h *HTTPClient) NewDownloader(req Request) (Downloader, error) {
	return &httpDownloader{client: h, req: req}, nil
}

type httpDownloader struct {
	client *HTTPClient
	req    Request
	resp   *http.Response
	cancel context.CancelFunc
	ttfb   time.Duration
	final  *url.URL
}

func (d *httpDownloader) SendRequest(ctx context.Context) error {
	h := d.client
	target := d.req.URI.String()

	if h.robots != nil && !h.robots.Allowed(ctx, d.req.URI) {
		return fmt.Errorf("%s: %w", target, ErrDisallowed)
	}
	if err := h.limiter.Wait(ctx, d.req.URI.Host); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", acceptHeader(d.req.MimeHint))
	if lang := acceptLanguage(d.req.Languages); lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	if h.username != "" && h.password != "" {
		req.SetBasicAuth(h.username, h.password)
	}
	for name, value := range h.customHeaders {
		req.Header.Set(name, value)
	}

	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = time.Now()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	// The timeout covers the header exchange only; the body is streamed
	// later and must outlive it.
	var timer *time.Timer
	if d.req.Timeout > 0 {
		timer = time.AfterFunc(d.req.Timeout, cancel)
	}
	start := time.Now()
	resp, err := h.client.Do(req)
	if timer != nil && !timer.Stop() && err == nil {
		_ = resp.Body.Close()
		cancel()
		return fmt.Errorf("request failed: %s: timeout after %v", target, d.req.Timeout)
	}
	if err != nil {
		cancel()
		return fmt.Errorf("request failed: %w", err)
	}
	if !firstByte.IsZero() {
		d.ttfb = firstByte.Sub(start)
	}

	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		cancel()
		return &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	d.resp = resp
	d.cancel = cancel
	d.final = resp.Request.URL
	return nil
}

func (d *httpDownloader) ResponseURI() *url.URL {
	if d.final == nil {
		return d.req.URI
	}
	return d.final
}

func (d *httpDownloader) ContentType() string {
	if d.resp == nil {
		return ""
	}
	return d.resp.Header.Get("Content-Type")
}

func (d *httpDownloader) ContentLength() int64 {
	if d.resp == nil {
		return -1
	}
	return d.resp.ContentLength
}

func (d *httpDownloader) LastModified() time.Time {
	if d.resp == nil {
		return time.Time{}
	}
	lm := d.resp.Header.Get("Last-Modified")
	if lm == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(lm)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d *httpDownloader) ResponseStream() (io.Reader, error) {
	if d.resp == nil {
		return nil, ErrNoResponse
	}
	return d.resp.Body, nil
}

// TTFB is the time to first response byte of the last request.
func (d *httpDownloader) TTFB() time.Duration {
	return d.ttfb
}

func (d *httpDownloader) Close() error {
	var err error
	if d.resp != nil {
		err = d.resp.Body.Close()
		d.resp = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	return err
}

func acceptHeader(mimeHint string) string {
	if mimeHint == "" {
		return "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	}
	return mimeHint + ",*/*;q=0.8"
}

// maxLanguages bounds Accept-Language so every weight stays distinct at
// the three decimals a q-value allows.
const maxLanguages = 100

// acceptLanguage weights languages in order: en-US,en;q=0.9,fr;q=0.8.
// Up to ten languages step by 0.1; longer lists share the range evenly.
func acceptLanguage(languages []string) string {
	langs := make([]string, 0, len(languages))
	for _, lang := range languages {
		if lang = strings.TrimSpace(lang); lang != "" {
			langs = append(langs, lang)
		}
	}
	if len(langs) > maxLanguages {
		langs = langs[:maxLanguages]
	}

	// weights in thousandths
	step := 100
	if len(langs) > 10 {
		step = 900 / (len(langs) - 1)
	}
	parts := make([]string, 0, len(langs))
	for i, lang := range langs {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1000 - i*step
		parts = append(parts, lang+";q="+strconv.FormatFloat(float64(q)/1000, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}
