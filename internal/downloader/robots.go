package downloader

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy answers robots.txt questions, fetching each host's file
// at most once.
type RobotsPolicy struct {
	client    *http.Client
	userAgent string
	mu        sync.Mutex
	hosts     map[string]*robotsEntry
}

type robotsEntry struct {
	once sync.Once
	data *robotstxt.RobotsData
}

// NewRobotsPolicy creates a policy that fetches with client.
func NewRobotsPolicy(client *http.Client, userAgent string) *RobotsPolicy {
	return &RobotsPolicy{
		client:    client,
		userAgent: userAgent,
		hosts:     make(map[string]*robotsEntry),
	}
}

// Allowed reports whether u may be fetched. Hosts whose robots.txt cannot
// be retrieved allow everything.
func (p *RobotsPolicy) Allowed(ctx context.Context, u *url.URL) bool {
	key := strings.ToLower(u.Scheme + "://" + u.Host)

	p.mu.Lock()
	e, ok := p.hosts[key]
	if !ok {
		e = &robotsEntry{}
		p.hosts[key] = e
	}
	p.mu.Unlock()

	e.once.Do(func() {
		e.data = p.fetch(ctx, key+"/robots.txt")
	})
	if e.data == nil {
		return true
	}
	if u.Path == "/robots.txt" {
		return true
	}
	return e.data.TestAgent(u.RequestURI(), p.userAgent)
}

func (p *RobotsPolicy) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", p.userAgent)
	resp, err := p.client.Do(req)
	if err != nil {
		slog.Debug("robots.txt fetch failed", "url", robotsURL, "error", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		slog.Debug("robots.txt parse failed", "url", robotsURL, "error", err)
		return nil
	}
	return data
}
