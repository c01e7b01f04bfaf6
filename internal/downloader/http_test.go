package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Failed to parse %q: %v", raw, err)
	}
	return u
}

func TestHTTPDownloader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "Test-Ripper/1.0" {
			t.Errorf("Expected User-Agent 'Test-Ripper/1.0', got '%s'", ua)
		}
		if lang := r.Header.Get("Accept-Language"); lang != "de-DE,de;q=0.9" {
			t.Errorf("Expected Accept-Language 'de-DE,de;q=0.9', got '%s'", lang)
		}
		if accept := r.Header.Get("Accept"); accept != "text/css,*/*;q=0.8" {
			t.Errorf("Expected Accept from mime hint, got '%s'", accept)
		}
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("body { color: red }"))
	}))
	defer server.Close()

	client := NewHTTPClient("Test-Ripper/1.0")
	defer client.Close()

	dl, err := client.NewDownloader(Request{
		URI:       mustParse(t, server.URL+"/style.css"),
		MimeHint:  "text/css",
		Timeout:   5 * time.Second,
		Languages: []string{"de-DE", "de"},
	})
	if err != nil {
		t.Fatalf("NewDownloader failed: %v", err)
	}
	defer dl.Close()

	if err := dl.SendRequest(context.Background()); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	if ct := dl.ContentType(); ct != "text/css; charset=utf-8" {
		t.Errorf("Expected content type 'text/css; charset=utf-8', got '%s'", ct)
	}
	want := time.Date(2015, 10, 21, 7, 28, 0, 0, time.UTC)
	if !dl.LastModified().Equal(want) {
		t.Errorf("Expected last modified %v, got %v", want, dl.LastModified())
	}
	if dl.ContentLength() != int64(len("body { color: red }")) {
		t.Errorf("Unexpected content length %d", dl.ContentLength())
	}

	body, err := dl.ResponseStream()
	if err != nil {
		t.Fatalf("ResponseStream failed: %v", err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if string(data) != "body { color: red }" {
		t.Errorf("Unexpected body %q", data)
	}
}

func TestHTTPDownloaderRedirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/final" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("Final page"))
	}))
	defer server.Close()

	client := NewHTTPClient("Test-Ripper/1.0")
	defer client.Close()

	dl, _ := client.NewDownloader(Request{URI: mustParse(t, server.URL+"/start"), Timeout: 5 * time.Second})
	defer dl.Close()

	if err := dl.SendRequest(context.Background()); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if got := dl.ResponseURI().String(); got != server.URL+"/final" {
		t.Errorf("Expected final URL '%s', got '%s'", server.URL+"/final", got)
	}
}

func TestHTTPDownloaderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewHTTPClient("Test-Ripper/1.0")
	defer client.Close()

	dl, _ := client.NewDownloader(Request{URI: mustParse(t, server.URL+"/missing"), Timeout: 5 * time.Second})
	defer dl.Close()

	err := dl.SendRequest(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", statusErr.StatusCode)
	}
	if _, err := dl.ResponseStream(); !errors.Is(err, ErrNoResponse) {
		t.Errorf("Expected ErrNoResponse, got %v", err)
	}
}

func TestHTTPDownloaderTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient("Test-Ripper/1.0")
	defer client.Close()

	dl, _ := client.NewDownloader(Request{URI: mustParse(t, server.URL), Timeout: 100 * time.Millisecond})
	defer dl.Close()

	if err := dl.SendRequest(context.Background()); err == nil {
		t.Errorf("Expected timeout error, got nil")
	}
}

func TestHTTPDownloaderBasicAuthAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			t.Errorf("Expected basic auth alice/secret, got %q/%q (%v)", user, pass, ok)
		}
		if v := r.Header.Get("X-Mirror"); v != "yes" {
			t.Errorf("Expected X-Mirror header, got '%s'", v)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient("Test-Ripper/1.0")
	client.SetBasicAuth("alice", "secret")
	client.SetCustomHeaders(map[string]string{"X-Mirror": "yes"})
	defer client.Close()

	dl, _ := client.NewDownloader(Request{URI: mustParse(t, server.URL), Timeout: 5 * time.Second})
	defer dl.Close()
	if err := dl.SendRequest(context.Background()); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
}

func TestHTTPDownloaderRobots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient("Test-Ripper/1.0")
	client.RespectRobots()
	defer client.Close()

	blocked, _ := client.NewDownloader(Request{URI: mustParse(t, server.URL+"/private/page"), Timeout: 5 * time.Second})
	defer blocked.Close()
	if err := blocked.SendRequest(context.Background()); !errors.Is(err, ErrDisallowed) {
		t.Errorf("Expected ErrDisallowed, got %v", err)
	}

	open, _ := client.NewDownloader(Request{URI: mustParse(t, server.URL+"/public/page"), Timeout: 5 * time.Second})
	defer open.Close()
	if err := open.SendRequest(context.Background()); err != nil {
		t.Errorf("Expected public page to be allowed, got %v", err)
	}
}

func TestAcceptLanguage(t *testing.T) {
	tests := []struct {
		input []string
		want  string
	}{
		{nil, ""},
		{[]string{"en"}, "en"},
		{[]string{"en-US", "en", "fr"}, "en-US,en;q=0.9,fr;q=0.8"},
		{[]string{"en", " ", "fr"}, "en,fr;q=0.9"},
		{
			[]string{"l0", "l1", "l2", "l3", "l4", "l5", "l6", "l7", "l8", "l9", "l10"},
			"l0,l1;q=0.91,l2;q=0.82,l3;q=0.73,l4;q=0.64,l5;q=0.55,l6;q=0.46,l7;q=0.37,l8;q=0.28,l9;q=0.19,l10;q=0.1",
		},
	}
	for _, tt := range tests {
		if got := acceptLanguage(tt.input); got != tt.want {
			t.Errorf("acceptLanguage(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAcceptLanguageLongList(t *testing.T) {
	var langs []string
	for i := 0; i < 150; i++ {
		langs = append(langs, fmt.Sprintf("x-%d", i))
	}
	parts := strings.Split(acceptLanguage(langs), ",")
	if len(parts) != maxLanguages {
		t.Fatalf("Expected %d languages, got %d", maxLanguages, len(parts))
	}

	prev := 1.0
	for _, part := range parts[1:] {
		_, q, ok := strings.Cut(part, ";q=")
		if !ok {
			t.Fatalf("Expected a weight in %q", part)
		}
		w, err := strconv.ParseFloat(q, 64)
		if err != nil {
			t.Fatalf("Invalid weight in %q: %v", part, err)
		}
		if w >= prev || w <= 0 {
			t.Errorf("Expected weights to strictly decrease above zero, got %v after %v", w, prev)
		}
		if len(q) > 5 {
			t.Errorf("Expected at most three decimals, got %q", q)
		}
		prev = w
	}
}
