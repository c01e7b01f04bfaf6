package config

import (
	"errors"
	"testing"
	"time"

	"github.com/masahif/webripper/internal/ripper"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RootPath != "./mirror" {
		t.Errorf("Expected root path './mirror', got %s", cfg.RootPath)
	}
	if cfg.Mode != "update-or-create" {
		t.Errorf("Expected mode update-or-create, got %s", cfg.Mode)
	}
	if cfg.Concurrency != 0 {
		t.Errorf("Expected unbounded concurrency, got %d", cfg.Concurrency)
	}
	if cfg.RequestDelay != 0 {
		t.Errorf("Expected no request delay, got %v", cfg.RequestDelay)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %v", cfg.RequestTimeout)
	}
	if cfg.UserAgent != "WebRipper/1.0" {
		t.Errorf("Expected user agent 'WebRipper/1.0', got %s", cfg.UserAgent)
	}
	if cfg.RespectRobots {
		t.Errorf("Expected respect robots false, got %v", cfg.RespectRobots)
	}
	if cfg.MaxPath != 259 {
		t.Errorf("Expected max path 259, got %d", cfg.MaxPath)
	}
	if cfg.DatabasePath != "" {
		t.Errorf("Expected journal disabled, got %s", cfg.DatabasePath)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Expected info/text logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *RipConfig {
		cfg := DefaultConfig()
		cfg.SeedURL = "https://example.com/"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(c *RipConfig)
		wantErr error
	}{
		{"valid config", func(c *RipConfig) {}, nil},
		{"missing seed", func(c *RipConfig) { c.SeedURL = " " }, ErrNoSeedURL},
		{"empty root", func(c *RipConfig) { c.RootPath = "" }, ErrEmptyRootPath},
		{"unknown mode", func(c *RipConfig) { c.Mode = "replace" }, ripper.ErrInvalidMode},
		{"mode spelling", func(c *RipConfig) { c.Mode = "Create_New" }, nil},
		{"negative depth", func(c *RipConfig) { c.MaxDepth = -1 }, ErrInvalidMaxDepth},
		{"bad include", func(c *RipConfig) { c.IncludePattern = "(" }, ErrInvalidIncludePattern},
		{"good include", func(c *RipConfig) { c.IncludePattern = `^https://example\.com/docs/` }, nil},
		{"zero timeout", func(c *RipConfig) { c.RequestTimeout = 0 }, ErrInvalidTimeout},
		{"negative concurrency", func(c *RipConfig) { c.Concurrency = -1 }, ErrInvalidConcurrency},
		{"negative delay", func(c *RipConfig) { c.RequestDelay = -time.Second }, ErrInvalidDelay},
		{"small max path", func(c *RipConfig) { c.MaxPath = 15 }, ErrInvalidMaxPath},
		{"bad header", func(c *RipConfig) { c.Headers = []string{"no colon"} }, ErrInvalidHeader},
		{"bad log format", func(c *RipConfig) { c.Log.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Expected valid config, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRipMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = "truncate"
	mode, err := cfg.RipMode()
	if err != nil {
		t.Fatalf("RipMode failed: %v", err)
	}
	if mode != ripper.Truncate {
		t.Errorf("Expected truncate, got %v", mode)
	}
}

func TestParsedHeaders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Headers = []string{"X-Token: abc:def", "Accept-Encoding:identity", " Referer : https://example.com/ "}

	headers, err := cfg.ParsedHeaders()
	if err != nil {
		t.Fatalf("ParsedHeaders failed: %v", err)
	}
	want := map[string]string{
		"X-Token":         "abc:def",
		"Accept-Encoding": "identity",
		"Referer":         "https://example.com/",
	}
	if len(headers) != len(want) {
		t.Fatalf("Expected %d headers, got %d", len(want), len(headers))
	}
	for k, v := range want {
		if headers[k] != v {
			t.Errorf("Expected %s=%q, got %q", k, v, headers[k])
		}
	}

	cfg.Headers = []string{": value"}
	if _, err := cfg.ParsedHeaders(); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("Expected ErrInvalidHeader, got %v", err)
	}
}

func TestGetBasicAuthCredentials(t *testing.T) {
	t.Setenv("WR_TEST_USER", "env-user")
	t.Setenv("WR_TEST_PASS", "env-pass")

	tests := []struct {
		name     string
		auth     *Auth
		wantUser string
		wantPass string
	}{
		{"no auth", nil, "", ""},
		{"no basic", &Auth{}, "", ""},
		{"direct", &Auth{Basic: &BasicAuth{Username: "u", Password: "p"}}, "u", "p"},
		{"from env", &Auth{Basic: &BasicAuth{Username: "u", UsernameEnv: "WR_TEST_USER", PasswordEnv: "WR_TEST_PASS"}}, "env-user", "env-pass"},
		{"unset env", &Auth{Basic: &BasicAuth{PasswordEnv: "WR_TEST_UNSET"}}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Auth = tt.auth
			user, pass := cfg.GetBasicAuthCredentials()
			if user != tt.wantUser || pass != tt.wantPass {
				t.Errorf("Expected %q/%q, got %q/%q", tt.wantUser, tt.wantPass, user, pass)
			}
		})
	}
}
