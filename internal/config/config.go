// Package config provides configuration management for the ripper.
// It defines configuration structures and default values for mirroring parameters.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/masahif/webripper/internal/ripper"
)

// minMaxPath leaves room for a host directory and a short file name.
const minMaxPath = 16

// BasicAuth contains HTTP Basic Authentication credentials
type BasicAuth struct {
	Username    string `mapstructure:"username" yaml:"username"`         // Username for basic auth
	Password    string `mapstructure:"password" yaml:"password"`         // Password for basic auth
	UsernameEnv string `mapstructure:"username_env" yaml:"username_env"` // Environment variable for username
	PasswordEnv string `mapstructure:"password_env" yaml:"password_env"` // Environment variable for password
}

// Auth contains authentication configuration
type Auth struct {
	Basic *BasicAuth `mapstructure:"basic" yaml:"basic"` // Basic authentication settings
}

// LogConfig selects the log level, format and optional file
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn or error
	Format string `mapstructure:"format" yaml:"format"` // json or text
	File   string `mapstructure:"file" yaml:"file"`     // rotated log file, empty for console only
}

// RipConfig holds ripper configuration
type RipConfig struct {
	// What to mirror and where
	SeedURL  string `mapstructure:"seed_url" yaml:"seed_url"`   // Starting URL
	RootPath string `mapstructure:"root_path" yaml:"root_path"` // Local root directory
	Mode     string `mapstructure:"mode" yaml:"mode"`           // create-new, create, update, update-or-create or truncate

	// Scope
	MaxDepth       int    `mapstructure:"max_depth" yaml:"max_depth"`             // Hyperlink depth limit, 0 for unbounded
	BaseOnly       bool   `mapstructure:"base_only" yaml:"base_only"`             // Stay below the seed's directory
	IncludePattern string `mapstructure:"include_pattern" yaml:"include_pattern"` // Regex for hyperlinks to include

	// Transport
	Languages      []string      `mapstructure:"languages" yaml:"languages"`             // Accept-Language, most preferred first
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"` // Header exchange timeout
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`         // In-flight transfer bound, 0 for unbounded
	RequestDelay   time.Duration `mapstructure:"request_delay" yaml:"request_delay"`     // Delay between requests to one host
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`           // HTTP User-Agent header
	RespectRobots  bool          `mapstructure:"respect_robots" yaml:"respect_robots"`   // Whether to respect robots.txt
	Headers        []string      `mapstructure:"headers" yaml:"headers"`                 // Extra headers as "Name: value"

	// Authentication
	Auth *Auth `mapstructure:"auth" yaml:"auth"` // Authentication configuration

	// Local files
	MaxPath      int    `mapstructure:"max_path" yaml:"max_path"`           // Local path ceiling in bytes
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"` // Run journal, empty to disable

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *RipConfig {
	return &RipConfig{
		RootPath:       "./mirror",
		Mode:           ripper.UpdateOrCreate.String(),
		RequestTimeout: 30 * time.Second,
		UserAgent:      "WebRipper/1.0",
		MaxPath:        ripper.DefaultMaxPath,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the configuration is valid
func (c *RipConfig) Validate() error {
	if strings.TrimSpace(c.SeedURL) == "" {
		return ErrNoSeedURL
	}
	if c.RootPath == "" {
		return ErrEmptyRootPath
	}
	if _, err := ripper.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.IncludePattern != "" {
		if _, err := regexp.Compile("(?i)" + c.IncludePattern); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidIncludePattern, err)
		}
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency < 0 {
		return ErrInvalidConcurrency
	}
	if c.RequestDelay < 0 {
		return ErrInvalidDelay
	}
	if c.MaxPath < minMaxPath {
		return ErrInvalidMaxPath
	}
	if _, err := c.ParsedHeaders(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}
	return nil
}

// RipMode returns the parsed mode
func (c *RipConfig) RipMode() (ripper.Mode, error) {
	return ripper.ParseMode(c.Mode)
}

// ParsedHeaders splits every "Name: value" header entry
func (c *RipConfig) ParsedHeaders() (map[string]string, error) {
	headers := make(map[string]string, len(c.Headers))
	for _, h := range c.Headers {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// GetBasicAuthCredentials returns the basic auth username and password,
// resolving environment variables if specified
func (c *RipConfig) GetBasicAuthCredentials() (username, password string) {
	if c.Auth == nil || c.Auth.Basic == nil {
		return "", ""
	}

	basic := c.Auth.Basic

	// Get username
	if basic.UsernameEnv != "" {
		username = os.Getenv(basic.UsernameEnv)
	} else {
		username = basic.Username
	}

	// Get password
	if basic.PasswordEnv != "" {
		password = os.Getenv(basic.PasswordEnv)
	} else {
		password = basic.Password
	}

	return username, password
}
