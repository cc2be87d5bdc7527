/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package pbxsdk

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultTokenExpiredCode is the errcode the appliance uses for an expired token.
	DefaultTokenExpiredCode = 10004

	// DefaultUnsupportedCode is the errcode returned for interfaces that the
	// running firmware does not provide.
	DefaultUnsupportedCode = 20002

	// APIVersionPath is the versioned prefix of every appliance resource.
	APIVersionPath = "openapi/v1.0"
)

// Config holds the configuration for the PBX client
type Config struct {
	// RelayURL is the base URL of the CORS relay, e.g. "http://localhost:8787".
	RelayURL string `yaml:"relay_url"`

	// PBXHost is the appliance host (and optional port). A scheme, if present,
	// is stripped.
	PBXHost string `yaml:"pbx_host"`

	// EventsURL overrides the event stream endpoint. When empty the stream is
	// opened directly on the appliance at wss://{PBXHost}/openapi/v1.0/subscribe.
	EventsURL string `yaml:"events_url"`

	// Timeout for API requests
	Timeout time.Duration `yaml:"timeout"`

	// CacheTTL is the default freshness window for cached list reads.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// TokenExpiredCode is the errcode that signals an expired access token.
	TokenExpiredCode int `yaml:"token_expired_code"`

	// UnsupportedCodes are errcodes treated as "feature not present" for
	// per-feature sub-queries.
	UnsupportedCodes []int `yaml:"unsupported_codes"`

	// Default headers to include in API requests
	DefaultHeaders map[string]string `yaml:"default_headers"`

	// Custom HTTP client to use instead of the default one
	// If nil, a default client will be created with the specified Timeout
	HttpClient *http.Client `yaml:"-"`

	// Logger receives structured logs. If nil, logging is disabled.
	Logger *zap.Logger `yaml:"-"`

	// Registerer, when set, receives the client's Prometheus collectors.
	Registerer prometheus.Registerer `yaml:"-"`

	// TokenStore overrides the session token store.
	TokenStore TokenStore `yaml:"-"`
}

// DefaultConfig returns a default configuration for the PBX client
func DefaultConfig() *Config {
	return &Config{
		RelayURL:         "http://localhost:8787",
		Timeout:          30 * time.Second,
		CacheTTL:         30 * time.Second,
		TokenExpiredCode: DefaultTokenExpiredCode,
		UnsupportedCodes: []int{DefaultUnsupportedCode},
		DefaultHeaders:   make(map[string]string),
	}
}

func (c *Config) isUnsupportedCode(code int) bool {
	for _, u := range c.UnsupportedCodes {
		if u == code {
			return true
		}
	}
	return false
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := DefaultConfig()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// ConfigFromEnv builds a configuration from PBX_* environment variables. Values
// from a .env file in the working directory are loaded first when one exists;
// variables already set in the environment win.
//
//	PBX_RELAY_URL, PBX_HOST, PBX_EVENTS_URL, PBX_TIMEOUT, PBX_CACHE_TTL,
//	PBX_TOKEN_EXPIRED_CODE
func ConfigFromEnv(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := DefaultConfig()
	if v := os.Getenv("PBX_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("PBX_HOST"); v != "" {
		cfg.PBXHost = v
	}
	if v := os.Getenv("PBX_EVENTS_URL"); v != "" {
		cfg.EventsURL = v
	}
	if v := os.Getenv("PBX_TIMEOUT"); v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return nil, fmt.Errorf("PBX_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if v := os.Getenv("PBX_CACHE_TTL"); v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return nil, fmt.Errorf("PBX_CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = d
	}
	if v := os.Getenv("PBX_TOKEN_EXPIRED_CODE"); v != "" {
		code, err := cast.ToIntE(v)
		if err != nil {
			return nil, fmt.Errorf("PBX_TOKEN_EXPIRED_CODE: %w", err)
		}
		cfg.TokenExpiredCode = code
	}
	return cfg, nil
}

// normalizeHost strips any scheme and trailing slash from an appliance host.
func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return strings.TrimRight(host, "/")
}
