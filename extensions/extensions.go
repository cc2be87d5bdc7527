/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package extensions

import (
	"context"
	"net/http"
	"time"

	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
)

const (
	endpointList = "extension/list"
	cacheKey     = "extensions"
)

// Extension is an internal phone line. Number is the human-facing key used to
// correlate call legs and is always a string: leading zeros and non-numeric
// extensions are legal.
type Extension struct {
	ID          string
	Number      string
	DisplayName string
	Username    string

	// OnlineStatus maps a device kind (e.g. "sip_phone") to its raw status entry.
	OnlineStatus map[string]any

	// Presence is the raw presence value, e.g. "available".
	Presence string
}

// IsOnline reports whether any device in the online-status map carries the
// online code 1. Entries are either a bare code or an object with a "status".
func (e Extension) IsOnline() bool {
	for _, v := range e.OnlineStatus {
		if m, ok := pbxsdk.AsRecord(v); ok {
			v = m["status"]
		}
		if n, err := pbxsdk.ToInt(v); err == nil && n == 1 {
			return true
		}
	}
	return false
}

// Config holds the configuration for the Extensions plugin
type Config struct {
	// PageSize is the page size used when listing extensions.
	PageSize int

	// CacheTTL is the freshness window for cached lists. Zero uses the core
	// client's CacheTTL.
	CacheTTL time.Duration
}

// DefaultConfig returns the default configuration for the Extensions plugin
func DefaultConfig() *Config {
	return &Config{
		PageSize: 1000,
	}
}

// Client is the extensions API client
type Client struct {
	pbxClient *pbxsdk.Client
	config    *Config
}

// New creates a new Extensions plugin
func New(pbxClient *pbxsdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		pbxClient: pbxClient,
		config:    config,
	}
}

func (c *Client) ttl() time.Duration {
	if c.config.CacheTTL > 0 {
		return c.config.CacheTTL
	}
	return c.pbxClient.Config.CacheTTL
}

// List returns every extension. With useCache a fresh cached list is returned
// without a remote request.
func (c *Client) List(ctx context.Context, useCache bool) ([]Extension, error) {
	return pbxsdk.Cached(ctx, c.pbxClient.Cache(), cacheKey, c.ttl(), useCache, c.fetch)
}

func (c *Client) fetch(ctx context.Context) ([]Extension, error) {
	resp, err := c.pbxClient.Call(ctx, endpointList, http.MethodGet, pbxsdk.PageParams(1, c.config.PageSize), nil)
	if err != nil {
		return nil, err
	}

	records := resp.List(pbxsdk.FieldListExtensions)
	exts := make([]Extension, 0, len(records))
	for _, r := range records {
		exts = append(exts, Normalize(r))
	}
	return exts, nil
}

// Normalize maps one appliance extension object onto Extension. Missing fields
// read as empty values.
func Normalize(r pbxsdk.Record) Extension {
	ext := Extension{
		ID:          r.Str(pbxsdk.FieldExtID),
		Number:      r.Str(pbxsdk.FieldExtNumber),
		DisplayName: r.Str(pbxsdk.FieldExtDisplayName),
		Username:    r.Str(pbxsdk.FieldExtUsername),
		Presence:    r.Str(pbxsdk.FieldExtPresence),
	}
	if online := r.Map(pbxsdk.FieldExtOnlineStatus); online != nil {
		ext.OnlineStatus = map[string]any(online)
	}
	return ext
}
