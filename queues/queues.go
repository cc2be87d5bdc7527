/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package queues

import (
	"context"
	"net/http"
	"time"

	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
)

const (
	endpointList = "queue/list"
	cacheKey     = "queues"
)

// Queue is a call-distribution group.
type Queue struct {
	ID     string
	Name   string
	Number string
}

// Config holds the configuration for the Queues plugin
type Config struct {
	PageSize int

	// CacheTTL overrides the core client's CacheTTL when non-zero.
	CacheTTL time.Duration
}

// DefaultConfig returns the default configuration for the Queues plugin
func DefaultConfig() *Config {
	return &Config{
		PageSize: 1000,
	}
}

// Client is the queues API client
type Client struct {
	pbxClient *pbxsdk.Client
	config    *Config
}

// New creates a new Queues plugin
func New(pbxClient *pbxsdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		pbxClient: pbxClient,
		config:    config,
	}
}

// List returns every queue, from cache when useCache is set and the cached
// list is fresh.
func (c *Client) List(ctx context.Context, useCache bool) ([]Queue, error) {
	ttl := c.config.CacheTTL
	if ttl <= 0 {
		ttl = c.pbxClient.Config.CacheTTL
	}
	return pbxsdk.Cached(ctx, c.pbxClient.Cache(), cacheKey, ttl, useCache, func(ctx context.Context) ([]Queue, error) {
		resp, err := c.pbxClient.Call(ctx, endpointList, http.MethodGet, pbxsdk.PageParams(1, c.config.PageSize), nil)
		if err != nil {
			return nil, err
		}
		records := resp.List(pbxsdk.FieldListQueues)
		out := make([]Queue, 0, len(records))
		for _, r := range records {
			out = append(out, Normalize(r))
		}
		return out, nil
	})
}

// Normalize maps one appliance queue object onto Queue.
func Normalize(r pbxsdk.Record) Queue {
	return Queue{
		ID:     r.Str(pbxsdk.FieldQueueID),
		Name:   r.Str(pbxsdk.FieldQueueName),
		Number: r.Str(pbxsdk.FieldQueueNumber),
	}
}
