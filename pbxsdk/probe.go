/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package pbxsdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const endpointHealth = "api/health"

// ProbeConnectivity checks that the relay at relayURL answers its health
// endpoint. An empty relayURL probes the configured relay. No token is needed.
func (c *Client) ProbeConnectivity(ctx context.Context, relayURL string) error {
	base := c.RelayURL.String()
	if relayURL != "" {
		u, err := url.Parse(strings.TrimRight(relayURL, "/"))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("relay url %q must be absolute", relayURL)
		}
		base = u.String()
	}
	healthURL := base + "/" + endpointHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		host := base
		if u, perr := url.Parse(base); perr == nil {
			host = u.Host
		}
		apiErr := ClassifyTransport(endpointHealth, healthURL, host, err)
		c.report(endpointHealth, "", apiErr)
		return apiErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Kind:       KindRemoteRejected,
			Endpoint:   endpointHealth,
			URL:        healthURL,
			StatusCode: resp.StatusCode,
			RawBody:    raw,
			Message:    "relay health check returned HTTP " + strconv.Itoa(resp.StatusCode),
		}
		c.report(endpointHealth, "", apiErr)
		return apiErr
	}

	body, err := decodeEnvelope(raw)
	if err != nil {
		apiErr := ClassifyMalformed(endpointHealth, healthURL, resp.StatusCode, raw, err)
		c.report(endpointHealth, "", apiErr)
		return apiErr
	}

	status, ok := body.Body["status"].(string)
	if !ok {
		apiErr := &APIError{
			Kind:       KindMalformedResponse,
			Endpoint:   endpointHealth,
			URL:        healthURL,
			StatusCode: resp.StatusCode,
			RawBody:    raw,
			Message:    "health response is not from a relay",
		}
		c.report(endpointHealth, "", apiErr)
		return apiErr
	}
	if status != "ok" {
		apiErr := &APIError{
			Kind:       KindRemoteRejected,
			Endpoint:   endpointHealth,
			URL:        healthURL,
			StatusCode: resp.StatusCode,
			RawBody:    raw,
			Message:    "relay reports status " + strconv.Quote(status),
		}
		c.report(endpointHealth, "", apiErr)
		return apiErr
	}

	c.logger.Debug("relay healthy", zap.String("relay", base))
	return nil
}
