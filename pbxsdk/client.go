/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package pbxsdk is the core of the PBX gateway client: it dispatches appliance
// calls through the CORS relay, owns the session token and the result cache,
// and classifies every failure into an actionable Kind.
package pbxsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	endpointGetToken = "get_token"
	endpointDelToken = "del_token"
)

// Response is a decoded appliance envelope.
type Response struct {
	// Errcode is the appliance result code; 0 means success.
	Errcode int

	// Errmsg is the optional appliance message.
	Errmsg string

	// Body is the decoded JSON object.
	Body Record

	// Raw is the undecoded body.
	Raw []byte
}

// List returns the list payload found under any alias of f.
func (r *Response) List(f Field) []Record {
	return Records(r.Body.List(f))
}

// Object returns the object payload found under any alias of f, or the body
// itself when no alias is present.
func (r *Response) Object(f Field) Record {
	if m := r.Body.Map(f); m != nil {
		return m
	}
	return r.Body
}

// Total returns the server-reported total, if any.
func (r *Response) Total() (int, bool) {
	return r.Body.Int(FieldTotal)
}

// Client dispatches appliance calls through the relay.
type Client struct {
	// HTTP client used to communicate with the relay
	httpClient *http.Client

	// RelayURL is the parsed relay base URL
	RelayURL *url.URL

	// host is the appliance host the relay forwards to
	host string

	tokens  TokenStore
	cache   *ResultCache
	metrics *metrics

	// Config for the client
	Config *Config

	logger *zap.Logger
}

// NewClient creates a new PBX client. config.PBXHost is required.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	host := normalizeHost(config.PBXHost)
	if host == "" {
		return nil, fmt.Errorf("pbx host cannot be empty")
	}

	relayURL, err := url.Parse(strings.TrimRight(config.RelayURL, "/"))
	if err != nil {
		return nil, err
	}
	if relayURL.Scheme == "" || relayURL.Host == "" {
		return nil, fmt.Errorf("relay url %q must be absolute", config.RelayURL)
	}

	httpClient := config.HttpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens := config.TokenStore
	if tokens == nil {
		tokens = NewSessionStore()
	}

	m, err := newMetrics(config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	cache := NewResultCache()
	cache.metrics = m

	return &Client{
		httpClient: httpClient,
		RelayURL:   relayURL,
		host:       host,
		tokens:     tokens,
		cache:      cache,
		metrics:    m,
		Config:     config,
		logger:     logger,
	}, nil
}

// Host returns the appliance host.
func (c *Client) Host() string { return c.host }

// Tokens returns the token store.
func (c *Client) Tokens() TokenStore { return c.tokens }

// Cache returns the result cache.
func (c *Client) Cache() *ResultCache { return c.cache }

// GetLogger returns the logger used by the client.
func (c *Client) GetLogger() *zap.Logger { return c.logger }

// GetHTTPClient returns the HTTP client used for relay requests.
func (c *Client) GetHTTPClient() *http.Client { return c.httpClient }

// Call performs one authenticated round trip to endpoint (a path below
// openapi/v1.0, e.g. "extension/list").
//
// Call never retries. When the appliance reports the token as expired the token
// is cleared and a KindAuthExpired error is returned; callers re-authenticate
// and resubmit.
func (c *Client) Call(ctx context.Context, endpoint, method string, params url.Values, body any) (*Response, error) {
	token, ok := c.tokens.Get()
	if !ok {
		apiErr := ClassifyMissingToken(endpoint)
		c.report(endpoint, "", apiErr)
		return nil, apiErr
	}
	return c.dispatch(ctx, endpoint, method, params, body, token)
}

// Authenticate exchanges credentials for an access token and stores it. This is
// the only call allowed without a token.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	payload := map[string]string{
		"username": username,
		"password": password,
	}

	resp, err := c.dispatch(ctx, endpointGetToken, http.MethodPost, nil, payload, "")
	if err != nil {
		return err
	}

	token := resp.Body.Str(FieldAccessToken)
	if token == "" {
		if data := resp.Body.Map(FieldObjectToken); data != nil {
			token = data.Str(FieldAccessToken)
		}
	}
	if token == "" {
		apiErr := &APIError{
			Kind:     KindMalformedResponse,
			Endpoint: endpointGetToken,
			Message:  "response carries no access_token",
			RawBody:  resp.Raw,
		}
		c.report(endpointGetToken, "", apiErr)
		return apiErr
	}

	c.tokens.Set(token)
	c.logger.Info("pbx session established", zap.String("host", c.host))
	return nil
}

// Logout revokes the token on the appliance when possible, then clears the
// token and every cached result. The local teardown happens even when the
// remote call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer func() {
		c.tokens.Clear()
		c.cache.Clear()
	}()

	token, ok := c.tokens.Get()
	if !ok {
		return nil
	}
	_, err := c.dispatch(ctx, endpointDelToken, http.MethodPost, nil, nil, token)
	if err != nil && !IsAuthExpired(err) {
		return err
	}
	return nil
}

// proxyURL composes {relay}/api/proxy/{host}/openapi/v1.0/{endpoint}?{query}
// with the token appended last.
func (c *Client) proxyURL(endpoint string, params url.Values, token string) string {
	var b strings.Builder
	b.WriteString(c.RelayURL.String())
	b.WriteString("/api/proxy/")
	b.WriteString(c.host)
	b.WriteString("/")
	b.WriteString(APIVersionPath)
	b.WriteString("/")
	b.WriteString(strings.TrimLeft(endpoint, "/"))

	query := ""
	if params != nil {
		query = params.Encode()
	}
	if token != "" {
		if query != "" {
			query += "&"
		}
		query += "access_token=" + url.QueryEscape(token)
	}
	if query != "" {
		b.WriteString("?")
		b.WriteString(query)
	}
	return b.String()
}

func (c *Client) dispatch(ctx context.Context, endpoint, method string, params url.Values, body any, token string) (*Response, error) {
	fullURL := c.proxyURL(endpoint, params, token)
	safeURL := SanitizeURL(fullURL)
	requestID := uuid.NewString()

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling payload: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	for k, v := range c.Config.DefaultHeaders {
		req.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		apiErr := ClassifyTransport(endpoint, safeURL, c.RelayURL.Host, err)
		c.report(endpoint, requestID, apiErr)
		return nil, apiErr
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		apiErr := ClassifyTransport(endpoint, safeURL, c.RelayURL.Host, err)
		c.report(endpoint, requestID, apiErr)
		return nil, apiErr
	}

	probe := isFeatureProbe(ctx)
	resp, err := decodeEnvelope(raw)
	if err != nil {
		var apiErr *APIError
		if probe && httpResp.StatusCode == http.StatusNotFound {
			apiErr = &APIError{
				Kind:       KindUnsupported,
				Endpoint:   endpoint,
				URL:        safeURL,
				StatusCode: httpResp.StatusCode,
				RawBody:    raw,
			}
		} else if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			apiErr = &APIError{
				Kind:       KindRemoteRejected,
				Endpoint:   endpoint,
				URL:        safeURL,
				StatusCode: httpResp.StatusCode,
				RawBody:    raw,
				Message:    fmt.Sprintf("relay returned HTTP %d", httpResp.StatusCode),
				Err:        err,
			}
		} else {
			apiErr = ClassifyMalformed(endpoint, safeURL, httpResp.StatusCode, raw, err)
		}
		c.report(endpoint, requestID, apiErr)
		return nil, apiErr
	}

	if apiErr := ClassifyBody(endpoint, safeURL, httpResp.StatusCode, resp, c.Config, probe); apiErr != nil {
		if apiErr.Kind == KindAuthExpired {
			c.tokens.Clear()
		}
		c.report(endpoint, requestID, apiErr)
		return nil, apiErr
	}

	c.metrics.request(endpoint, "ok")
	c.logger.Debug("pbx call",
		zap.String("endpoint", endpoint),
		zap.String("method", method),
		zap.String("url", safeURL),
		zap.String("request_id", requestID),
	)
	return resp, nil
}

// report logs and counts a classified failure.
func (c *Client) report(endpoint, requestID string, apiErr *APIError) {
	c.metrics.request(endpoint, apiErr.Kind.String())

	fields := []zap.Field{
		zap.String("endpoint", endpoint),
		zap.String("url", apiErr.URL),
		zap.String("kind", apiErr.Kind.String()),
		zap.Int("errcode", apiErr.Code),
		zap.String("request_id", requestID),
	}
	if apiErr.Err != nil {
		fields = append(fields, zap.Error(apiErr.Err))
	}

	switch apiErr.Kind {
	case KindUnsupported:
		c.logger.Debug("pbx feature not supported", fields...)
	case KindUnreachable:
		c.logger.Error("pbx unreachable: "+apiErr.Message, fields...)
	default:
		c.logger.Warn("pbx call failed: "+apiErr.Message, fields...)
	}
}

var errNotObject = errors.New("body is not a JSON object")

// decodeEnvelope parses raw as a JSON object, keeping numbers as json.Number so
// identifiers are not rounded.
func decodeEnvelope(raw []byte) (*Response, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	body, ok := AsRecord(v)
	if !ok {
		return nil, errNotObject
	}

	resp := &Response{Body: body, Raw: raw}
	if code, ok := body["errcode"]; ok && code != nil {
		n, err := ToInt(code)
		if err != nil {
			return nil, fmt.Errorf("errcode %v: %w", code, err)
		}
		resp.Errcode = n
	}
	if msg, ok := body["errmsg"].(string); ok {
		resp.Errmsg = msg
	}
	return resp, nil
}
