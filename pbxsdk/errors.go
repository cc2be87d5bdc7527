/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package pbxsdk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Kind is the actionable category of a failed appliance call.
type Kind int

const (
	// KindUnknown is reported by KindOf for errors that did not come from the dispatcher.
	KindUnknown Kind = iota
	// KindUnauthenticated means no token was present for a call that requires one.
	KindUnauthenticated
	// KindMalformedResponse means the body could not be parsed as a JSON object.
	KindMalformedResponse
	// KindAuthExpired means the appliance reported the token as expired. The token
	// has already been cleared when this is returned.
	KindAuthExpired
	// KindRemoteRejected means a non-2xx status or a non-zero errcode.
	KindRemoteRejected
	// KindUnreachable means the relay or appliance could not be reached.
	KindUnreachable
	// KindUnsupported means a feature probe hit an interface this firmware lacks.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindMalformedResponse:
		return "malformed_response"
	case KindAuthExpired:
		return "auth_expired"
	case KindRemoteRejected:
		return "remote_rejected"
	case KindUnreachable:
		return "unreachable"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// APIError is the error type returned by every dispatcher call. Consumers can use
// errors.As(err, &apiErr) or the IsXxx helpers to branch on Kind.
type APIError struct {
	// Kind is the classified category.
	Kind Kind

	// Code is the appliance errcode, or zero when the failure happened before
	// a body was decoded.
	Code int

	// Message is the appliance errmsg or a guidance message for transport failures.
	Message string

	// Endpoint is the versioned resource path, e.g. "extension/list".
	Endpoint string

	// URL is the outbound URL with the access_token parameter removed.
	URL string

	// StatusCode is the HTTP status returned by the relay, if any.
	StatusCode int

	// RawBody is the raw response body, preserved for debugging.
	RawBody []byte

	// Err is the wrapped underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("pbx %s: %s", e.Endpoint, e.Kind)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (errcode %d)", e.Code)
	}
	if e.Message != "" {
		msg += " - " + e.Message
	}
	return msg
}

// Unwrap returns the wrapped error, if any.
func (e *APIError) Unwrap() error {
	return e.Err
}

// --- Classification ---

// ClassifyMissingToken builds the Unauthenticated outcome.
func ClassifyMissingToken(endpoint string) *APIError {
	return &APIError{
		Kind:     KindUnauthenticated,
		Endpoint: endpoint,
		Message:  "no access token, login required",
	}
}

// ClassifyTransport maps an error from http.Client.Do to Unreachable. relayHost is
// used to tell a dead relay apart from a generic network failure. The URL carried
// by a wrapped *url.Error is sanitized as well.
func ClassifyTransport(endpoint, sanitizedURL, relayHost string, err error) *APIError {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = SanitizeURL(urlErr.URL)
	}
	e := &APIError{
		Kind:     KindUnreachable,
		Endpoint: endpoint,
		URL:      sanitizedURL,
		Err:      err,
		Message:  "network error while contacting the PBX",
	}
	if isRelayDown(err) {
		e.Message = "relay " + relayHost + " is not reachable, check that the relay is running"
	}
	return e
}

// ClassifyBody inspects a decoded appliance envelope. It returns nil on success.
// probe marks the call as a per-feature sub-query whose "not present" outcome is
// Unsupported instead of RemoteRejected.
func ClassifyBody(endpoint, sanitizedURL string, statusCode int, resp *Response, cfg *Config, probe bool) *APIError {
	base := &APIError{
		Endpoint:   endpoint,
		URL:        sanitizedURL,
		StatusCode: statusCode,
		Code:       resp.Errcode,
		Message:    resp.Errmsg,
		RawBody:    resp.Raw,
	}

	if cfg.TokenExpiredCode != 0 && resp.Errcode == cfg.TokenExpiredCode {
		base.Kind = KindAuthExpired
		return base
	}

	okStatus := statusCode >= 200 && statusCode < 300
	if okStatus && resp.Errcode == 0 {
		return nil
	}

	if probe && (statusCode == 404 || cfg.isUnsupportedCode(resp.Errcode)) {
		base.Kind = KindUnsupported
		return base
	}

	base.Kind = KindRemoteRejected
	if base.Message == "" && !okStatus {
		base.Message = fmt.Sprintf("relay returned HTTP %d", statusCode)
	}
	return base
}

// ClassifyMalformed builds the MalformedResponse outcome for an unparsable body.
func ClassifyMalformed(endpoint, sanitizedURL string, statusCode int, body []byte, err error) *APIError {
	return &APIError{
		Kind:       KindMalformedResponse,
		Endpoint:   endpoint,
		URL:        sanitizedURL,
		StatusCode: statusCode,
		RawBody:    body,
		Err:        err,
		Message:    "response body is not a JSON object",
	}
}

// isRelayDown reports whether err happened while dialing. The client only ever
// dials the relay, so a dial failure means the relay itself is down.
func isRelayDown(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// SanitizeURL removes the access_token query parameter from raw.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.Index(raw, "?"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	q := u.Query()
	if q.Has("access_token") {
		q.Del("access_token")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// --- Convenience functions ---

// KindOf returns the Kind of err, or KindUnknown when err is not an *APIError.
func KindOf(err error) Kind {
	var e *APIError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsUnauthenticated reports whether err means a login is required.
func IsUnauthenticated(err error) bool { return KindOf(err) == KindUnauthenticated }

// IsMalformedResponse reports whether err is an unparsable response.
func IsMalformedResponse(err error) bool { return KindOf(err) == KindMalformedResponse }

// IsAuthExpired reports whether err is an expired-token signal.
func IsAuthExpired(err error) bool { return KindOf(err) == KindAuthExpired }

// IsRemoteRejected reports whether the appliance or relay rejected the request.
func IsRemoteRejected(err error) bool { return KindOf(err) == KindRemoteRejected }

// IsUnreachable reports whether err is a transport failure.
func IsUnreachable(err error) bool { return KindOf(err) == KindUnreachable }

// IsUnsupported reports whether err is an unsupported feature probe.
func IsUnsupported(err error) bool { return KindOf(err) == KindUnsupported }

type probeKey struct{}

// AsFeatureProbe marks calls made with the returned context as per-feature
// sub-queries. For those calls a 404 or an unsupported errcode is classified as
// KindUnsupported.
func AsFeatureProbe(ctx context.Context) context.Context {
	return context.WithValue(ctx, probeKey{}, true)
}

func isFeatureProbe(ctx context.Context) bool {
	v, _ := ctx.Value(probeKey{}).(bool)
	return v
}
