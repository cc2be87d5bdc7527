/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package relaytest runs an in-process CORS relay in front of a scripted
// appliance, for tests.
//
// The relay mirrors the production contract: GET /api/health answers a static
// JSON body, and /api/proxy/{host}/{path} is forwarded verbatim to the
// appliance when the host carries an allow-listed marker.
package relaytest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

const apiPrefix = "openapi/v1.0/"

// Request is one request the relay forwarded.
type Request struct {
	Method   string
	Host     string
	Endpoint string
	Query    url.Values
	Body     []byte
}

// Relay is a running relay double.
type Relay struct {
	*httptest.Server

	// Appliance receives forwarded requests with the path rewritten to
	// "/{endpoint}", e.g. "/extension/list".
	Appliance chi.Router

	mu       sync.Mutex
	markers  []string
	requests []Request
}

// New starts a relay. A target host is forwarded only when it contains one of
// markers; with no markers every host is forwarded.
func New(markers ...string) *Relay {
	r := &Relay{
		Appliance: chi.NewRouter(),
		markers:   markers,
	}

	router := chi.NewRouter()
	router.Use(cors)
	router.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.HandleFunc("/api/proxy/*", r.proxy)

	r.Server = httptest.NewServer(router)
	return r
}

// Requests returns every forwarded request, in arrival order.
func (r *Relay) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.requests...)
}

// Hits counts the forwarded requests for endpoint.
func (r *Relay) Hits(endpoint string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.requests {
		if req.Endpoint == endpoint {
			n++
		}
	}
	return n
}

// Reset forgets recorded requests.
func (r *Relay) Reset() {
	r.mu.Lock()
	r.requests = nil
	r.mu.Unlock()
}

func (r *Relay) proxy(w http.ResponseWriter, req *http.Request) {
	target := chi.URLParam(req, "*")
	host, path, _ := strings.Cut(target, "/")
	if host == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing host"})
		return
	}
	if !r.allows(host) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "host not allowed"})
		return
	}

	body, _ := io.ReadAll(req.Body)
	endpoint := strings.TrimPrefix(path, apiPrefix)

	r.mu.Lock()
	r.requests = append(r.requests, Request{
		Method:   req.Method,
		Host:     host,
		Endpoint: endpoint,
		Query:    req.URL.Query(),
		Body:     body,
	})
	r.mu.Unlock()

	// the appliance router must not see the relay's route context
	fwd := req.Clone(context.WithValue(req.Context(), chi.RouteCtxKey, nil))
	fwd.URL.Path = "/" + endpoint
	fwd.URL.RawPath = ""
	fwd.RequestURI = ""
	fwd.Body = io.NopCloser(strings.NewReader(string(body)))
	r.Appliance.ServeHTTP(w, fwd)
}

func (r *Relay) allows(host string) bool {
	if len(r.markers) == 0 {
		return true
	}
	for _, m := range r.markers {
		if strings.Contains(host, m) {
			return true
		}
	}
	return false
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// JSON returns a handler that always answers status and body.
func JSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// Sequence returns a handler that answers with each handler in turn and then
// repeats the last one.
func Sequence(handlers ...http.HandlerFunc) http.HandlerFunc {
	var (
		mu sync.Mutex
		i  int
	)
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		h := handlers[i]
		if i < len(handlers)-1 {
			i++
		}
		mu.Unlock()
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
