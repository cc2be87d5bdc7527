/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package pbx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tejzpr/pbx-gateway-go/events"
	"github.com/tejzpr/pbx-gateway-go/internal/relaytest"
	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
)

const extensionList = `{"errcode":0,"data":[{"id":1,"number":"1001"}]}`

func tokenHandler(tokens ...string) http.HandlerFunc {
	handlers := make([]http.HandlerFunc, 0, len(tokens))
	for _, tok := range tokens {
		handlers = append(handlers, relaytest.JSON(http.StatusOK, `{"errcode":0,"access_token":"`+tok+`","access_token_expire_time":1800}`))
	}
	return relaytest.Sequence(handlers...)
}

// expiresFor answers errcode 10004 while the request carries an expired token.
func expiresFor(expired ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("access_token")
		for _, e := range expired {
			if tok == e {
				relaytest.JSON(http.StatusOK, `{"errcode":10004,"errmsg":"TOKEN EXPIRED"}`)(w, r)
				return
			}
		}
		relaytest.JSON(http.StatusOK, extensionList)(w, r)
	}
}

func newTestClient(t *testing.T, relay *relaytest.Relay) *GatewayClient {
	t.Helper()
	cfg := pbxsdk.DefaultConfig()
	cfg.RelayURL = relay.URL
	cfg.PBXHost = "pbx.example.com"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient(nil); err == nil {
		t.Error("Expected error without an appliance host")
	}

	cfg := pbxsdk.DefaultConfig()
	cfg.PBXHost = "https://pbx.example.com/"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if client.Core().Host() != "pbx.example.com" {
		t.Errorf("Expected host 'pbx.example.com', got '%s'", client.Core().Host())
	}
	if client.Extensions() == nil || client.Queues() == nil || client.IVRs() == nil {
		t.Error("Expected directory plugins to be initialized")
	}
	if client.Routes() == nil || client.CallRecords() == nil || client.CallControl() == nil {
		t.Error("Expected routing and call plugins to be initialized")
	}
	if client.Status() == nil {
		t.Error("Expected status aggregator to be initialized")
	}
}

func TestListExtensionsCached(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	relay.Appliance.Post("/get_token", tokenHandler("tok-1"))
	relay.Appliance.Get("/extension/list", relaytest.JSON(http.StatusOK, extensionList))

	client := newTestClient(t, relay)
	ctx := context.Background()
	if err := client.Login(ctx, "api", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		exts, err := client.ListExtensions(ctx, true)
		if err != nil {
			t.Fatalf("ListExtensions %d failed: %v", i, err)
		}
		if len(exts) != 1 || exts[0].Number != "1001" {
			t.Fatalf("Unexpected extensions: %+v", exts)
		}
	}
	if hits := relay.Hits("extension/list"); hits != 1 {
		t.Errorf("Expected one remote request, got %d", hits)
	}

	client.InvalidateCache()
	if _, err := client.ListExtensions(ctx, true); err != nil {
		t.Fatalf("ListExtensions after invalidate failed: %v", err)
	}
	if hits := relay.Hits("extension/list"); hits != 2 {
		t.Errorf("Expected invalidation to force a refetch, got %d requests", hits)
	}
}

func TestReauthOnExpiredToken(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	relay.Appliance.Post("/get_token", tokenHandler("tok-1", "tok-2"))
	relay.Appliance.Get("/extension/list", expiresFor("tok-1"))

	client := newTestClient(t, relay)
	ctx := context.Background()
	if err := client.Login(ctx, "api", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	exts, err := client.ListExtensions(ctx, false)
	if err != nil {
		t.Fatalf("Expected transparent re-authentication, got %v", err)
	}
	if len(exts) != 1 {
		t.Errorf("Expected 1 extension, got %d", len(exts))
	}
	if hits := relay.Hits("get_token"); hits != 2 {
		t.Errorf("Expected login plus one re-authentication, got %d", hits)
	}
	if hits := relay.Hits("extension/list"); hits != 2 {
		t.Errorf("Expected the request to be resubmitted once, got %d", hits)
	}
	if tok, _ := client.Core().Tokens().Get(); tok != "tok-2" {
		t.Errorf("Expected fresh token 'tok-2', got '%s'", tok)
	}
}

func TestReauthHappensOnce(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	relay.Appliance.Post("/get_token", tokenHandler("tok-1", "tok-2", "tok-3"))
	relay.Appliance.Get("/extension/list", expiresFor("tok-1", "tok-2", "tok-3"))

	client := newTestClient(t, relay)
	ctx := context.Background()
	if err := client.Login(ctx, "api", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	_, err := client.ListExtensions(ctx, true)
	if !pbxsdk.IsAuthExpired(err) {
		t.Fatalf("Expected AuthExpired after the single retry, got %v", err)
	}
	if hits := relay.Hits("get_token"); hits != 2 {
		t.Errorf("Expected exactly one re-authentication, got %d token requests", hits)
	}
	if hits := relay.Hits("extension/list"); hits != 2 {
		t.Errorf("Expected exactly one resubmission, got %d requests", hits)
	}
}

func TestReauthFailureIsReturned(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	relay.Appliance.Post("/get_token", relaytest.Sequence(
		tokenHandler("tok-1"),
		relaytest.JSON(http.StatusOK, `{"errcode":20004,"errmsg":"PASSWORD ERROR"}`),
	))
	relay.Appliance.Get("/extension/list", expiresFor("tok-1"))

	client := newTestClient(t, relay)
	ctx := context.Background()
	if err := client.Login(ctx, "api", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	_, err := client.ListExtensions(ctx, false)
	if !pbxsdk.IsRemoteRejected(err) {
		t.Errorf("Expected the authentication failure, got %v", err)
	}
	if hits := relay.Hits("extension/list"); hits != 1 {
		t.Errorf("Expected no resubmission after failed authentication, got %d requests", hits)
	}
}

func TestNoReauthWithoutLogin(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	relay.Appliance.Post("/get_token", tokenHandler("tok-2"))
	relay.Appliance.Get("/extension/list", expiresFor("tok-1"))

	client := newTestClient(t, relay)
	client.Core().Tokens().Set("tok-1")

	_, err := client.ListExtensions(context.Background(), true)
	if !pbxsdk.IsAuthExpired(err) {
		t.Fatalf("Expected AuthExpired, got %v", err)
	}
	if hits := relay.Hits("get_token"); hits != 0 {
		t.Errorf("Expected no re-authentication without stored credentials, got %d", hits)
	}
}

func TestLogout(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	relay.Appliance.Post("/get_token", tokenHandler("tok-1"))
	relay.Appliance.Post("/del_token", relaytest.JSON(http.StatusOK, `{"errcode":0,"errmsg":"SUCCESS"}`))
	relay.Appliance.Get("/extension/list", relaytest.JSON(http.StatusOK, extensionList))

	client := newTestClient(t, relay)
	ctx := context.Background()
	if err := client.Login(ctx, "api", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := client.ListExtensions(ctx, true); err != nil {
		t.Fatalf("ListExtensions failed: %v", err)
	}

	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if relay.Hits("del_token") != 1 {
		t.Error("Expected the token to be revoked")
	}
	if _, ok := client.Core().Tokens().Get(); ok {
		t.Error("Expected the token to be cleared")
	}
	if n := client.Core().Cache().Len(); n != 0 {
		t.Errorf("Expected an empty cache, got %d entries", n)
	}

	_, err := client.ListExtensions(ctx, true)
	if !pbxsdk.IsUnauthenticated(err) {
		t.Errorf("Expected Unauthenticated after logout, got %v", err)
	}
	if relay.Hits("get_token") != 1 {
		t.Error("Expected no re-authentication after logout")
	}
}

// eventServer accepts one subscriber, acknowledges it and sends frames.
func eventServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"errcode":0,"errmsg":"SUCCESS"}`))
		for _, f := range frames {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestEventsInvalidateCacheOnConfigChange(t *testing.T) {
	stream := eventServer(t, `{"type":30013,"sn":"1","msg":{"module":"extension"}}`)

	relay := relaytest.New()
	defer relay.Close()
	relay.Appliance.Post("/get_token", tokenHandler("tok-1"))
	relay.Appliance.Post("/del_token", relaytest.JSON(http.StatusOK, `{"errcode":0}`))
	relay.Appliance.Get("/extension/list", relaytest.JSON(http.StatusOK, extensionList))

	cfg := pbxsdk.DefaultConfig()
	cfg.RelayURL = relay.URL
	cfg.PBXHost = "pbx.example.com"
	cfg.EventsURL = "ws" + strings.TrimPrefix(stream.URL, "http")
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	if err := client.Login(ctx, "api", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := client.ListExtensions(ctx, true); err != nil {
		t.Fatalf("ListExtensions failed: %v", err)
	}
	if client.Core().Cache().Len() == 0 {
		t.Fatal("Expected the extension list to be cached")
	}

	listener := client.Events()
	if client.Events() != listener {
		t.Error("Expected Events to return the same listener")
	}

	changed := make(chan struct{}, 1)
	listener.On(events.TopicConfigChanged, func(*events.Event) { changed <- struct{}{} })
	if err := listener.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the config change event")
	}
	if n := client.Core().Cache().Len(); n != 0 {
		t.Errorf("Expected config change to clear the cache, got %d entries", n)
	}

	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	select {
	case <-listener.Done():
	case <-time.After(2 * time.Second):
		t.Error("Expected Logout to close the event stream")
	}
}
