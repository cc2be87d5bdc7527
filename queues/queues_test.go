/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package queues

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/tejzpr/pbx-gateway-go/internal/relaytest"
	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
)

func setup(t *testing.T) (*relaytest.Relay, *pbxsdk.Client) {
	t.Helper()
	relay := relaytest.New()
	t.Cleanup(relay.Close)

	cfg := pbxsdk.DefaultConfig()
	cfg.RelayURL = relay.URL
	cfg.PBXHost = "pbx.example.com"
	core, err := pbxsdk.NewClient(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	core.Tokens().Set("tok-1")
	return relay, core
}

func TestList(t *testing.T) {
	relay, core := setup(t)
	relay.Appliance.Get("/queue/list", relaytest.JSON(http.StatusOK, `{
		"errcode": 0,
		"queue_list": [
			{"id": 6, "name": "Sales", "number": "6400"},
			{"queue_id": "7", "queue_name": "Support", "ext_num": 6401}
		]
	}`))

	client := New(core, nil)
	qs, err := client.List(context.Background(), true)
	if err != nil {
		t.Fatalf("Failed to list queues: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("Expected 2 queues, got %d", len(qs))
	}
	if qs[0] != (Queue{ID: "6", Name: "Sales", Number: "6400"}) {
		t.Errorf("Unexpected first queue: %+v", qs[0])
	}
	if qs[1] != (Queue{ID: "7", Name: "Support", Number: "6401"}) {
		t.Errorf("Unexpected second queue: %+v", qs[1])
	}
}

func TestListCacheTTL(t *testing.T) {
	relay, core := setup(t)
	relay.Appliance.Get("/queue/list", relaytest.JSON(http.StatusOK, `{"errcode":0,"data":[{"id":1,"name":"Q"}]}`))

	now := time.Unix(1700000000, 0)
	core.Cache().SetClock(func() time.Time { return now })

	client := New(core, &Config{PageSize: 100, CacheTTL: 10 * time.Second})
	ctx := context.Background()

	_, _ = client.List(ctx, true)
	_, _ = client.List(ctx, true)
	if hits := relay.Hits("queue/list"); hits != 1 {
		t.Errorf("Expected one request within ttl, got %d", hits)
	}

	now = now.Add(11 * time.Second)
	_, _ = client.List(ctx, true)
	if hits := relay.Hits("queue/list"); hits != 2 {
		t.Errorf("Expected a refetch after ttl, got %d", hits)
	}
	if q := relay.Requests()[0].Query; q.Get("page_size") != "100" {
		t.Errorf("Expected page_size 100, got %s", q.Get("page_size"))
	}
}
