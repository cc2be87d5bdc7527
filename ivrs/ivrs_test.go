/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package ivrs

import (
	"context"
	"net/http"
	"testing"

	"github.com/tejzpr/pbx-gateway-go/internal/relaytest"
	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
)

func TestList(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	relay.Appliance.Get("/ivr/list", relaytest.JSON(http.StatusOK, `{
		"errcode": 0,
		"ivr_list": [{"ivr_id": 11, "ivr_name": "Main Menu", "number": "6500"}]
	}`))

	cfg := pbxsdk.DefaultConfig()
	cfg.RelayURL = relay.URL
	cfg.PBXHost = "pbx.example.com"
	core, err := pbxsdk.NewClient(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	core.Tokens().Set("tok-1")

	client := New(core, nil)
	ivrs, err := client.List(context.Background(), true)
	if err != nil {
		t.Fatalf("Failed to list IVRs: %v", err)
	}
	if len(ivrs) != 1 {
		t.Fatalf("Expected 1 IVR, got %d", len(ivrs))
	}
	if ivrs[0] != (IVR{ID: "11", Name: "Main Menu", Number: "6500"}) {
		t.Errorf("Unexpected IVR: %+v", ivrs[0])
	}

	core.Cache().Clear()
	if _, err := client.List(context.Background(), true); err != nil {
		t.Fatalf("List after clear failed: %v", err)
	}
	if hits := relay.Hits("ivr/list"); hits != 2 {
		t.Errorf("Expected cleared cache to refetch, got %d requests", hits)
	}
}
