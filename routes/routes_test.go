/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejzpr/pbx-gateway-go/internal/relaytest"
	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
)

func setup(t *testing.T) (*relaytest.Relay, *Client) {
	t.Helper()
	relay := relaytest.New()
	t.Cleanup(relay.Close)

	cfg := pbxsdk.DefaultConfig()
	cfg.RelayURL = relay.URL
	cfg.PBXHost = "pbx.example.com"
	core, err := pbxsdk.NewClient(cfg)
	require.NoError(t, err)
	core.Tokens().Set("tok-1")
	return relay, New(core)
}

func TestParseDestinationKind(t *testing.T) {
	assert.Equal(t, DestExtension, ParseDestinationKind("Extension"))
	assert.Equal(t, DestExtension, ParseDestinationKind("ext"))
	assert.Equal(t, DestQueue, ParseDestinationKind("queue"))
	assert.Equal(t, DestIVR, ParseDestinationKind(" IVR "))
	assert.Equal(t, DestEndCall, ParseDestinationKind("voicemail"))
	assert.Equal(t, DestEndCall, ParseDestinationKind(""))
}

func TestDestinationLabel(t *testing.T) {
	assert.Equal(t, "extension/101", Destination{Kind: DestExtension, Value: "101"}.Label())
	assert.Equal(t, "end_call", Destination{Kind: DestEndCall, Value: "x"}.Label())
	assert.Equal(t, "queue", Destination{Kind: DestQueue}.Label())
}

func TestNormalizeLegacyAlias(t *testing.T) {
	canonical := Normalize(pbxsdk.Record{"id": "3", "def_dest": "extension", "def_dest_value": "101"})
	legacy := Normalize(pbxsdk.Record{"id": "3", "def_dest": "extension", "def_dest_ext": "101"})
	assert.Equal(t, canonical, legacy)
	assert.Equal(t, "101", legacy.Default.Value)
}

func TestNormalizeDIDPatterns(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want []string
	}{
		{"strings", []any{"5551000", "5551001"}, []string{"5551000", "5551001"}},
		{"objects", []any{map[string]any{"did_pattern": "555X"}, map[string]any{"pattern": "777X"}}, []string{"555X", "777X"}},
		{"comma separated", "5551000, 5551001,", []string{"5551000", "5551001"}},
		{"absent", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := pbxsdk.Record{}
			if tt.raw != nil {
				r["did_pattern_list"] = tt.raw
			}
			assert.Equal(t, tt.want, Normalize(r).DIDPatterns)
		})
	}
}

func TestIsTimeBased(t *testing.T) {
	assert.False(t, InboundRoute{}.IsTimeBased())
	assert.True(t, InboundRoute{TimeCondition: true}.IsTimeBased())
	assert.True(t, InboundRoute{BusinessHours: &Destination{Kind: DestQueue, Value: "6400"}}.IsTimeBased())
	assert.False(t, InboundRoute{BusinessHours: &Destination{}}.IsTimeBased())

	r := Normalize(pbxsdk.Record{"enb_time_condition": json.Number("0"), "business_hours_dest": "ivr", "business_hours_dest_value": "6500"})
	require.NotNil(t, r.BusinessHours)
	assert.Equal(t, DestIVR, r.BusinessHours.Kind)
	assert.True(t, r.IsTimeBased())
}

func TestList(t *testing.T) {
	relay, client := setup(t)
	relay.Appliance.Get("/inbound_route/list", relaytest.JSON(http.StatusOK, `{
		"errcode": 0,
		"data": [
			{"id": 1, "name": "Main", "def_dest": "queue", "def_dest_value": "6400", "enb_time_condition": 1},
			{"route_id": "2", "route_name": "After hours", "default_dest": "end_call"}
		]
	}`))

	list, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "1", list[0].ID)
	assert.Equal(t, Destination{Kind: DestQueue, Value: "6400"}, list[0].Default)
	assert.True(t, list[0].IsTimeBased())

	assert.Equal(t, "After hours", list[1].Name)
	assert.Equal(t, DestEndCall, list[1].Default.Kind)
	assert.Nil(t, list[1].BusinessHours)
	assert.False(t, list[1].IsTimeBased())

	_, _ = client.List(context.Background())
	assert.Equal(t, 2, relay.Hits("inbound_route/list"), "routes are never cached")
}

func TestGet(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"object", `{"errcode":0,"data":{"id":7,"def_dest":"extension","def_dest_value":"101"}}`},
		{"one element list", `{"errcode":0,"inbound_route":[{"id":7,"def_dest":"extension","def_dest_ext":"101"}]}`},
		{"flat body", `{"errcode":0,"def_dest":"extension","def_dest_value":"101"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay, client := setup(t)
			relay.Appliance.Get("/inbound_route/get", relaytest.JSON(http.StatusOK, tt.body))

			route, err := client.Get(context.Background(), "7")
			require.NoError(t, err)
			assert.Equal(t, "7", route.ID)
			assert.Equal(t, "extension/101", route.Default.Label())
			assert.False(t, route.IsTimeBased())
			assert.Equal(t, "7", relay.Requests()[0].Query.Get("id"))
		})
	}

	_, client := setup(t)
	_, err := client.Get(context.Background(), "")
	assert.Error(t, err)
}

func TestUpdate(t *testing.T) {
	relay, client := setup(t)
	relay.Appliance.Post("/inbound_route/update", relaytest.JSON(http.StatusOK, `{"errcode":0,"errmsg":"SUCCESS"}`))

	name := "Main"
	off := false
	err := client.Update(context.Background(), Patch{
		ID:            "7",
		Name:          &name,
		Default:       &Destination{Kind: DestIVR, Value: "6500"},
		TimeCondition: &off,
	})
	require.NoError(t, err)

	reqs := relay.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)

	var body map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].Body, &body))
	assert.Equal(t, "7", body["id"])
	assert.Equal(t, "Main", body["name"])
	assert.Equal(t, "ivr", body["def_dest"])
	assert.Equal(t, "6500", body["def_dest_value"])
	assert.Equal(t, float64(0), body["enb_time_condition"])
	assert.NotContains(t, body, "business_hours_dest")

	assert.Error(t, client.Update(context.Background(), Patch{}))
}

func TestUpdateRejected(t *testing.T) {
	relay, client := setup(t)
	relay.Appliance.Post("/inbound_route/update", relaytest.JSON(http.StatusOK, `{"errcode":40002,"errmsg":"PARAMETER ERROR"}`))

	err := client.Update(context.Background(), Patch{ID: "7"})
	assert.True(t, pbxsdk.IsRemoteRejected(err), "got %v", err)
}
