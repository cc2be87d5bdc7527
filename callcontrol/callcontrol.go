/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package callcontrol acts on live calls: hangup, transfer, park and monitor.
// Every operation is a write and is never cached.
package callcontrol

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
)

const (
	endpointHangup   = "call/hangup"
	endpointTransfer = "call/transfer"
	endpointPark     = "call/park"
	endpointMonitor  = "call/monitor"
)

// MonitorMode is how a supervisor joins a call.
type MonitorMode string

const (
	// MonitorListen joins silently.
	MonitorListen MonitorMode = "listen"
	// MonitorWhisper speaks to the monitored extension only.
	MonitorWhisper MonitorMode = "whisper"
	// MonitorBarge speaks to both parties.
	MonitorBarge MonitorMode = "barge"
)

// Client is the call control API client
type Client struct {
	pbxClient *pbxsdk.Client
}

// New creates a new call control plugin
func New(pbxClient *pbxsdk.Client) *Client {
	return &Client{pbxClient: pbxClient}
}

// Hangup ends the call on channelID.
func (c *Client) Hangup(ctx context.Context, channelID string) error {
	if channelID == "" {
		return fmt.Errorf("channel id cannot be empty")
	}
	return c.post(ctx, endpointHangup, map[string]any{"channel_id": channelID})
}

// Transfer blind-transfers channelID to destination. dialPermission names the
// extension whose outbound permissions apply to the transfer.
func (c *Client) Transfer(ctx context.Context, channelID, destination, dialPermission string) error {
	if channelID == "" {
		return fmt.Errorf("channel id cannot be empty")
	}
	if destination == "" {
		return fmt.Errorf("transfer destination cannot be empty")
	}
	body := map[string]any{
		"type":       "blind",
		"channel_id": channelID,
		"number":     destination,
	}
	if dialPermission != "" {
		body["dial_permission"] = dialPermission
	}
	return c.post(ctx, endpointTransfer, body)
}

// Park parks channelID. An empty lot lets the appliance pick one.
func (c *Client) Park(ctx context.Context, channelID, lot string) error {
	if channelID == "" {
		return fmt.Errorf("channel id cannot be empty")
	}
	body := map[string]any{"channel_id": channelID}
	if lot != "" {
		body["park_lot"] = lot
	}
	return c.post(ctx, endpointPark, body)
}

// Monitor connects extension extNum to the call on targetChannelID.
func (c *Client) Monitor(ctx context.Context, extNum, targetChannelID string, mode MonitorMode) error {
	if extNum == "" || targetChannelID == "" {
		return fmt.Errorf("extension and target channel are required")
	}
	switch mode {
	case MonitorListen, MonitorWhisper, MonitorBarge:
	default:
		return fmt.Errorf("unknown monitor mode %q", mode)
	}
	return c.post(ctx, endpointMonitor, map[string]any{
		"number":       extNum,
		"channel_id":   targetChannelID,
		"monitor_type": string(mode),
	})
}

func (c *Client) post(ctx context.Context, endpoint string, body map[string]any) error {
	_, err := c.pbxClient.Call(ctx, endpoint, http.MethodPost, nil, body)
	return err
}
