/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package pbx is the entry point of the PBX gateway client. GatewayClient
// composes the resource clients, the status aggregator and the event stream
// over one shared session.
package pbx

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tejzpr/pbx-gateway-go/callcontrol"
	"github.com/tejzpr/pbx-gateway-go/cdr"
	"github.com/tejzpr/pbx-gateway-go/events"
	"github.com/tejzpr/pbx-gateway-go/extensions"
	"github.com/tejzpr/pbx-gateway-go/ivrs"
	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
	"github.com/tejzpr/pbx-gateway-go/queues"
	"github.com/tejzpr/pbx-gateway-go/routes"
	"github.com/tejzpr/pbx-gateway-go/status"
)

// GatewayClient is the top-level client for the PBX appliance
type GatewayClient struct {
	// Core client shared by every plugin
	core *pbxsdk.Client

	// Plugins
	extensionsClient  *extensions.Client
	queuesClient      *queues.Client
	ivrsClient        *ivrs.Client
	routesClient      *routes.Client
	cdrClient         *cdr.Client
	callControlClient *callcontrol.Client
	statusAggregator  *status.Aggregator

	// mu guards the stored credentials and the lazily created listener
	mu             sync.Mutex
	credentials    *credentials
	eventsListener *events.Listener
}

type credentials struct {
	username string
	password string
}

// NewClient creates a new gateway client. Call Login before any other
// operation.
func NewClient(config *pbxsdk.Config) (*GatewayClient, error) {
	core, err := pbxsdk.NewClient(config)
	if err != nil {
		return nil, err
	}

	client := &GatewayClient{
		core:              core,
		extensionsClient:  extensions.New(core, nil),
		queuesClient:      queues.New(core, nil),
		ivrsClient:        ivrs.New(core, nil),
		routesClient:      routes.New(core),
		cdrClient:         cdr.New(core),
		callControlClient: callcontrol.New(core),
	}
	client.statusAggregator = status.New(core, client.extensionsClient, client.queuesClient, nil)

	return client, nil
}

// Core returns the shared core client
func (c *GatewayClient) Core() *pbxsdk.Client { return c.core }

// Extensions returns the Extensions plugin
func (c *GatewayClient) Extensions() *extensions.Client { return c.extensionsClient }

// Queues returns the Queues plugin
func (c *GatewayClient) Queues() *queues.Client { return c.queuesClient }

// IVRs returns the IVRs plugin
func (c *GatewayClient) IVRs() *ivrs.Client { return c.ivrsClient }

// Routes returns the inbound Routes plugin
func (c *GatewayClient) Routes() *routes.Client { return c.routesClient }

// CallRecords returns the CDR plugin
func (c *GatewayClient) CallRecords() *cdr.Client { return c.cdrClient }

// CallControl returns the call control plugin
func (c *GatewayClient) CallControl() *callcontrol.Client { return c.callControlClient }

// Status returns the status aggregator
func (c *GatewayClient) Status() *status.Aggregator { return c.statusAggregator }

// Login authenticates and keeps the credentials for one re-authentication when
// the appliance later reports the token as expired.
func (c *GatewayClient) Login(ctx context.Context, username, password string) error {
	if err := c.core.Authenticate(ctx, username, password); err != nil {
		return err
	}
	c.mu.Lock()
	c.credentials = &credentials{username: username, password: password}
	c.mu.Unlock()
	return nil
}

// Logout ends the session: the event stream is closed, the token revoked and
// cleared, and the cache emptied.
func (c *GatewayClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.credentials = nil
	listener := c.eventsListener
	c.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	return c.core.Logout(ctx)
}

// ListExtensions returns every extension.
func (c *GatewayClient) ListExtensions(ctx context.Context, useCache bool) ([]extensions.Extension, error) {
	return withReauth(ctx, c, func(ctx context.Context) ([]extensions.Extension, error) {
		return c.extensionsClient.List(ctx, useCache)
	})
}

// ListQueues returns every queue.
func (c *GatewayClient) ListQueues(ctx context.Context, useCache bool) ([]queues.Queue, error) {
	return withReauth(ctx, c, func(ctx context.Context) ([]queues.Queue, error) {
		return c.queuesClient.List(ctx, useCache)
	})
}

// ListIVRs returns every IVR.
func (c *GatewayClient) ListIVRs(ctx context.Context, useCache bool) ([]ivrs.IVR, error) {
	return withReauth(ctx, c, func(ctx context.Context) ([]ivrs.IVR, error) {
		return c.ivrsClient.List(ctx, useCache)
	})
}

// ListInboundRoutes returns every inbound route.
func (c *GatewayClient) ListInboundRoutes(ctx context.Context) ([]routes.InboundRoute, error) {
	return withReauth(ctx, c, c.routesClient.List)
}

// GetInboundRoute returns one inbound route.
func (c *GatewayClient) GetInboundRoute(ctx context.Context, id string) (*routes.InboundRoute, error) {
	return withReauth(ctx, c, func(ctx context.Context) (*routes.InboundRoute, error) {
		return c.routesClient.Get(ctx, id)
	})
}

// UpdateInboundRoute applies patch.
func (c *GatewayClient) UpdateInboundRoute(ctx context.Context, patch routes.Patch) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.routesClient.Update(ctx, patch)
	})
}

// ListCallRecords returns one page of call records, newest first. filters may
// be nil.
func (c *GatewayClient) ListCallRecords(ctx context.Context, page, pageSize int, filters *cdr.Filters) (*pbxsdk.Page[cdr.Record], error) {
	return withReauth(ctx, c, func(ctx context.Context) (*pbxsdk.Page[cdr.Record], error) {
		return c.cdrClient.List(ctx, page, pageSize, filters)
	})
}

// ExtensionStatuses returns live extension state, optionally restricted to ids
// (extension ids or numbers).
func (c *GatewayClient) ExtensionStatuses(ctx context.Context, ids ...string) ([]status.ExtensionStatus, error) {
	return withReauth(ctx, c, func(ctx context.Context) ([]status.ExtensionStatus, error) {
		return c.statusAggregator.ExtensionStatuses(ctx, ids)
	})
}

// QueueStatuses returns live queue state. An empty queueID selects every
// queue.
func (c *GatewayClient) QueueStatuses(ctx context.Context, queueID string) ([]status.QueueStatus, error) {
	return withReauth(ctx, c, func(ctx context.Context) ([]status.QueueStatus, error) {
		return c.statusAggregator.QueueStatuses(ctx, queueID)
	})
}

// ActiveCalls returns every live call.
func (c *GatewayClient) ActiveCalls(ctx context.Context) ([]status.ActiveCall, error) {
	return withReauth(ctx, c, c.statusAggregator.ActiveCalls)
}

// Hangup ends the call on channelID.
func (c *GatewayClient) Hangup(ctx context.Context, channelID string) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.callControlClient.Hangup(ctx, channelID)
	})
}

// Transfer blind-transfers the call on channelID to destination.
func (c *GatewayClient) Transfer(ctx context.Context, channelID, destination, dialPermission string) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.callControlClient.Transfer(ctx, channelID, destination, dialPermission)
	})
}

// Park parks the call on channelID. lot may be empty to let the appliance
// choose.
func (c *GatewayClient) Park(ctx context.Context, channelID, lot string) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.callControlClient.Park(ctx, channelID, lot)
	})
}

// Monitor attaches extNum to the call on targetChannelID.
func (c *GatewayClient) Monitor(ctx context.Context, extNum, targetChannelID string, mode callcontrol.MonitorMode) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.callControlClient.Monitor(ctx, extNum, targetChannelID, mode)
	})
}

// InvalidateCache drops every cached result.
func (c *GatewayClient) InvalidateCache() {
	c.core.Cache().Clear()
}

// ProbeConnectivity checks that the relay at relayURL answers its health
// endpoint. An empty relayURL probes the configured relay.
func (c *GatewayClient) ProbeConnectivity(ctx context.Context, relayURL string) error {
	return c.core.ProbeConnectivity(ctx, relayURL)
}

// Events returns the event stream listener. Configuration-change events
// invalidate the result cache.
func (c *GatewayClient) Events() *events.Listener {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eventsListener == nil {
		c.eventsListener = events.New(c.core, nil)
		c.eventsListener.On(events.TopicConfigChanged, func(*events.Event) {
			c.InvalidateCache()
		})
	}
	return c.eventsListener
}

func (c *GatewayClient) do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := withReauth(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// withReauth runs op. When op fails with AuthExpired and Login credentials are
// held, it authenticates once and runs op one more time; that second outcome is
// returned as is.
func withReauth[T any](ctx context.Context, c *GatewayClient, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := op(ctx)
	if !pbxsdk.IsAuthExpired(err) {
		return v, err
	}

	c.mu.Lock()
	creds := c.credentials
	c.mu.Unlock()
	if creds == nil {
		return v, err
	}

	c.core.GetLogger().Info("pbx token expired, re-authenticating", zap.String("host", c.core.Host()))
	if authErr := c.core.Authenticate(ctx, creds.username, creds.password); authErr != nil {
		var zero T
		return zero, authErr
	}
	return op(ctx)
}
