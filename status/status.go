/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package status aggregates live extension, queue and call state from several
// concurrent appliance queries.
//
// Sub-queries are issued concurrently and joined before anything is merged.
// Results are stored in fixed slots, and the merge rules are order independent,
// so the outcome never depends on which query answers first.
package status

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tejzpr/pbx-gateway-go/extensions"
	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
	"github.com/tejzpr/pbx-gateway-go/queues"
)

const (
	endpointCallQuery   = "call/query"
	endpointQueueCalls  = "queue/call_status"
	endpointQueueAgents = "queue/agent_status"
)

// ExtensionLister provides the extension directory.
type ExtensionLister interface {
	List(ctx context.Context, useCache bool) ([]extensions.Extension, error)
}

// QueueLister provides the queue directory.
type QueueLister interface {
	List(ctx context.Context, useCache bool) ([]queues.Queue, error)
}

// Config holds the configuration for the status aggregator
type Config struct {
	// QueueConcurrency bounds how many queues are queried at once. Zero or
	// negative means no bound.
	QueueConcurrency int
}

// DefaultConfig returns the default configuration for the status aggregator
func DefaultConfig() *Config {
	return &Config{
		QueueConcurrency: 8,
	}
}

// Aggregator computes live status. Results are computed fresh on every call;
// only the extension and queue directories come from the cache.
type Aggregator struct {
	pbxClient  *pbxsdk.Client
	extensions ExtensionLister
	queues     QueueLister
	config     *Config
}

// New creates a new status aggregator.
func New(pbxClient *pbxsdk.Client, exts ExtensionLister, qs QueueLister, config *Config) *Aggregator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Aggregator{
		pbxClient:  pbxClient,
		extensions: exts,
		queues:     qs,
		config:     config,
	}
}

// ExtensionStatuses returns the live state of every extension, or only of the
// extensions whose id or number is in ids.
func (a *Aggregator) ExtensionStatuses(ctx context.Context, ids []string) ([]ExtensionStatus, error) {
	var (
		exts  []extensions.Extension
		calls [len(callTypes)][]pbxsdk.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exts, err = a.extensions.List(gctx, true)
		return err
	})
	a.goCallQueries(g, gctx, &calls)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	signals := MergeExtensionSignals(calls[:]...)

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	out := make([]ExtensionStatus, 0, len(exts))
	for _, ext := range exts {
		if len(wanted) > 0 && !wanted[ext.ID] && !wanted[ext.Number] {
			continue
		}
		out = append(out, ResolveExtension(ext, signals))
	}
	return out, nil
}

// ActiveCalls returns every live call, inbound first, then outbound, then
// internal, each in appliance order.
func (a *Aggregator) ActiveCalls(ctx context.Context) ([]ActiveCall, error) {
	var calls [len(callTypes)][]pbxsdk.Record

	g, gctx := errgroup.WithContext(ctx)
	a.goCallQueries(g, gctx, &calls)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []ActiveCall
	for i, ct := range callTypes {
		for _, call := range calls[i] {
			out = append(out, BuildActiveCall(ct, call))
		}
	}
	return out, nil
}

// goCallQueries starts the three call-class queries on g. Each result lands in
// its own slot; an unsupported class leaves its slot empty.
func (a *Aggregator) goCallQueries(g *errgroup.Group, ctx context.Context, slots *[len(callTypes)][]pbxsdk.Record) {
	for i, ct := range callTypes {
		i, ct := i, ct
		g.Go(func() error {
			params := url.Values{}
			params.Set("type", ct.queryValue())
			resp, err := a.pbxClient.Call(pbxsdk.AsFeatureProbe(ctx), endpointCallQuery, http.MethodGet, params, nil)
			if pbxsdk.IsUnsupported(err) {
				a.pbxClient.GetLogger().Debug("call query unsupported, treating as empty", zap.String("type", string(ct)))
				return nil
			}
			if err != nil {
				return err
			}
			slots[i] = resp.List(pbxsdk.FieldListCalls)
			return nil
		})
	}
}

// QueueStatuses returns the live state of every queue, or only of queueID when
// it is not empty. An unknown queueID yields an empty result.
func (a *Aggregator) QueueStatuses(ctx context.Context, queueID string) ([]QueueStatus, error) {
	all, err := a.queues.List(ctx, true)
	if err != nil {
		return nil, err
	}

	var selected []queues.Queue
	for _, q := range all {
		if queueID == "" || q.ID == queueID {
			selected = append(selected, q)
		}
	}

	out := make([]QueueStatus, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	if a.config.QueueConcurrency > 0 {
		g.SetLimit(a.config.QueueConcurrency)
	}
	for i, q := range selected {
		i, q := i, q
		g.Go(func() error {
			qs, err := a.queueStatus(gctx, q)
			if err != nil {
				return err
			}
			out[i] = qs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// queueStatus runs the call-count and agent sub-queries of one queue
// concurrently and merges them.
func (a *Aggregator) queueStatus(ctx context.Context, q queues.Queue) (QueueStatus, error) {
	var (
		calls  pbxsdk.Record
		agents []pbxsdk.Record
	)

	params := url.Values{}
	params.Set("id", q.ID)
	probeCtx := pbxsdk.AsFeatureProbe(ctx)

	g, gctx := errgroup.WithContext(probeCtx)
	g.Go(func() error {
		resp, err := a.pbxClient.Call(gctx, endpointQueueCalls, http.MethodGet, params, nil)
		if pbxsdk.IsUnsupported(err) {
			return nil
		}
		if err != nil {
			return err
		}
		calls = queueCallsRecord(resp)
		return nil
	})
	g.Go(func() error {
		resp, err := a.pbxClient.Call(gctx, endpointQueueAgents, http.MethodGet, params, nil)
		if pbxsdk.IsUnsupported(err) {
			return nil
		}
		if err != nil {
			return err
		}
		agents = agentRecords(resp)
		return nil
	})
	if err := g.Wait(); err != nil {
		return QueueStatus{}, err
	}
	return BuildQueueStatus(q, calls, agents), nil
}

// queueCallsRecord finds the count object, which firmwares return either at
// the top level, under a data object, or as the first element of a data list.
func queueCallsRecord(resp *pbxsdk.Response) pbxsdk.Record {
	if obj := resp.Body.Map(pbxsdk.FieldObjectQueueCall); obj != nil {
		return obj
	}
	if list := resp.List(pbxsdk.FieldObjectQueueCall); len(list) > 0 {
		return list[0]
	}
	return resp.Body
}

// agentRecords finds the agent list, either directly in the body or nested in
// a data object.
func agentRecords(resp *pbxsdk.Response) []pbxsdk.Record {
	if list := resp.List(pbxsdk.FieldQueueAgents); len(list) > 0 {
		return list
	}
	if obj := resp.Body.Map(pbxsdk.FieldQueueAgents); obj != nil {
		return pbxsdk.Records(obj.List(pbxsdk.FieldQueueAgents))
	}
	return nil
}
