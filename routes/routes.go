/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package routes reads and edits inbound call routes.
package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
)

const (
	endpointList   = "inbound_route/list"
	endpointGet    = "inbound_route/get"
	endpointUpdate = "inbound_route/update"
)

// DestinationKind is where a route sends a call.
type DestinationKind string

const (
	DestExtension DestinationKind = "extension"
	DestQueue     DestinationKind = "queue"
	DestIVR       DestinationKind = "ivr"
	DestEndCall   DestinationKind = "end_call"
)

// ParseDestinationKind maps the appliance's destination names onto the closed
// set of kinds. Unknown or empty names map to DestEndCall.
func ParseDestinationKind(raw string) DestinationKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "extension", "ext", "extensions":
		return DestExtension
	case "queue", "queues":
		return DestQueue
	case "ivr", "ivrs":
		return DestIVR
	default:
		return DestEndCall
	}
}

// Destination is one routing target.
type Destination struct {
	Kind  DestinationKind
	Value string
}

// IsZero reports whether d carries neither a kind nor a value.
func (d Destination) IsZero() bool {
	return d.Kind == "" && d.Value == ""
}

// Label renders d as "kind/value", or just the kind when there is no value.
func (d Destination) Label() string {
	if d.Value == "" || d.Kind == DestEndCall {
		return string(d.Kind)
	}
	return string(d.Kind) + "/" + d.Value
}

// InboundRoute maps incoming DIDs to destinations. Default is always set;
// BusinessHours is nil unless the appliance returned a business-hours path.
type InboundRoute struct {
	ID            string
	Name          string
	DIDPatterns   []string
	Default       Destination
	BusinessHours *Destination
	TimeCondition bool
}

// IsTimeBased reports whether the route switches destination by time of day.
// It is derived from the record on every call.
func (r InboundRoute) IsTimeBased() bool {
	return r.TimeCondition || (r.BusinessHours != nil && !r.BusinessHours.IsZero())
}

// Patch is a partial update. Nil fields are left unchanged on the appliance.
type Patch struct {
	ID            string
	Name          *string
	Default       *Destination
	BusinessHours *Destination
	TimeCondition *bool
}

func (p Patch) payload() map[string]any {
	body := map[string]any{"id": p.ID}
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.Default != nil {
		body["def_dest"] = string(p.Default.Kind)
		body["def_dest_value"] = p.Default.Value
	}
	if p.BusinessHours != nil {
		body["business_hours_dest"] = string(p.BusinessHours.Kind)
		body["business_hours_dest_value"] = p.BusinessHours.Value
	}
	if p.TimeCondition != nil {
		flag := 0
		if *p.TimeCondition {
			flag = 1
		}
		body["enb_time_condition"] = flag
	}
	return body
}

// Client is the inbound routes API client
type Client struct {
	pbxClient *pbxsdk.Client
}

// New creates a new Routes plugin
func New(pbxClient *pbxsdk.Client) *Client {
	return &Client{pbxClient: pbxClient}
}

// List returns every inbound route. Routes are read fresh on every call.
func (c *Client) List(ctx context.Context) ([]InboundRoute, error) {
	resp, err := c.pbxClient.Call(ctx, endpointList, http.MethodGet, nil, nil)
	if err != nil {
		return nil, err
	}

	records := resp.List(pbxsdk.FieldListRoutes)
	out := make([]InboundRoute, 0, len(records))
	for _, r := range records {
		out = append(out, Normalize(r))
	}
	return out, nil
}

// Get returns one inbound route.
func (c *Client) Get(ctx context.Context, id string) (*InboundRoute, error) {
	if id == "" {
		return nil, fmt.Errorf("route id cannot be empty")
	}

	params := url.Values{}
	params.Set("id", id)
	resp, err := c.pbxClient.Call(ctx, endpointGet, http.MethodGet, params, nil)
	if err != nil {
		return nil, err
	}

	obj := resp.Body.Map(pbxsdk.FieldObjectRoute)
	if obj == nil {
		// some firmwares wrap the single route in a one-element list
		if list := resp.List(pbxsdk.FieldObjectRoute); len(list) > 0 {
			obj = list[0]
		} else {
			obj = resp.Body
		}
	}
	route := Normalize(obj)
	if route.ID == "" {
		route.ID = id
	}
	return &route, nil
}

// Update applies patch. Writes are never cached.
func (c *Client) Update(ctx context.Context, patch Patch) error {
	if patch.ID == "" {
		return fmt.Errorf("route id cannot be empty")
	}
	_, err := c.pbxClient.Call(ctx, endpointUpdate, http.MethodPost, nil, patch.payload())
	return err
}

// Normalize maps one appliance inbound-route object onto InboundRoute.
func Normalize(r pbxsdk.Record) InboundRoute {
	route := InboundRoute{
		ID:            r.Str(pbxsdk.FieldRouteID),
		Name:          r.Str(pbxsdk.FieldRouteName),
		DIDPatterns:   didPatterns(r),
		TimeCondition: r.Bool(pbxsdk.FieldRouteTimeCondition),
		Default: Destination{
			Kind:  ParseDestinationKind(r.Str(pbxsdk.FieldRouteDefDest)),
			Value: r.Str(pbxsdk.FieldRouteDefDestValue),
		},
	}

	bhKind := r.Str(pbxsdk.FieldRouteBusinessDest)
	bhValue := r.Str(pbxsdk.FieldRouteBusinessDestValue)
	if bhKind != "" || bhValue != "" {
		route.BusinessHours = &Destination{
			Kind:  ParseDestinationKind(bhKind),
			Value: bhValue,
		}
	}
	return route
}

// didPatterns accepts a list of strings, a list of {"did_pattern": ...}
// objects, or a single comma-separated string.
func didPatterns(r pbxsdk.Record) []string {
	if list := r.List(pbxsdk.FieldRouteDIDPatterns); list != nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if obj, ok := pbxsdk.AsRecord(item); ok {
				for _, key := range []string{"did_pattern", "pattern", "did"} {
					if s, ok := obj[key].(string); ok && s != "" {
						out = append(out, s)
						break
					}
				}
				continue
			}
			if s := fmt.Sprint(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	raw := r.Str(pbxsdk.FieldRouteDIDPatterns)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
