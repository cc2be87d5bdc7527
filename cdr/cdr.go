/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package cdr

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
)

const (
	endpointList   = "cdr/list"
	endpointSearch = "cdr/search"
)

// Record is one call detail record. Fields are passed through from the
// appliance; Raw keeps the original object.
type Record struct {
	From         string
	To           string
	Timestamp    string
	Disposition  string
	TalkDuration string
	CallType     string
	Raw          pbxsdk.Record
}

// Filters narrows a call record listing. Empty fields are not sent. Times use
// the appliance's own format, e.g. "2025/01/31 00:00:00".
type Filters struct {
	StartTime   string
	EndTime     string
	From        string
	To          string
	Disposition string
	CallType    string
}

// IsEmpty reports whether no filter is set.
func (f *Filters) IsEmpty() bool {
	return f == nil || *f == Filters{}
}

// Client is the call detail record API client
type Client struct {
	pbxClient *pbxsdk.Client
}

// New creates a new CDR plugin
func New(pbxClient *pbxsdk.Client) *Client {
	return &Client{pbxClient: pbxClient}
}

// List returns one page of call records. page is 1-based. Filtered listings use
// the search endpoint.
func (c *Client) List(ctx context.Context, page, pageSize int, filters *Filters) (*pbxsdk.Page[Record], error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1, got %d", page)
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("page size must be >= 1, got %d", pageSize)
	}

	params := pbxsdk.PageParams(page, pageSize)
	params.Set("sort_by", "time")
	params.Set("order_by", "desc")

	endpoint := endpointList
	if !filters.IsEmpty() {
		endpoint = endpointSearch
		setIf := func(key, v string) {
			if v != "" {
				params.Set(key, v)
			}
		}
		setIf("start_time", filters.StartTime)
		setIf("end_time", filters.EndTime)
		setIf("call_from", filters.From)
		setIf("call_to", filters.To)
		setIf("status", filters.Disposition)
		setIf("call_type", filters.CallType)
	}

	resp, err := c.pbxClient.Call(ctx, endpoint, http.MethodGet, params, nil)
	if err != nil {
		return nil, err
	}

	raw := resp.List(pbxsdk.FieldListCDR)
	items := make([]Record, 0, len(raw))
	for _, r := range raw {
		items = append(items, Normalize(r))
	}
	return pbxsdk.NewPage(items, page, pageSize, resp), nil
}

// Normalize maps one appliance CDR object onto Record.
func Normalize(r pbxsdk.Record) Record {
	return Record{
		From:         r.Str(pbxsdk.FieldCDRFrom),
		To:           r.Str(pbxsdk.FieldCDRTo),
		Timestamp:    r.Str(pbxsdk.FieldCDRTime),
		Disposition:  r.Str(pbxsdk.FieldCDRDisposition),
		TalkDuration: r.Str(pbxsdk.FieldCDRTalk),
		CallType:     r.Str(pbxsdk.FieldCDRType),
		Raw:          r,
	}
}
