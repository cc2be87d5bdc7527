/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package pbxsdk

import (
	"net/url"
	"strconv"
)

// Page is one page of a paginated appliance listing.
type Page[T any] struct {
	Items    []T
	Page     int
	PageSize int

	// Total is the server-reported total; valid only when HasTotal is set.
	Total    int
	HasTotal bool

	// HasMore reports whether a following page is expected. See MoreAvailable.
	HasMore bool
}

// NewPage builds a page from the items of one response.
func NewPage[T any](items []T, page, pageSize int, resp *Response) *Page[T] {
	p := &Page[T]{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
	}
	if resp != nil {
		p.Total, p.HasTotal = resp.Total()
	}
	p.HasMore = MoreAvailable(page, pageSize, len(items), p.Total, p.HasTotal)
	return p
}

// MoreAvailable decides whether another page follows. With a server total the
// answer is exact: page*pageSize < total. Without one, a full page is taken to
// mean more records exist. That guess is wrong when the final page happens to be
// exactly full; the appliance gives no way to tell that case apart.
func MoreAvailable(page, pageSize, returned, total int, hasTotal bool) bool {
	if hasTotal {
		return page*pageSize < total
	}
	return returned >= pageSize
}

// PageParams returns the appliance's page/page_size query parameters.
func PageParams(page, pageSize int) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))
	return params
}
