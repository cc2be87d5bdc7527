/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package pbxsdk

import (
	gocache "github.com/patrickmn/go-cache"
)

// TokenKey is the fixed name the access token is stored under.
const TokenKey = "pbx_access_token"

// TokenStore owns the current access token. Implementations must make a Clear
// visible to every subsequent Get, from any goroutine.
type TokenStore interface {
	Get() (string, bool)
	Set(token string)
	Clear()
}

// SessionStore is an in-memory TokenStore that lives as long as the process.
type SessionStore struct {
	items *gocache.Cache
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{items: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns the stored token, if any.
func (s *SessionStore) Get() (string, bool) {
	v, ok := s.items.Get(TokenKey)
	if !ok {
		return "", false
	}
	token, ok := v.(string)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// Set replaces the stored token.
func (s *SessionStore) Set(token string) {
	s.items.Set(TokenKey, token, gocache.NoExpiration)
}

// Clear drops the stored token.
func (s *SessionStore) Clear() {
	s.items.Delete(TokenKey)
}
