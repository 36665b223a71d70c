// Copyright (C) 2024 Christian Rößner
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/segmentio/ksuid"
)

var (
	ErrUnknownToken = errors.New("unknown refresh token")
	ErrReplayed     = errors.New("refresh token already used")
)

// RefreshRecord binds a refresh token to its owner.
type RefreshRecord struct {
	Token    string    `json:"-"`
	TenantID string    `json:"tenant_id"`
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	IssuedAt time.Time `json:"issued_at"`
}

// RefreshStore issues single-use refresh tokens. Consume must be atomic: of two concurrent consumers of the same
// token exactly one succeeds and the other gets ErrReplayed.
type RefreshStore interface {
	Issue(ctx context.Context, rec RefreshRecord) (string, error)
	Consume(ctx context.Context, token string) (RefreshRecord, error)
}

// NewRefreshToken returns an opaque, sortable token ID.
func NewRefreshToken() string {
	return ksuid.New().String()
}

type memoryEntry struct {
	rec  RefreshRecord
	used bool
}

// MemoryRefreshStore keeps tokens in a go-cache with the refresh TTL. Used tokens stay until they expire so that
// replays are still recognized.
type MemoryRefreshStore struct {
	mu     sync.Mutex
	tokens *cache.Cache
	ttl    time.Duration
}

func NewMemoryRefreshStore(ttl time.Duration) *MemoryRefreshStore {
	return &MemoryRefreshStore{
		tokens: cache.New(ttl, 10*time.Minute),
		ttl:    ttl,
	}
}

func (m *MemoryRefreshStore) Issue(_ context.Context, rec RefreshRecord) (string, error) {
	rec.Token = NewRefreshToken()

	m.tokens.Set(rec.Token, &memoryEntry{rec: rec}, m.ttl)

	return rec.Token, nil
}

func (m *MemoryRefreshStore) Consume(_ context.Context, token string) (RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, found := m.tokens.Get(token)
	if !found {
		return RefreshRecord{}, ErrUnknownToken
	}

	entry := v.(*memoryEntry)
	if entry.used {
		return entry.rec, ErrReplayed
	}

	entry.used = true

	return entry.rec, nil
}
