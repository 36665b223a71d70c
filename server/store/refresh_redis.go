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
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

// RedisRefreshStore shares refresh state between target instances. The record lives under <prefix>rt:<token>; the
// first consumer wins the SETNX on <prefix>rt:used:<token>.
type RedisRefreshStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisRefreshStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisRefreshStore {
	return &RedisRefreshStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisRefreshStore) recordKey(token string) string {
	return r.prefix + "rt:" + token
}

func (r *RedisRefreshStore) usedKey(token string) string {
	return r.prefix + "rt:used:" + token
}

func (r *RedisRefreshStore) Issue(ctx context.Context, rec RefreshRecord) (string, error) {
	rec.Token = NewRefreshToken()

	payload, err := jsoniter.Marshal(rec)
	if err != nil {
		return "", err
	}

	if err = r.rdb.Set(ctx, r.recordKey(rec.Token), payload, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}

	return rec.Token, nil
}

func (r *RedisRefreshStore) Consume(ctx context.Context, token string) (RefreshRecord, error) {
	payload, err := r.rdb.Get(ctx, r.recordKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return RefreshRecord{}, ErrUnknownToken
	}

	if err != nil {
		return RefreshRecord{}, fmt.Errorf("load refresh token: %w", err)
	}

	var rec RefreshRecord
	if err = jsoniter.Unmarshal(payload, &rec); err != nil {
		return RefreshRecord{}, fmt.Errorf("decode refresh token: %w", err)
	}

	rec.Token = token

	first, err := r.rdb.SetNX(ctx, r.usedKey(token), 1, r.ttl).Result()
	if err != nil {
		return RefreshRecord{}, fmt.Errorf("mark refresh token: %w", err)
	}

	if !first {
		return rec, ErrReplayed
	}

	return rec, nil
}
