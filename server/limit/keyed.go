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

package limit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/croessner/authprobe/server/definitions"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// KeyedLimiter manages one token bucket per key (email, refresh token, client IP).
type KeyedLimiter struct {
	buckets *cache.Cache
	mu      sync.Mutex
	r       rate.Limit
	b       int
}

// PerMinute creates a limiter allowing n events per minute per key with a burst of n. n <= 0 disables limiting.
func PerMinute(n int) *KeyedLimiter {
	if n <= 0 {
		return nil
	}

	return NewKeyedLimiter(rate.Limit(float64(n)/60), n)
}

// NewKeyedLimiter creates a new KeyedLimiter with the specified rate and burst.
func NewKeyedLimiter(r rate.Limit, b int) *KeyedLimiter {
	return &KeyedLimiter{
		buckets: cache.New(5*time.Minute, 10*time.Minute),
		r:       r,
		b:       b,
	}
}

// limiter returns the bucket for key, creating it on first use.
func (k *KeyedLimiter) limiter(key string) *rate.Limiter {
	if v, found := k.buckets.Get(key); found {
		return v.(*rate.Limiter)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if v, found := k.buckets.Get(key); found {
		return v.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(k.r, k.b)
	k.buckets.Set(key, limiter, cache.DefaultExpiration)

	return limiter
}

// Allow consumes one token for key. When the bucket is empty it reports how long the caller should wait. A nil
// limiter allows everything.
func (k *KeyedLimiter) Allow(key string) (bool, time.Duration) {
	if k == nil {
		return true, 0
	}

	reservation := k.limiter(key).Reserve()
	if !reservation.OK() {
		return false, time.Minute
	}

	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()

		return false, delay
	}

	return true, 0
}

// RetryAfter formats a wait duration as whole seconds for the Retry-After header.
func RetryAfter(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)

	return strconv.Itoa(max(secs, 1))
}

// Middleware limits by client IP. Health and metrics endpoints are never limited.
func (k *KeyedLimiter) Middleware(clientIP func(*gin.Context) string, onLimited func(scope string)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if k == nil || ctx.FullPath() == definitions.PathPing || ctx.FullPath() == definitions.PathMetrics {
			ctx.Next()

			return
		}

		ok, wait := k.Allow(clientIP(ctx))
		if !ok {
			if onLimited != nil {
				onLimited("ip")
			}

			ctx.Header(definitions.HeaderRetryAfter, RetryAfter(wait))
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limited",
				"code":  definitions.CodeRateLimited,
			})

			return
		}

		ctx.Next()
	}
}
