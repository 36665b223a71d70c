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

// Package auth serves registration, login and refresh token rotation.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/croessner/authprobe/server/definitions"
	"github.com/croessner/authprobe/server/limit"
	"github.com/croessner/authprobe/server/middleware/clientip"
	"github.com/croessner/authprobe/server/signing"
	"github.com/croessner/authprobe/server/stats"
	"github.com/croessner/authprobe/server/store"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

const (
	codeInvalidRequest     = "invalid_request"
	codeInvalidCredentials = "invalid_credentials"
	codeInvalidToken       = "invalid_token"
	codeUserExists         = "user_exists"
	codeInternal           = "internal_error"
)

// Deps are the collaborators of the auth handlers.
type Deps struct {
	Logger      log.Logger
	Events      log.Logger
	Metrics     *stats.Metrics
	Credentials *store.Credentials
	Refresh     store.RefreshStore
	Signer      *signing.Signer
	Hash        *limit.HashLimiter

	// HashCost is added to every hash computation to emulate expensive parameters.
	HashCost time.Duration

	RegisterLimit *limit.KeyedLimiter
	LoginLimit    *limit.KeyedLimiter
	RefreshLimit  *limit.KeyedLimiter
}

type Handler struct {
	deps     Deps
	validate *validator.Validate
}

func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = log.NewNopLogger()
	}

	if deps.Events == nil {
		deps.Events = deps.Logger
	}

	return &Handler{deps: deps, validate: validator.New()}
}

func (h *Handler) Register(router gin.IRouter) {
	router.POST(definitions.PathRegister, h.register)
	router.POST(definitions.PathLogin, h.login)
	router.POST(definitions.PathRefresh, h.refresh)
}

type registerRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	UserID   string `json:"user_id" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	TenantID     string `json:"tenant_id" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func reject(ctx *gin.Context, status int, msg, code string) {
	ctx.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

func (h *Handler) decode(ctx *gin.Context, v any) bool {
	if err := jsoniter.NewDecoder(ctx.Request.Body).Decode(v); err != nil {
		reject(ctx, http.StatusBadRequest, "malformed JSON body", codeInvalidRequest)

		return false
	}

	if err := h.validate.Struct(v); err != nil {
		reject(ctx, http.StatusBadRequest, err.Error(), codeInvalidRequest)

		return false
	}

	return true
}

func (h *Handler) rateLimited(ctx *gin.Context, scope string, wait time.Duration) {
	h.deps.Metrics.RateLimitedTotal.WithLabelValues(scope).Inc()

	ctx.Header(definitions.HeaderRetryAfter, limit.RetryAfter(wait))
	reject(ctx, http.StatusTooManyRequests, "rate limited", definitions.CodeRateLimited)
}

// acquireHash takes a hash slot or answers 503. The caller must run the returned release func.
func (h *Handler) acquireHash(ctx *gin.Context, tenantID string) (func(), bool) {
	release, err := h.deps.Hash.Acquire(ctx.Request.Context())
	if err != nil {
		h.deps.Metrics.HashBusyTotal.Inc()

		level.Debug(h.deps.Events).Log(
			definitions.LogKeyEvent, definitions.EventHashBusy,
			definitions.LogKeyTenantID, tenantID,
			definitions.LogKeyClientIP, clientip.Resolve(ctx),
			definitions.LogKeyPath, ctx.FullPath(),
		)

		reject(ctx, http.StatusServiceUnavailable, "auth busy", definitions.CodeHashBusy)

		return nil, false
	}

	return release, true
}

// emulateCost keeps a hash slot occupied for the configured extra time.
func (h *Handler) emulateCost(ctx context.Context) {
	if h.deps.HashCost <= 0 {
		return
	}

	timer := time.NewTimer(h.deps.HashCost)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (h *Handler) register(ctx *gin.Context) {
	var req registerRequest
	if !h.decode(ctx, &req) {
		h.deps.Metrics.RegisterTotal.WithLabelValues("invalid").Inc()

		return
	}

	if ok, wait := h.deps.RegisterLimit.Allow(req.TenantID + "/" + req.Email); !ok {
		h.deps.Metrics.RegisterTotal.WithLabelValues("rate_limited").Inc()
		h.rateLimited(ctx, "register", wait)

		return
	}

	if h.deps.Credentials.Exists(req.TenantID, req.Email) {
		h.deps.Metrics.RegisterTotal.WithLabelValues("exists").Inc()
		reject(ctx, http.StatusConflict, "user already exists", codeUserExists)

		return
	}

	release, ok := h.acquireHash(ctx, req.TenantID)
	if !ok {
		h.deps.Metrics.RegisterTotal.WithLabelValues("hash_busy").Inc()

		return
	}

	start := time.Now()

	h.emulateCost(ctx.Request.Context())
	salt, hash, err := h.deps.Credentials.Hash(req.Password)

	release()

	h.deps.Metrics.PasswordVerifyTiming.WithLabelValues("hash").Observe(time.Since(start).Seconds())

	if err != nil {
		h.deps.Metrics.RegisterTotal.WithLabelValues("error").Inc()
		level.Error(h.deps.Logger).Log(definitions.LogKeyMsg, "Password hashing failed", definitions.LogKeyError, err)
		reject(ctx, http.StatusInternalServerError, "internal error", codeInternal)

		return
	}

	if err = h.deps.Credentials.Add(req.TenantID, req.UserID, req.Email, salt, hash); err != nil {
		h.deps.Metrics.RegisterTotal.WithLabelValues("exists").Inc()
		reject(ctx, http.StatusConflict, "user already exists", codeUserExists)

		return
	}

	h.deps.Metrics.RegisterTotal.WithLabelValues("ok").Inc()

	ctx.JSON(http.StatusOK, gin.H{"tenant_id": req.TenantID, "user_id": req.UserID})
}

func (h *Handler) login(ctx *gin.Context) {
	var req loginRequest
	if !h.decode(ctx, &req) {
		h.deps.Metrics.LoginTotal.WithLabelValues("invalid").Inc()

		return
	}

	if ok, wait := h.deps.LoginLimit.Allow(req.TenantID + "/" + req.Email); !ok {
		h.deps.Metrics.LoginTotal.WithLabelValues("rate_limited").Inc()
		h.rateLimited(ctx, "login", wait)

		return
	}

	release, ok := h.acquireHash(ctx, req.TenantID)
	if !ok {
		h.deps.Metrics.LoginTotal.WithLabelValues("hash_busy").Inc()

		return
	}

	start := time.Now()

	h.emulateCost(ctx.Request.Context())
	user, err := h.deps.Credentials.Verify(req.TenantID, req.Email, req.Password)

	release()

	if err != nil {
		h.deps.Metrics.PasswordVerifyTiming.WithLabelValues("rejected").Observe(time.Since(start).Seconds())
		h.deps.Metrics.LoginTotal.WithLabelValues("rejected").Inc()
		reject(ctx, http.StatusUnauthorized, "invalid credentials", codeInvalidCredentials)

		return
	}

	h.deps.Metrics.PasswordVerifyTiming.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	resp, err := h.issue(ctx.Request.Context(), store.RefreshRecord{
		TenantID: user.TenantID,
		UserID:   user.UserID,
		Email:    user.Email,
	})
	if err != nil {
		h.deps.Metrics.LoginTotal.WithLabelValues("error").Inc()
		level.Error(h.deps.Logger).Log(definitions.LogKeyMsg, "Token issuance failed", definitions.LogKeyError, err)
		reject(ctx, http.StatusInternalServerError, "internal error", codeInternal)

		return
	}

	h.deps.Metrics.LoginTotal.WithLabelValues("ok").Inc()

	ctx.JSON(http.StatusOK, resp)
}

func (h *Handler) refresh(ctx *gin.Context) {
	var req refreshRequest
	if !h.decode(ctx, &req) {
		h.deps.Metrics.RefreshTotal.WithLabelValues("rejected", "invalid").Inc()

		return
	}

	if ok, wait := h.deps.RefreshLimit.Allow(req.RefreshToken); !ok {
		h.deps.Metrics.RefreshTotal.WithLabelValues("rejected", "rate_limited").Inc()
		h.rateLimited(ctx, "refresh", wait)

		return
	}

	rec, err := h.deps.Refresh.Consume(ctx.Request.Context(), req.RefreshToken)

	switch {
	case errors.Is(err, store.ErrReplayed):
		h.replayDetected(ctx, req, rec)

		return
	case errors.Is(err, store.ErrUnknownToken), err == nil && rec.TenantID != req.TenantID:
		h.deps.Metrics.RefreshTotal.WithLabelValues("rejected", "unknown").Inc()
		reject(ctx, http.StatusUnauthorized, "invalid refresh token", codeInvalidToken)

		return
	case err != nil:
		h.deps.Metrics.RefreshTotal.WithLabelValues("error", "store").Inc()
		level.Error(h.deps.Logger).Log(definitions.LogKeyMsg, "Refresh store failed", definitions.LogKeyError, err)
		reject(ctx, http.StatusInternalServerError, "internal error", codeInternal)

		return
	}

	resp, err := h.issue(ctx.Request.Context(), rec)
	if err != nil {
		h.deps.Metrics.RefreshTotal.WithLabelValues("error", "issue").Inc()
		level.Error(h.deps.Logger).Log(definitions.LogKeyMsg, "Token issuance failed", definitions.LogKeyError, err)
		reject(ctx, http.StatusInternalServerError, "internal error", codeInternal)

		return
	}

	h.deps.Metrics.RefreshTotal.WithLabelValues("ok", "rotated").Inc()

	ctx.JSON(http.StatusOK, resp)
}

func (h *Handler) replayDetected(ctx *gin.Context, req refreshRequest, rec store.RefreshRecord) {
	h.deps.Metrics.RefreshTotal.WithLabelValues("rejected", "replay").Inc()
	h.deps.Metrics.RefreshReplayTotal.WithLabelValues(req.TenantID).Inc()

	sum := sha256.Sum256([]byte(req.RefreshToken))

	level.Warn(h.deps.Events).Log(
		definitions.LogKeyEvent, definitions.EventRefreshReplay,
		definitions.LogKeyMsg, "Refresh token reuse detected",
		definitions.LogKeyTenantID, req.TenantID,
		definitions.LogKeyUserID, rec.UserID,
		definitions.LogKeyClientIP, clientip.Resolve(ctx),
		definitions.LogKeyUserAgent, ctx.Request.UserAgent(),
		definitions.LogKeyTokenPrefix, hex.EncodeToString(sum[:4]),
	)

	reject(ctx, http.StatusUnauthorized, "refresh token reuse detected", definitions.CodeReplay)
}

func (h *Handler) issue(ctx context.Context, rec store.RefreshRecord) (tokenResponse, error) {
	access, err := h.deps.Signer.Sign(rec.TenantID, rec.UserID, rec.Email)
	if err != nil {
		return tokenResponse{}, err
	}

	rec.IssuedAt = time.Now().UTC()

	refresh, err := h.deps.Refresh.Issue(ctx, rec)
	if err != nil {
		return tokenResponse{}, err
	}

	return tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.deps.Signer.TTL().Seconds()),
	}, nil
}
