package engine

import (
	"fmt"
	"net/http"

	"github.com/croessner/authprobe/server/definitions"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// 192.0.2.0/24 (TEST-NET-1) never routes, so spoofed origins cannot collide with real clients.
const testNet1 uint32 = 0xC0000200

// Identity is one synthetic account on the target.
type Identity struct {
	TenantID string
	UserID   string
	Email    string
	Password string
}

// NewIdentity creates a fresh account with random user ID and a unique email below prefix.
func NewIdentity(tenantID, prefix, password string) Identity {
	return Identity{
		TenantID: tenantID,
		UserID:   uuid.NewString(),
		Email:    fmt.Sprintf("%s-%s@test.com", prefix, uuid.NewString()),
		Password: password,
	}
}

// NewTenantID returns a random tenant used when none is configured.
func NewTenantID() string {
	return uuid.NewString()
}

// SpoofedIP maps seed deterministically onto the 254 host addresses of TEST-NET-1. Equal seeds always produce the
// same address; distinct seeds may share one.
func SpoofedIP(seed string) string {
	return uint32ToIP(testNet1 | uint32(xxhash.Sum64String(seed)%254+1))
}

func uint32ToIP(u uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
}

// Origin is the client context presented to the target through forwarding headers.
type Origin struct {
	IP        string
	UserAgent string
}

func (o Origin) header() map[string]string {
	h := make(map[string]string, 2)

	if o.IP != "" {
		h[definitions.HeaderForwardedFor] = o.IP
	}

	if o.UserAgent != "" {
		h[definitions.HeaderUserAgent] = o.UserAgent
	}

	return h
}

func JWKSSpec(id string) RequestSpec {
	return RequestSpec{ID: id, Method: http.MethodGet, Path: definitions.PathJWKS}
}

func RegisterSpec(id string, ident Identity, origin Origin) RequestSpec {
	return RequestSpec{
		ID:     id,
		Method: http.MethodPost,
		Path:   definitions.PathRegister,
		Body: map[string]any{
			"tenant_id": ident.TenantID,
			"user_id":   ident.UserID,
			"email":     ident.Email,
			"password":  ident.Password,
		},
		Header: origin.header(),
	}
}

func LoginSpec(id string, ident Identity, origin Origin) RequestSpec {
	return RequestSpec{
		ID:     id,
		Method: http.MethodPost,
		Path:   definitions.PathLogin,
		Body: map[string]any{
			"tenant_id": ident.TenantID,
			"email":     ident.Email,
			"password":  ident.Password,
		},
		Header: origin.header(),
	}
}

func RefreshSpec(id, tenantID, refreshToken string, origin Origin) RequestSpec {
	return RequestSpec{
		ID:     id,
		Method: http.MethodPost,
		Path:   definitions.PathRefresh,
		Body: map[string]any{
			"tenant_id":     tenantID,
			"refresh_token": refreshToken,
		},
		Header: origin.header(),
	}
}
