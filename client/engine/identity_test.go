package engine

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/croessner/authprobe/server/definitions"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSpoofedIPDeterministic(t *testing.T) {
	testNet := netip.MustParsePrefix("192.0.2.0/24")

	for _, seed := range []string{"a@test.com", "b@test.com", "load-1@test.com", ""} {
		ip := SpoofedIP(seed)

		addr, err := netip.ParseAddr(ip)
		require.NoError(t, err)
		assert.True(t, testNet.Contains(addr), ip)
		assert.Equal(t, ip, SpoofedIP(seed))
		assert.NotEqual(t, "192.0.2.255", ip)
		assert.NotEqual(t, "192.0.2.0", ip)
	}
}

func TestSpoofedIPIsHostAddress(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ip := SpoofedIP(rapid.String().Draw(t, "seed"))

		addr, err := netip.ParseAddr(ip)
		if err != nil {
			t.Fatalf("unparseable address %q: %v", ip, err)
		}

		last := addr.As4()[3]
		if !strings.HasPrefix(ip, "192.0.2.") || last == 0 || last == 255 {
			t.Fatalf("%q is not a TEST-NET-1 host address", ip)
		}
	})
}

func TestNewIdentityIsUnique(t *testing.T) {
	a := NewIdentity("tenant", "load", "pw")
	b := NewIdentity("tenant", "load", "pw")

	assert.NotEqual(t, a.UserID, b.UserID)
	assert.NotEqual(t, a.Email, b.Email)
	assert.True(t, strings.HasPrefix(a.Email, "load-"))
	assert.True(t, strings.HasSuffix(a.Email, "@test.com"))
}

func TestRequestSpecBuilders(t *testing.T) {
	ident := Identity{TenantID: "t1", UserID: "u1", Email: "e@test.com", Password: "pw"}
	origin := Origin{IP: "203.0.113.42", UserAgent: "TestClient/1.0"}

	reg := RegisterSpec("r", ident, origin)
	assert.Equal(t, definitions.PathRegister, reg.Path)
	assert.Equal(t, "u1", reg.Body["user_id"])
	assert.Equal(t, "203.0.113.42", reg.Header["X-Forwarded-For"])
	assert.Equal(t, "TestClient/1.0", reg.Header["User-Agent"])

	login := LoginSpec("l", ident, Origin{})
	assert.NotContains(t, login.Body, "user_id")
	assert.Empty(t, login.Header)

	refresh := RefreshSpec("f", "t1", "tok", origin)
	assert.Equal(t, "tok", refresh.Body["refresh_token"])
	assert.Equal(t, definitions.PathRefresh, refresh.Path)
}
