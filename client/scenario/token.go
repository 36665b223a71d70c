package scenario

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"github.com/croessner/authprobe/client/engine"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
)

var (
	ErrKeyNotPublished = errors.New("signing key not published")
	ErrUnsupportedKey  = errors.New("unsupported key")
)

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("%w: kty %q", ErrUnsupportedKey, k.Kty)
	}

	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("%w: modulus: %v", ErrUnsupportedKey, err)
	}

	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("%w: exponent: %v", ErrUnsupportedKey, err)
	}

	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, fmt.Errorf("%w: exponent out of range", ErrUnsupportedKey)
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// verifyAccessToken checks raw against the published key set only: kid lookup, RS256, audience, issuer and the
// exp/iat/sub claims.
func verifyAccessToken(raw string, set jwkSet, audience, issuer string) (*jwt.RegisteredClaims, error) {
	keyfunc := func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)

		for _, k := range set.Keys {
			if k.Kid == kid {
				return k.publicKey()
			}
		}

		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotPublished, kid)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}

	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, keyfunc, opts...); err != nil {
		return nil, err
	}

	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing iat", jwt.ErrTokenRequiredClaimMissing)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", jwt.ErrTokenRequiredClaimMissing)
	}

	return claims, nil
}

func runToken(ctx context.Context, r *Runner) Verdict {
	ident, login, err := r.enroll(ctx, "token", engine.Origin{})
	if err != nil {
		return fail("setup failed: %v", err)
	}

	access := login.StringField("access_token")
	if access == "" {
		return fail("login response carried no access_token")
	}

	keys := r.dispatcher.Do(ctx, engine.JWKSSpec("token-jwks"), r.timeout())
	if !keys.OK() {
		return fail("JWKS returned %s", describe(keys))
	}

	var set jwkSet
	if err = jsoniter.Unmarshal(keys.RawBody, &set); err != nil {
		return fail("JWKS is not valid JSON: %v", err)
	}

	claims, err := verifyAccessToken(access, set, r.cfg.Token.Audience, r.cfg.Token.Issuer)
	if err != nil {
		return fail("access token rejected: %v", err)
	}

	if claims.Subject != ident.UserID {
		return fail("access token subject %q, expected %q", claims.Subject, ident.UserID)
	}

	return pass("access token for %s verified with published key, expires %s", ident.Email, claims.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"))
}
