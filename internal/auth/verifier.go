// Package auth resolves the tenant a request acts for.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Modes understood by New.
const (
	// ModeHeader trusts the X-Tenant-Id header. Meant for development and
	// for deployments behind a gateway that sets it.
	ModeHeader = "header"
	// ModeHMAC requires an HS256 bearer token carrying the tenant claim.
	ModeHMAC = "hmac"
)

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is the verified caller.
type Principal struct {
	Tenant  string
	Subject string
}

// Verifier validates bearer tokens and extracts the tenant claim.
type Verifier struct {
	Mode        string
	Secret      []byte
	TenantClaim string
}

func New(mode, secret, tenantClaim string) (*Verifier, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeHeader
	}
	if tenantClaim == "" {
		tenantClaim = "tenant"
	}
	switch mode {
	case ModeHeader:
	case ModeHMAC:
		if secret == "" {
			return nil, errors.New("AUTH_HMAC_SECRET is required for hmac mode")
		}
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", mode)
	}
	return &Verifier{Mode: mode, Secret: []byte(secret), TenantClaim: tenantClaim}, nil
}

// Enabled reports whether requests must carry a token.
func (v *Verifier) Enabled() bool { return v != nil && v.Mode != ModeHeader }

// Verify checks an HS256 token and returns its principal. exp and nbf are
// enforced when present.
func (v *Verifier) Verify(token string) (Principal, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	tenant, _ := claims[v.TenantClaim].(string)
	if tenant == "" {
		return Principal{}, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, v.TenantClaim)
	}
	sub, _ := claims.GetSubject()
	return Principal{Tenant: tenant, Subject: sub}, nil
}

// FromRequest verifies the request's Authorization: Bearer token.
func (v *Verifier) FromRequest(r *http.Request) (Principal, error) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return Principal{}, ErrNoToken
	}
	return v.Verify(strings.TrimSpace(token))
}
