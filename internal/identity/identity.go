// Package identity decodes bearer-token identities off inbound requests
// into a reqcontext.Identity, the way the original implementation's
// webauthn2 providers resolve a caller's client id and attribute-bearing
// role set from a token before any catalog operation runs.
package identity

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ytfqj/ermrest/internal/reqcontext"
)

// Claims is the JWT payload shape ermrestd expects: a subject (client id)
// and a "roles" claim listing the attribute names (groups) the token
// carries, which feed directly into ACL role-membership checks.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// Decoder verifies and decodes bearer tokens using a single shared HMAC
// signing key, matching the single-issuer deployment model spec.md assumes
// (section 6: "Authentication is out of scope; requests already carry a
// decoded identity").
type Decoder struct {
	key    []byte
	issuer string
}

func NewDecoder(signingKey, issuer string) *Decoder {
	return &Decoder{key: []byte(signingKey), issuer: issuer}
}

// FromRequest extracts "Authorization: Bearer <token>", verifies it, and
// returns the resulting identity. An anonymous identity (client id "",
// the "*" wildcard role plus anonymousRole) is returned, not an error, when no bearer
// token is present at all — anonymous access is a normal, ACL-governed
// outcome, not a request failure.
func (d *Decoder) FromRequest(r *http.Request, anonymousRole string) (reqcontext.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return reqcontext.NewIdentity("", []string{anonymousRole}), nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return reqcontext.Identity{}, fmt.Errorf("authorization header is not a bearer token")
	}
	return d.FromToken(token, anonymousRole)
}

func (d *Decoder) FromToken(raw string, anonymousRole string) (reqcontext.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return d.key, nil
	}, jwt.WithIssuer(d.issuer))
	if err != nil {
		return reqcontext.Identity{}, fmt.Errorf("decoding bearer token: %w", err)
	}
	if !parsed.Valid {
		return reqcontext.Identity{}, fmt.Errorf("bearer token failed validation")
	}
	roles := append([]string{anonymousRole}, claims.Roles...)
	return reqcontext.NewIdentity(claims.Subject, roles), nil
}
