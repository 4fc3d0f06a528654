// Package reqcontext implements the request-scoped context (C7): the
// caller's identity and roles, the Model snapshot a request is pinned to,
// and a has_right decision cache that must never outlive or leak across
// requests (spec.md section 5).
package reqcontext

import (
	"context"

	"github.com/ytfqj/ermrest/internal/model"
)

// Identity is the decoded-bearer-token identity a request carries. Roles
// always includes the implicit wildcard "*" role per spec.md section 6.
type Identity struct {
	ClientID string
	Roles    map[string]struct{}
}

func NewIdentity(clientID string, roles []string) Identity {
	set := make(map[string]struct{}, len(roles)+1)
	set["*"] = struct{}{}
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return Identity{ClientID: clientID, Roles: set}
}

func (id Identity) HasRole(role string) bool {
	_, ok := id.Roles[role]
	return ok
}

// Intersects reports whether any of roles is held by this identity.
func (id Identity) Intersects(roles []string) bool {
	for _, r := range roles {
		if id.HasRole(r) {
			return true
		}
	}
	return false
}

// decisionKey identifies one memoized has_right verdict.
type decisionKey struct {
	rid     model.RID
	aclname string
}

// TriState mirrors the original's True/False/None decision outcome:
// Allow, Deny, or Indeterminate (a dynamic binding whose SQL gate must be
// evaluated per-row rather than resolved once for the whole request).
type TriState int

const (
	Indeterminate TriState = iota
	Allow
	Deny
)

// RequestContext is created once per inbound request and threaded through
// every model/authz/ermpath call that request makes. It is never retained
// beyond the request's goroutine.
type RequestContext struct {
	Ctx      context.Context
	Identity Identity
	Model    *model.Model

	cache map[decisionKey]TriState
}

func New(ctx context.Context, identity Identity, m *model.Model) *RequestContext {
	return &RequestContext{Ctx: ctx, Identity: identity, Model: m, cache: make(map[decisionKey]TriState)}
}

func (rc *RequestContext) CachedDecision(rid model.RID, aclname string) (TriState, bool) {
	v, ok := rc.cache[decisionKey{rid, aclname}]
	return v, ok
}

func (rc *RequestContext) MemoizeDecision(rid model.RID, aclname string, v TriState) {
	rc.cache[decisionKey{rid, aclname}] = v
}
