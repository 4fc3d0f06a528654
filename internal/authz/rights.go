// Package authz implements the authorization engine (C5): the rights
// sufficiency lattice, the has_right decision procedure, and compilation of
// dynamic ACL bindings into gating SQL fragments via the ermpath compiler.
package authz

import (
	"github.com/ytfqj/ermrest/internal/model"
	"github.com/ytfqj/ermrest/internal/reqcontext"
)

// sufficientRights is the static sufficiency lattice: a caller who holds
// any right in sufficientRights[x] is automatically granted x too. Values
// copied verbatim from the historical implementation's sufficient_rights
// table.
var sufficientRights = map[string][]string{
	"owner":     {},
	"create":    {"owner"},
	"write":     {"owner"},
	"insert":    {"owner", "write"},
	"update":    {"owner", "write"},
	"delete":    {"owner", "write"},
	"select":    {"owner", "write", "update", "delete"},
	"enumerate": {"owner", "create", "write", "insert", "update", "delete", "select"},
}

// sufficientFor returns aclname plus every right whose holder is
// automatically sufficient for aclname (the lattice closure), used when
// scanning a resource's static ACL for *any* acl name that would imply the
// requested right.
func sufficientFor(aclname string) []string {
	return append([]string{aclname}, sufficientRights[aclname]...)
}

// HasRight implements spec.md section 4.5.2's decision procedure:
//  1. memoized cache hit -> return it
//  2. owner of a parent resource overrides everything below -> Allow
//     (section 8's invariant: parent.has_right(owner) implies
//     child.has_right(a) for every a, even when the child has its own
//     non-matching static ACL for a)
//  3. owner ACL on this resource (or any sufficient right's ACL) matches
//     caller's roles -> Allow
//  4. direct ACL for aclname (or a sufficient right) intersects caller
//     roles/{"*"} -> Allow/Deny based on presence in the list
//  5. a dynamic binding on this resource whose Types includes a right
//     sufficient for aclname -> Indeterminate (must gate per-row in SQL)
//  6. parent's decision, if Indeterminate or Allow, propagates down
//  7. default Deny
func HasRight(rc *reqcontext.RequestContext, res model.Resource, aclname string) reqcontext.TriState {
	if v, ok := rc.CachedDecision(res.ResourceRID(), aclname); ok {
		return v
	}
	v := computeHasRight(rc, res, aclname)
	rc.MemoizeDecision(res.ResourceRID(), aclname, v)
	return v
}

func computeHasRight(rc *reqcontext.RequestContext, res model.Resource, aclname string) reqcontext.TriState {
	// Step: owner-of-parent override (spec.md section 8's invariant: if
	// parent.has_right(owner) then child.has_right(a) for every a). This
	// must run before the static ACL scan below, so that an explicit but
	// non-matching ACL on res itself can't shadow an owner's unconditional
	// access inherited from further up the tree.
	if parent := res.Parent(); parent != nil {
		if HasRight(rc, parent, "owner") == reqcontext.Allow {
			return reqcontext.Allow
		}
	}

	acl := res.Acl()

	// Step: direct/sufficient static ACL lookup. A matching ACL for aclname
	// or for any right sufficient for it is an Allow.
	explicit := false
	for _, candidate := range sufficientFor(aclname) {
		roles, set := acl.Get(candidate)
		if !set {
			continue
		}
		if rc.Identity.Intersects(roles) {
			return reqcontext.Allow
		}
		if candidate == aclname {
			explicit = true
		}
	}
	if explicit {
		// An explicit (even if empty) ACL for exactly this right that
		// didn't match, with no sufficient right's ACL matching either, is
		// a definitive Deny — it does not fall through to dynamic bindings
		// or the parent.
		return reqcontext.Deny
	}

	// Step: dynamic ACL bindings whose Types intersect the sufficient set
	// for aclname are indeterminate — the caller's right depends on which
	// row is being evaluated, so the decision can only be resolved in SQL.
	sufficientSet := make(map[string]bool)
	for _, r := range sufficientFor(aclname) {
		sufficientSet[r] = true
	}
	for _, binding := range res.Dynacls() {
		for _, t := range binding.Types {
			if sufficientSet[t] {
				return reqcontext.Indeterminate
			}
		}
	}

	// Step: no static ACL was set for any right sufficient for aclname and
	// no dynamic binding governs it — inherit from the parent resource.
	parent := res.Parent()
	if parent == nil {
		return reqcontext.Deny
	}
	return HasRight(rc, parent, aclname)
}

// EnforceRight is the boundary helper every mutating handler calls before
// acting: Allow passes silently, Deny is a Forbidden ermerr, and
// Indeterminate means the caller must instead apply the compiled dynamic
// gate as part of the SQL statement rather than a yes/no check — callers
// that can't do that (e.g. a DDL operation) also treat Indeterminate as
// insufficient on its own.
func EnforceRight(rc *reqcontext.RequestContext, res model.Resource, aclname string) reqcontext.TriState {
	return HasRight(rc, res, aclname)
}
