package authz

import (
	"fmt"
	"strings"

	"github.com/ytfqj/ermrest/internal/model"
	"github.com/ytfqj/ermrest/internal/reqcontext"
)

// readRights gate rows with a positive filter (any one sufficient binding
// passing is enough); everything else gates with a negative filter (every
// applicable binding must fail to deny).
var readRights = map[string]bool{"select": true, "enumerate": true}

// CompileRowGate walks res up through its parents, the same order
// HasRight's recursion follows, and emits the SQL boolean expression a
// caller's query must AND into its WHERE clause to enforce aclname at the
// row level. Only a resource whose decision is Indeterminate contributes
// its dynamic ACL bindings (compiled with CompileBindingGate); the walk
// stops at the first resource (or ancestor) that resolves to Allow or Deny.
// If no bindings were collected below that point, the result is the SQL
// literal TRUE or FALSE; otherwise it is the combination of the bindings
// collected so far.
func CompileRowGate(rc *reqcontext.RequestContext, res model.Resource, table *model.Table, aclname string, outerAlias string, nextArg func(v any) string) (string, error) {
	roles := rolesSlice(rc.Identity)

	var bindingFrags []string
	for r := res; r != nil; r = r.Parent() {
		decision := HasRight(rc, r, aclname)
		switch decision {
		case reqcontext.Allow:
			if len(bindingFrags) == 0 {
				return "TRUE", nil
			}
			return combine(bindingFrags, aclname), nil
		case reqcontext.Deny:
			// A Deny ends the walk — no further ancestor is consulted,
			// matching computeHasRight's short-circuit — and only the
			// descendant bindings collected so far can still grant rows.
			if len(bindingFrags) == 0 {
				return "FALSE", nil
			}
			return combine(bindingFrags, aclname), nil
		case reqcontext.Indeterminate:
			for _, binding := range r.Dynacls() {
				if !bindingGoverns(binding, aclname) {
					continue
				}
				frag, err := CompileBindingGate(rc.Model, table, binding, outerAlias, roles, nextArg)
				if err != nil {
					return "", err
				}
				bindingFrags = append(bindingFrags, frag)
			}
		}
	}
	if len(bindingFrags) == 0 {
		return "FALSE", nil
	}
	return combine(bindingFrags, aclname), nil
}

func combine(frags []string, aclname string) string {
	if readRights[aclname] {
		// Positive filter: SELECT ... WHERE (B1) OR (B2) OR ...
		return "(" + strings.Join(frags, " OR ") + ")"
	}
	// Negative filter: SELECT * FROM T WHERE COALESCE(NOT(B1),TRUE) AND ...
	parts := make([]string, len(frags))
	for i, f := range frags {
		parts[i] = fmt.Sprintf("COALESCE(NOT(%s),TRUE)", f)
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// CompileColumnTestGate is the per-column dynauthz test mode: a boolean
// expression (not a row filter) indicating whether a single column value
// would be visible/writable, used to decide per-cell redaction instead of
// excluding the whole row.
func CompileColumnTestGate(rc *reqcontext.RequestContext, col *model.Column, aclname string, outerAlias string, nextArg func(v any) string) (string, error) {
	return CompileRowGate(rc, col, col.Table, aclname, outerAlias, nextArg)
}

func bindingGoverns(b *model.DynaclBinding, aclname string) bool {
	sufficientSet := make(map[string]bool)
	for _, r := range sufficientFor(aclname) {
		sufficientSet[r] = true
	}
	for _, t := range b.Types {
		if sufficientSet[t] {
			return true
		}
	}
	return false
}

func rolesSlice(id reqcontext.Identity) []string {
	out := make([]string, 0, len(id.Roles))
	for r := range id.Roles {
		out = append(out, r)
	}
	return out
}
