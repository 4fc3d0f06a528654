package authz

import (
	"context"
	"testing"

	"github.com/ytfqj/ermrest/internal/model"
	"github.com/ytfqj/ermrest/internal/reqcontext"
)

func newType() *model.Type { return &model.Type{RID: "type:int8", Name: "int8", Kind: model.KindBase} }

func buildTable(t *testing.T) (*model.Model, *model.Schema, *model.Table) {
	t.Helper()
	m := model.NewModel("1")
	sch, err := m.AddSchema("public", "schema:1")
	if err != nil {
		t.Fatalf("AddSchema: %v", err)
	}
	tbl, err := sch.AddTable("widgets", model.TableKindTable, "table:1")
	if err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	return m, sch, tbl
}

// rcFor builds a RequestContext for HasRight tests, which never touch
// RequestContext.Model (only Identity and the per-request decision cache).
func rcFor(roles ...string) *reqcontext.RequestContext {
	id := reqcontext.NewIdentity("client", roles)
	return reqcontext.New(context.Background(), id, nil)
}

func TestHasRightDirectACLMatch(t *testing.T) {
	_, _, tbl := buildTable(t)
	tbl.ACL = model.StaticACL{"select": {"reader"}}

	rc := rcFor("reader")
	if got := HasRight(rc, tbl, "select"); got != reqcontext.Allow {
		t.Fatalf("expected Allow, got %v", got)
	}

	rc2 := rcFor("someone-else")
	if got := HasRight(rc2, tbl, "select"); got != reqcontext.Deny {
		t.Fatalf("expected Deny for a non-matching role, got %v", got)
	}
}

func TestHasRightSufficiencyLatticeOwnerImpliesSelect(t *testing.T) {
	_, _, tbl := buildTable(t)
	tbl.ACL = model.StaticACL{"owner": {"admin"}}

	rc := rcFor("admin")
	if got := HasRight(rc, tbl, "select"); got != reqcontext.Allow {
		t.Fatalf("expected owner to imply select via the sufficiency lattice, got %v", got)
	}
}

func TestHasRightInheritsFromParentWhenUnset(t *testing.T) {
	_, sch, tbl := buildTable(t)
	sch.ACL = model.StaticACL{"select": {"reader"}}

	rc := rcFor("reader")
	if got := HasRight(rc, tbl, "select"); got != reqcontext.Allow {
		t.Fatalf("expected table to inherit schema's grant, got %v", got)
	}
}

func TestHasRightExplicitDenyDoesNotFallThroughToParent(t *testing.T) {
	_, sch, tbl := buildTable(t)
	sch.ACL = model.StaticACL{"select": {"reader"}}
	tbl.ACL = model.StaticACL{"select": {}} // explicit deny-all on the table itself

	rc := rcFor("reader")
	if got := HasRight(rc, tbl, "select"); got != reqcontext.Deny {
		t.Fatalf("expected an explicit empty ACL to deny rather than inherit, got %v", got)
	}
}

func TestHasRightDynamicBindingIsIndeterminate(t *testing.T) {
	_, _, tbl := buildTable(t)
	tbl.Dynacl = []*model.DynaclBinding{{
		Name:           "owner-binding",
		Projection:     []model.ProjectionElement{{Column: "owner_id"}},
		ProjectionType: model.ProjectionACL,
		Types:          []string{"select"},
	}}

	rc := rcFor("reader")
	if got := HasRight(rc, tbl, "select"); got != reqcontext.Indeterminate {
		t.Fatalf("expected Indeterminate when only a dynamic binding governs the right, got %v", got)
	}
}

func TestHasRightMemoizesDecisions(t *testing.T) {
	_, _, tbl := buildTable(t)
	tbl.ACL = model.StaticACL{"select": {"reader"}}
	rc := rcFor("reader")

	first := HasRight(rc, tbl, "select")
	if _, ok := rc.CachedDecision(tbl.RID, "select"); !ok {
		t.Fatalf("expected the decision to be memoized after the first call")
	}
	if second := HasRight(rc, tbl, "select"); second != first {
		t.Fatalf("expected a memoized decision to be stable across calls")
	}
}

func TestHasRightDefaultsToDenyWithNoACLAnywhere(t *testing.T) {
	_, _, tbl := buildTable(t)
	rc := rcFor("anyone")
	if got := HasRight(rc, tbl, "select"); got != reqcontext.Deny {
		t.Fatalf("expected Deny by default, got %v", got)
	}
}

func TestHasRightInheritsFromCatalogWhenSchemaAndTableAreUnset(t *testing.T) {
	m, _, tbl := buildTable(t)
	m.ACL = model.StaticACL{"owner": {"alice"}}

	rc := rcFor("bob")
	if got := HasRight(rc, tbl, "select"); got != reqcontext.Deny {
		t.Fatalf("expected a non-owner to be denied, got %v", got)
	}

	rcOwner := rcFor("alice")
	if got := HasRight(rcOwner, tbl, "owner"); got != reqcontext.Allow {
		t.Fatalf("expected the catalog owner to own the table by inheritance, got %v", got)
	}
}

func TestHasRightCatalogOwnerOverridesNonMatchingTableACL(t *testing.T) {
	m, sch, tbl := buildTable(t)
	m.ACL = model.StaticACL{"owner": {"alice"}}
	sch.ACL = nil
	tbl.ACL = model.StaticACL{"select": {"bob"}}

	rc := rcFor("alice")
	if got := HasRight(rc, tbl, "select"); got != reqcontext.Allow {
		t.Fatalf("expected catalog owner to override the table's own non-matching select ACL, got %v", got)
	}
}
