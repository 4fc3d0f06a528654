package ermpath

import (
	"errors"
	"strings"
	"testing"

	"github.com/ytfqj/ermrest/internal/model"
)

func arrayOf(elem *model.Type) *model.Type {
	return &model.Type{RID: model.RID("type:" + elem.Name + "[]"), Name: elem.Name + "[]", Kind: model.KindArray, BaseType: elem}
}

func buildWidgets(t *testing.T) (*model.Model, *model.Table) {
	t.Helper()
	m := model.NewModel("1")
	sch, err := m.AddSchema("public", "schema:1")
	if err != nil {
		t.Fatalf("AddSchema: %v", err)
	}
	tbl, err := sch.AddTable("widgets", model.TableKindTable, "table:widgets")
	if err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	if _, err := tbl.AddColumn("col:widgets.name", "name", textType(), false, nil, false); err != nil {
		t.Fatalf("AddColumn name: %v", err)
	}
	if _, err := tbl.AddColumn("col:widgets.tags", "tags", arrayOf(textType()), false, nil, false); err != nil {
		t.Fatalf("AddColumn tags: %v", err)
	}
	return m, tbl
}

// TestBinaryTextCiRegexpCastsToTextAndMatchesScenarioFour mirrors spec.md's
// end-to-end scenario #4: EntityPath(T) + BinaryText(name, ciregexp, "^a")
// must compile to `t0."name"::text ~* $1`.
func TestBinaryTextCiRegexpCastsToTextAndMatchesScenarioFour(t *testing.T) {
	m, tbl := buildWidgets(t)
	path := NewEntityPath(m)
	if err := path.SetBaseEntity(tbl); err != nil {
		t.Fatalf("SetBaseEntity: %v", err)
	}
	if err := path.AddFilter(&BinaryText{Column: "name", Op: OpCiRegexp, Value: "^a"}); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}

	sql, args, err := path.CompileSelect([]string{"name"})
	if err != nil {
		t.Fatalf("CompileSelect: %v", err)
	}
	if want := `t0."name"::text ~* $1`; !strings.Contains(sql, want) {
		t.Fatalf("expected %q in sql, got: %s", want, sql)
	}
	if len(args) != 1 || args[0] != "^a" {
		t.Fatalf("expected one bound arg %q, got %v", "^a", args)
	}
}

// TestBinaryArrayEqualityDistributesViaUnnestSubquery mirrors spec.md's
// end-to-end scenario #5: equality against an array column must emit a
// `(SELECT bool_or(...) FROM unnest(...) x(v))` subquery, not an aggregate
// directly in WHERE.
func TestBinaryArrayEqualityDistributesViaUnnestSubquery(t *testing.T) {
	m, tbl := buildWidgets(t)
	path := NewEntityPath(m)
	if err := path.SetBaseEntity(tbl); err != nil {
		t.Fatalf("SetBaseEntity: %v", err)
	}
	if err := path.AddFilter(&Binary{Column: "tags", Op: OpEqual, Value: "red"}); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}

	sql, args, err := path.CompileSelect([]string{"name"})
	if err != nil {
		t.Fatalf("CompileSelect: %v", err)
	}
	if want := `(SELECT bool_or(v = $1) FROM unnest(t0."tags") x(v))`; !strings.Contains(sql, want) {
		t.Fatalf("expected %q in sql, got: %s", want, sql)
	}
	if len(args) != 1 || args[0] != "red" {
		t.Fatalf("expected one bound arg %q, got %v", "red", args)
	}
}

// TestBinaryTextArrayColumnAlsoDistributesAndCasts proves the text-operator
// family applies the same array treatment as Binary, with the cast kept.
func TestBinaryTextArrayColumnAlsoDistributesAndCasts(t *testing.T) {
	m, tbl := buildWidgets(t)
	path := NewEntityPath(m)
	if err := path.SetBaseEntity(tbl); err != nil {
		t.Fatalf("SetBaseEntity: %v", err)
	}
	if err := path.AddFilter(&BinaryText{Column: "tags", Op: OpRegexp, Value: "^r"}); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}

	sql, _, err := path.CompileSelect([]string{"name"})
	if err != nil {
		t.Fatalf("CompileSelect: %v", err)
	}
	if want := `(SELECT bool_or(v::text ~ $1) FROM unnest(t0."tags") x(v))`; !strings.Contains(sql, want) {
		t.Fatalf("expected %q in sql, got: %s", want, sql)
	}
}

// TestAddFilterEnforcesSelectRightOnLeftColumn proves a predicate is
// rejected when the path's SelectCheck callback denies the column (section
// 4.6: Validate enforces the select right on the predicate's left column).
func TestAddFilterEnforcesSelectRightOnLeftColumn(t *testing.T) {
	m, tbl := buildWidgets(t)
	path := NewEntityPath(m)
	if err := path.SetBaseEntity(tbl); err != nil {
		t.Fatalf("SetBaseEntity: %v", err)
	}
	path.SelectCheck = func(col *model.Column) error {
		if col.Name == "name" {
			return errSelectDenied
		}
		return nil
	}

	if err := path.AddFilter(&Binary{Column: "name", Op: OpEqual, Value: "widget"}); err == nil {
		t.Fatalf("expected AddFilter to fail when SelectCheck denies the column")
	}
	if err := path.AddFilter(&Unary{Column: "tags"}); err != nil {
		t.Fatalf("expected AddFilter to succeed for a column SelectCheck allows: %v", err)
	}
}

var errSelectDenied = errors.New("select denied")
