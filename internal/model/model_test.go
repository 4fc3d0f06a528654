package model

import "testing"

func newIntType() *Type {
	return &Type{RID: "type:int8", Name: "int8", Kind: KindBase}
}

func TestCheckPrimaryKeysRequiresANonNullableUnique(t *testing.T) {
	m := NewModel("1")
	sch, err := m.AddSchema("public", "schema:1")
	if err != nil {
		t.Fatalf("AddSchema: %v", err)
	}
	tbl, err := sch.AddTable("widgets", TableKindTable, "table:1")
	if err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	col, err := tbl.AddColumn("col:1", "id", newIntType(), false, nil, false)
	if err != nil {
		t.Fatalf("AddColumn: %v", err)
	}

	if tbl.HasPrimaryKey() {
		t.Fatalf("expected no primary key before any unique is added")
	}
	if err := m.CheckPrimaryKeys(true); err == nil {
		t.Fatalf("expected CheckPrimaryKeys to fail without a primary key")
	}

	if _, err := tbl.AddUnique("key:1", []*Column{col}, "widgets_pkey", false); err != nil {
		t.Fatalf("AddUnique: %v", err)
	}
	if !tbl.HasPrimaryKey() {
		t.Fatalf("expected a non-nullable single-column unique to count as a primary key")
	}
	if err := m.CheckPrimaryKeys(true); err != nil {
		t.Fatalf("CheckPrimaryKeys: %v", err)
	}
}

func TestCheckPrimaryKeysIgnoresNullableUniques(t *testing.T) {
	m := NewModel("1")
	sch, _ := m.AddSchema("public", "schema:1")
	tbl, _ := sch.AddTable("widgets", TableKindTable, "table:1")
	col, _ := tbl.AddColumn("col:1", "label", newIntType(), true, nil, false)

	if _, err := tbl.AddUnique("key:1", []*Column{col}, "widgets_label_key", false); err != nil {
		t.Fatalf("AddUnique: %v", err)
	}
	if tbl.HasPrimaryKey() {
		t.Fatalf("a unique over a nullable column must not count as a primary key candidate")
	}
}

func TestCheckPrimaryKeysRelaxedWhenNotRequired(t *testing.T) {
	m := NewModel("1")
	sch, _ := m.AddSchema("public", "schema:1")
	if _, err := sch.AddTable("widgets", TableKindTable, "table:1"); err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	if err := m.CheckPrimaryKeys(false); err != nil {
		t.Fatalf("CheckPrimaryKeys(false) should never fail: %v", err)
	}
}

func TestSchemaHidesReservedNamesButKeepsThemAddressableByRID(t *testing.T) {
	m := NewModel("1")
	sch, err := m.AddSchema("_ermrest", "schema:1")
	if err != nil {
		t.Fatalf("AddSchema: %v", err)
	}
	if _, err := m.Schema("_ermrest"); err == nil {
		t.Fatalf("expected _ermrest to be hidden from the public schema listing")
	}
	got, err := m.SchemaIncludingHidden("_ermrest")
	if err != nil || got != sch {
		t.Fatalf("SchemaIncludingHidden should still resolve the hidden schema, err=%v", err)
	}
	byRID, ok := m.SchemaByRID(sch.RID)
	if !ok || byRID != sch {
		t.Fatalf("SchemaByRID should resolve hidden schemas too")
	}
	for _, s := range m.Schemas() {
		if s.Name == "_ermrest" {
			t.Fatalf("Schemas() must not list hidden schemas")
		}
	}
}

func TestAltDictReportsConflictsAndPreservesInsertionOrder(t *testing.T) {
	d := NewAltDict[int](
		func(key string) error { return conflictf("duplicate %q", key) },
		func(key string) error { return notfoundf("missing %q", key) },
	)
	if err := d.Set("a", 1); err != nil {
		t.Fatalf("Set a: %v", err)
	}
	if err := d.Set("b", 2); err != nil {
		t.Fatalf("Set b: %v", err)
	}
	if err := d.Set("a", 99); err == nil {
		t.Fatalf("expected a conflict re-inserting key %q", "a")
	}
	if _, err := d.Get("missing"); err == nil {
		t.Fatalf("expected a not-found error for a missing key")
	}
	order := d.InOrder()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected insertion order [1 2], got %v", order)
	}
	d.Delete("a")
	if d.Has("a") {
		t.Fatalf("expected a to be removed")
	}
	if d.Len() != 1 {
		t.Fatalf("expected length 1 after delete, got %d", d.Len())
	}
}
