package model

// JSON-shaped views used to serialize the catalog over the wire; named
// "prejson" after the original implementation's pre-JSON-encoding dict
// builders, which this mirrors field-for-field rather than relying on
// struct tags directly on the model types (those hold back-pointers we
// don't want on the wire).

type SchemaJSON struct {
	RID         RID              `json:"RID"`
	SchemaName  string           `json:"schema_name"`
	Tables      map[string]*TableJSON `json:"tables"`
	Annotations map[string]any   `json:"annotations"`
	Acl         StaticACL        `json:"acls,omitempty"`
}

type TableJSON struct {
	RID       RID                `json:"RID"`
	SchemaName string            `json:"schema_name"`
	TableName string             `json:"table_name"`
	Kind      string             `json:"kind"`
	Columns   []*ColumnJSON       `json:"column_definitions"`
	Keys      []*KeyJSON          `json:"keys"`
	ForeignKeys []*ForeignKeyJSON `json:"foreign_keys"`
	Annotations map[string]any    `json:"annotations"`
	Acl       StaticACL           `json:"acls,omitempty"`
}

type ColumnJSON struct {
	RID        RID            `json:"RID"`
	Name       string         `json:"name"`
	Type       TypeJSON       `json:"type"`
	Nullok     bool           `json:"nullok"`
	Default    any            `json:"default"`
	Annotations map[string]any `json:"annotations"`
	Acl        StaticACL       `json:"acls,omitempty"`
}

type TypeJSON struct {
	TypeName string `json:"typename"`
	IsArray  bool   `json:"is_array"`
	BaseType *TypeJSON `json:"base_type,omitempty"`
}

type KeyJSON struct {
	RID            RID      `json:"RID"`
	UniqueColumns  []string `json:"unique_columns"`
	ConstraintName string   `json:"constraint_name,omitempty"`
	Pseudo         bool     `json:"pseudo"`
}

type ForeignKeyJSON struct {
	RID               RID      `json:"RID"`
	ForeignKeyColumns []ColRef `json:"foreign_key_columns"`
	ReferencedColumns []ColRef `json:"referenced_columns"`
	ConstraintName    string   `json:"constraint_name,omitempty"`
	Pseudo            bool     `json:"pseudo"`
}

type ColRef struct {
	SchemaName string `json:"schema_name"`
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
}

func typeJSON(t *Type) TypeJSON {
	tj := TypeJSON{TypeName: t.Name, IsArray: t.IsArray()}
	if t.BaseType != nil {
		bt := typeJSON(t.BaseType)
		tj.BaseType = &bt
	}
	return tj
}

func (c *Column) PreJSON() *ColumnJSON {
	return &ColumnJSON{
		RID: c.RID, Name: c.Name, Type: typeJSON(c.Type), Nullok: c.Nullok,
		Default: c.Default, Annotations: emptyIfNil(c.AnnotationMap), Acl: c.ACL,
	}
}

func (u *Unique) PreJSON() *KeyJSON {
	return &KeyJSON{RID: u.RID, UniqueColumns: u.ColumnNames(), ConstraintName: u.ConstraintName, Pseudo: u.Pseudo}
}

func (fk *ForeignKey) PreJSON() *ForeignKeyJSON {
	cm := fk.ColumnMap()
	fkc := make([]ColRef, len(cm))
	rc := make([]ColRef, len(cm))
	for i, pair := range cm {
		fkc[i] = ColRef{SchemaName: fk.Table.Schema.Name, TableName: fk.Table.Name, ColumnName: pair[0].Name}
		rc[i] = ColRef{SchemaName: fk.ReferencedTable().Schema.Name, TableName: fk.ReferencedTable().Name, ColumnName: pair[1].Name}
	}
	return &ForeignKeyJSON{RID: fk.RID, ForeignKeyColumns: fkc, ReferencedColumns: rc, ConstraintName: fk.ConstraintName, Pseudo: fk.Pseudo}
}

func (t *Table) PreJSON() *TableJSON {
	cols := t.ColumnsInOrder()
	cj := make([]*ColumnJSON, len(cols))
	for i, c := range cols {
		cj[i] = c.PreJSON()
	}
	keys := t.Uniques()
	kj := make([]*KeyJSON, len(keys))
	for i, k := range keys {
		kj[i] = k.PreJSON()
	}
	fks := t.ForeignKeys()
	fj := make([]*ForeignKeyJSON, len(fks))
	for i, fk := range fks {
		fj[i] = fk.PreJSON()
	}
	return &TableJSON{
		RID: t.RID, SchemaName: t.Schema.Name, TableName: t.Name, Kind: t.Kind,
		Columns: cj, Keys: kj, ForeignKeys: fj,
		Annotations: emptyIfNil(t.AnnotationMap), Acl: t.ACL,
	}
}

func (s *Schema) PreJSON() *SchemaJSON {
	tables := s.Tables()
	tj := make(map[string]*TableJSON, len(tables))
	for _, t := range tables {
		tj[t.Name] = t.PreJSON()
	}
	return &SchemaJSON{
		RID: s.RID, SchemaName: s.Name, Tables: tj,
		Annotations: emptyIfNil(s.AnnotationMap), Acl: s.ACL,
	}
}

func (m *Model) PreJSON() map[string]*SchemaJSON {
	out := make(map[string]*SchemaJSON)
	for _, s := range m.Schemas() {
		out[s.Name] = s.PreJSON()
	}
	return out
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
