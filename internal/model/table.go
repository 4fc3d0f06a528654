package model

// TableKind enumerates the introspectable relation kinds a Table can wrap.
const (
	TableKindTable  = "table"
	TableKindView   = "view"
	TableKindForeign = "foreign_table"
)

// Table is a relation: an ordered list of columns, a set of unique keys
// (real or pseudo), and the foreign keys it declares outbound plus the
// key references that point inbound at it.
type Table struct {
	Annotated

	RID    RID
	Schema *Schema
	Name   string
	Kind   string

	columns     *AltDict[*Column]
	uniques     *AltDict[*Unique]
	foreignKeys *AltDict[*ForeignKey]

	// ReferencedBy is populated by the introspector (and by AddForeignKey
	// on the referenced table) with every ForeignKey elsewhere in the model
	// that points at one of this table's uniques.
	ReferencedBy []*ForeignKey
}

func (t *Table) ResourceRID() RID          { return t.RID }
func (t *Table) ResourceKind() string      { return "table" }
func (t *Table) Parent() Resource          { return t.Schema }
func (t *Table) Acl() StaticACL            { return t.ACL }
func (t *Table) Dynacls() []*DynaclBinding { return t.Dynacl }

// ColumnsInOrder returns columns in their declared (ordinal) order, the way
// the original implementation's Table.columns_in_order() does, used
// whenever a stable column ordering matters (prejson, SQL projections).
func (t *Table) ColumnsInOrder() []*Column { return t.columns.InOrder() }

func (t *Table) Column(name string) (*Column, error) { return t.columns.Get(name) }
func (t *Table) HasColumn(name string) bool           { return t.columns.Has(name) }

func (t *Table) Uniques() []*Unique         { return t.uniques.InOrder() }
func (t *Table) ForeignKeys() []*ForeignKey { return t.foreignKeys.InOrder() }

// HasPrimaryKey reports whether any of this table's unique keys (real or
// pseudo) is composed entirely of non-nullable columns, i.e. is usable as
// an identifying key for row-level addressing (invariant I-3).
func (t *Table) HasPrimaryKey() bool {
	for _, u := range t.uniques.InOrder() {
		if u.IsPrimaryKeyCandidate() {
			return true
		}
	}
	return false
}

// AddColumn interns a new column at the next ordinal position under a
// stable RID (derived by the introspector from the relation OID + attnum).
func (t *Table) AddColumn(rid RID, name string, typ *Type, nullok bool, defaultLiteral any, hasDefault bool) (*Column, error) {
	c := &Column{
		RID:         rid,
		Table:       t,
		Name:        name,
		Type:        typ,
		Nullok:      nullok,
		Default:     defaultLiteral,
		HasDefault:  hasDefault,
		OrdinalHint: t.columns.Len(),
	}
	if err := t.columns.Set(name, c); err != nil {
		return nil, err
	}
	t.Schema.Model.columnsByRID[c.RID] = c
	return c, nil
}

// AddUnique interns a new (possibly pseudo) unique key over cols under a
// stable RID (derived from the pg_constraint OID, or the pseudo-key aux
// table's own RID).
func (t *Table) AddUnique(rid RID, cols []*Column, constraintName string, pseudo bool) (*Unique, error) {
	u := &Unique{
		RID:            rid,
		Table:          t,
		Columns:        cols,
		ConstraintName: constraintName,
		Pseudo:         pseudo,
	}
	key := u.colsetKey()
	if err := t.uniques.Set(key, u); err != nil {
		return nil, err
	}
	t.Schema.Model.uniqueByRID[u.RID] = u
	return u, nil
}

// AddForeignKey interns a new (possibly pseudo) foreign key from this
// table's fkCols to refUnique's columns (positionally aligned), and records
// the reverse edge on the referenced table.
func (t *Table) AddForeignKey(rid RID, fkCols []*Column, refUnique *Unique, constraintName string, pseudo bool) (*ForeignKey, error) {
	fk := &ForeignKey{
		RID:               rid,
		Table:              t,
		ForeignKeyColumns:  fkCols,
		ReferencedColumns:  refUnique.Columns,
		ReferencedUnique:   refUnique,
		ConstraintName:     constraintName,
		Pseudo:             pseudo,
	}
	key := constraintName
	if key == "" {
		key = fk.colsetKey()
	}
	if err := t.foreignKeys.Set(key, fk); err != nil {
		return nil, err
	}
	t.Schema.Model.fkeyByRID[fk.RID] = fk
	refUnique.Table.ReferencedBy = append(refUnique.Table.ReferencedBy, fk)
	return fk, nil
}
