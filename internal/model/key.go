package model

import "strings"

// Unique is a key over one or more columns of a table: either a real
// (constraint-backed) key discovered from pg_constraint, or a pseudo-key
// asserted administratively by a row in "_ermrest.model_pseudo_key" with no
// backing RDBMS constraint.
type Unique struct {
	RID            RID
	Table          *Table
	Columns        []*Column
	ConstraintName string // empty for pseudo keys
	Pseudo         bool
}

// IsPrimaryKeyCandidate reports whether every column of the key is
// non-nullable, making it usable to address a row uniquely and
// unambiguously (invariant I-3's "at least one such key" requirement).
func (u *Unique) IsPrimaryKeyCandidate() bool {
	for _, c := range u.Columns {
		if c.Nullok {
			return false
		}
	}
	return len(u.Columns) > 0
}

func (u *Unique) colsetKey() string {
	names := make([]string, len(u.Columns))
	for i, c := range u.Columns {
		names[i] = c.Name
	}
	return strings.Join(names, ",")
}

func (u *Unique) ColumnNames() []string {
	names := make([]string, len(u.Columns))
	for i, c := range u.Columns {
		names[i] = c.Name
	}
	return names
}

// ForeignKey is an outbound reference from this table's ForeignKeyColumns
// to ReferencedUnique's columns (positionally aligned), real or pseudo.
type ForeignKey struct {
	Annotated

	RID                RID
	Table              *Table
	ForeignKeyColumns  []*Column
	ReferencedColumns  []*Column
	ReferencedUnique   *Unique
	ConstraintName     string
	Pseudo             bool
}

func (fk *ForeignKey) ResourceRID() RID          { return fk.RID }
func (fk *ForeignKey) ResourceKind() string      { return "foreign_key" }
func (fk *ForeignKey) Parent() Resource          { return fk.Table }
func (fk *ForeignKey) Acl() StaticACL            { return fk.ACL }
func (fk *ForeignKey) Dynacls() []*DynaclBinding { return fk.Dynacl }

func (fk *ForeignKey) colsetKey() string {
	names := make([]string, len(fk.ForeignKeyColumns))
	for i, c := range fk.ForeignKeyColumns {
		names[i] = c.Name
	}
	return strings.Join(names, ",")
}

// ReferencedTable is a convenience accessor used throughout ermpath's join
// compilation.
func (fk *ForeignKey) ReferencedTable() *Table { return fk.ReferencedUnique.Table }

// ColumnMap returns the positional foreign-key-column -> referenced-column
// pairing, the join predicate ermpath emits for a link traversal.
func (fk *ForeignKey) ColumnMap() [][2]*Column {
	out := make([][2]*Column, len(fk.ForeignKeyColumns))
	for i := range fk.ForeignKeyColumns {
		out[i] = [2]*Column{fk.ForeignKeyColumns[i], fk.ReferencedColumns[i]}
	}
	return out
}
