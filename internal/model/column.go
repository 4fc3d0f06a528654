package model

// Column is a typed, possibly-nullable attribute of a Table, with an
// optional parsed default literal (see Registry.DefaultValue).
type Column struct {
	Annotated

	RID    RID
	Table  *Table
	Name   string
	Type   *Type
	Nullok bool

	// Default holds the parsed literal (nil if HasDefault is false, or if
	// the raw default text was present but unparseable and was silently
	// dropped during introspection per spec.md's documented behavior).
	Default    any
	HasDefault bool

	// OrdinalHint is the column's zero-based insertion position within its
	// table (set by AddColumn); ColumnsInOrder's AltDict insertion order is
	// authoritative and does not read this field.
	OrdinalHint int
}

func (c *Column) ResourceRID() RID          { return c.RID }
func (c *Column) ResourceKind() string      { return "column" }
func (c *Column) Parent() Resource          { return c.Table }
func (c *Column) Acl() StaticACL            { return c.ACL }
func (c *Column) Dynacls() []*DynaclBinding { return c.Dynacl }

// QualifiedName returns "schema.table.column", for diagnostics.
func (c *Column) QualifiedName() string {
	return c.Table.Schema.Name + "." + c.Table.Name + "." + c.Name
}
