package model

// StaticACL holds the role lists keyed by ACL name (owner/create/write/
// insert/update/delete/select/enumerate). A present-but-empty slice means
// "explicitly granted to nobody"; a missing key means "not set, inherit
// from parent" — the nil/empty distinction spec.md's has_right algorithm
// depends on.
type StaticACL map[string][]string

func (a StaticACL) Get(aclname string) ([]string, bool) {
	v, ok := a[aclname]
	return v, ok
}

// DynaclBinding is one named dynamic ACL binding attached to a table,
// column, or foreign key: a projection (sequence of join/filter steps
// ending at a column), a projection type, and the set of ACL names this
// binding is allowed to arbitrate.
type DynaclBinding struct {
	Name           string
	Projection     []ProjectionElement
	ProjectionType ProjectionType
	Types          []string // aclnames this binding governs, e.g. {"select","update"}
}

type ProjectionType int

const (
	ProjectionACL     ProjectionType = iota // projected column holds role names, matched against caller roles
	ProjectionNonNull                       // projected column's mere existence (non-null) grants the right
)

// ProjectionElement is one step of a dynamic ACL binding's projection: a
// join across a foreign key (by constraint name or column list) or a
// terminal column name. Mirrors the "outbound"/"inbound" join steps the
// original implementation's AclBinding._compile_projection walks before
// landing on a column.
type ProjectionElement struct {
	// Column is set on the terminal (last) element of a projection.
	Column string
	// ForeignKeyConstraint names the fkey to traverse for a join step
	// (outbound traversal: this table -> referenced table).
	ForeignKeyConstraint string
	// Inbound, when true, traverses a ForeignKeyConstraint in reverse
	// (some other table's fkey references this table).
	Inbound bool
}

// Resource is implemented by Model, Schema, Table, Column, and ForeignKey:
// every node the authorization engine walks for ownership/ACL inheritance.
type Resource interface {
	ResourceRID() RID
	ResourceKind() string // "catalog", "schema", "table", "column", "foreign_key"
	Parent() Resource     // nil for Model, the root of the tree
	Acl() StaticACL
	Dynacls() []*DynaclBinding
	Annotations() map[string]any
}

// Annotated is embedded by every resource kind carrying
// annotations/ACLs/dynacls, matching the commentable/annotatable/hasacls/
// hasdynacls decorator stack from the original implementation, expressed as
// plain struct fields instead of mixins (capability interfaces, per
// spec.md's design notes).
type Annotated struct {
	AnnotationMap map[string]any
	ACL           StaticACL
	Dynacl        []*DynaclBinding
	Comment       *string
}

func (a *Annotated) Annotations() map[string]any { return a.AnnotationMap }
func (a *Annotated) AclMap() StaticACL           { return a.ACL }
func (a *Annotated) DynaclList() []*DynaclBinding { return a.Dynacl }
