package model

// Schema is a named container of tables. Its parent in the authorization
// tree is the catalog itself (Model), which carries its own static-ACL and
// annotation maps one level above anything else Resource describes.
type Schema struct {
	Annotated

	RID   RID
	Model *Model
	Name  string

	tables *AltDict[*Table]
}

func (s *Schema) ResourceRID() RID          { return s.RID }
func (s *Schema) ResourceKind() string      { return "schema" }
func (s *Schema) Parent() Resource          { return s.Model }
func (s *Schema) Acl() StaticACL            { return s.ACL }
func (s *Schema) Dynacls() []*DynaclBinding { return s.Dynacl }

// AddTable interns a new table under this schema. rid must be a stable
// identifier (derived from the backing relation's OID) so that metadata
// store rows keyed by RID keep referring to the same table across
// reintrospections.
func (s *Schema) AddTable(name, kind string, rid RID) (*Table, error) {
	t := &Table{RID: rid, Schema: s, Name: name, Kind: kind}
	t.columns = NewAltDict[*Column](
		func(key string) error { return conflictf("column %q already exists in table %q", key, name) },
		func(key string) error { return notfoundf("column %q in table %q", key, name) },
	)
	t.uniques = NewAltDict[*Unique](
		func(key string) error { return conflictf("key %q already exists in table %q", key, name) },
		func(key string) error { return notfoundf("key %q in table %q", key, name) },
	)
	t.foreignKeys = NewAltDict[*ForeignKey](
		func(key string) error { return conflictf("foreign key %q already exists in table %q", key, name) },
		func(key string) error { return notfoundf("foreign key %q in table %q", key, name) },
	)
	if err := s.tables.Set(name, t); err != nil {
		return nil, err
	}
	s.Model.tablesByRID[t.RID] = t
	return t, nil
}

func (s *Schema) Table(name string) (*Table, error) { return s.tables.Get(name) }
func (s *Schema) Tables() []*Table                   { return s.tables.InOrder() }
func (s *Schema) HasTable(name string) bool          { return s.tables.Has(name) }
