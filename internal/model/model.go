// Package model implements the catalog data model (C2) and type registry
// (C1): Model, Schema, Table, Column, Unique, ForeignKey, and Type.
// Resources refer to each other by pointer (fkeys and their referenced keys
// point at each other, forming cycles the garbage collector traces), and
// the Model additionally indexes every resource by a stable RID, which
// gives each one a loggable identity.
package model

import (
	"fmt"
	"time"
)

// RID is a stable resource identifier, interned once at introspection time
// and used as the Model's by-RID lookup key (and as the join key into the
// metadata store's auxiliary tables); resources themselves hold pointers. It plays the role the
// original implementation's integer "rid" column played.
type RID string

// AltDict is a name-keyed container that reports ConflictModel-shaped
// errors on duplicate inserts and missing-key lookups, mirroring the
// AltDict helper the original implementation layered under every
// name-indexed collection in the model (columns, keys, fkeys, schemas).
type AltDict[T any] struct {
	order []string
	byKey map[string]T
	onDup func(key string) error
	onNX  func(key string) error
}

func NewAltDict[T any](onDup, onNX func(key string) error) *AltDict[T] {
	return &AltDict[T]{byKey: make(map[string]T), onDup: onDup, onNX: onNX}
}

func (d *AltDict[T]) Set(key string, val T) error {
	if _, exists := d.byKey[key]; exists {
		if d.onDup != nil {
			return d.onDup(key)
		}
	} else {
		d.order = append(d.order, key)
	}
	d.byKey[key] = val
	return nil
}

func (d *AltDict[T]) Get(key string) (T, error) {
	v, ok := d.byKey[key]
	if !ok {
		var zero T
		if d.onNX != nil {
			return zero, d.onNX(key)
		}
		return zero, fmt.Errorf("key not found: %s", key)
	}
	return v, nil
}

func (d *AltDict[T]) Has(key string) bool {
	_, ok := d.byKey[key]
	return ok
}

func (d *AltDict[T]) Delete(key string) {
	if _, ok := d.byKey[key]; !ok {
		return
	}
	delete(d.byKey, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// InOrder returns values in insertion order, the way Table.columns_in_order
// walks its AltDict of columns.
func (d *AltDict[T]) InOrder() []T {
	out := make([]T, 0, len(d.order))
	for _, k := range d.order {
		out = append(out, d.byKey[k])
	}
	return out
}

func (d *AltDict[T]) Len() int { return len(d.order) }

// Model is the immutable-per-request snapshot of an entire catalog: every
// schema, table, column, key, and fkey, reachable both by name (for the
// public API) and by RID (for O(1) cross-reference resolution and for the
// metadata store's aux-table joins).
type Model struct {
	Annotated

	CatalogID string
	Amended   time.Time // when this snapshot was introspected; _ermrest.model_last_modified is not read

	Types *Registry

	schemas      *AltDict[*Schema]
	schemasByRID map[RID]*Schema
	tablesByRID  map[RID]*Table
	columnsByRID map[RID]*Column
	uniqueByRID  map[RID]*Unique
	fkeyByRID    map[RID]*ForeignKey

	// hiddenSchemas are introspected but excluded from the public schema
	// listing (spec.md: "_ermrest"/"pg_catalog" are hidden, not deleted).
	hiddenSchemas map[string]bool
}

func NewModel(catalogID string) *Model {
	m := &Model{
		CatalogID:     catalogID,
		Types:         NewRegistry(),
		schemasByRID:  make(map[RID]*Schema),
		tablesByRID:   make(map[RID]*Table),
		columnsByRID:  make(map[RID]*Column),
		uniqueByRID:   make(map[RID]*Unique),
		fkeyByRID:     make(map[RID]*ForeignKey),
		hiddenSchemas: map[string]bool{"_ermrest": true, "pg_catalog": true, "information_schema": true, "pg_toast": true},
	}
	m.schemas = NewAltDict[*Schema](
		func(key string) error { return fmt.Errorf("conflict: schema %q already exists", key) },
		func(key string) error { return fmt.Errorf("not found: schema %q", key) },
	)
	return m
}

// ResourceRID, ResourceKind, Parent, Acl, and Dynacls make *Model implement
// Resource: the root of the authorization tree's parent chain, one level
// above every Schema. It has no dynamic ACL bindings (spec.md scopes those
// to schema and below) and no parent of its own.
func (m *Model) ResourceRID() RID          { return RID(m.CatalogID + ":catalog") }
func (m *Model) ResourceKind() string      { return "catalog" }
func (m *Model) Parent() Resource          { return nil }
func (m *Model) Acl() StaticACL            { return m.ACL }
func (m *Model) Dynacls() []*DynaclBinding { return nil }

// AddSchema interns a new schema into the arena under a stable RID (derived
// from the backing pg_namespace OID by the introspector).
func (m *Model) AddSchema(name string, rid RID) (*Schema, error) {
	s := &Schema{RID: rid, Model: m, Name: name}
	s.tables = NewAltDict[*Table](
		func(key string) error { return fmt.Errorf("conflict: table %q already exists in schema %q", key, name) },
		func(key string) error { return fmt.Errorf("not found: table %q in schema %q", key, name) },
	)
	if err := m.schemas.Set(name, s); err != nil {
		return nil, err
	}
	m.schemasByRID[s.RID] = s
	return s, nil
}

// Schema looks up a schema by name amongst the *visible* (non-hidden) set.
func (m *Model) Schema(name string) (*Schema, error) {
	if m.hiddenSchemas[name] {
		return nil, fmt.Errorf("not found: schema %q", name)
	}
	return m.schemas.Get(name)
}

// SchemaIncludingHidden looks up any schema, visible or not — used by
// administrative tooling and by the introspector itself while bootstrapping
// the auxiliary metadata tables in "_ermrest".
func (m *Model) SchemaIncludingHidden(name string) (*Schema, error) {
	return m.schemas.Get(name)
}

func (m *Model) Schemas() []*Schema {
	out := make([]*Schema, 0, m.schemas.Len())
	for _, s := range m.schemas.InOrder() {
		if !m.hiddenSchemas[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

func (m *Model) SchemaByRID(rid RID) (*Schema, bool) { s, ok := m.schemasByRID[rid]; return s, ok }
func (m *Model) TableByRID(rid RID) (*Table, bool)   { t, ok := m.tablesByRID[rid]; return t, ok }
func (m *Model) ColumnByRID(rid RID) (*Column, bool) { c, ok := m.columnsByRID[rid]; return c, ok }
func (m *Model) UniqueByRID(rid RID) (*Unique, bool) { u, ok := m.uniqueByRID[rid]; return u, ok }
func (m *Model) FKeyByRID(rid RID) (*ForeignKey, bool) {
	f, ok := m.fkeyByRID[rid]
	return f, ok
}

// CheckPrimaryKeys enforces invariant I-3 from spec.md: every table must
// have at least one non-nullable unique key (real or pseudo), unless the
// caller has explicitly relaxed that with RequirePrimaryKeys=false.
func (m *Model) CheckPrimaryKeys(requirePrimaryKeys bool) error {
	if !requirePrimaryKeys {
		return nil
	}
	for _, s := range m.schemas.InOrder() {
		for _, t := range s.tables.InOrder() {
			if !t.HasPrimaryKey() {
				return fmt.Errorf("table %s.%s has no primary key", s.Name, t.Name)
			}
		}
	}
	return nil
}
