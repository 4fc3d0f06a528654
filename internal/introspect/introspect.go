// Package introspect implements the introspector (C4): a single-pass,
// single-transaction walk of PostgreSQL's system catalogs (pg_namespace,
// pg_class, pg_attribute, pg_attrdef, pg_constraint) plus the "_ermrest"
// auxiliary metadata tables (via metastore), producing one immutable
// model.Model snapshot. The query shape — one plain query per system
// catalog, each read once per introspection — is grounded in the teacher's
// pkg/richcatalog.introspect technique, generalized from columns/PK/
// index/FK coverage to the full schema/type/table/key/fkey/dynacl surface
// ERMrest's catalog model needs.
package introspect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ytfqj/ermrest/internal/ermerr"
	"github.com/ytfqj/ermrest/internal/metastore"
	"github.com/ytfqj/ermrest/internal/model"
)

// Options configures one introspection pass.
type Options struct {
	// RequirePrimaryKeys, when true, fails introspection fatally if any
	// table lacks an addressable key (invariant I-3). When false, such
	// tables are kept as they are, with no flag or warning recorded,
	// matching the original's configurable leniency for legacy databases.
	RequirePrimaryKeys bool
}

type Introspector struct {
	Pool  *pgxpool.Pool
	Store *metastore.Store
	Opts  Options
}

func New(pool *pgxpool.Pool, store *metastore.Store, opts Options) *Introspector {
	return &Introspector{Pool: pool, Store: store, Opts: opts}
}

type typeRow struct {
	oid        uint32
	name       string
	typtype    string
	typelem    uint32
	typbasetype uint32
}

// Introspect runs the full single-pass introspection described in
// spec.md section 4.4 inside one transaction, so the resulting Model is a
// consistent snapshot of the catalog at a single point in time (section 5's
// "readers reintrospect between requests, never mid-request").
func (in *Introspector) Introspect(ctx context.Context, catalogID string) (*model.Model, error) {
	tx, err := in.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, ermerr.Runtime(err, "beginning introspection transaction")
	}
	defer tx.Rollback(ctx)

	m := model.NewModel(catalogID)

	types, err := loadTypes(ctx, tx)
	if err != nil {
		return nil, err
	}
	typeCache := make(map[uint32]*model.Type)
	resolveType := func(oid uint32) *model.Type { return resolveTypeRec(m, types, typeCache, oid) }

	schemaByOID, err := loadSchemas(ctx, tx, m)
	if err != nil {
		return nil, err
	}

	tableByOID, err := loadTables(ctx, tx, m, schemaByOID)
	if err != nil {
		return nil, err
	}

	colByRelAttnum, err := loadColumns(ctx, tx, catalogID, tableByOID, resolveType, in.Opts)
	if err != nil {
		return nil, err
	}

	uniqueByOID, err := loadRealKeys(ctx, tx, catalogID, tableByOID, colByRelAttnum)
	if err != nil {
		return nil, err
	}

	if err := loadPseudoKeys(ctx, in.Store.Pool, m, tableByOID, colByRelAttnum); err != nil {
		return nil, err
	}

	if err := loadRealForeignKeys(ctx, tx, catalogID, tableByOID, colByRelAttnum, uniqueByOID); err != nil {
		return nil, err
	}

	if err := loadPseudoForeignKeys(ctx, in.Store.Pool, m, tableByOID, colByRelAttnum); err != nil {
		return nil, err
	}

	if err := attachMetadata(ctx, in.Store, m); err != nil {
		return nil, err
	}

	if err := m.CheckPrimaryKeys(in.Opts.RequirePrimaryKeys); err != nil {
		return nil, ermerr.ConflictModel("%v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, ermerr.Runtime(err, "committing introspection transaction")
	}
	m.Amended = time.Now()
	return m, nil
}

func loadTypes(ctx context.Context, tx pgx.Tx) (map[uint32]typeRow, error) {
	rows, err := tx.Query(ctx, `SELECT oid, typname, typtype, typelem, typbasetype FROM pg_type`)
	if err != nil {
		return nil, ermerr.Runtime(err, "loading pg_type")
	}
	defer rows.Close()
	out := make(map[uint32]typeRow)
	for rows.Next() {
		var r typeRow
		if err := rows.Scan(&r.oid, &r.name, &r.typtype, &r.typelem, &r.typbasetype); err != nil {
			return nil, ermerr.Runtime(err, "scanning pg_type row")
		}
		out[r.oid] = r
	}
	return out, rows.Err()
}

func resolveTypeRec(m *model.Model, types map[uint32]typeRow, cache map[uint32]*model.Type, oid uint32) *model.Type {
	if t, ok := cache[oid]; ok {
		return t
	}
	row, ok := types[oid]
	if !ok {
		t := m.Types.Base(fmt.Sprintf("unknown_%d", oid))
		cache[oid] = t
		return t
	}
	var t *model.Type
	switch {
	case row.typtype == "d" && row.typbasetype != 0:
		base := resolveTypeRec(m, types, cache, row.typbasetype)
		t = m.Types.Domain(row.name, base)
	case row.typelem != 0 && strings.HasPrefix(row.name, "_"):
		elem := resolveTypeRec(m, types, cache, row.typelem)
		t = m.Types.Array(row.name, elem)
	default:
		t = m.Types.Base(row.name)
	}
	cache[oid] = t
	return t
}

func loadSchemas(ctx context.Context, tx pgx.Tx, m *model.Model) (map[uint32]*model.Schema, error) {
	rows, err := tx.Query(ctx, `
		SELECT oid, nspname FROM pg_namespace
		WHERE nspname NOT LIKE 'pg\_temp\_%' AND nspname NOT LIKE 'pg\_toast\_temp\_%'
		ORDER BY nspname`)
	if err != nil {
		return nil, ermerr.Runtime(err, "loading pg_namespace")
	}
	defer rows.Close()

	out := make(map[uint32]*model.Schema)
	for rows.Next() {
		var oid uint32
		var name string
		if err := rows.Scan(&oid, &name); err != nil {
			return nil, ermerr.Runtime(err, "scanning pg_namespace row")
		}
		rid := model.RID(fmt.Sprintf("%s:schema:%d", m.CatalogID, oid))
		s, err := m.AddSchema(name, rid)
		if err != nil {
			return nil, ermerr.Runtime(err, "interning schema %q", name)
		}
		out[oid] = s
	}
	return out, rows.Err()
}

func loadTables(ctx context.Context, tx pgx.Tx, m *model.Model, schemaByOID map[uint32]*model.Schema) (map[uint32]*model.Table, error) {
	rows, err := tx.Query(ctx, `
		SELECT c.oid, c.relnamespace, c.relname, c.relkind
		FROM pg_class c
		WHERE c.relkind IN ('r','v','f','p','m')
		ORDER BY c.relnamespace, c.relname`)
	if err != nil {
		return nil, ermerr.Runtime(err, "loading pg_class")
	}
	defer rows.Close()

	out := make(map[uint32]*model.Table)
	for rows.Next() {
		var oid, nsoid uint32
		var name, relkind string
		if err := rows.Scan(&oid, &nsoid, &name, &relkind); err != nil {
			return nil, ermerr.Runtime(err, "scanning pg_class row")
		}
		sch, ok := schemaByOID[nsoid]
		if !ok {
			continue
		}
		kind := model.TableKindTable
		switch relkind {
		case "v", "m":
			kind = model.TableKindView
		case "f":
			kind = model.TableKindForeign
		}
		rid := model.RID(fmt.Sprintf("%s:table:%d", m.CatalogID, oid))
		t, err := sch.AddTable(name, kind, rid)
		if err != nil {
			return nil, ermerr.Runtime(err, "interning table %q", name)
		}
		out[oid] = t
	}
	return out, rows.Err()
}

type colRef struct {
	col    *model.Column
	relOID uint32
	attnum int16
}

func loadColumns(ctx context.Context, tx pgx.Tx, catalogID string, tableByOID map[uint32]*model.Table, resolveType func(uint32) *model.Type, opts Options) (map[[2]any]*colRef, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.attrelid, a.attname, a.attnum, a.atttypid, a.attnotnull,
		       pg_get_expr(ad.adbin, ad.adrelid) AS default_expr
		FROM pg_attribute a
		LEFT JOIN pg_attrdef ad ON ad.adrelid = a.attrelid AND ad.adnum = a.attnum
		WHERE a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attrelid, a.attnum`)
	if err != nil {
		return nil, ermerr.Runtime(err, "loading pg_attribute")
	}
	defer rows.Close()

	out := make(map[[2]any]*colRef)
	for rows.Next() {
		var relOID uint32
		var name string
		var attnum int16
		var typOID uint32
		var notnull bool
		var defaultExpr *string
		if err := rows.Scan(&relOID, &name, &attnum, &typOID, &notnull, &defaultExpr); err != nil {
			return nil, ermerr.Runtime(err, "scanning pg_attribute row")
		}
		t, ok := tableByOID[relOID]
		if !ok {
			continue
		}
		typ := resolveType(typOID)
		var lit any
		hasDefault := false
		if defaultExpr != nil {
			if v, ok := t.Schema.Model.Types.DefaultValue(typ, *defaultExpr, true); ok {
				lit, hasDefault = v, true
			}
		}
		rid := model.RID(fmt.Sprintf("%s:column:%d:%d", catalogID, relOID, attnum))
		c, err := t.AddColumn(rid, name, typ, !notnull, lit, hasDefault)
		if err != nil {
			return nil, ermerr.Runtime(err, "interning column %q on table %q", name, t.Name)
		}
		out[[2]any{relOID, attnum}] = &colRef{col: c, relOID: relOID, attnum: attnum}
	}
	return out, rows.Err()
}

func loadRealKeys(ctx context.Context, tx pgx.Tx, catalogID string, tableByOID map[uint32]*model.Table, cols map[[2]any]*colRef) (map[uint32]*model.Unique, error) {
	rows, err := tx.Query(ctx, `
		SELECT oid, conrelid, conname, conkey
		FROM pg_constraint
		WHERE contype IN ('u','p') AND conrelid != 0`)
	if err != nil {
		return nil, ermerr.Runtime(err, "loading pg_constraint (keys)")
	}
	defer rows.Close()

	out := make(map[uint32]*model.Unique)
	for rows.Next() {
		var oid, conrelid uint32
		var conname string
		var conkey []int16
		if err := rows.Scan(&oid, &conrelid, &conname, &conkey); err != nil {
			return nil, ermerr.Runtime(err, "scanning pg_constraint (key) row")
		}
		t, ok := tableByOID[conrelid]
		if !ok {
			continue
		}
		keyCols, ok := resolveColset(cols, conrelid, conkey)
		if !ok {
			continue
		}
		rid := model.RID(fmt.Sprintf("%s:key:%d", catalogID, oid))
		u, err := t.AddUnique(rid, keyCols, conname, false)
		if err != nil {
			return nil, ermerr.Runtime(err, "interning key %q on table %q", conname, t.Name)
		}
		out[oid] = u
	}
	return out, rows.Err()
}

func resolveColset(cols map[[2]any]*colRef, relOID uint32, attnums []int16) ([]*model.Column, bool) {
	out := make([]*model.Column, len(attnums))
	for i, a := range attnums {
		ref, ok := cols[[2]any{relOID, a}]
		if !ok {
			return nil, false
		}
		out[i] = ref.col
	}
	return out, true
}

func loadRealForeignKeys(ctx context.Context, tx pgx.Tx, catalogID string, tableByOID map[uint32]*model.Table, cols map[[2]any]*colRef, uniques map[uint32]*model.Unique) error {
	rows, err := tx.Query(ctx, `
		SELECT oid, conrelid, conname, conkey, confrelid, confkey
		FROM pg_constraint
		WHERE contype = 'f'`)
	if err != nil {
		return ermerr.Runtime(err, "loading pg_constraint (fkeys)")
	}
	defer rows.Close()

	for rows.Next() {
		var oid, conrelid, confrelid uint32
		var conname string
		var conkey, confkey []int16
		if err := rows.Scan(&oid, &conrelid, &conname, &conkey, &confrelid, &confkey); err != nil {
			return ermerr.Runtime(err, "scanning pg_constraint (fkey) row")
		}
		t, ok := tableByOID[conrelid]
		if !ok {
			continue
		}
		reft, ok := tableByOID[confrelid]
		if !ok {
			continue
		}
		fkCols, ok := resolveColset(cols, conrelid, conkey)
		if !ok {
			continue
		}
		refCols, ok := resolveColset(cols, confrelid, confkey)
		if !ok {
			continue
		}
		refUnique := findMatchingUnique(reft, refCols)
		if refUnique == nil {
			continue
		}
		rid := model.RID(fmt.Sprintf("%s:fkey:%d", catalogID, oid))
		if _, err := t.AddForeignKey(rid, fkCols, refUnique, conname, false); err != nil {
			return ermerr.Runtime(err, "interning foreign key %q on table %q", conname, t.Name)
		}
	}
	return rows.Err()
}

func findMatchingUnique(t *model.Table, cols []*model.Column) *model.Unique {
	want := make(map[string]bool, len(cols))
	for _, c := range cols {
		want[c.Name] = true
	}
	for _, u := range t.Uniques() {
		if len(u.Columns) != len(cols) {
			continue
		}
		ok := true
		for _, c := range u.Columns {
			if !want[c.Name] {
				ok = false
				break
			}
		}
		if ok {
			return u
		}
	}
	return nil
}

// loadPseudoKeys attaches administrator-asserted keys from
// "_ermrest.model_pseudo_key" that have no backing RDBMS constraint.
func loadPseudoKeys(ctx context.Context, pool *pgxpool.Pool, m *model.Model, tableByOID map[uint32]*model.Table, cols map[[2]any]*colRef) error {
	rows, err := pool.Query(ctx, `SELECT rid, schema_name, table_name, unique_columns FROM _ermrest.model_pseudo_key`)
	if err != nil {
		return ermerr.Runtime(err, "loading pseudo keys")
	}
	defer rows.Close()

	for rows.Next() {
		var rid, schemaName, tableName string
		var colsJSON []byte
		if err := rows.Scan(&rid, &schemaName, &tableName, &colsJSON); err != nil {
			return ermerr.Runtime(err, "scanning pseudo key row")
		}
		var colNames []string
		if err := json.Unmarshal(colsJSON, &colNames); err != nil {
			return ermerr.Runtime(err, "decoding pseudo key columns")
		}
		sch, err := m.SchemaIncludingHidden(schemaName)
		if err != nil {
			continue
		}
		t, err := sch.Table(tableName)
		if err != nil {
			continue
		}
		keyCols := make([]*model.Column, 0, len(colNames))
		for _, cn := range colNames {
			c, err := t.Column(cn)
			if err != nil {
				continue
			}
			keyCols = append(keyCols, c)
		}
		if len(keyCols) != len(colNames) {
			continue
		}
		if _, err := t.AddUnique(model.RID(rid), keyCols, "", true); err != nil {
			return ermerr.Runtime(err, "interning pseudo key on table %q", tableName)
		}
	}
	return rows.Err()
}

// loadPseudoForeignKeys attaches administrator-asserted foreign keys from
// "_ermrest.model_pseudo_fkey".
func loadPseudoForeignKeys(ctx context.Context, pool *pgxpool.Pool, m *model.Model, tableByOID map[uint32]*model.Table, cols map[[2]any]*colRef) error {
	rows, err := pool.Query(ctx, `
		SELECT rid, from_schema, from_table, from_columns, to_schema, to_table, to_columns
		FROM _ermrest.model_pseudo_fkey`)
	if err != nil {
		return ermerr.Runtime(err, "loading pseudo fkeys")
	}
	defer rows.Close()

	for rows.Next() {
		var rid, fromSchema, fromTable, toSchema, toTable string
		var fromColsJSON, toColsJSON []byte
		if err := rows.Scan(&rid, &fromSchema, &fromTable, &fromColsJSON, &toSchema, &toTable, &toColsJSON); err != nil {
			return ermerr.Runtime(err, "scanning pseudo fkey row")
		}
		var fromNames, toNames []string
		if err := json.Unmarshal(fromColsJSON, &fromNames); err != nil {
			return ermerr.Runtime(err, "decoding pseudo fkey from_columns")
		}
		if err := json.Unmarshal(toColsJSON, &toNames); err != nil {
			return ermerr.Runtime(err, "decoding pseudo fkey to_columns")
		}

		fromSch, err := m.SchemaIncludingHidden(fromSchema)
		if err != nil {
			continue
		}
		fromTbl, err := fromSch.Table(fromTable)
		if err != nil {
			continue
		}
		toSch, err := m.SchemaIncludingHidden(toSchema)
		if err != nil {
			continue
		}
		toTbl, err := toSch.Table(toTable)
		if err != nil {
			continue
		}

		fkCols := resolveNamedCols(fromTbl, fromNames)
		refCols := resolveNamedCols(toTbl, toNames)
		if len(fkCols) != len(fromNames) || len(refCols) != len(toNames) {
			continue
		}
		refUnique := findMatchingUnique(toTbl, refCols)
		if refUnique == nil {
			continue
		}
		if _, err := fromTbl.AddForeignKey(model.RID(rid), fkCols, refUnique, "", true); err != nil {
			return ermerr.Runtime(err, "interning pseudo fkey on table %q", fromTable)
		}
	}
	return rows.Err()
}

func resolveNamedCols(t *model.Table, names []string) []*model.Column {
	out := make([]*model.Column, 0, len(names))
	for _, n := range names {
		c, err := t.Column(n)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

// attachMetadata loads every annotation/acl/dynacl row for every resource
// kind and binds it onto the already-interned resources by RID.
func attachMetadata(ctx context.Context, store *metastore.Store, m *model.Model) error {
	if err := attachCatalogMetadata(ctx, store, m); err != nil {
		return err
	}
	if err := attachSchemaMetadata(ctx, store, m); err != nil {
		return err
	}
	if err := attachTableMetadata(ctx, store, m); err != nil {
		return err
	}
	if err := attachColumnMetadata(ctx, store, m); err != nil {
		return err
	}
	if err := attachFKeyMetadata(ctx, store, m); err != nil {
		return err
	}
	return nil
}

// attachCatalogMetadata loads the catalog-level (Model) annotation/ACL rows,
// keyed by the catalog's own RID rather than any pg_namespace/pg_class OID —
// there is exactly one row set per catalog, so this is a lookup rather than
// a per-resource loop like the schema/table/column/fkey variants below.
func attachCatalogMetadata(ctx context.Context, store *metastore.Store, m *model.Model) error {
	anns, err := store.LoadAnnotations(ctx, metastore.KindCatalog)
	if err != nil {
		return err
	}
	acls, err := store.LoadACLs(ctx, metastore.KindCatalog)
	if err != nil {
		return err
	}
	if a, ok := anns[m.ResourceRID()]; ok {
		m.AnnotationMap = a
	}
	if a, ok := acls[m.ResourceRID()]; ok {
		m.ACL = a
	}
	return nil
}

func attachSchemaMetadata(ctx context.Context, store *metastore.Store, m *model.Model) error {
	anns, err := store.LoadAnnotations(ctx, metastore.KindSchema)
	if err != nil {
		return err
	}
	acls, err := store.LoadACLs(ctx, metastore.KindSchema)
	if err != nil {
		return err
	}
	for _, s := range allSchemasIncludingHidden(m) {
		if a, ok := anns[s.RID]; ok {
			s.AnnotationMap = a
		}
		if a, ok := acls[s.RID]; ok {
			s.ACL = a
		}
	}
	return nil
}

func attachTableMetadata(ctx context.Context, store *metastore.Store, m *model.Model) error {
	anns, err := store.LoadAnnotations(ctx, metastore.KindTable)
	if err != nil {
		return err
	}
	acls, err := store.LoadACLs(ctx, metastore.KindTable)
	if err != nil {
		return err
	}
	dynacls, err := store.LoadDynacls(ctx, metastore.KindTable)
	if err != nil {
		return err
	}
	for _, s := range allSchemasIncludingHidden(m) {
		for _, t := range s.Tables() {
			if a, ok := anns[t.RID]; ok {
				t.AnnotationMap = a
			}
			if a, ok := acls[t.RID]; ok {
				t.ACL = a
			}
			if d, ok := dynacls[t.RID]; ok {
				t.Dynacl = d
			}
		}
	}
	return nil
}

func attachColumnMetadata(ctx context.Context, store *metastore.Store, m *model.Model) error {
	anns, err := store.LoadAnnotations(ctx, metastore.KindColumn)
	if err != nil {
		return err
	}
	acls, err := store.LoadACLs(ctx, metastore.KindColumn)
	if err != nil {
		return err
	}
	dynacls, err := store.LoadDynacls(ctx, metastore.KindColumn)
	if err != nil {
		return err
	}
	for _, s := range allSchemasIncludingHidden(m) {
		for _, t := range s.Tables() {
			for _, c := range t.ColumnsInOrder() {
				if a, ok := anns[c.RID]; ok {
					c.AnnotationMap = a
				}
				if a, ok := acls[c.RID]; ok {
					c.ACL = a
				}
				if d, ok := dynacls[c.RID]; ok {
					c.Dynacl = d
				}
			}
		}
	}
	return nil
}

func attachFKeyMetadata(ctx context.Context, store *metastore.Store, m *model.Model) error {
	anns, err := store.LoadAnnotations(ctx, metastore.KindForeignKey)
	if err != nil {
		return err
	}
	acls, err := store.LoadACLs(ctx, metastore.KindForeignKey)
	if err != nil {
		return err
	}
	dynacls, err := store.LoadDynacls(ctx, metastore.KindForeignKey)
	if err != nil {
		return err
	}
	for _, s := range allSchemasIncludingHidden(m) {
		for _, t := range s.Tables() {
			for _, fk := range t.ForeignKeys() {
				if a, ok := anns[fk.RID]; ok {
					fk.AnnotationMap = a
				}
				if a, ok := acls[fk.RID]; ok {
					fk.ACL = a
				}
				if d, ok := dynacls[fk.RID]; ok {
					fk.Dynacl = d
				}
			}
		}
	}
	return nil
}

func allSchemasIncludingHidden(m *model.Model) []*model.Schema {
	out := m.Schemas()
	for _, hidden := range []string{"_ermrest", "pg_catalog", "information_schema", "pg_toast"} {
		if s, err := m.SchemaIncludingHidden(hidden); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Checksum deterministically fingerprints a Model's public surface so
// callers can detect "nothing changed" without a full structural diff,
// grounded in the teacher's richcatalog.Snapshot.Checksum technique.
func Checksum(m *model.Model) (string, error) {
	type colSig struct {
		Name   string
		Type   string
		Nullok bool
	}
	type tableSig struct {
		Name    string
		Kind    string
		Columns []colSig
	}
	type schemaSig struct {
		Name   string
		Tables []tableSig
	}
	var sigs []schemaSig
	for _, s := range m.Schemas() {
		var tsigs []tableSig
		for _, t := range s.Tables() {
			var csigs []colSig
			for _, c := range t.ColumnsInOrder() {
				csigs = append(csigs, colSig{Name: c.Name, Type: c.Type.Name, Nullok: c.Nullok})
			}
			tsigs = append(tsigs, tableSig{Name: t.Name, Kind: t.Kind, Columns: csigs})
		}
		sort.Slice(tsigs, func(i, j int) bool { return tsigs[i].Name < tsigs[j].Name })
		sigs = append(sigs, schemaSig{Name: s.Name, Tables: tsigs})
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Name < sigs[j].Name })

	b, err := json.Marshal(sigs)
	if err != nil {
		return "", ermerr.Runtime(err, "encoding model checksum input")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
