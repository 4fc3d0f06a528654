// Package metastore implements the metadata store (C3): idempotent
// upsert/delete of annotations, static ACLs, and dynamic ACL bindings into
// the "_ermrest.model_<restype>_<kind>" auxiliary tables, and bulk loaders
// the introspector uses to attach that metadata back onto a freshly-built
// model.Model.
package metastore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ytfqj/ermrest/internal/ermerr"
	"github.com/ytfqj/ermrest/internal/model"
)

// resourceKind enumerates the restype family each aux table is keyed for.
const (
	KindCatalog    = "catalog"
	KindSchema     = "schema"
	KindTable      = "table"
	KindColumn     = "column"
	KindForeignKey = "foreign_key"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func auxTable(kind, family string) string {
	return fmt.Sprintf("_ermrest.model_%s_%s", kind, family)
}

// UpsertAnnotation sets (or replaces) one annotation URI's JSON value on a
// resource, idempotently: UPDATE first (so a concurrent writer's earlier
// row isn't clobbered into a duplicate), falling back to INSERT only when
// no row existed, exactly as the original's _introspect_helper upsert
// pattern does for every aux table family.
func (s *Store) UpsertAnnotation(ctx context.Context, kind string, rid model.RID, uri string, value any) error {
	tbl := auxTable(kind, "annotation")
	payload, err := json.Marshal(value)
	if err != nil {
		return ermerr.BadData("annotation value is not valid JSON: %v", err)
	}
	return s.upsert(ctx, tbl, "annotation_uri", uri, rid, payload)
}

func (s *Store) DeleteAnnotation(ctx context.Context, kind string, rid model.RID, uri string) error {
	tbl := auxTable(kind, "annotation")
	return s.delete(ctx, tbl, "annotation_uri", uri, rid)
}

// UpsertACL sets the role list for one ACL name on a resource. Any slice,
// including nil or empty, is stored as an explicit grant list (nil and
// empty both grant nobody); DeleteACL is what clears the override so the
// resource falls back to inheritance.
func (s *Store) UpsertACL(ctx context.Context, kind string, rid model.RID, aclname string, roles []string) error {
	tbl := auxTable(kind, "acl")
	payload, err := json.Marshal(roles)
	if err != nil {
		return ermerr.Runtime(err, "encoding acl roles")
	}
	return s.upsert(ctx, tbl, "acl", aclname, rid, payload)
}

func (s *Store) DeleteACL(ctx context.Context, kind string, rid model.RID, aclname string) error {
	tbl := auxTable(kind, "acl")
	return s.delete(ctx, tbl, "acl", aclname, rid)
}

// bindingRow is the on-disk shape of one dynacl binding definition.
type bindingRow struct {
	Projection     []model.ProjectionElement `json:"projection"`
	ProjectionType string                    `json:"projection_type"`
	Types          []string                  `json:"types"`
}

func (s *Store) UpsertDynaclBinding(ctx context.Context, kind string, rid model.RID, name string, b *model.DynaclBinding) error {
	tbl := auxTable(kind, "dynacl")
	pt := "acl"
	if b.ProjectionType == model.ProjectionNonNull {
		pt = "nonnull"
	}
	row := bindingRow{Projection: b.Projection, ProjectionType: pt, Types: b.Types}
	payload, err := json.Marshal(row)
	if err != nil {
		return ermerr.Runtime(err, "encoding dynacl binding")
	}
	return s.upsert(ctx, tbl, "binding_name", name, rid, payload)
}

func (s *Store) DeleteDynaclBinding(ctx context.Context, kind string, rid model.RID, name string) error {
	tbl := auxTable(kind, "dynacl")
	return s.delete(ctx, tbl, "binding_name", name, rid)
}

// upsert performs the UPDATE-first, INSERT-if-empty idempotent write every
// aux table family shares: (rid, key) is the composite primary key, value
// is the opaque jsonb payload.
func (s *Store) upsert(ctx context.Context, table, keyCol, key string, rid model.RID, value []byte) error {
	tag, err := s.Pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET value = $1 WHERE rid = $2 AND %s = $3`, table, keyCol),
		value, string(rid), key,
	)
	if err != nil {
		return ermerr.Runtime(err, "updating %s", table)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	_, err = s.Pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (rid, %s, value) VALUES ($1, $2, $3)`, table, keyCol),
		string(rid), key, value,
	)
	if err != nil {
		return ermerr.Runtime(err, "inserting into %s", table)
	}
	return nil
}

// delete removes one (rid, key) row; deleting with an empty key purges
// every row for rid, matching the original's "delete-all" convenience when
// no specific aclname/uri/binding name is given.
func (s *Store) delete(ctx context.Context, table, keyCol, key string, rid model.RID) error {
	var err error
	if key == "" {
		_, err = s.Pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE rid = $1`, table), string(rid))
	} else {
		_, err = s.Pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE rid = $1 AND %s = $2`, table, keyCol), string(rid), key)
	}
	if err != nil {
		return ermerr.Runtime(err, "deleting from %s", table)
	}
	return nil
}

// LoadAnnotations bulk-loads every annotation row for kind, grouped by RID,
// for the introspector to attach onto freshly-interned resources.
func (s *Store) LoadAnnotations(ctx context.Context, kind string) (map[model.RID]map[string]any, error) {
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`SELECT rid, annotation_uri, value FROM %s`, auxTable(kind, "annotation")))
	if err != nil {
		return nil, ermerr.Runtime(err, "loading %s annotations", kind)
	}
	defer rows.Close()

	out := make(map[model.RID]map[string]any)
	for rows.Next() {
		var rid, uri string
		var raw []byte
		if err := rows.Scan(&rid, &uri, &raw); err != nil {
			return nil, ermerr.Runtime(err, "scanning annotation row")
		}
		var val any
		if err := json.Unmarshal(raw, &val); err != nil {
			return nil, ermerr.Runtime(err, "decoding annotation value")
		}
		if out[model.RID(rid)] == nil {
			out[model.RID(rid)] = make(map[string]any)
		}
		out[model.RID(rid)][uri] = val
	}
	return out, rows.Err()
}

func (s *Store) LoadACLs(ctx context.Context, kind string) (map[model.RID]model.StaticACL, error) {
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`SELECT rid, acl, value FROM %s`, auxTable(kind, "acl")))
	if err != nil {
		return nil, ermerr.Runtime(err, "loading %s acls", kind)
	}
	defer rows.Close()

	out := make(map[model.RID]model.StaticACL)
	for rows.Next() {
		var rid, aclname string
		var raw []byte
		if err := rows.Scan(&rid, &aclname, &raw); err != nil {
			return nil, ermerr.Runtime(err, "scanning acl row")
		}
		var roles []string
		if err := json.Unmarshal(raw, &roles); err != nil {
			return nil, ermerr.Runtime(err, "decoding acl roles")
		}
		if out[model.RID(rid)] == nil {
			out[model.RID(rid)] = make(model.StaticACL)
		}
		out[model.RID(rid)][aclname] = roles
	}
	return out, rows.Err()
}

func (s *Store) LoadDynacls(ctx context.Context, kind string) (map[model.RID][]*model.DynaclBinding, error) {
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`SELECT rid, binding_name, value FROM %s`, auxTable(kind, "dynacl")))
	if err != nil {
		return nil, ermerr.Runtime(err, "loading %s dynacls", kind)
	}
	defer rows.Close()

	out := make(map[model.RID][]*model.DynaclBinding)
	for rows.Next() {
		var rid, name string
		var raw []byte
		if err := rows.Scan(&rid, &name, &raw); err != nil {
			return nil, ermerr.Runtime(err, "scanning dynacl row")
		}
		var row bindingRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, ermerr.Runtime(err, "decoding dynacl binding")
		}
		pt := model.ProjectionACL
		if row.ProjectionType == "nonnull" {
			pt = model.ProjectionNonNull
		}
		binding := &model.DynaclBinding{
			Name:           name,
			Projection:     row.Projection,
			ProjectionType: pt,
			Types:          row.Types,
		}
		out[model.RID(rid)] = append(out[model.RID(rid)], binding)
	}
	return out, rows.Err()
}

// ErrNoRows re-exports pgx.ErrNoRows so callers that do single-row lookups
// elsewhere in this package's API don't need to import pgx themselves.
var ErrNoRows = pgx.ErrNoRows
