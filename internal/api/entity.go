package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/ytfqj/ermrest/internal/authz"
	"github.com/ytfqj/ermrest/internal/ermerr"
	"github.com/ytfqj/ermrest/internal/ermpath"
	"github.com/ytfqj/ermrest/internal/model"
	"github.com/ytfqj/ermrest/internal/reqcontext"
)

// GetEntity serves GET /ermrest/catalog/{cid}/entity/{sname}/{tname}: every
// row of the table the caller may select, filtered by "col=value" equality
// query parameters, with the dynamic-ACL row gate AND-ed into the WHERE
// clause by authz.CompileRowGate exactly the way section 4.6 describes.
// Column-range/regexp/attributegroup path operators are Non-goals for this
// handler; the ermpath predicate types that implement them are exercised
// directly by the ermpath package's own tests.
func (s *Server) GetEntity(w http.ResponseWriter, r *http.Request) {
	rc, err := s.rcFor(r, chi.URLParam(r, "cid"))
	if err != nil {
		writeError(w, err)
		return
	}
	table, err := resolveTable(rc.Model, chi.URLParam(r, "sname"), chi.URLParam(r, "tname"))
	if err != nil {
		writeError(w, ermerr.NotFound("%v", err))
		return
	}

	if authz.HasRight(rc, table, "select") == reqcontext.Deny {
		writeError(w, ermerr.Forbidden("not permitted to select from table %q", table.Name))
		return
	}

	path := ermpath.NewEntityPath(rc.Model)
	if err := path.SetBaseEntity(table); err != nil {
		writeError(w, ermerr.Runtime(err, "building entity path"))
		return
	}

	// Section 4.6: every predicate's left column must itself carry the
	// select right, on top of the table-level check above.
	path.SelectCheck = func(col *model.Column) error {
		if authz.HasRight(rc, col, "select") == reqcontext.Deny {
			return ermerr.Forbidden("not permitted to select column %q", col.Name)
		}
		return nil
	}

	for col, vals := range r.URL.Query() {
		if !table.HasColumn(col) || len(vals) == 0 {
			continue
		}
		if err := path.AddFilter(&ermpath.Binary{Column: col, Op: ermpath.OpEqual, Value: vals[0]}); err != nil {
			if ee, ok := err.(*ermerr.Error); ok {
				writeError(w, ee)
			} else {
				writeError(w, ermerr.BadData("invalid filter on column %q: %v", col, err))
			}
			return
		}
	}

	if err := path.AddFilter(&ermpath.Raw{Fn: func(alias string, next func(v any) string) (string, error) {
		return authz.CompileRowGate(rc, table, table, "select", alias, next)
	}}); err != nil {
		writeError(w, ermerr.Runtime(err, "compiling authorization gate"))
		return
	}

	sql, args, err := path.CompileSelect(nil)
	if err != nil {
		writeError(w, ermerr.Runtime(err, "compiling entity query"))
		return
	}

	rows, err := s.Pool.Query(r.Context(), sql, args...)
	if err != nil {
		writeError(w, ermerr.Runtime(err, "executing entity query"))
		return
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		writeError(w, ermerr.Runtime(err, "scanning entity query results"))
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func scanRows(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	out := []map[string]any{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rowMap := make(map[string]any, len(fields))
		for i, f := range fields {
			rowMap[string(f.Name)] = vals[i]
		}
		out = append(out, rowMap)
	}
	return out, rows.Err()
}
