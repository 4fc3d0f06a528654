package authz

import (
	"fmt"

	"github.com/ytfqj/ermrest/internal/ermpath"
	"github.com/ytfqj/ermrest/internal/model"
)

// CompileBindingGate compiles one dynamic ACL binding's projection into a
// correlated EXISTS(...) SQL fragment testing the binding against the row
// identified by outerAlias's primary key in the enclosing statement. This
// is the Go equivalent of the original implementation's
// AclBinding._compile_projection + AclBasePredicate pinning: a synthetic
// base predicate equates the projection path's base table with the
// outer query's current row, via outerAlias, before the join chain walks
// out to whatever table actually carries the role/non-null column.
//
// nextArg must be the same parameter-numbering closure the enclosing
// statement uses, so the fragment's placeholders don't collide with the
// rest of the query.
func CompileBindingGate(m *model.Model, table *model.Table, binding *model.DynaclBinding, outerAlias string, callerRoles []string, nextArg func(v any) string) (string, error) {
	if len(binding.Projection) == 0 {
		return "", fmt.Errorf("binding %q has an empty projection", binding.Name)
	}

	pk := primaryUnique(table)
	if pk == nil {
		return "", fmt.Errorf("table %s.%s has no primary key to correlate a dynamic ACL binding against", table.Schema.Name, table.Name)
	}

	// The binding's own path needs a base alias distinct from outerAlias:
	// both live in the same SQL statement once this fragment is spliced in
	// (outerAlias is the row under test in the enclosing query; this path's
	// base node is "the same table, re-scanned" inside a correlated EXISTS),
	// so reusing outerAlias here would make the correlation predicate below
	// a tautology (alias.col = alias.col) instead of a real join condition.
	path := ermpath.NewEntityPath(m)
	if err := path.SetBaseEntityAliased(table, bindingBaseAlias(outerAlias)); err != nil {
		return "", err
	}

	cur := table
	for i, el := range binding.Projection {
		last := i == len(binding.Projection)-1
		if last {
			if el.Column == "" {
				return "", fmt.Errorf("binding %q: final projection element must name a column", binding.Name)
			}
			break
		}
		fk, err := lookupFK(cur, el.ForeignKeyConstraint)
		if err != nil {
			return "", fmt.Errorf("binding %q: %w", binding.Name, err)
		}
		if err := path.AddLink(fk, el.Inbound); err != nil {
			return "", fmt.Errorf("binding %q: %w", binding.Name, err)
		}
		if el.Inbound {
			cur = fk.Table
		} else {
			cur = fk.ReferencedTable()
		}
	}

	terminalCol := binding.Projection[len(binding.Projection)-1].Column

	// Correlate the projection's base row with the row under test in the
	// enclosing statement (outerAlias), one equality per primary key column.
	// This must use the path's base alias specifically, not whatever node
	// happens to be the current "context" — a multi-hop projection (a join
	// across a foreign key before reaching the terminal column) leaves
	// contextI pointing at the joined table, not the base table the
	// correlation is actually about.
	baseAlias := path.Base().Alias
	correlation := &ermpath.Raw{Fn: func(alias string, next func(any) string) (string, error) {
		parts := make([]string, len(pk.Columns))
		for i, c := range pk.Columns {
			parts[i] = fmt.Sprintf("%s.%q = %s.%q", baseAlias, c.Name, outerAlias, c.Name)
		}
		return "(" + joinAnd(parts) + ")", nil
	}}

	aclTest := &ermpath.Raw{Fn: func(alias string, next func(any) string) (string, error) {
		col, err := cur.Column(terminalCol)
		if err != nil {
			return "", err
		}
		colref := fmt.Sprintf("%s.%q", alias, col.Name)
		switch binding.ProjectionType {
		case model.ProjectionNonNull:
			return colref + " IS NOT NULL", nil
		case model.ProjectionACL:
			placeholder := next(callerRoles)
			if col.Type.IsArray() {
				return fmt.Sprintf("(%s && %s)", colref, placeholder), nil
			}
			return fmt.Sprintf("(%s = ANY(%s))", colref, placeholder), nil
		default:
			return "", fmt.Errorf("unknown projection type for binding %q", binding.Name)
		}
	}}

	return path.CompileExists(nextArg, []ermpath.Predicate{correlation, aclTest})
}

// bindingBaseAlias picks the binding subquery's base table alias, matching
// spec.md scenario #3's "s" convention while guaranteeing it never collides
// with the enclosing query's outerAlias (which, for every current call
// site, is itself "s" or "t<N>" — never both, but we don't rely on that).
func bindingBaseAlias(outerAlias string) string {
	if outerAlias != "s" {
		return "s"
	}
	return "s_dyn"
}

func primaryUnique(t *model.Table) *model.Unique {
	for _, u := range t.Uniques() {
		if u.IsPrimaryKeyCandidate() {
			return u
		}
	}
	return nil
}

func lookupFK(t *model.Table, constraintName string) (*model.ForeignKey, error) {
	for _, fk := range t.ForeignKeys() {
		if fk.ConstraintName == constraintName {
			return fk, nil
		}
	}
	for _, fk := range t.ReferencedBy {
		if fk.ConstraintName == constraintName {
			return fk, nil
		}
	}
	return nil, fmt.Errorf("no foreign key named %q reachable from table %s", constraintName, t.Name)
}

func joinAnd(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " AND "
		}
		out += p
	}
	return out
}
