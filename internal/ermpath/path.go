// Package ermpath implements the path/predicate AST (C6): EntityPath, its
// join elements, and the Predicate variants, all compiling to SQL fragments
// against a pinned model.Model snapshot. Each predicate variant is a
// distinct Go type (a tagged union expressed as an interface) rather than a
// single class branching on an operator string, per spec.md's design notes.
package ermpath

import (
	"fmt"
	"strings"

	"github.com/ytfqj/ermrest/internal/model"
)

// PathNode is one element of an EntityPath: the base entity, or a table
// reached by traversing a foreign key (outbound, following the fkey's own
// direction) or its reverse (inbound, following a key reference that
// targets this element's predecessor).
type PathNode struct {
	Alias   string
	Table   *model.Table
	ViaFK   *model.ForeignKey // nil on the base node
	Inbound bool
}

// EntityPath is an ordered sequence of joined tables plus the conjunctive
// filters bound to them, compiling down to one SELECT/JOIN/WHERE SQL
// fragment. The "context" element determines which table's columns are
// addressable as output/update targets.
type EntityPath struct {
	Model    *model.Model
	nodes    []*PathNode
	filters  []boundPredicate
	contextI int // index into nodes of the current context element

	// SelectCheck, when set, is consulted by every predicate's Validate
	// before the predicate is admitted into the path's WHERE clause
	// (section 4.6: a predicate's left column must be selectable, raising
	// otherwise). It's a callback rather than a direct authz dependency
	// because authz already imports ermpath (for CompileBindingGate) — the
	// caller that has both a request context and a model.Column in hand
	// (internal/api) wires this to authz.HasRight.
	SelectCheck func(col *model.Column) error
}

type boundPredicate struct {
	nodeIndex int
	pred      Predicate
}

func NewEntityPath(m *model.Model) *EntityPath {
	return &EntityPath{Model: m}
}

// SetBaseEntity pins the path's first node to table, aliased "t0".
func (p *EntityPath) SetBaseEntity(table *model.Table) error {
	return p.SetBaseEntityAliased(table, "t0")
}

// SetBaseEntityAliased is SetBaseEntity with an explicit base alias, for
// callers that compile this path into a larger statement and must avoid
// colliding with an alias already in scope there (e.g. a dynamic ACL
// binding's correlated EXISTS subquery, which must not reuse the enclosing
// query's row alias).
func (p *EntityPath) SetBaseEntityAliased(table *model.Table, alias string) error {
	if len(p.nodes) != 0 {
		return fmt.Errorf("base entity already set")
	}
	p.nodes = append(p.nodes, &PathNode{Alias: alias, Table: table})
	p.contextI = 0
	return nil
}

// AddLink appends a join across fk, reached from the current terminal node.
// inbound=false is an outbound traversal (this table's fkey -> referenced
// table); inbound=true follows fk in reverse (fk's table references the
// current terminal node's table).
func (p *EntityPath) AddLink(fk *model.ForeignKey, inbound bool) error {
	if len(p.nodes) == 0 {
		return fmt.Errorf("cannot add a link before the base entity is set")
	}
	cur := p.nodes[len(p.nodes)-1]
	var next *model.Table
	if inbound {
		if fk.ReferencedTable() != cur.Table {
			return fmt.Errorf("fkey %s does not reference %s", fk.ConstraintName, cur.Table.Name)
		}
		next = fk.Table
	} else {
		if fk.Table != cur.Table {
			return fmt.Errorf("fkey %s is not declared on %s", fk.ConstraintName, cur.Table.Name)
		}
		next = fk.ReferencedTable()
	}
	alias := fmt.Sprintf("t%d", len(p.nodes))
	p.nodes = append(p.nodes, &PathNode{Alias: alias, Table: next, ViaFK: fk, Inbound: inbound})
	p.contextI = len(p.nodes) - 1
	return nil
}

// SetContext moves the addressable context to the node with the given
// alias, without changing the path's join structure — used by attribute
// update paths that filter through a join but write to an earlier table.
func (p *EntityPath) SetContext(alias string) error {
	for i, n := range p.nodes {
		if n.Alias == alias {
			p.contextI = i
			return nil
		}
	}
	return fmt.Errorf("no such path element alias %q", alias)
}

func (p *EntityPath) Context() *PathNode { return p.nodes[p.contextI] }
func (p *EntityPath) Base() *PathNode    { return p.nodes[0] }
func (p *EntityPath) Nodes() []*PathNode { return p.nodes }

// AddFilter validates pred against the current context element and binds
// it into the path's conjunctive WHERE clause.
func (p *EntityPath) AddFilter(pred Predicate) error {
	if err := pred.Validate(p, p.contextI); err != nil {
		return err
	}
	p.filters = append(p.filters, boundPredicate{nodeIndex: p.contextI, pred: pred})
	return nil
}

// resolveColumn finds a column by name on the node at nodeIndex.
func (p *EntityPath) resolveColumn(nodeIndex int, name string) (*model.Column, error) {
	if nodeIndex < 0 || nodeIndex >= len(p.nodes) {
		return nil, fmt.Errorf("invalid path element index %d", nodeIndex)
	}
	return p.nodes[nodeIndex].Table.Column(name)
}

// checkSelect runs the path's SelectCheck callback against col, if one is
// set. Predicate.Validate implementations call this once they've resolved
// the column their comparison reads from.
func (p *EntityPath) checkSelect(col *model.Column) error {
	if p.SelectCheck == nil {
		return nil
	}
	return p.SelectCheck(col)
}

// CompileSelect emits a full SELECT statement projecting columns (by name,
// resolved against the context element) from the path's join/filter
// structure. Returned alongside are the positional parameters for every
// literal embedded by a bound Predicate.
func (p *EntityPath) CompileSelect(columns []string) (string, []any, error) {
	if len(p.nodes) == 0 {
		return "", nil, fmt.Errorf("empty path")
	}
	var args []any
	nextArg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	ctx := p.Context()
	projCols := make([]string, 0, len(columns))
	if len(columns) == 0 {
		for _, c := range ctx.Table.ColumnsInOrder() {
			projCols = append(projCols, fmt.Sprintf("%s.%s", ctx.Alias, quoteIdent(c.Name)))
		}
	} else {
		for _, name := range columns {
			col, err := ctx.Table.Column(name)
			if err != nil {
				return "", nil, err
			}
			projCols = append(projCols, fmt.Sprintf("%s.%s", ctx.Alias, quoteIdent(col.Name)))
		}
	}

	from := p.fromClauseSQL()
	where, err := p.whereClauseSQL(nextArg, nil)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(projCols, ", "), from)
	if where != "" {
		sql += " WHERE " + where
	}
	return sql, args, nil
}

// CompileExists emits `EXISTS (SELECT 1 FROM <joins> WHERE <filters and
// extra>)` using nextArg for parameter numbering so the fragment can be
// embedded inside a larger statement whose own placeholders are numbered by
// the same sequence (authz's dynamic-ACL gate compiler relies on this).
func (p *EntityPath) CompileExists(nextArg func(v any) string, extra []Predicate) (string, error) {
	if len(p.nodes) == 0 {
		return "", fmt.Errorf("empty path")
	}
	where, err := p.whereClauseSQL(nextArg, extra)
	if err != nil {
		return "", err
	}
	sql := fmt.Sprintf("EXISTS (SELECT 1 FROM %s", p.fromClauseSQL())
	if where != "" {
		sql += " WHERE " + where
	}
	sql += ")"
	return sql, nil
}

func (p *EntityPath) fromClauseSQL() string {
	var from strings.Builder
	base := p.nodes[0]
	fmt.Fprintf(&from, "%s.%s AS %s", quoteIdent(base.Table.Schema.Name), quoteIdent(base.Table.Name), base.Alias)
	for i := 1; i < len(p.nodes); i++ {
		n := p.nodes[i]
		prev := p.nodes[i-1]
		var onParts []string
		for _, pair := range n.ViaFK.ColumnMap() {
			fkCol, refCol := pair[0], pair[1]
			var left, right string
			if n.Inbound {
				left = fmt.Sprintf("%s.%s", n.Alias, quoteIdent(fkCol.Name))
				right = fmt.Sprintf("%s.%s", prev.Alias, quoteIdent(refCol.Name))
			} else {
				left = fmt.Sprintf("%s.%s", prev.Alias, quoteIdent(fkCol.Name))
				right = fmt.Sprintf("%s.%s", n.Alias, quoteIdent(refCol.Name))
			}
			onParts = append(onParts, fmt.Sprintf("%s = %s", left, right))
		}
		fmt.Fprintf(&from, " JOIN %s.%s AS %s ON %s",
			quoteIdent(n.Table.Schema.Name), quoteIdent(n.Table.Name), n.Alias, strings.Join(onParts, " AND "))
	}
	return from.String()
}

func (p *EntityPath) whereClauseSQL(nextArg func(v any) string, extra []Predicate) (string, error) {
	var whereParts []string
	for _, bp := range p.filters {
		alias := p.nodes[bp.nodeIndex].Alias
		frag, err := bp.pred.SQLWhere(p, bp.nodeIndex, alias, nextArg)
		if err != nil {
			return "", err
		}
		whereParts = append(whereParts, frag)
	}
	for _, pred := range extra {
		frag, err := pred.SQLWhere(p, p.contextI, p.Context().Alias, nextArg)
		if err != nil {
			return "", err
		}
		whereParts = append(whereParts, frag)
	}
	return strings.Join(whereParts, " AND "), nil
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
