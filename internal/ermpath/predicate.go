package ermpath

import (
	"fmt"
	"strings"
)

// argFunc allocates the next positional SQL parameter for a literal value
// and returns its placeholder ("$N"), appending v to the compiler's args.
type argFunc = func(v any) string

// Predicate is the tagged-union base every filter expression implements.
// Each concrete type below corresponds 1:1 to one of the operators the
// original implementation registered via its @op(rest_syntax) decorator.
type Predicate interface {
	// Validate checks the predicate against the path element at nodeIndex
	// (e.g. rejecting the star pseudo-column on operators that don't
	// support it, per spec.md's edge cases).
	Validate(path *EntityPath, nodeIndex int) error
	// SQLWhere emits this predicate's boolean SQL fragment, referencing
	// column names qualified by alias.
	SQLWhere(path *EntityPath, nodeIndex int, alias string, next argFunc) (string, error)
}

// AttributeUpdateValidator is implemented only by predicates that can also
// serve as the left-hand side of an attribute-update path (only equality,
// per the original implementation).
type AttributeUpdateValidator interface {
	ValidateAttributeUpdate(path *EntityPath, nodeIndex int) (string, error)
}

const starColumn = "*"

// Unary is the "null"/"not null" test: `col::null` / `col::not::null`.
type Unary struct {
	Column string
	Not    bool
}

func (u *Unary) Validate(path *EntityPath, nodeIndex int) error {
	if u.Column == starColumn {
		return fmt.Errorf("star column not allowed with unary null predicate")
	}
	col, err := path.resolveColumn(nodeIndex, u.Column)
	if err != nil {
		return err
	}
	return path.checkSelect(col)
}

func (u *Unary) SQLWhere(path *EntityPath, nodeIndex int, alias string, next argFunc) (string, error) {
	col, err := path.resolveColumn(nodeIndex, u.Column)
	if err != nil {
		return "", err
	}
	expr := fmt.Sprintf("%s.%s IS NULL", alias, quoteIdent(col.Name))
	if u.Not {
		expr = fmt.Sprintf("%s.%s IS NOT NULL", alias, quoteIdent(col.Name))
	}
	return expr, nil
}

// compOp is one of the BinaryOrderedPredicate comparators.
type compOp string

const (
	OpEqual compOp = "="
	OpGeq   compOp = ">="
	OpGt    compOp = ">"
	OpLeq   compOp = "<="
	OpLt    compOp = "<"
)

// Binary is an ordered comparison against a literal value. Array-typed
// columns distribute the comparison across elements via
// bool_or(unnest(...)) rather than comparing the array as a whole, matching
// the original implementation's array-column handling.
type Binary struct {
	Column string
	Op     compOp
	Value  any
}

func (b *Binary) Validate(path *EntityPath, nodeIndex int) error {
	if b.Column == starColumn {
		return fmt.Errorf("star column only allowed with text-search predicates")
	}
	col, err := path.resolveColumn(nodeIndex, b.Column)
	if err != nil {
		return err
	}
	return path.checkSelect(col)
}

func (b *Binary) SQLWhere(path *EntityPath, nodeIndex int, alias string, next argFunc) (string, error) {
	col, err := path.resolveColumn(nodeIndex, b.Column)
	if err != nil {
		return "", err
	}
	placeholder := next(b.Value)
	colref := fmt.Sprintf("%s.%s", alias, quoteIdent(col.Name))
	if col.Type.IsArray() {
		return fmt.Sprintf("(SELECT bool_or(v %s %s) FROM unnest(%s) x(v))", b.Op, placeholder, colref), nil
	}
	return fmt.Sprintf("%s %s %s", colref, b.Op, placeholder), nil
}

// ValidateAttributeUpdate resolves this predicate's column against the
// terminal entity for use as an attribute-update target; only an equality
// comparison against an unqualified column name on the context element is
// accepted, matching EqualPredicate in the original implementation — every
// other operator's ValidateAttributeUpdate is absent by design (the
// Predicate interface doesn't require it), so they're simply not usable as
// update-path left-hand sides.
func (b *Binary) ValidateAttributeUpdate(path *EntityPath, nodeIndex int) (string, error) {
	if b.Op != OpEqual {
		return "", fmt.Errorf("only equality predicates can appear in an attribute-update path")
	}
	col, err := path.resolveColumn(nodeIndex, b.Column)
	if err != nil {
		return "", err
	}
	return col.Name, nil
}

// textOp is one of the BinaryTextPredicate operators.
type textOp string

const (
	OpRegexp   textOp = "regexp"
	OpCiRegexp textOp = "ciregexp"
	OpTextSearch textOp = "ts"
)

// BinaryText implements the free-text operators, the only family that
// permits the star pseudo-column (searching every column on the context
// element at once).
type BinaryText struct {
	Column string
	Op     textOp
	Value  string
}

func (b *BinaryText) Validate(path *EntityPath, nodeIndex int) error {
	if b.Column == starColumn {
		for _, c := range path.nodes[nodeIndex].Table.ColumnsInOrder() {
			if err := path.checkSelect(c); err != nil {
				return err
			}
		}
		return nil
	}
	col, err := path.resolveColumn(nodeIndex, b.Column)
	if err != nil {
		return err
	}
	return path.checkSelect(col)
}

// textColExpr is one column this predicate reads, carrying both its SQL
// reference and whether it needs the unnest(...) array treatment.
type textColExpr struct {
	ref     string
	isArray bool
}

func (b *BinaryText) SQLWhere(path *EntityPath, nodeIndex int, alias string, next argFunc) (string, error) {
	var cols []textColExpr
	if b.Column == starColumn {
		for _, c := range path.nodes[nodeIndex].Table.ColumnsInOrder() {
			cols = append(cols, textColExpr{ref: fmt.Sprintf("%s.%s", alias, quoteIdent(c.Name)), isArray: c.Type.IsArray()})
		}
	} else {
		col, err := path.resolveColumn(nodeIndex, b.Column)
		if err != nil {
			return "", err
		}
		cols = []textColExpr{{ref: fmt.Sprintf("%s.%s", alias, quoteIdent(col.Name)), isArray: col.Type.IsArray()}}
	}

	// Every text operator matches against the column's text representation,
	// the original implementation's _sql_left_type='text' always casting
	// regardless of the column's declared type.
	var wrap func(e string, placeholder string) string
	var placeholderFor func() string
	switch b.Op {
	case OpRegexp:
		placeholderFor = func() string { return next(b.Value) }
		wrap = func(e, ph string) string { return fmt.Sprintf("%s::text ~ %s", e, ph) }
	case OpCiRegexp:
		placeholderFor = func() string { return next(b.Value) }
		wrap = func(e, ph string) string { return fmt.Sprintf("%s::text ~* %s", e, ph) }
	case OpTextSearch:
		placeholderFor = func() string { return fmt.Sprintf("to_tsquery(%s)", next(b.Value)) }
		wrap = func(e, ph string) string { return fmt.Sprintf("to_tsvector(coalesce(%s::text, '')) @@ %s", e, ph) }
	default:
		return "", fmt.Errorf("unknown text operator %q", b.Op)
	}

	placeholder := placeholderFor()
	var exprs []string
	for _, c := range cols {
		if c.isArray {
			exprs = append(exprs, fmt.Sprintf("(SELECT bool_or(%s) FROM unnest(%s) x(v))", wrap("v", placeholder), c.ref))
		} else {
			exprs = append(exprs, wrap(c.ref, placeholder))
		}
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return "(" + strings.Join(exprs, " OR ") + ")", nil
}

// Raw wraps a caller-supplied SQL-emitting closure as a Predicate, used by
// the authorization engine to splice in correlation and dynamic-ACL-test
// conditions that aren't expressible with the ordinary REST operator set.
type Raw struct {
	Fn func(alias string, next argFunc) (string, error)
}

func (r *Raw) Validate(path *EntityPath, nodeIndex int) error { return nil }

func (r *Raw) SQLWhere(path *EntityPath, nodeIndex int, alias string, next argFunc) (string, error) {
	return r.Fn(alias, next)
}

// Negation, Conjunction, Disjunction are the boolean combinators every
// other predicate composes under.
type Negation struct{ Inner Predicate }

func (n *Negation) Validate(path *EntityPath, nodeIndex int) error {
	return n.Inner.Validate(path, nodeIndex)
}

func (n *Negation) SQLWhere(path *EntityPath, nodeIndex int, alias string, next argFunc) (string, error) {
	inner, err := n.Inner.SQLWhere(path, nodeIndex, alias, next)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("NOT (%s)", inner), nil
}

type Conjunction struct{ Parts []Predicate }

func (c *Conjunction) Validate(path *EntityPath, nodeIndex int) error {
	for _, p := range c.Parts {
		if err := p.Validate(path, nodeIndex); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conjunction) SQLWhere(path *EntityPath, nodeIndex int, alias string, next argFunc) (string, error) {
	return joinParts(c.Parts, path, nodeIndex, alias, next, " AND ")
}

type Disjunction struct{ Parts []Predicate }

func (d *Disjunction) Validate(path *EntityPath, nodeIndex int) error {
	for _, p := range d.Parts {
		if err := p.Validate(path, nodeIndex); err != nil {
			return err
		}
	}
	return nil
}

func (d *Disjunction) SQLWhere(path *EntityPath, nodeIndex int, alias string, next argFunc) (string, error) {
	return joinParts(d.Parts, path, nodeIndex, alias, next, " OR ")
}

func joinParts(parts []Predicate, path *EntityPath, nodeIndex int, alias string, next argFunc, sep string) (string, error) {
	frags := make([]string, len(parts))
	for i, p := range parts {
		f, err := p.SQLWhere(path, nodeIndex, alias, next)
		if err != nil {
			return "", err
		}
		frags[i] = f
	}
	out := "("
	for i, f := range frags {
		if i > 0 {
			out += sep
		}
		out += f
	}
	return out + ")", nil
}
