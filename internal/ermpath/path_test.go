package ermpath

import (
	"strings"
	"testing"

	"github.com/ytfqj/ermrest/internal/model"
)

func intType() *model.Type { return &model.Type{RID: "type:int8", Name: "int8", Kind: model.KindBase} }
func textType() *model.Type {
	return &model.Type{RID: "type:text", Name: "text", Kind: model.KindBase}
}

// buildOrdersSchema builds a minimal public.orders / public.customers
// fixture with an outbound foreign key from orders.customer_id to
// customers.id, enough to exercise joins, filters, and authz's row gate
// compilation without a live database.
func buildOrdersSchema(t *testing.T) (*model.Model, *model.Table, *model.Table, *model.ForeignKey) {
	t.Helper()
	m := model.NewModel("1")
	sch, err := m.AddSchema("public", "schema:1")
	if err != nil {
		t.Fatalf("AddSchema: %v", err)
	}
	customers, err := sch.AddTable("customers", model.TableKindTable, "table:customers")
	if err != nil {
		t.Fatalf("AddTable customers: %v", err)
	}
	custID, err := customers.AddColumn("col:customers.id", "id", intType(), false, nil, false)
	if err != nil {
		t.Fatalf("AddColumn customers.id: %v", err)
	}
	if _, err := customers.AddUnique("key:customers.pk", []*model.Column{custID}, "customers_pkey", false); err != nil {
		t.Fatalf("AddUnique customers.pkey: %v", err)
	}

	orders, err := sch.AddTable("orders", model.TableKindTable, "table:orders")
	if err != nil {
		t.Fatalf("AddTable orders: %v", err)
	}
	orderID, err := orders.AddColumn("col:orders.id", "id", intType(), false, nil, false)
	if err != nil {
		t.Fatalf("AddColumn orders.id: %v", err)
	}
	if _, err := orders.AddUnique("key:orders.pk", []*model.Column{orderID}, "orders_pkey", false); err != nil {
		t.Fatalf("AddUnique orders.pkey: %v", err)
	}
	if _, err := orders.AddColumn("col:orders.status", "status", textType(), false, nil, false); err != nil {
		t.Fatalf("AddColumn orders.status: %v", err)
	}
	custFK, err := orders.AddColumn("col:orders.customer_id", "customer_id", intType(), false, nil, false)
	if err != nil {
		t.Fatalf("AddColumn orders.customer_id: %v", err)
	}
	custUnique := customers.Uniques()[0]
	fk, err := orders.AddForeignKey("fkey:orders.customer_id", []*model.Column{custFK}, custUnique, "orders_customer_id_fkey", false)
	if err != nil {
		t.Fatalf("AddForeignKey: %v", err)
	}
	return m, customers, orders, fk
}

func TestCompileSelectProjectsAllColumnsByDefault(t *testing.T) {
	m, _, orders, _ := buildOrdersSchema(t)
	path := NewEntityPath(m)
	if err := path.SetBaseEntity(orders); err != nil {
		t.Fatalf("SetBaseEntity: %v", err)
	}

	sql, args, err := path.CompileSelect(nil)
	if err != nil {
		t.Fatalf("CompileSelect: %v", err)
	}
	if len(args) != 0 {
		t.Fatalf("expected no bound args for an unfiltered select, got %v", args)
	}
	if !strings.Contains(sql, `FROM "public"."orders" AS t0`) {
		t.Fatalf("expected the base table to be aliased t0, got: %s", sql)
	}
	if !strings.Contains(sql, `t0."id"`) || !strings.Contains(sql, `t0."status"`) {
		t.Fatalf("expected every column to be projected, got: %s", sql)
	}
}

func TestCompileSelectWithEqualityFilterBindsAPositionalArg(t *testing.T) {
	m, _, orders, _ := buildOrdersSchema(t)
	path := NewEntityPath(m)
	if err := path.SetBaseEntity(orders); err != nil {
		t.Fatalf("SetBaseEntity: %v", err)
	}
	if err := path.AddFilter(&Binary{Column: "status", Op: OpEqual, Value: "shipped"}); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}

	sql, args, err := path.CompileSelect([]string{"id", "status"})
	if err != nil {
		t.Fatalf("CompileSelect: %v", err)
	}
	if len(args) != 1 || args[0] != "shipped" {
		t.Fatalf("expected one bound arg %q, got %v", "shipped", args)
	}
	if !strings.Contains(sql, `WHERE t0."status" = $1`) {
		t.Fatalf("expected a parameterized WHERE clause, got: %s", sql)
	}
}

func TestAddFilterRejectsUnknownColumn(t *testing.T) {
	m, _, orders, _ := buildOrdersSchema(t)
	path := NewEntityPath(m)
	if err := path.SetBaseEntity(orders); err != nil {
		t.Fatalf("SetBaseEntity: %v", err)
	}
	if err := path.AddFilter(&Binary{Column: "nonexistent", Op: OpEqual, Value: 1}); err == nil {
		t.Fatalf("expected an error filtering on a column the table doesn't have")
	}
}

func TestAddLinkJoinsAcrossForeignKey(t *testing.T) {
	m, customers, orders, fk := buildOrdersSchema(t)
	path := NewEntityPath(m)
	if err := path.SetBaseEntity(orders); err != nil {
		t.Fatalf("SetBaseEntity: %v", err)
	}
	if err := path.AddLink(fk, false); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if path.Context().Table != customers {
		t.Fatalf("expected the outbound link to land on customers")
	}

	sql, _, err := path.CompileSelect([]string{"id"})
	if err != nil {
		t.Fatalf("CompileSelect: %v", err)
	}
	if !strings.Contains(sql, `JOIN "public"."customers" AS t1 ON t0."customer_id" = t1."id"`) {
		t.Fatalf("expected a join predicate over customer_id = id, got: %s", sql)
	}
}

func TestAddLinkRejectsWrongDirectionFK(t *testing.T) {
	m, customers, _, fk := buildOrdersSchema(t)
	path := NewEntityPath(m)
	if err := path.SetBaseEntity(customers); err != nil {
		t.Fatalf("SetBaseEntity: %v", err)
	}
	if err := path.AddLink(fk, false); err == nil {
		t.Fatalf("expected an error: fkey is declared on orders, not customers")
	}
}

func TestRawPredicateIsSplicedVerbatimIntoWhere(t *testing.T) {
	m, _, orders, _ := buildOrdersSchema(t)
	path := NewEntityPath(m)
	if err := path.SetBaseEntity(orders); err != nil {
		t.Fatalf("SetBaseEntity: %v", err)
	}
	if err := path.AddFilter(&Raw{Fn: func(alias string, next argFunc) (string, error) {
		return alias + ".status = " + next("shipped"), nil
	}}); err != nil {
		t.Fatalf("AddFilter: %v", err)
	}

	sql, args, err := path.CompileSelect([]string{"id"})
	if err != nil {
		t.Fatalf("CompileSelect: %v", err)
	}
	if !strings.Contains(sql, `WHERE t0.status = $1`) || args[0] != "shipped" {
		t.Fatalf("expected the raw fragment spliced in verbatim, got sql=%q args=%v", sql, args)
	}
}
