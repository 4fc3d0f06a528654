package introspect

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/ytfqj/ermrest/internal/metastore"
	"github.com/ytfqj/ermrest/internal/model"
	"github.com/ytfqj/ermrest/pkg/fixgres"
)

// TestMain boots one throw-away Postgres container for the whole package,
// applying the real _ermrest auxiliary-schema migrations, the same
// testcontainers+goose harness the teacher's fixgres package was built for.
func TestMain(m *testing.M) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	fixgres.BootOnce(&testing.T{}, fixgres.WithDBName("ermrest"), fixgres.WithGooseUp(sub))
	code := m.Run()
	_ = fixgres.ShutdownNow()
	os.Exit(code)
}

func newSandboxIntrospector(t *testing.T) (*fixgres.Sandbox, *Introspector) {
	t.Helper()
	sbx := fixgres.NewSandbox(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, sbx.DSN)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := metastore.New(pool)
	return sbx, New(pool, store, Options{RequirePrimaryKeys: false})
}

func TestIntrospectDiscoversTablesColumnsAndPrimaryKey(t *testing.T) {
	sbx, in := newSandboxIntrospector(t)
	ctx := context.Background()

	_, err := sbx.DB.ExecContext(ctx, `
		CREATE TABLE widgets (
			id     bigint PRIMARY KEY,
			label  text NOT NULL,
			weight numeric DEFAULT 0
		)`)
	require.NoError(t, err)

	mdl, err := in.Introspect(ctx, "cat1")
	require.NoError(t, err)

	sch, err := mdl.Schema(sbx.Schema)
	require.NoError(t, err, "sandbox schema should be visible in the introspected model")

	tbl, err := sch.Table("widgets")
	require.NoError(t, err)
	require.True(t, tbl.HasPrimaryKey(), "single-column PRIMARY KEY should count as invariant I-3's addressable key")

	label, err := tbl.Column("label")
	require.NoError(t, err)
	require.False(t, label.Nullok)

	weight, err := tbl.Column("weight")
	require.NoError(t, err)
	require.True(t, weight.HasDefault, "a literal DEFAULT 0 should be parsed out of pg_attrdef")
}

func TestIntrospectRIDsAreStableAcrossReintrospection(t *testing.T) {
	sbx, in := newSandboxIntrospector(t)
	ctx := context.Background()

	_, err := sbx.DB.ExecContext(ctx, `CREATE TABLE accounts (id bigint PRIMARY KEY)`)
	require.NoError(t, err)

	first, err := in.Introspect(ctx, "cat1")
	require.NoError(t, err)
	firstTbl, err := mustTable(t, first, sbx.Schema, "accounts")
	require.NoError(t, err)

	second, err := in.Introspect(ctx, "cat1")
	require.NoError(t, err)
	secondTbl, err := mustTable(t, second, sbx.Schema, "accounts")
	require.NoError(t, err)

	require.Equal(t, firstTbl.RID, secondTbl.RID, "a table's RID must not change across repeated introspection of the same relation")
}

func TestChecksumChangesWhenAColumnIsAdded(t *testing.T) {
	sbx, in := newSandboxIntrospector(t)
	ctx := context.Background()

	_, err := sbx.DB.ExecContext(ctx, `CREATE TABLE events (id bigint PRIMARY KEY)`)
	require.NoError(t, err)

	before, err := in.Introspect(ctx, "cat1")
	require.NoError(t, err)
	beforeSum, err := Checksum(before)
	require.NoError(t, err)

	_, err = sbx.DB.ExecContext(ctx, `ALTER TABLE events ADD COLUMN payload jsonb`)
	require.NoError(t, err)

	after, err := in.Introspect(ctx, "cat1")
	require.NoError(t, err)
	afterSum, err := Checksum(after)
	require.NoError(t, err)

	require.NotEqual(t, beforeSum, afterSum, "checksum must change when the public schema surface changes")
}

func mustTable(t *testing.T, m *model.Model, schema, table string) (*model.Table, error) {
	t.Helper()
	s, err := m.Schema(schema)
	if err != nil {
		return nil, err
	}
	return s.Table(table)
}
