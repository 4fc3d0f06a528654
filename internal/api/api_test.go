package api

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ytfqj/ermrest/internal/config"
	"github.com/ytfqj/ermrest/internal/identity"
	"github.com/ytfqj/ermrest/internal/introspect"
	"github.com/ytfqj/ermrest/internal/metastore"
	"github.com/ytfqj/ermrest/pkg/fixgres"
)

// TestMain boots one shared Postgres container and applies the _ermrest
// auxiliary-schema migrations, the same harness introspect_test.go and
// metastore_test.go use, since every handler here runs a real
// reintrospection pass.
func TestMain(m *testing.M) {
	sub, err := fs.Sub(introspect.MigrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	fixgres.BootOnce(&testing.T{}, fixgres.WithDBName("ermrest_api"), fixgres.WithGooseUp(sub))
	code := m.Run()
	_ = fixgres.ShutdownNow()
	os.Exit(code)
}

// newTestServer builds a Server wired to a fresh sandbox schema containing
// one "widgets" table, returning the server, the router, and the sandbox
// for direct SQL/store access from the test body.
func newTestServer(t *testing.T) (*Server, http.Handler, *fixgres.Sandbox) {
	t.Helper()
	sbx := fixgres.NewSandbox(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, sbx.DSN)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = sbx.DB.ExecContext(ctx, `CREATE TABLE widgets (id bigint PRIMARY KEY, label text NOT NULL)`)
	require.NoError(t, err)

	cfg := config.Config{
		JWTSigningKey:      "test-signing-key",
		JWTIssuer:          "ermrest",
		AnonymousRole:      "*",
		RequirePrimaryKeys: false,
	}
	store := metastore.New(pool)
	srv := &Server{
		Config:  cfg,
		Pool:    pool,
		Store:   store,
		In:      introspect.New(pool, store, introspect.Options{RequirePrimaryKeys: false}),
		Decoder: identity.NewDecoder(cfg.JWTSigningKey, cfg.JWTIssuer),
		Log:     zap.NewNop(),
	}

	// Grant the wildcard role "enumerate" and "owner" on the sandbox schema
	// so every handler test below observes the non-default-deny path; child
	// tables inherit both via HasRight's parent-walk since they carry no
	// ACL of their own.
	mdl, err := srv.In.Introspect(ctx, "1")
	require.NoError(t, err)
	sch, err := mdl.Schema(sbx.Schema)
	require.NoError(t, err)
	require.NoError(t, store.UpsertACL(ctx, metastore.KindSchema, sch.RID, "enumerate", []string{"*"}))
	require.NoError(t, store.UpsertACL(ctx, metastore.KindSchema, sch.RID, "owner", []string{"*"}))

	return srv, srv.SetupRoutes(), sbx
}

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetSchemaListsEnumerableSchemas(t *testing.T) {
	_, h, sbx := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/ermrest/catalog/1/schema")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), sbx.Schema, "the sandbox schema carries an explicit wildcard enumerate grant and should be listed")
}

func TestGetTableForUnknownTableReturns404(t *testing.T) {
	_, h, sbx := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/ermrest/catalog/1/schema/"+sbx.Schema+"/table/does_not_exist")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTableForKnownTableReturns200(t *testing.T) {
	_, h, sbx := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/ermrest/catalog/1/schema/"+sbx.Schema+"/table/widgets")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"widgets"`)
}

func TestAnnotationPutThenGetRoundTrips(t *testing.T) {
	_, h, sbx := newTestServer(t)
	path := "/ermrest/catalog/1/schema/" + sbx.Schema + "/table/widgets/annotation/tag:example.org,2024:display"

	put := httptest.NewRequest(http.MethodPut, path, strings.NewReader(`"Widgets"`))
	putRec := httptest.NewRecorder()
	h.ServeHTTP(putRec, put)
	require.Equal(t, http.StatusNoContent, putRec.Code)

	getRec := doRequest(t, h, http.MethodGet, path)
	require.Equal(t, http.StatusOK, getRec.Code)
	require.Equal(t, `"Widgets"`, strings.TrimSpace(getRec.Body.String()))
}
