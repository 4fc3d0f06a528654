package introspect

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsFS exposes the embedded "_ermrest" auxiliary-schema migrations
// so other packages' test suites (e.g. metastore, which writes directly
// into those aux tables without going through an introspection pass) can
// apply the same schema via fixgres.WithGooseUp without duplicating it.
var MigrationsFS = migrationsFS

// Bootstrap applies every pending goose migration that creates and
// versions the "_ermrest" auxiliary metadata schema, grounded in the
// teacher's own goose-driven test harness (pkg/fixgres) but run once
// against a real deployment rather than a throwaway test container.
func Bootstrap(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}
