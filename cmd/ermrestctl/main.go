// Command ermrestctl is the administrative counterpart to ermrestd: it
// reintrospects a catalog and prints its schema document, and it sets or
// clears annotations, static ACLs, and dynamic ACL bindings directly against
// the metadata store, without going through the HTTP surface at all —
// the same "introspect once, mutate the aux tables, done" shape the
// Pieczasz-smf schema tool's migrate/diff subcommands follow.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ytfqj/ermrest/internal/config"
	"github.com/ytfqj/ermrest/internal/ermerr"
	"github.com/ytfqj/ermrest/internal/introspect"
	"github.com/ytfqj/ermrest/internal/metastore"
	"github.com/ytfqj/ermrest/internal/model"
)

func main() {
	var catalogID string

	rootCmd := &cobra.Command{
		Use:   "ermrestctl",
		Short: "Administer an ERMrest catalog's metadata store",
	}
	rootCmd.PersistentFlags().StringVarP(&catalogID, "catalog", "c", "1", "catalog id to operate on")

	rootCmd.AddCommand(
		showCmd(&catalogID),
		setAnnotationCmd(&catalogID),
		deleteAnnotationCmd(&catalogID),
		setACLCmd(&catalogID),
		deleteACLCmd(&catalogID),
		setDynaclCmd(&catalogID),
		deleteDynaclCmd(&catalogID),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolved bundles the result of a --schema/--table/--column/--fkey walk: the model it was
// resolved from, the resource kind string metastore uses, and the Resource
// itself (for its RID).
type resolved struct {
	model *model.Model
	kind  string
	res   model.Resource
}

func connectAndIntrospect(ctx context.Context, catalogID string) (*pgxpool.Pool, *introspect.Introspector, *model.Model, error) {
	cfg := config.Load()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	store := metastore.New(pool)
	in := introspect.New(pool, store, introspect.Options{RequirePrimaryKeys: cfg.RequirePrimaryKeys})
	m, err := in.Introspect(ctx, catalogID)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("introspecting catalog %s: %w", catalogID, err)
	}
	return pool, in, m, nil
}

// resolveResource walks schema, then table, then column or fkey name, the
// same segment resolution api/resolve.go does for HTTP URL params, so the
// --schema/--table/--column/--fkey flags cover all five resource kinds from
// the CLI.
// Omitting --schema resolves to the catalog itself (model.Model), the root
// of the authorization tree added for catalog-level ACLs/annotations.
func resolveResource(m *model.Model, schemaName, tableName, columnName, fkeyName string) (resolved, error) {
	if schemaName == "" {
		return resolved{model: m, kind: metastore.KindCatalog, res: m}, nil
	}
	sch, err := m.Schema(schemaName)
	if err != nil {
		return resolved{}, fmt.Errorf("no such schema %q", schemaName)
	}
	if tableName == "" {
		return resolved{model: m, kind: metastore.KindSchema, res: sch}, nil
	}
	tbl, err := sch.Table(tableName)
	if err != nil {
		return resolved{}, fmt.Errorf("no such table %q in schema %q", tableName, schemaName)
	}
	if columnName != "" {
		col, err := tbl.Column(columnName)
		if err != nil {
			return resolved{}, fmt.Errorf("no such column %q in table %q", columnName, tableName)
		}
		return resolved{model: m, kind: metastore.KindColumn, res: col}, nil
	}
	if fkeyName != "" {
		for _, fk := range tbl.ForeignKeys() {
			if fk.ConstraintName == fkeyName {
				return resolved{model: m, kind: metastore.KindForeignKey, res: fk}, nil
			}
		}
		return resolved{}, fmt.Errorf("no such foreign key %q on table %q", fkeyName, tableName)
	}
	return resolved{model: m, kind: metastore.KindTable, res: tbl}, nil
}

func addResourceFlags(cmd *cobra.Command, schema, table, column, fkey *string) {
	cmd.Flags().StringVar(schema, "schema", "", "schema name")
	cmd.Flags().StringVar(table, "table", "", "table name")
	cmd.Flags().StringVar(column, "column", "", "column name")
	cmd.Flags().StringVar(fkey, "fkey", "", "foreign key constraint name")
}

func showCmd(catalogID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Reintrospect the catalog and print its schema document as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, _, m, err := connectAndIntrospect(ctx, *catalogID)
			if err != nil {
				return err
			}
			defer pool.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(m.PreJSON())
		},
	}
}

func setAnnotationCmd(catalogID *string) *cobra.Command {
	var schema, table, column, fkey, uri, valueJSON string
	cmd := &cobra.Command{
		Use:   "set-annotation",
		Short: "Set an annotation on a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, _, m, err := connectAndIntrospect(ctx, *catalogID)
			if err != nil {
				return err
			}
			defer pool.Close()

			r, err := resolveResource(m, schema, table, column, fkey)
			if err != nil {
				return err
			}
			var value any
			if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
				return ermerr.BadData("--value must be valid JSON: %v", err)
			}
			store := metastore.New(pool)
			return store.UpsertAnnotation(ctx, r.kind, r.res.ResourceRID(), uri, value)
		},
	}
	addResourceFlags(cmd, &schema, &table, &column, &fkey)
	cmd.Flags().StringVar(&uri, "uri", "", "annotation URI")
	cmd.Flags().StringVar(&valueJSON, "value", "null", "annotation value, as JSON")
	cmd.MarkFlagRequired("uri")
	return cmd
}

func deleteAnnotationCmd(catalogID *string) *cobra.Command {
	var schema, table, column, fkey, uri string
	cmd := &cobra.Command{
		Use:   "delete-annotation",
		Short: "Remove an annotation from a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, _, m, err := connectAndIntrospect(ctx, *catalogID)
			if err != nil {
				return err
			}
			defer pool.Close()

			r, err := resolveResource(m, schema, table, column, fkey)
			if err != nil {
				return err
			}
			store := metastore.New(pool)
			return store.DeleteAnnotation(ctx, r.kind, r.res.ResourceRID(), uri)
		},
	}
	addResourceFlags(cmd, &schema, &table, &column, &fkey)
	cmd.Flags().StringVar(&uri, "uri", "", "annotation URI (omit to delete all)")
	return cmd
}

func setACLCmd(catalogID *string) *cobra.Command {
	var schema, table, column, fkey, aclname string
	var roles []string
	cmd := &cobra.Command{
		Use:   "set-acl",
		Short: "Set a static ACL's role list on a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, _, m, err := connectAndIntrospect(ctx, *catalogID)
			if err != nil {
				return err
			}
			defer pool.Close()

			r, err := resolveResource(m, schema, table, column, fkey)
			if err != nil {
				return err
			}
			store := metastore.New(pool)
			return store.UpsertACL(ctx, r.kind, r.res.ResourceRID(), aclname, roles)
		},
	}
	addResourceFlags(cmd, &schema, &table, &column, &fkey)
	cmd.Flags().StringVar(&aclname, "acl", "", "acl name, e.g. select, insert, update, delete, enumerate, owner")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "comma-separated role list; empty means explicit deny-all")
	cmd.MarkFlagRequired("acl")
	return cmd
}

func deleteACLCmd(catalogID *string) *cobra.Command {
	var schema, table, column, fkey, aclname string
	cmd := &cobra.Command{
		Use:   "delete-acl",
		Short: "Clear a static ACL override, reverting to inheritance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, _, m, err := connectAndIntrospect(ctx, *catalogID)
			if err != nil {
				return err
			}
			defer pool.Close()

			r, err := resolveResource(m, schema, table, column, fkey)
			if err != nil {
				return err
			}
			store := metastore.New(pool)
			return store.DeleteACL(ctx, r.kind, r.res.ResourceRID(), aclname)
		},
	}
	addResourceFlags(cmd, &schema, &table, &column, &fkey)
	cmd.Flags().StringVar(&aclname, "acl", "", "acl name (omit to clear all)")
	return cmd
}

func setDynaclCmd(catalogID *string) *cobra.Command {
	var schema, table, column, fkey, name, projectionType string
	var columns, types []string
	cmd := &cobra.Command{
		Use:   "set-acl-binding",
		Short: "Set a dynamic ACL binding on a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, _, m, err := connectAndIntrospect(ctx, *catalogID)
			if err != nil {
				return err
			}
			defer pool.Close()

			r, err := resolveResource(m, schema, table, column, fkey)
			if err != nil {
				return err
			}
			pt := model.ProjectionACL
			if projectionType == "nonnull" {
				pt = model.ProjectionNonNull
			}
			proj := make([]model.ProjectionElement, 0, len(columns))
			for _, c := range columns {
				proj = append(proj, model.ProjectionElement{Column: c})
			}
			binding := &model.DynaclBinding{
				Name:           name,
				Projection:     proj,
				ProjectionType: pt,
				Types:          types,
			}
			store := metastore.New(pool)
			return store.UpsertDynaclBinding(ctx, r.kind, r.res.ResourceRID(), name, binding)
		},
	}
	addResourceFlags(cmd, &schema, &table, &column, &fkey)
	cmd.Flags().StringVar(&name, "name", "", "binding name")
	cmd.Flags().StringVar(&projectionType, "projection-type", "acl", `"acl" or "nonnull"`)
	cmd.Flags().StringSliceVar(&columns, "projection", nil, "comma-separated column projection")
	cmd.Flags().StringSliceVar(&types, "types", nil, "comma-separated rights this binding grants, e.g. select,update")
	cmd.MarkFlagRequired("name")
	return cmd
}

func deleteDynaclCmd(catalogID *string) *cobra.Command {
	var schema, table, column, fkey, name string
	cmd := &cobra.Command{
		Use:   "delete-acl-binding",
		Short: "Remove a dynamic ACL binding from a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, _, m, err := connectAndIntrospect(ctx, *catalogID)
			if err != nil {
				return err
			}
			defer pool.Close()

			r, err := resolveResource(m, schema, table, column, fkey)
			if err != nil {
				return err
			}
			store := metastore.New(pool)
			return store.DeleteDynaclBinding(ctx, r.kind, r.res.ResourceRID(), name)
		},
	}
	addResourceFlags(cmd, &schema, &table, &column, &fkey)
	cmd.Flags().StringVar(&name, "name", "", "binding name (omit to clear all)")
	return cmd
}
