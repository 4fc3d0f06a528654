// Command ermrestd runs the ERMrest catalog HTTP service: its "bootstrap"
// subcommand applies the "_ermrest" auxiliary metadata schema migrations,
// and its "serve" subcommand serves the schema/annotation/acl/acl_binding/
// entity/watch routes over a pool of catalog connections, mirroring the
// teacher's single cmd/<binary>/main.go entry point shape but split into a
// root command plus subcommands in the cobra style the Pieczasz-smf schema
// tool uses for its CLI surface.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver bootstrap opens
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ytfqj/ermrest/internal/api"
	"github.com/ytfqj/ermrest/internal/catalogwatch"
	"github.com/ytfqj/ermrest/internal/config"
	"github.com/ytfqj/ermrest/internal/introspect"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ermrestd",
		Short: "ERMrest catalog service",
	}

	var catalogID string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), catalogID)
		},
	}
	serveCmd.Flags().StringVarP(&catalogID, "catalog", "c", "1", "catalog id this process serves")

	bootstrapCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Apply the _ermrest auxiliary metadata schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := sql.Open("pgx", cfg.CatalogStoreDSN)
			if err != nil {
				return fmt.Errorf("opening catalog store: %w", err)
			}
			defer db.Close()
			return introspect.Bootstrap(db)
		},
	}

	rootCmd.AddCommand(serveCmd, bootstrapCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, catalogID string) error {
	cfg := config.Load()

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	srv := api.NewServer(cfg, pool, log)

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	watcher := catalogwatch.NewWatcher(pool, srv.In, srv.Watch, log, cfg.ReintrospectInterval)
	go func() {
		if err := watcher.Run(watchCtx, catalogID); err != nil {
			log.Warn("catalogwatch stopped", zap.Error(err))
		}
	}()

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: srv.SetupRoutes(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("ermrestd listening", zap.String("address", cfg.ListenAddress))
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCh:
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ReintrospectInterval)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
