package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/loom/internal/config"
	"github.com/untoldecay/loom/internal/schema"
	"github.com/untoldecay/loom/internal/server"
	"github.com/untoldecay/loom/internal/storage/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration server",
	Long: `Serves the tool surface over the configured transport. stdio reads
requests from stdin and answers on stdout; http serves the streamable
HTTP transport on http-host:http-port.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("transport", "", "transport: stdio or http")
	serveCmd.Flags().String("http-host", "", "HTTP listen host")
	serveCmd.Flags().Int("http-port", 0, "HTTP listen port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPath := config.DatabasePath()

	// One server per database file. The lock file sits next to the database
	// so a second instance fails fast instead of fighting over the WAL.
	lock := flock.New(dbPath + ".lock")
	lockTimeout, err := time.ParseDuration(config.GetString("lock-timeout"))
	if err != nil {
		lockTimeout = 5 * time.Second
	}
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, 250*time.Millisecond)
	if err != nil || !locked {
		return fmt.Errorf("database %s is in use by another server instance", dbPath)
	}
	defer func() { _ = lock.Unlock() }()

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	registry, err := schema.Load(config.NoteSchemaPath())
	if err != nil {
		return err
	}

	slog.Info("starting server", "db", dbPath, "noteSchema", config.NoteSchemaPath())
	srv := server.New(store, registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
