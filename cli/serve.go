package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/bramble-labs/bramble/bus"
	"github.com/bramble-labs/bramble/daemon"
	"github.com/bramble-labs/bramble/exec"
	"github.com/bramble-labs/bramble/history"
	brambleotel "github.com/bramble-labs/bramble/otel"
	"github.com/bramble-labs/bramble/registry"
	"github.com/bramble-labs/bramble/server"
	"github.com/bramble-labs/bramble/store"
	"github.com/bramble-labs/bramble/ws"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bramble HTTP daemon",
		RunE:  runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default from config, "+daemon.DefaultAddr+")")
	cmd.Flags().String("config", "", "Path to bramble.yaml (default: discover)")
	cmd.Flags().String("db", "", "Data directory for the SQLite catalog and history databases")
	cmd.Flags().String("redis", "", "Redis address for snapshot history (overrides SQLite)")
	cmd.Flags().String("otlp", "", "OTLP/HTTP endpoint for traces and metrics")
	cmd.Flags().String("watch", "", "Directory of tree definition files to mirror into the catalog")
	cmd.Flags().String("cors-origin", "*", "Allowed CORS origin")
	cmd.Flags().Int64("max-body", 1<<20, "Max request body size in bytes")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 0, "HTTP write timeout (0 keeps SSE streams open)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveServeConfig(cmd)
	if err != nil {
		return err
	}
	corsOrigin, _ := cmd.Flags().GetString("cors-origin")
	maxBody, _ := cmd.Flags().GetInt64("max-body")
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	catalog, err := store.NewSQLiteStore(store.SQLiteConfig{DSN: cfg.CatalogDSN()})
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer func() {
		_ = catalog.Close()
	}()

	snapshots, err := openHistoryStore(cfg)
	if err != nil {
		return err
	}
	defer closeHistoryStore(snapshots)

	eb := bus.NewMemBus(bus.MemBusConfig{})
	defer func() {
		_ = eb.Close()
	}()

	// Mirror published events into a replay ring for SSE catch-up reads.
	events := bus.NewMemEventStore(0)
	recorder := bus.NewStoreSubscriber(events, logger)
	recorderSub := eb.Subscribe()
	go recorder.Drain(recorderSub)
	defer func() {
		_ = recorderSub.Close()
	}()

	reg := registry.Builtins()
	execSvc := exec.NewService(reg,
		exec.WithBus(eb),
		exec.WithHistory(snapshots),
		exec.WithLogger(logger),
		exec.WithRetention(cfg.HistoryRetention()))
	defer func() {
		_ = execSvc.Close(context.Background())
	}()

	hub, err := ws.NewHub(ws.HubConfig{Bus: eb, Logger: logger})
	if err != nil {
		return fmt.Errorf("starting websocket hub: %w", err)
	}
	defer func() {
		_ = hub.Close()
	}()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := brambleotel.Setup(cmd.Context(), brambleotel.Config{
			ServiceName:  "bramble",
			OTLPEndpoint: cfg.OTLPEndpoint,
		})
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()

		metrics, err := brambleotel.NewMetricsHandler(otelapi.GetMeterProvider().Meter("bramble/engine"))
		if err != nil {
			return fmt.Errorf("initializing metrics: %w", err)
		}
		tracing := brambleotel.NewTracingHandler(otelapi.GetTracerProvider().Tracer("bramble/engine"))
		detach := brambleotel.Attach(eb, metrics, tracing)
		defer detach()
	}

	srv := server.NewServer(server.Config{
		Registry:   reg,
		Exec:       execSvc,
		Catalog:    catalog,
		Bus:        eb,
		EventStore: events,
		Hub:        hub,
		CORSOrigin: corsOrigin,
		MaxBody:    maxBody,
		Logger:     logger,
	})

	if err := srv.Scheduler().Start(cmd.Context()); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer func() {
		_ = srv.Scheduler().Stop(context.Background())
	}()

	if cfg.WatchDir != "" {
		watcher, err := daemon.NewWatcher(daemon.WatcherConfig{
			Dir:    cfg.WatchDir,
			Store:  catalog,
			Bus:    eb,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("creating definitions watcher: %w", err)
		}
		if err := watcher.Start(cmd.Context()); err != nil {
			return fmt.Errorf("starting definitions watcher: %w", err)
		}
		defer watcher.Stop()
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	// Signal handling
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "bramble daemon listening on %s\n", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

// resolveServeConfig loads the daemon config and layers explicit flags on
// top: flags beat environment, environment beats file.
func resolveServeConfig(cmd *cobra.Command) (*daemon.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")
	path, found, err := daemon.DiscoverConfigPath(explicit)
	if err != nil {
		return nil, exitError(exitInputParse, "%v", err)
	}
	if !found {
		path = ""
	}
	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		return nil, exitError(exitInputParse, "%v", err)
	}

	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.Addr = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("redis"); v != "" {
		cfg.RedisAddr = v
	}
	if v, _ := cmd.Flags().GetString("otlp"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v, _ := cmd.Flags().GetString("watch"); v != "" {
		cfg.WatchDir = v
	}
	return cfg, nil
}

// openHistoryStore picks the snapshot backend: Redis when configured,
// otherwise SQLite under the data directory.
func openHistoryStore(cfg *daemon.Config) (history.Store, error) {
	if cfg.RedisAddr != "" {
		return history.NewRedisStore(cfg.RedisAddr, "", 0), nil
	}
	sqliteStore, err := history.NewSQLiteStore(history.SQLiteConfig{
		DSN:       cfg.HistoryDSN(),
		Retention: cfg.HistoryRetention(),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	return sqliteStore, nil
}

func closeHistoryStore(st history.Store) {
	if closer, ok := st.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
