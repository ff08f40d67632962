// Command arenad runs the compression arena HTTP service: it loads the
// challenge catalog, opens the submission store, starts the scheduler's
// worker pool, and serves the HTTP API until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/agent-arena/compression-arena/internal/api"
	"github.com/agent-arena/compression-arena/internal/catalog"
	"github.com/agent-arena/compression-arena/internal/config"
	"github.com/agent-arena/compression-arena/internal/logging"
	"github.com/agent-arena/compression-arena/internal/scheduler"
	"github.com/agent-arena/compression-arena/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "arenad",
		Short: "compression arena server",
		RunE:  run,
	}

	root.Flags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	root.Flags().Bool("production", false, "emit newline-delimited JSON logs instead of console output")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	production, _ := cmd.Flags().GetBool("production")
	log := logging.New(logLevel, production)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	entries, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	specs := catalog.BuildSpecs(entries, cfg.ChallengesDir)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for _, e := range entries {
		spec := specs[e.ID]
		hash, err := spec.InputHash()
		if err != nil {
			return fmt.Errorf("prepare reference input for %s: %w", e.ID, err)
		}
		size, err := spec.InputSize()
		if err != nil {
			return fmt.Errorf("size reference input for %s: %w", e.ID, err)
		}
		if err := st.UpsertChallenge(ctx, e.ID, e.Title, e.Description, e.ScoringDescription, hash, size); err != nil {
			return fmt.Errorf("upsert challenge %s: %w", e.ID, err)
		}
	}

	sched := scheduler.New(st, specs, scheduler.Config{
		SubmissionsPerHour: cfg.SubmissionsPerHour,
		QueueDepth:         cfg.QueueDepth,
		Workers:            cfg.Workers,
		SandboxTimeout:     time.Duration(cfg.SandboxTimeout) * time.Second,
		SandboxMemoryMB:    cfg.SandboxMemoryMB,
		SandboxMaxOutput:   cfg.SandboxMaxOutput,
	}, log)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := api.NewServer(sched, st, specs, log)
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Log("arenad listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info().Log("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sched.Shutdown(shutdownCtx)
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
