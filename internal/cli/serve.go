package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegisguard/aegis/internal/alert"
	"github.com/aegisguard/aegis/internal/audit"
	"github.com/aegisguard/aegis/internal/config"
	"github.com/aegisguard/aegis/internal/evaluator"
	"github.com/aegisguard/aegis/internal/judge"
	"github.com/aegisguard/aegis/internal/pipeline"
	"github.com/aegisguard/aegis/internal/policy"
	"github.com/aegisguard/aegis/internal/redteam"
	"github.com/aegisguard/aegis/internal/server"
	"github.com/aegisguard/aegis/internal/store"
	"github.com/aegisguard/aegis/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitoring API server",
	Long: `Start the HTTP API that monitors agent messages and tool calls, manages
incidents, and runs red-team campaigns. Uses Postgres when database_url is
configured, otherwise an in-memory store suitable for development only.`,
	RunE: serveCommand,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		st = pg
	} else {
		log.Warn("no database_url configured, using in-memory store")
		st = store.NewMemory()
	}

	trail, err := audit.Open(cfg.AuditPath)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer trail.Close()

	var j judge.Client
	if cfg.Judge.BaseURL != "" {
		j = judge.NewHTTPClient(cfg.Judge, log)
	} else {
		log.Warn("no judge endpoint configured, evaluators run pattern-only")
	}

	pre := evaluator.NewPromptRisk(j, log)
	ose := evaluator.NewOutputSafety(j, log)
	aim := evaluator.NewActionIntent(j, log)

	dispatcher := alert.NewDispatcher([]alert.Notifier{
		alert.NewEmailNotifier(cfg.SMTP),
		alert.NewWebhookNotifier(0),
	}, 0, log)
	defer dispatcher.Close()

	p := pipeline.New(st, policy.NewEngine(), pre, ose, aim, dispatcher, trail, log)

	pool := worker.New(cfg.RedTeam.Workers, cfg.RedTeam.QueueSize, log)
	defer pool.Shutdown()
	engine := redteam.NewEngine(j, cfg.RedTeam.GenModel, ose, aim, log)
	runner := redteam.NewRunner(st, engine, pool, log)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(st, p, runner, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Listen).Info("aegis listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
