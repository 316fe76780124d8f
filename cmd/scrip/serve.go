package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rvannoy/scrip/internal/account"
	"github.com/rvannoy/scrip/internal/agent"
	"github.com/rvannoy/scrip/internal/api"
	"github.com/rvannoy/scrip/internal/audit"
	"github.com/rvannoy/scrip/internal/config"
	"github.com/rvannoy/scrip/internal/execution"
	"github.com/rvannoy/scrip/internal/llm"
	"github.com/rvannoy/scrip/internal/metrics"
	"github.com/rvannoy/scrip/internal/ratelimit"
	"github.com/rvannoy/scrip/internal/saga"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Scrip agent server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		st := pool.Stat()
		return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
	})

	accountStore := account.NewStore(pool)
	executionStore := execution.NewStore(pool)
	auditStore := audit.NewStore(pool)

	collector := audit.NewCollector(auditStore, cfg.Audit.BatchSize, cfg.Audit.FlushInterval)
	collector.SetMetrics(m)
	go collector.Start(ctx)

	recorder := audit.NewRecorder(collector, auditStore)
	tracker := execution.NewTracker(executionStore)

	orchestrator := saga.New(saga.Config{
		Ledger:        accountStore,
		Tracker:       tracker,
		Auditor:       recorder,
		Metrics:       m,
		InvokeTimeout: cfg.LLM.InvokeTimeout,
	})

	provider := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	registry := agent.NewRegistry(provider)

	limiter := ratelimit.New(cfg.RateLimit.Rate, cfg.RateLimit.Window)

	router := api.NewRouter(api.RouterDeps{
		Registry:    registry,
		Runner:      orchestrator,
		Executions:  tracker,
		Accounts:    accountStore,
		Granter:     recorder,
		Audit:       auditStore,
		Limiter:     limiter,
		Metrics:     m,
		AdminKey:    cfg.Auth.AdminKey,
		CORSOrigins: cfg.CORS.AllowedOrigins,
		TrustProxy:  cfg.Server.TrustProxy,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	collector.Stop()

	return srv.Shutdown(shutdownCtx)
}
