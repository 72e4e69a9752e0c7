package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	fghttp "github.com/fleetgate/fleetgate/internal/adapter/http"
	"github.com/fleetgate/fleetgate/internal/adapter/mcp"
	fgnats "github.com/fleetgate/fleetgate/internal/adapter/nats"
	fgotel "github.com/fleetgate/fleetgate/internal/adapter/otel"
	"github.com/fleetgate/fleetgate/internal/adapter/postgres"
	"github.com/fleetgate/fleetgate/internal/adapter/ristretto"
	"github.com/fleetgate/fleetgate/internal/adapter/ws"
	"github.com/fleetgate/fleetgate/internal/config"
	"github.com/fleetgate/fleetgate/internal/domain/policy"
	"github.com/fleetgate/fleetgate/internal/logger"
	"github.com/fleetgate/fleetgate/internal/middleware"
	"github.com/fleetgate/fleetgate/internal/port/agentrunner"
	"github.com/fleetgate/fleetgate/internal/resilience"
	"github.com/fleetgate/fleetgate/internal/service"
)

const appVersion = "1.0.0"

func main() {
	// Bootstrap logger until config is loaded.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"telemetry", cfg.Telemetry.Enabled,
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown, err := fgotel.Init(ctx, cfg.Telemetry, cfg.Logging.Service, appVersion)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := fgotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := fgnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() {
		if err := queue.Drain(); err != nil {
			_ = queue.Close()
		}
	}()

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	store := postgres.NewStore(pool)
	events := postgres.NewEventStore(pool)
	ledger := postgres.NewLedger(pool)
	hub := ws.NewHub(cfg.Server.CORSOrigin, log)

	riskTable := policy.DefaultRiskTable()
	if cfg.Policy.RiskTablePath != "" {
		riskTable, err = policy.LoadRiskTable(cfg.Policy.RiskTablePath)
		if err != nil {
			return fmt.Errorf("risk table: %w", err)
		}
		slog.Info("risk table loaded", "path", cfg.Policy.RiskTablePath)
	}

	runner := mcp.NewRunner(cfg.Runner.Endpoint, cfg.Runner.Timeout)
	defer func() { _ = runner.Close() }()

	// Trip after repeated runner failures so eval runs fail fast instead
	// of piling up on a dead endpoint.
	breaker := resilience.NewBreaker(5, 30*time.Second)
	guardedRunner := agentrunner.Func(func(ctx context.Context, versionID, input string) (string, error) {
		var out string
		err := breaker.Do(func() error {
			var invokeErr error
			out, invokeErr = runner.Invoke(ctx, versionID, input)
			return invokeErr
		})
		return out, err
	})

	// --- Services ---
	templateSvc := service.NewTemplateService(store, events)
	versionSvc := service.NewVersionService(store, events, queue, hub, metrics)
	instanceSvc := service.NewInstanceService(store, events, queue, hub, metrics)
	envelopeSvc := service.NewEnvelopeService(store, events, queue, hub, cache, cfg.Cache.EnvelopeTTL)
	policySvc := service.NewPolicyService(store, events, queue, hub, ledger,
		policy.NewEngine(riskTable), envelopeSvc, metrics)
	approvalSvc := service.NewApprovalService(store, events, queue, hub, metrics)
	evalSvc := service.NewEvaluationService(store, events, queue, hub, guardedRunner, metrics,
		cfg.Eval.MaxParallel, cfg.Eval.CaseTimeout)
	historySvc := service.NewHistoryService(events)

	// Promotion to TESTING triggers an evaluation run automatically.
	versionSvc.SetEvalTrigger(evalSvc)

	// Background sweep that cancels approvals past their decision window.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go approvalSvc.RunSweeper(sweepCtx, cfg.Approvals.SweepInterval)

	// --- MCP read surface ---
	if cfg.MCP.Enabled {
		mcpSrv := mcp.NewServer(
			mcp.ServerConfig{Addr: cfg.MCP.Addr, Name: "fleetgate", Version: appVersion, APIKey: cfg.MCP.APIKey},
			mcp.ServerDeps{Templates: store, Instances: store, Runs: store, Approvals: store},
		)
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mcpSrv.Stop(stopCtx)
		}()
		slog.Info("mcp server listening", "addr", cfg.MCP.Addr)
	}

	// --- HTTP ---
	handlers := &fghttp.Handlers{
		Templates: templateSvc,
		Versions:  versionSvc,
		Instances: instanceSvc,
		Envelopes: envelopeSvc,
		Policies:  policySvc,
		Approvals: approvalSvc,
		Evals:     evalSvc,
		History:   historySvc,
		Hub:       hub,
	}

	throttle := middleware.NewThrottle(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	stopReaper := throttle.StartReaper(time.Minute, 10*time.Minute)
	defer stopReaper()

	idemKV, err := queue.KV(ctx, "fleetgate-idempotency", 24*time.Hour)
	if err != nil {
		return fmt.Errorf("idempotency kv: %w", err)
	}

	r := chi.NewRouter()
	r.Use(fghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(fghttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(fghttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(throttle.Middleware)
	r.Use(middleware.Idempotency(idemKV))
	r.Use(middleware.TenantID)
	if cfg.Telemetry.Enabled {
		r.Use(fgotel.HTTPMiddleware(cfg.Logging.Service))
	}

	fghttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
