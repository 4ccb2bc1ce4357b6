// AskHR tools server: the Workday-backed HR assistant.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/askhr/internal/agent"
	"github.com/ashureev/askhr/internal/api"
	"github.com/ashureev/askhr/internal/config"
	"github.com/ashureev/askhr/internal/credential"
	"github.com/ashureev/askhr/internal/docs"
	"github.com/ashureev/askhr/internal/health"
	"github.com/ashureev/askhr/internal/identity"
	"github.com/ashureev/askhr/internal/llm"
	"github.com/ashureev/askhr/internal/middleware"
	"github.com/ashureev/askhr/internal/oneshot"
	"github.com/ashureev/askhr/internal/store"
	"github.com/ashureev/askhr/internal/sweeper"
	"github.com/ashureev/askhr/internal/tools"
	"github.com/ashureev/askhr/internal/workday"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting AskHR tools server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "model", cfg.Model.Name)

	if err := os.MkdirAll(cfg.StateDir, 0o750); err != nil {
		slog.Error("Failed to create state directory", "dir", cfg.StateDir, "error", err)
		os.Exit(1)
	}

	// Initialize dependencies.
	ledger, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			slog.Error("Failed to close ledger", "error", closeErr)
		}
	}()

	if err := ledger.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	wd := workday.NewClient(cfg.Workday.BaseURL, cfg.Workday.Tenant, nil, logger)
	browser := &workday.RodBrowser{
		Bin:          cfg.Auth.BrowserBin,
		Headless:     cfg.Auth.Headless,
		RedirectURI:  cfg.Workday.RedirectURI,
		PollInterval: cfg.Auth.PollInterval,
		Logger:       logger,
	}
	authorizer := workday.NewAuthorizer(cfg.Workday, browser, wd, workday.AuthorizerOptions{
		Timeout: cfg.Auth.Timeout,
		Logger:  logger,
	})
	creds := credential.New(authorizer, credential.Options{
		SnapshotPath: cfg.Auth.SnapshotPath,
		Logger:       logger,
	})

	healthSrv := health.NewServer(logger)
	creds.OnChange(healthSrv.SetCredentialFresh)
	_, fresh := creds.Peek()
	healthSrv.SetCredentialFresh(fresh)

	renderer, err := docs.NewLetterRenderer(cfg.Letter.TemplatePath)
	if err != nil {
		slog.Error("Failed to load letter template", "error", err)
		os.Exit(1)
	}
	docCache := docs.NewCache(docs.Options{MaxBytes: cfg.Docs.MaxBytes, TTL: cfg.Docs.TTL})

	registry := tools.NewRegistry(logger)
	tools.RegisterHR(registry, tools.Deps{
		Credentials: creds,
		Workday:     wd,
		Docs:        docCache,
		Letters:     renderer,
		Ledger:      ledger,
		Letter:      cfg.Letter,
		Logger:      logger,
	})

	gemini, err := llm.NewGemini(context.Background(), cfg.Model, logger)
	if err != nil {
		slog.Error("Failed to initialize reasoning client", "error", err)
		os.Exit(1)
	}

	svc, err := agent.NewService(agent.Options{
		LLM:           gemini,
		Registry:      registry,
		Credentials:   creds,
		Flags:         oneshot.New(cfg.StateDir),
		Audit:         ledger,
		MaxIterations: cfg.MaxIterations,
		Temperature:   cfg.Model.Temperature,
		Logger:        logger,
	})
	if err != nil {
		slog.Error("Failed to initialize agent service", "error", err)
		os.Exit(1)
	}

	if cfg.ResetAuthOnStartup {
		if err := svc.Reset(); err != nil {
			slog.Warn("Startup reset incomplete", "error", err)
		}
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	agentHandler := agent.NewHandler(svc, conversationLogger, cfg)
	defer agentHandler.Close()
	apiHandler := api.NewHandler(ledger, creds, docCache, cfg.HealthCheckTimeout)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware(cfg.IsDev))

	apiHandler.RegisterRoutes(r)
	agentHandler.RegisterRoutes(r)

	// Chat turns can include an interactive Workday login, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweep := sweeper.Start(ctx, cfg.SweepInterval,
		sweeper.Documents(docCache),
		sweeper.Sessions(svc, cfg.SessionTTL),
		sweeper.Ledger(ledger, cfg.LedgerRetention),
	)
	slog.Info("Housekeeping scheduled", "session_ttl", cfg.SessionTTL, "ledger_retention", cfg.LedgerRetention)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC health", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := healthSrv.Serve(lis); err != nil {
			slog.Error("gRPC health server failed", "error", err)
		}
	}()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	healthSrv.GracefulStop()
	<-sweep.Done()

	slog.Info("Server stopped successfully")
}
