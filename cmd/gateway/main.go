// AskHR gateway: session front door that proxies to the tools server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/askhr/internal/config"
	"github.com/ashureev/askhr/internal/gateway"
	"github.com/ashureev/askhr/internal/health"
	"github.com/ashureev/askhr/internal/middleware"
	"github.com/ashureev/askhr/internal/proxy"
	"github.com/ashureev/askhr/internal/sweeper"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const gatewaySessionTTL = 12 * time.Hour

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.LoadGateway()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting AskHR gateway", "port", cfg.Port, "tools_url", cfg.ToolsURL)

	// The gRPC health check is preferred; the snapshot file is the fallback signal.
	var signalSource proxy.LoginSignal = proxy.FileSignal{Path: cfg.SnapshotPath}
	if cfg.ToolsHealthAddr != "" {
		checker, err := health.Dial(health.CheckerConfig{Address: cfg.ToolsHealthAddr}, logger)
		if err != nil {
			slog.Warn("Tools health endpoint unavailable, falling back to snapshot file", "error", err)
		} else {
			defer checker.Close()
			signalSource = checker
		}
	}

	fwd := proxy.New(proxy.Options{
		BaseURL:    cfg.ToolsURL,
		Timeout:    cfg.ToolsTimeout,
		Signal:     signalSource,
		PollEvery:  cfg.LoginPoll,
		RetryPause: cfg.RetryPause,
		Logger:     logger,
	})
	gw := gateway.New(fwd, cfg.MaxRequestBody, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	gw.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.ToolsTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweep := sweeper.Start(ctx, 10*time.Minute, sweeper.Sessions(gw, gatewaySessionTTL))

	go func() {
		slog.Info("Gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	<-sweep.Done()

	slog.Info("Gateway stopped successfully")
}
