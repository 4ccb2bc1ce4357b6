// Package health exposes the tools server's credential state over the
// standard gRPC health protocol and lets the gateway query it.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// CredentialService is the health service name that reports SERVING while a
// fresh Workday credential is held.
const CredentialService = "askhr.credential"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// Server serves grpc.health.v1 for the tools server.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	logger *slog.Logger
}

// NewServer creates a health server. The credential service starts out
// NOT_SERVING.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(CredentialService, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{grpc: gs, health: hs, logger: logger}
}

// SetCredentialFresh updates the credential service status.
func (s *Server) SetCredentialFresh(fresh bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if fresh {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(CredentialService, status)
	s.logger.Debug("Credential health updated", "serving", fresh)
}

// Serve accepts connections on lis until GracefulStop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// GracefulStop marks every service NOT_SERVING and stops the server.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Checker asks a tools server whether its Workday login has completed.
type Checker struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	timeout time.Duration
	logger  *slog.Logger
}

// CheckerConfig configures Dial.
type CheckerConfig struct {
	Address        string
	ConnectTimeout time.Duration
	CheckTimeout   time.Duration
	KeepaliveTime  time.Duration
}

// Dial connects to the tools server's health endpoint and waits until the
// connection is ready.
func Dial(cfg CheckerConfig, logger *slog.Logger, opts ...grpc.DialOption) (*Checker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = 2 * time.Minute
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: cfg.KeepaliveTime, Timeout: 10 * time.Second}),
	}, opts...)
	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create health client for %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("tools health endpoint at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to tools health endpoint", "address", cfg.Address)
	return &Checker{
		conn:    conn,
		client:  healthpb.NewHealthClient(conn),
		timeout: cfg.CheckTimeout,
		logger:  logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// LoginComplete reports whether the tools server holds a fresh credential.
// Any RPC failure counts as not complete.
func (c *Checker) LoginComplete(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: CredentialService})
	if err != nil {
		c.logger.Debug("Credential health check failed", "error", err)
		return false
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// Close closes the gRPC connection.
func (c *Checker) Close() {
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("failed to close gRPC connection", "error", err)
	}
}
