// Package health exposes the reconciler's status over the gRPC health protocol.
package health

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/manifest-network/chainview/internal/metrics"
	"github.com/manifest-network/chainview/internal/reconciler"
)

// ReconcilerService is the health service name reporting reconciliation status.
const ReconcilerService = "chainview.Reconciler"

// Server is a gRPC server carrying the health and reflection services.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server

	mu     sync.Mutex
	status healthpb.HealthCheckResponse_ServingStatus
}

// NewServer returns a server reporting SERVING overall and NOT_SERVING for the
// reconciler until its first successful pass.
func NewServer() *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: grpchealth.NewServer(),
		status: healthpb.HealthCheckResponse_NOT_SERVING,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ReconcilerService, s.status)
	return s
}

// ObservePass updates the reconciler status. Demo passes and live passes that
// read the chain height count as serving.
func (s *Server) ObservePass(res reconciler.Result) {
	next := healthpb.HealthCheckResponse_SERVING
	if res.Mode == metrics.ModeLive && res.Err != nil {
		next = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.mu.Lock()
	changed := next != s.status
	s.status = next
	s.mu.Unlock()

	if changed {
		slog.Info("Reconciler health changed", "status", next.String())
		s.health.SetServingStatus(ReconcilerService, next)
	}
}

// Status returns the current reconciler status.
func (s *Server) Status() healthpb.HealthCheckResponse_ServingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(lis)
	}()
	slog.Info("gRPC health server listening", "address", lis.Addr().String())

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return errors.Wrap(err, "gRPC server failed")
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ctx, lis)
}
