// Package grpcserver runs the service's gRPC endpoint: the standard health
// service, kept in step with the HTTP readiness checks, plus reflection.
package grpcserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/viewings/libs/grpcx"
	"github.com/md-rashed-zaman/viewings/libs/runtime"
)

// ServiceName is reported alongside the overall status by the health service.
const ServiceName = "viewings.v1.ViewingService"

type Server struct {
	srv      *grpcx.Server
	checks   []runtime.ReadyCheck
	interval time.Duration
	logger   *slog.Logger
}

func New(logger *slog.Logger, checks []runtime.ReadyCheck, interval time.Duration) *Server {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Server{
		srv:      grpcx.NewServer(logger),
		checks:   checks,
		interval: interval,
		logger:   logger,
	}
}

func (s *Server) GRPC() *grpcx.Server {
	return s.srv
}

// Refresh runs the readiness checks once and publishes the result.
func (s *Server) Refresh(ctx context.Context) bool {
	failures := runtime.RunChecks(ctx, s.checks)
	serving := len(failures) == 0
	if !serving {
		s.logger.Warn("grpc health not serving", slog.Any("failures", failures))
	}
	s.srv.SetServing(ServiceName, serving)
	return serving
}

// Run serves on addr and refreshes health until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()
	s.logger.Info("grpc listening", slog.String("addr", addr))
	return s.srv.Serve(ctx, addr)
}
