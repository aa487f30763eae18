package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/profile"
	"github.com/matheus3301/msgr/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name whose status follows sign-in.
const HealthService = "msgr.Session"

const defaultResync = time.Second

// Server serves grpc.health.v1 on the account's Unix domain socket.
// HealthService reports SERVING only while the account is signed in.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	resync     time.Duration
	logger     *zap.Logger
}

// NewServer creates a health server bound to the account's socket.
func NewServer(p Params, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.HealthSocketPath(p.Account)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := health.NewServer()
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		resync:     defaultResync,
		logger:     logger.Named("health"),
	}, nil
}

// Start begins serving. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("health server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// SetState maps a sign-in state to a serving status.
func (s *Server) SetState(st status.State) {
	serving := healthpb.HealthCheckResponse_NOT_SERVING
	if st == status.Ready {
		serving = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HealthService, serving)
}

// Watch keeps the health status in line with m until b is closed. Status
// events trigger a re-read of m, and so does every resync tick, so an event
// the bus dropped is corrected within one interval.
func (s *Server) Watch(b *bus.Bus, m *status.Machine) {
	events, _ := b.Subscribe(bus.SessionStatusChanged, 64)
	s.SetState(m.Current())
	go func() {
		ticker := time.NewTicker(s.resync)
		defer ticker.Stop()
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return
				}
			case <-ticker.C:
			}
			s.SetState(m.Current())
		}
	}()
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("health server stopping")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}
