package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"dynq/internal/api"
	"dynq/internal/config"
	"dynq/internal/logging"
	"dynq/internal/scheduler"
)

// apiServer serves the read-only HTTP API and /metrics. A nil *apiServer
// means the API is disabled and every method is a no-op.
type apiServer struct {
	bind   string
	logger *slog.Logger
	server *http.Server

	listener    net.Listener
	stopOnDone  func() bool
	stoppedOnce sync.Once
}

const apiShutdownGrace = 5 * time.Second

func newAPIServer(cfg *config.Config, d *Daemon, sched *scheduler.Scheduler, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	opts := api.RouterOptions{
		Status:  func(ctx context.Context) (api.DaemonStatus, error) { return apiStatus(d.Status(ctx)), nil },
		Ready:   d.Ready,
		Metrics: cfg.Telemetry.MetricsEnabled,
		Logger:  logger,
	}
	if sched != nil {
		opts.Queue = api.NewQueueService(sched)
	}
	return &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		server: &http.Server{
			Handler:           api.NewRouter(opts),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

// start binds the listener synchronously so bind errors reach the caller,
// then serves in the background until ctx ends or stop is called.
func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", s.bind, err)
	}
	s.listener = listener
	s.stopOnDone = context.AfterFunc(ctx, s.shutdown)

	go func() {
		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", logging.Error(err))
		}
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) shutdown() {
	s.stoppedOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), apiShutdownGrace)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("api shutdown incomplete", logging.Error(err))
		}
	})
}

func (s *apiServer) stop() {
	if s == nil || s.listener == nil {
		return
	}
	s.stopOnDone()
	s.shutdown()
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func apiStatus(status Status) api.DaemonStatus {
	out := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		SocketPath:   status.SocketPath,
		Environments: api.EnvironmentNames(status.Environments),
	}
	if status.Scheduler != nil {
		out.Scheduler = api.FromSnapshot(*status.Scheduler)
	}
	return out
}
