package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"dynq/internal/api"
	"dynq/internal/daemon"
	"dynq/internal/logging"
	"dynq/internal/queue"
	"dynq/internal/scheduler"
)

// Server answers "Dynq.*" JSON-RPC calls on a unix socket. Each connection
// gets its own codec; closing the server drops open connections.
type Server struct {
	path     string
	logger   *slog.Logger
	listener net.Listener
	rpc      *rpc.Server
	stop     func() bool

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer binds the socket at path, replacing a stale one. The server shuts
// down when ctx is canceled or Close is called.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Dynq", &service{daemon: d, logger: logger, ctx: ctx}); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	srv := &Server{
		path:     path,
		logger:   logger,
		listener: listener,
		rpc:      rpcServer,
		conns:    make(map[net.Conn]struct{}),
	}
	srv.stop = context.AfterFunc(ctx, srv.shutdown)
	return srv, nil
}

// Serve accepts connections in the background.
func (s *Server) Serve() {
	s.logger.Debug("ipc listening", logging.String("socket", s.path))
	s.wg.Go(s.acceptLoop)
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			logging.WarnWithContext(s.logger, "ipc accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "cli commands may fail to reach the daemon"),
				logging.String(logging.FieldErrorHint, "check socket permissions"))
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Go(func() {
			defer s.untrack(conn)
			s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
		})
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	_ = s.listener.Close()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
}

// Close stops accepting, waits for open calls to drain and removes the socket.
func (s *Server) Close() {
	s.stop()
	s.shutdown()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "ipc socket cleanup failed", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "a stale socket may confuse the next start"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) scheduler() (*scheduler.Scheduler, error) {
	return s.daemon.Scheduler()
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	resp.SocketPath = status.SocketPath
	resp.Environments = api.EnvironmentNames(status.Environments)
	resp.Recovered = status.Recovered
	if status.Scheduler != nil {
		resp.Scheduler = api.FromSnapshot(*status.Scheduler)
	}
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	if req.InterruptedOnly {
		items, err := sched.Interrupted(s.ctx)
		if err != nil {
			return err
		}
		resp.Items = api.FromQueueItems(items)
		return nil
	}
	list, err := api.NewQueueService(sched).List(s.ctx, req.Filter, req.Sort)
	if err != nil {
		return err
	}
	resp.Items = list.Items
	resp.Filter = list.Filter
	resp.Sort = list.Sort
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("queue item id is required")
	}
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	item, err := api.NewQueueService(sched).Describe(s.ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("queue item %s not found", id)
	}
	resp.Item = *item
	return nil
}

func (s *service) QueueAdd(req QueueAddRequest, resp *QueueAddResponse) error {
	items, err := s.daemon.AddBatch(s.ctx, req.Batch)
	if err != nil {
		return err
	}
	resp.Items = api.FromQueueItems(items)
	s.logger.Info("queue items added via IPC",
		logging.String(logging.FieldEventType, "queue_add"),
		logging.Int("item_count", len(items)))
	return nil
}

func (s *service) AutoDispatch(req AutoDispatchRequest, resp *AutoDispatchResponse) error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	started, err := sched.SetAutoDispatch(s.ctx, req.Enabled)
	if err != nil {
		return err
	}
	resp.Enabled = req.Enabled
	resp.Started = started
	return nil
}

func (s *service) QueueStep(req QueueStepRequest, resp *QueueStepResponse) error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	started, err := sched.StepOne(s.ctx, strings.TrimSpace(req.ID))
	if err != nil {
		return err
	}
	resp.Started = started
	return nil
}

func (s *service) QueuePriority(req QueuePriorityRequest, resp *QueuePriorityResponse) error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	switch {
	case req.Set != nil:
		if err := sched.SetPriority(s.ctx, req.ID, *req.Set); err != nil {
			return err
		}
		resp.Priority = *req.Set
	case req.Delta < 0:
		resp.Priority, err = sched.IncreasePriority(s.ctx, req.ID)
	case req.Delta > 0:
		resp.Priority, err = sched.DecreasePriority(s.ctx, req.ID)
	default:
		return errors.New("priority change requires delta or set")
	}
	return err
}

func (s *service) QueueTogglePause(req QueueTogglePauseRequest, resp *QueueTogglePauseResponse) error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	status, err := sched.TogglePause(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Status = string(status)
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("queue retry requires at least one id")
	}
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	result, err := api.RetryItemsByID(s.ctx, sched, req.IDs)
	if err != nil {
		return err
	}
	*resp = result
	s.logger.Info("queue items retried",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.Int("updated_count", result.UpdatedCount))
	return nil
}

func (s *service) QueueRemove(req QueueRemoveRequest, resp *QueueRemoveResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("queue remove requires at least one id")
	}
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	result, err := api.RemoveItemsByID(s.ctx, sched, req.IDs)
	if err != nil {
		return err
	}
	*resp = result
	s.logger.Info("queue items removed",
		logging.String(logging.FieldEventType, "queue_remove"),
		logging.Int("removed_count", result.RemovedCount))
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	removed, err := sched.ClearAll(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.logger.Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int("removed_count", removed))
	return nil
}

func (s *service) QueueAcknowledge(req QueueAcknowledgeRequest, resp *QueueAcknowledgeResponse) error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	ids := req.IDs
	if len(ids) == 0 {
		items, err := sched.Interrupted(s.ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			ids = append(ids, item.ID)
		}
	}
	for _, id := range ids {
		err := sched.ClearInterruption(s.ctx, id)
		if errors.Is(err, queue.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		resp.Cleared++
	}
	return nil
}

func (s *service) QueueSettings(req QueueSettingsRequest, resp *QueueSettingsResponse) error {
	sched, err := s.scheduler()
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.Filter) != "" {
		filter, err := queue.ParseFilter(req.Filter)
		if err != nil {
			return err
		}
		if err := sched.SetFilter(s.ctx, filter); err != nil {
			return err
		}
	}
	if strings.TrimSpace(req.Sort) != "" {
		mode, err := queue.ParseSortMode(req.Sort)
		if err != nil {
			return err
		}
		if err := sched.SetSort(s.ctx, mode); err != nil {
			return err
		}
	}
	if req.MaxConcurrent != 0 {
		if err := sched.SetMaxConcurrent(s.ctx, req.MaxConcurrent); err != nil {
			return err
		}
	}
	settings, err := sched.Settings(s.ctx)
	if err != nil {
		return err
	}
	resp.Filter = string(settings.Filter)
	resp.Sort = string(settings.Sort)
	resp.MaxConcurrent = settings.MaxConcurrent
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.QueueHealth(s.ctx)
	if err != nil {
		return err
	}
	*resp = health
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	*resp = health
	if err != nil && health.Error == "" {
		return err
	}
	return nil
}
