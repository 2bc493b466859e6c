package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dynq/internal/logging"
	"dynq/internal/queue"
	"dynq/internal/transport"
	"dynq/internal/view"
)

type command struct {
	fn   func()
	done chan struct{}
}

// Scheduler owns the queue collection and dispatches items to executors.
type Scheduler struct {
	opts      Options
	store     Persistence
	provider  transport.Provider
	publisher Publisher
	logger    *slog.Logger

	cmds    chan command
	stopReq chan struct{}
	done    chan struct{}
	execWG  sync.WaitGroup

	lifecycle sync.Mutex
	started   bool
	stopOnce  sync.Once

	// Fields below are owned by the loop goroutine.
	ctx          context.Context
	items        []*queue.Item
	index        map[string]int
	running      map[string]struct{}
	view         *view.Cache
	settings     queue.Settings
	autoDispatch bool
	stopping     bool
	durations    []time.Duration
}

// New constructs a scheduler. publisher may be nil.
func New(opts Options, store Persistence, provider transport.Provider, publisher Publisher, logger *slog.Logger) *Scheduler {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		opts:      opts,
		store:     store,
		provider:  provider,
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "scheduler"),
		cmds:      make(chan command),
		stopReq:   make(chan struct{}),
		done:      make(chan struct{}),
		index:     make(map[string]int),
		running:   make(map[string]struct{}),
	}
}

// Start loads the reconciled collection and begins the control loop.
// Auto-dispatch always starts off.
func (s *Scheduler) Start(ctx context.Context, items []*queue.Item, settings queue.Settings) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.started {
		return errors.New("scheduler already running")
	}
	s.started = true

	if settings.MaxConcurrent < 1 {
		settings.MaxConcurrent = s.opts.MaxConcurrent
	}
	if settings.Filter == "" {
		settings.Filter = queue.FilterAll
	}
	if settings.Sort == "" {
		settings.Sort = queue.SortPriority
	}
	s.ctx = context.WithoutCancel(ctx)
	s.settings = settings
	s.view = view.NewCache(settings.Filter, settings.Sort)
	for _, item := range items {
		if item == nil {
			continue
		}
		if item.Status == queue.StatusRunning {
			// Recovery must run first; treat leftovers as interrupted pending work.
			item.Status = queue.StatusPending
			item.WasInterrupted = true
		}
		s.index[item.ID] = len(s.items)
		s.items = append(s.items, item)
	}

	s.logger.Info("scheduler started",
		logging.Int("items", len(s.items)),
		logging.Int("max_concurrent", s.settings.MaxConcurrent),
		logging.Bool("priority_tiers", s.opts.PriorityTiers),
	)
	go s.loop()
	return nil
}

// Stop halts dispatch and waits for in-flight attempts to finish and be
// recorded. Attempts are never cancelled mid-flight.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	started := s.started
	s.lifecycle.Unlock()
	if !started {
		return
	}
	s.stopOnce.Do(func() { close(s.stopReq) })
	<-s.done
	s.execWG.Wait()
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)
	stopReq := s.stopReq
	for {
		select {
		case cmd := <-s.cmds:
			cmd.fn()
			close(cmd.done)
		case <-stopReq:
			stopReq = nil
			s.stopping = true
			s.autoDispatch = false
			s.logger.Info("scheduler stopping", logging.Int("in_flight", len(s.running)))
		}
		if s.stopping && len(s.running) == 0 {
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

// call runs fn on the loop goroutine and waits for it.
func (s *Scheduler) call(ctx context.Context, fn func()) error {
	s.lifecycle.Lock()
	started := s.started
	s.lifecycle.Unlock()
	if !started {
		return ErrStopped
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-cmd.done
	return nil
}

// post delivers an executor message. The loop keeps running while any
// attempt is in flight, so the send always completes.
func (s *Scheduler) post(fn func()) {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case s.cmds <- cmd:
	case <-s.done:
	}
}

func (s *Scheduler) lookup(id string) (*queue.Item, bool) {
	idx, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.items[idx], true
}

func (s *Scheduler) reindex() {
	clear(s.index)
	for idx, item := range s.items {
		s.index[item.ID] = idx
	}
}
