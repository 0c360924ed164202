// Package scheduler runs one recurring delivery loop per consumer.
//
// Each loop sleeps for the consumer's interval, then assigns the next item
// from the store and forwards it through the transport. Stopping a timer only
// clears its active flag: the loop notices on its next wake-up and exits.
// Restarting a timer retires the previous loop completely before the new one
// is registered, so a consumer never has two live loops.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"autodrop/internal/metrics"
	"autodrop/internal/state"
	"autodrop/internal/store"
	"autodrop/internal/transport"
)

const (
	MinIntervalSeconds     = 30
	MaxIntervalSeconds     = 86400
	DefaultIntervalSeconds = 360
)

var (
	ErrInvalidInterval = fmt.Errorf("%w: interval must be between %d and %d seconds",
		store.ErrValidation, MinIntervalSeconds, MaxIntervalSeconds)
	ErrClosed = errors.New("scheduler closed")
)

// Messages are the notices sent to a consumer when a tick has no item.
type Messages struct {
	Waiting string
	Empty   string
}

func DefaultMessages() Messages {
	return Messages{
		Waiting: "Distribution is paused. Waiting for it to resume.",
		Empty:   "No items available right now.",
	}
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(s *Scheduler) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

func WithMessages(m Messages) Option {
	return func(s *Scheduler) {
		if m.Waiting != "" {
			s.messages.Waiting = m.Waiting
		}
		if m.Empty != "" {
			s.messages.Empty = m.Empty
		}
	}
}

type StartResult struct {
	// Item is the immediately assigned item, set when Outcome is store.Assigned.
	Item     string
	Outcome  store.Outcome
	Previous state.State
}

type task struct {
	consumer int64
	interval time.Duration
	active   atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// retire clears the flag and interrupts the sleep.
func (t *task) retire() {
	t.active.Store(false)
	t.cancel()
}

type Scheduler struct {
	store    *store.Store
	sender   transport.Sender
	logger   *slog.Logger
	metrics  metrics.Recorder
	messages Messages
	after    func(time.Duration) <-chan time.Time

	baseCtx   context.Context
	cancelAll context.CancelFunc

	mu     sync.Mutex
	tasks  map[int64]*task
	locks  map[int64]*sync.Mutex
	live   int
	closed bool
}

func New(st *store.Store, sender transport.Sender, opts ...Option) (*Scheduler, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:     st,
		sender:    sender,
		logger:    slog.Default(),
		metrics:   metrics.Nop{},
		messages:  DefaultMessages(),
		after:     time.After,
		baseCtx:   ctx,
		cancelAll: cancel,
		tasks:     make(map[int64]*task),
		locks:     make(map[int64]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func ValidateInterval(seconds int) error {
	if seconds < MinIntervalSeconds || seconds > MaxIntervalSeconds {
		return ErrInvalidInterval
	}
	return nil
}

// lockConsumer serializes Start and Stop for one consumer.
func (s *Scheduler) lockConsumer(consumer int64) func() {
	s.mu.Lock()
	l, ok := s.locks[consumer]
	if !ok {
		l = &sync.Mutex{}
		s.locks[consumer] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Start (re)starts the consumer's timer. Any running loop is retired and
// awaited first. One item is assigned immediately and forwarded before the
// recurring loop begins.
func (s *Scheduler) Start(ctx context.Context, consumer int64, intervalSeconds int) (StartResult, error) {
	if err := ValidateInterval(intervalSeconds); err != nil {
		return StartResult{}, err
	}
	unlock := s.lockConsumer(consumer)
	defer unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return StartResult{}, ErrClosed
	}
	old := s.tasks[consumer]
	s.mu.Unlock()

	res := StartResult{Previous: s.State(consumer)}
	if old != nil {
		old.retire()
		<-old.done
	}

	res.Item, res.Outcome = s.store.AssignIfEnabled(ctx, consumer)
	if res.Outcome == store.Assigned {
		s.deliver(ctx, consumer, res.Item)
	}

	s.store.SetTimer(ctx, consumer, store.TimerConfig{IntervalSeconds: intervalSeconds, Active: true})
	if err := s.launch(consumer, intervalSeconds); err != nil {
		return res, err
	}
	s.logger.Info("timer started",
		"consumer", consumer,
		"interval_seconds", intervalSeconds,
		"immediate", res.Outcome.String(),
		"previous", res.Previous)
	return res, nil
}

// Stop marks the timer inactive and persists that. The loop is not
// interrupted; it exits when it next wakes. Stop reports whether an active
// timer existed.
func (s *Scheduler) Stop(ctx context.Context, consumer int64) bool {
	unlock := s.lockConsumer(consumer)
	defer unlock()

	if from := s.State(consumer); !state.CanTransition(from, state.Stopped) {
		s.logger.Debug("timer not running", "consumer", consumer, "state", from)
		return false
	}
	stopped := s.store.DeactivateTimer(ctx, consumer)
	s.mu.Lock()
	t := s.tasks[consumer]
	s.mu.Unlock()
	if t != nil {
		t.active.Store(false)
	}
	if stopped {
		s.logger.Info("timer stopped", "consumer", consumer)
	}
	return stopped
}

// Resume starts loops for every persisted active timer whose identity is
// still a consumer. No immediate assignment is made. It returns the number
// of loops started.
func (s *Scheduler) Resume(ctx context.Context) int {
	started := 0
	for consumer, cfg := range s.store.Timers() {
		if !cfg.Active || !s.store.IsConsumer(consumer) {
			continue
		}
		if err := ValidateInterval(cfg.IntervalSeconds); err != nil {
			s.logger.Warn("skipping persisted timer", "consumer", consumer, "interval_seconds", cfg.IntervalSeconds, "err", err)
			continue
		}
		unlock := s.lockConsumer(consumer)
		s.mu.Lock()
		_, running := s.tasks[consumer]
		s.mu.Unlock()
		if !running {
			if err := s.launch(consumer, cfg.IntervalSeconds); err != nil {
				unlock()
				s.logger.Warn("timer resume aborted", "err", err)
				return started
			}
			started++
		}
		unlock()
	}
	if started > 0 {
		s.logger.Info("timers resumed", "count", started)
	}
	return started
}

func (s *Scheduler) launch(consumer int64, intervalSeconds int) error {
	ctx, cancel := context.WithCancel(s.baseCtx)
	t := &task{
		consumer: consumer,
		interval: time.Duration(intervalSeconds) * time.Second,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	t.active.Store(true)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ErrClosed
	}
	s.tasks[consumer] = t
	s.live++
	live := s.live
	s.mu.Unlock()

	s.metrics.LiveTimers(live)
	go s.run(t)
	return nil
}

func (s *Scheduler) run(t *task) {
	defer s.finish(t)
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-s.after(t.interval):
		}
		if t.ctx.Err() != nil {
			return
		}
		if !t.active.Load() {
			s.logger.Info("timer loop exiting", "consumer", t.consumer)
			return
		}
		if !s.store.TimerLive(t.consumer) {
			if s.store.ReleaseTimer(t.ctx, t.consumer) {
				s.logger.Info("timer released", "consumer", t.consumer, "reason", "no longer a consumer")
			}
			s.logger.Info("timer loop exiting", "consumer", t.consumer)
			return
		}
		s.tick(t.ctx, t.consumer)
	}
}

func (s *Scheduler) finish(t *task) {
	t.cancel()
	s.mu.Lock()
	if s.tasks[t.consumer] == t {
		delete(s.tasks, t.consumer)
	}
	s.live--
	live := s.live
	s.mu.Unlock()
	s.metrics.LiveTimers(live)
	close(t.done)
}

func (s *Scheduler) tick(ctx context.Context, consumer int64) {
	item, outcome := s.store.AssignIfEnabled(ctx, consumer)
	switch outcome {
	case store.Assigned:
		s.metrics.TimerTick(metrics.TickDelivered)
		s.deliver(ctx, consumer, item)
	case store.Empty:
		s.metrics.TimerTick(metrics.TickEmpty)
		s.deliver(ctx, consumer, s.messages.Empty)
	case store.Disabled:
		s.metrics.TimerTick(metrics.TickWaiting)
		s.deliver(ctx, consumer, s.messages.Waiting)
	}
}

// deliver is fire-and-forget: a failed send is logged and counted.
func (s *Scheduler) deliver(ctx context.Context, consumer int64, text string) {
	if err := s.sender.SendText(ctx, consumer, text); err != nil {
		s.metrics.DeliveryFailed()
		s.logger.Warn("delivery failed", "consumer", consumer, "err", err)
	}
}

// State reports the configured timer state of consumer.
func (s *Scheduler) State(consumer int64) state.State {
	cfg, ok := s.store.Timer(consumer)
	return state.Of(ok, cfg.Active)
}

// Live returns the number of loops currently running, including stopped
// loops that have not woken up yet.
func (s *Scheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Close interrupts every loop and waits for them to exit. Persisted timer
// configuration is left as is so Resume can pick it up after a restart.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	s.cancelAll()
	for _, t := range tasks {
		<-t.done
	}
}
