// Package store owns the distribution state: the role registry, the queue of
// undelivered items, the per-consumer delivery record, timer configuration
// and the distribution gate. Every mutation and the snapshot write that
// follows it run under a single mutex.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"autodrop/internal/metrics"
	"autodrop/internal/registry"
	"autodrop/internal/snapshot"
)

type TimerConfig struct {
	IntervalSeconds int
	Active          bool
}

type ClearResult struct {
	Queued    int
	Delivered int
}

type Status struct {
	QueueLength int
	Delivered   map[int64]int
	Enabled     bool
	Producers   int
	Consumers   int
	Timers      map[int64]TimerConfig
}

// Outcome is the result of a gated assignment.
type Outcome int

const (
	Assigned Outcome = iota
	Empty
	Disabled
)

func (o Outcome) String() string {
	switch o {
	case Assigned:
		return "assigned"
	case Empty:
		return "empty"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(s *Store) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

type Store struct {
	mu        sync.Mutex
	persister snapshot.Persister
	logger    *slog.Logger
	metrics   metrics.Recorder
	now       func() time.Time

	reg       *registry.Registry
	queue     []string
	delivered map[int64][]string
	timers    map[int64]TimerConfig
	enabled   bool
}

// New returns an empty store. A nil persister keeps state in memory only.
func New(persister snapshot.Persister, opts ...Option) *Store {
	s := &Store{
		persister: persister,
		logger:    slog.Default(),
		metrics:   metrics.Nop{},
		now:       time.Now,
		reg:       registry.New(),
		queue:     []string{},
		delivered: make(map[int64][]string),
		timers:    make(map[int64]TimerConfig),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore replaces the in-memory state with snap without writing it back.
func (s *Store) Restore(snap snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reg = registry.FromLists(snap.Producers, snap.Consumers)
	s.queue = append([]string{}, snap.Queue...)
	s.delivered = make(map[int64][]string, len(snap.Distributed))
	for id, items := range snap.Distributed {
		s.delivered[id] = append([]string{}, items...)
	}
	s.timers = make(map[int64]TimerConfig, len(snap.Timers))
	for id, t := range snap.Timers {
		s.timers[id] = TimerConfig{IntervalSeconds: t.IntervalSeconds, Active: t.Active}
	}
	s.enabled = snap.Enabled
	s.metrics.QueueDepth(len(s.queue))
}

// Snapshot returns a deep copy of the current state. SavedAt is left zero.
func (s *Store) Snapshot() snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() snapshot.Snapshot {
	snap := snapshot.Snapshot{
		Version:     snapshot.Version,
		Producers:   s.reg.Producers(),
		Consumers:   s.reg.Consumers(),
		Queue:       append([]string{}, s.queue...),
		Distributed: make(map[int64][]string, len(s.delivered)),
		Enabled:     s.enabled,
		Timers:      make(map[int64]snapshot.Timer, len(s.timers)),
	}
	for id, items := range s.delivered {
		snap.Distributed[id] = append([]string{}, items...)
	}
	for id, t := range s.timers {
		snap.Timers[id] = snapshot.Timer{IntervalSeconds: t.IntervalSeconds, Active: t.Active}
	}
	return snap
}

// persistLocked writes the snapshot. A failed write is logged and the
// in-memory mutation stands.
func (s *Store) persistLocked(ctx context.Context, op string) {
	s.metrics.QueueDepth(len(s.queue))
	if s.persister == nil {
		return
	}
	snap := s.snapshotLocked()
	snap.SavedAt = s.now().UTC()
	start := time.Now()
	if err := s.persister.Save(ctx, snap); err != nil {
		s.metrics.SnapshotFailed()
		s.logger.Error("snapshot save failed", "op", op, "err", fmt.Errorf("%w: %w", ErrPersistence, err))
		return
	}
	s.metrics.SnapshotSaved(time.Since(start).Seconds())
}

// RegisterProducer reports whether the role changed.
func (s *Store) RegisterProducer(ctx context.Context, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.reg.RegisterProducer(id)
	s.persistLocked(ctx, "register_producer")
	return changed
}

// RegisterConsumer reports whether the role changed. The consumer always
// ends up with a delivery record, possibly empty.
func (s *Store) RegisterConsumer(ctx context.Context, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.reg.RegisterConsumer(id)
	if _, ok := s.delivered[id]; !ok {
		s.delivered[id] = []string{}
	}
	s.persistLocked(ctx, "register_consumer")
	return changed
}

// RemoveIdentity drops id from both roles along with its delivery record and
// timer configuration. The queue is left alone.
func (s *Store) RemoveIdentity(ctx context.Context, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.reg.Remove(id)
	if _, ok := s.delivered[id]; ok {
		delete(s.delivered, id)
		changed = true
	}
	if _, ok := s.timers[id]; ok {
		delete(s.timers, id)
		changed = true
	}
	s.persistLocked(ctx, "remove_identity")
	return changed
}

func (s *Store) Role(id int64) registry.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Role(id)
}

func (s *Store) IsProducer(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.IsProducer(id)
}

func (s *Store) IsConsumer(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.IsConsumer(id)
}

func (s *Store) Consumers() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Consumers()
}

// Push appends items to the tail of the queue in order and returns how many
// were added. Items are not validated here.
func (s *Store) Push(ctx context.Context, items []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, items...)
	s.metrics.ItemsPushed(len(items))
	s.persistLocked(ctx, "push")
	return len(items)
}

// Assign hands the first queued item the consumer has not received yet to
// that consumer. ok is false when no such item exists.
//
// Items leave the queue on their first assignment, so the record check can
// only skip an item when the same literal string was pushed more than once.
func (s *Store) Assign(ctx context.Context, consumer int64) (item string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignLocked(ctx, consumer)
}

// AssignIfEnabled is Assign behind the distribution gate, checked under the
// same lock.
func (s *Store) AssignIfEnabled(ctx context.Context, consumer int64) (string, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return "", Disabled
	}
	item, ok := s.assignLocked(ctx, consumer)
	if !ok {
		return "", Empty
	}
	return item, Assigned
}

func (s *Store) assignLocked(ctx context.Context, consumer int64) (string, bool) {
	record := s.delivered[consumer]
	for i, candidate := range s.queue {
		if slices.Contains(record, candidate) {
			continue
		}
		s.queue = slices.Delete(s.queue, i, i+1)
		s.delivered[consumer] = append(record, candidate)
		s.metrics.ItemAssigned()
		s.persistLocked(ctx, "assign")
		return candidate, true
	}
	return "", false
}

// Clear empties the queue and every delivery record. Roles and timer
// configuration survive.
func (s *Store) Clear(ctx context.Context) ClearResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := ClearResult{Queued: len(s.queue)}
	for id, items := range s.delivered {
		res.Delivered += len(items)
		s.delivered[id] = []string{}
	}
	s.queue = []string{}
	s.persistLocked(ctx, "clear")
	return res
}

func (s *Store) SetEnabled(ctx context.Context, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	s.persistLocked(ctx, "set_enabled")
}

func (s *Store) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		QueueLength: len(s.queue),
		Delivered:   make(map[int64]int, len(s.delivered)),
		Enabled:     s.enabled,
		Producers:   len(s.reg.Producers()),
		Consumers:   len(s.reg.Consumers()),
		Timers:      make(map[int64]TimerConfig, len(s.timers)),
	}
	for id, items := range s.delivered {
		st.Delivered[id] = len(items)
	}
	for id, t := range s.timers {
		st.Timers[id] = t
	}
	return st
}

// Delivered returns a copy of the items the consumer has received.
func (s *Store) Delivered(consumer int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.delivered[consumer]...)
}

func (s *Store) SetTimer(ctx context.Context, consumer int64, cfg TimerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[consumer] = cfg
	s.persistLocked(ctx, "set_timer")
}

// DeactivateTimer clears the active flag and reports whether an active
// timer configuration existed.
func (s *Store) DeactivateTimer(ctx context.Context, consumer int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.timers[consumer]
	if !ok || !cfg.Active {
		return false
	}
	cfg.Active = false
	s.timers[consumer] = cfg
	s.persistLocked(ctx, "stop_timer")
	return true
}

// ReleaseTimer clears the active flag of a timer whose identity is no
// longer a consumer. The configuration entry itself is kept. It reports
// whether anything changed.
func (s *Store) ReleaseTimer(ctx context.Context, consumer int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.timers[consumer]
	if !ok || !cfg.Active || s.reg.IsConsumer(consumer) {
		return false
	}
	cfg.Active = false
	s.timers[consumer] = cfg
	s.persistLocked(ctx, "release_timer")
	return true
}

func (s *Store) Timer(consumer int64) (TimerConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.timers[consumer]
	return cfg, ok
}

func (s *Store) Timers() map[int64]TimerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]TimerConfig, len(s.timers))
	for id, t := range s.timers {
		out[id] = t
	}
	return out
}

// TimerLive reports whether a loop for consumer should keep running: the
// timer is configured active and the identity is still a consumer.
func (s *Store) TimerLive(consumer int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.timers[consumer]
	return ok && cfg.Active && s.reg.IsConsumer(consumer)
}
