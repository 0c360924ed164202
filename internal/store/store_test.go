package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"autodrop/internal/registry"
	"autodrop/internal/snapshot"
	filestore "autodrop/internal/snapshot/file"
)

type recordingPersister struct {
	mu    sync.Mutex
	saves []snapshot.Snapshot
	err   error
}

func (p *recordingPersister) Save(ctx context.Context, snap snapshot.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, snap)
	return p.err
}

func (p *recordingPersister) Load(ctx context.Context) (snapshot.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saves) == 0 {
		return snapshot.Snapshot{}, snapshot.ErrNotFound
	}
	return p.saves[len(p.saves)-1], nil
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saves)
}

func TestPushAssignScenario(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.RegisterConsumer(ctx, 1)
	s.RegisterConsumer(ctx, 2)

	s.Push(ctx, []string{"10.0.0.1", "10.0.0.2"})
	s.SetEnabled(ctx, true)

	item, ok := s.Assign(ctx, 1)
	if !ok || item != "10.0.0.1" {
		t.Fatalf("assign(A) = %q,%v", item, ok)
	}
	if got := s.Status().QueueLength; got != 1 {
		t.Fatalf("queue length = %d, want 1", got)
	}

	item, ok = s.Assign(ctx, 2)
	if !ok || item != "10.0.0.2" {
		t.Fatalf("assign(B) = %q,%v", item, ok)
	}
	if got := s.Status().QueueLength; got != 0 {
		t.Fatalf("queue length = %d, want 0", got)
	}

	if item, ok := s.Assign(ctx, 1); ok {
		t.Fatalf("expected empty result, got %q", item)
	}
}

func TestQueueLengthArithmetic(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	pushed := 0
	for i, n := range []int{3, 0, 5, 1} {
		batch := make([]string, n)
		for j := range batch {
			batch[j] = fmt.Sprintf("10.0.%d.%d", i, j)
		}
		pushed += s.Push(ctx, batch)
	}
	assigned := 0
	for i := 0; i < 6; i++ {
		if _, ok := s.Assign(ctx, int64(i%2)); ok {
			assigned++
		}
	}
	if got, want := s.Status().QueueLength, pushed-assigned; got != want {
		t.Fatalf("queue length = %d, want %d", got, want)
	}
}

func TestAssignUniqueUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := New(&recordingPersister{})
	const items = 200
	batch := make([]string, items)
	for i := range batch {
		batch[i] = fmt.Sprintf("10.1.%d.%d", i/256, i%256)
	}
	s.Push(ctx, batch)

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func(consumer int64) {
			defer wg.Done()
			for {
				item, ok := s.Assign(ctx, consumer)
				if !ok {
					return
				}
				mu.Lock()
				seen[item]++
				mu.Unlock()
			}
		}(int64(c))
	}
	wg.Wait()

	if len(seen) != items {
		t.Fatalf("distinct items assigned = %d, want %d", len(seen), items)
	}
	for item, n := range seen {
		if n != 1 {
			t.Fatalf("item %q assigned %d times", item, n)
		}
	}
	if got := s.Status().QueueLength; got != 0 {
		t.Fatalf("queue length = %d, want 0", got)
	}
}

func TestAssignSkipsDuplicateAlreadyDelivered(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.Push(ctx, []string{"10.0.0.1", "10.0.0.1", "10.0.0.2"})

	if item, _ := s.Assign(ctx, 1); item != "10.0.0.1" {
		t.Fatalf("first assign = %q", item)
	}
	if item, _ := s.Assign(ctx, 1); item != "10.0.0.2" {
		t.Fatalf("expected duplicate to be skipped for consumer 1, got %q", item)
	}
	if item, _ := s.Assign(ctx, 2); item != "10.0.0.1" {
		t.Fatalf("expected duplicate to reach consumer 2, got %q", item)
	}
}

func TestAssignIfEnabled(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.Push(ctx, []string{"10.0.0.1"})

	if _, outcome := s.AssignIfEnabled(ctx, 1); outcome != Disabled {
		t.Fatalf("outcome = %v, want disabled", outcome)
	}
	if got := s.Status().QueueLength; got != 1 {
		t.Fatalf("disabled assign consumed an item")
	}

	s.SetEnabled(ctx, true)
	if item, outcome := s.AssignIfEnabled(ctx, 1); outcome != Assigned || item != "10.0.0.1" {
		t.Fatalf("assign = %q,%v", item, outcome)
	}
	if _, outcome := s.AssignIfEnabled(ctx, 1); outcome != Empty {
		t.Fatalf("outcome = %v, want empty", outcome)
	}
}

func TestClearKeepsRolesAndTimers(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.RegisterProducer(ctx, 1)
	s.RegisterConsumer(ctx, 2)
	s.SetTimer(ctx, 2, TimerConfig{IntervalSeconds: 45, Active: true})
	s.Push(ctx, []string{"a", "b", "c"})
	s.Assign(ctx, 2)

	res := s.Clear(ctx)
	if res.Queued != 2 || res.Delivered != 1 {
		t.Fatalf("clear result = %+v", res)
	}

	st := s.Status()
	if st.QueueLength != 0 {
		t.Fatalf("queue length = %d", st.QueueLength)
	}
	for id, n := range st.Delivered {
		if n != 0 {
			t.Fatalf("record for %d not cleared: %d", id, n)
		}
	}
	if s.Role(1) != registry.Producer || s.Role(2) != registry.Consumer {
		t.Fatalf("roles changed by clear")
	}
	if cfg, ok := s.Timer(2); !ok || cfg.IntervalSeconds != 45 || !cfg.Active {
		t.Fatalf("timer config changed by clear: %+v %v", cfg, ok)
	}
}

func TestRoleSwitchKeepsRecordAndTimer(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.RegisterConsumer(ctx, 5)
	s.Push(ctx, []string{"a"})
	s.Assign(ctx, 5)
	s.SetTimer(ctx, 5, TimerConfig{IntervalSeconds: 60, Active: true})

	if !s.RegisterProducer(ctx, 5) {
		t.Fatalf("expected role switch")
	}
	if s.IsConsumer(5) {
		t.Fatalf("still a consumer")
	}
	if got := s.Delivered(5); len(got) != 1 {
		t.Fatalf("record dropped on role switch: %v", got)
	}
	if _, ok := s.Timer(5); !ok {
		t.Fatalf("timer config dropped on role switch")
	}
	if s.TimerLive(5) {
		t.Fatalf("timer must not be live for a producer")
	}
}

func TestRemoveIdentity(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.RegisterConsumer(ctx, 5)
	s.Push(ctx, []string{"a", "b"})
	s.Assign(ctx, 5)
	s.SetTimer(ctx, 5, TimerConfig{IntervalSeconds: 60, Active: true})

	if !s.RemoveIdentity(ctx, 5) {
		t.Fatalf("expected removal")
	}
	if s.Role(5) != registry.Unregistered {
		t.Fatalf("role = %q", s.Role(5))
	}
	if _, ok := s.Timer(5); ok {
		t.Fatalf("timer config survived removal")
	}
	if _, ok := s.Status().Delivered[5]; ok {
		t.Fatalf("record survived removal")
	}
	if got := s.Status().QueueLength; got != 1 {
		t.Fatalf("queue touched by removal: %d", got)
	}
	if s.RemoveIdentity(ctx, 5) {
		t.Fatalf("second removal reported a change")
	}
}

func TestEveryMutationPersists(t *testing.T) {
	ctx := context.Background()
	p := &recordingPersister{}
	s := New(p, WithClock(func() time.Time { return time.Unix(10, 0) }))

	s.RegisterProducer(ctx, 1)
	s.RegisterConsumer(ctx, 2)
	s.Push(ctx, []string{"a"})
	s.SetEnabled(ctx, true)
	s.Assign(ctx, 2)
	s.SetTimer(ctx, 2, TimerConfig{IntervalSeconds: 30, Active: true})
	s.DeactivateTimer(ctx, 2)
	s.Clear(ctx)
	s.RemoveIdentity(ctx, 2)
	if got := p.count(); got != 9 {
		t.Fatalf("saves = %d, want 9", got)
	}

	s.Status()
	s.Snapshot()
	s.Delivered(2)
	if _, ok := s.Assign(ctx, 1); ok {
		t.Fatalf("unexpected item")
	}
	if got := p.count(); got != 9 {
		t.Fatalf("read-only calls persisted: saves = %d", got)
	}
	last, _ := p.Load(ctx)
	if !last.SavedAt.Equal(time.Unix(10, 0)) {
		t.Fatalf("saved_at = %v", last.SavedAt)
	}
}

func TestPersistFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	p := &recordingPersister{err: errors.New("disk full")}
	s := New(p)

	s.Push(ctx, []string{"a"})
	item, ok := s.Assign(ctx, 1)
	if !ok || item != "a" {
		t.Fatalf("assign = %q,%v", item, ok)
	}
	if got := s.Status().QueueLength; got != 0 {
		t.Fatalf("queue length = %d", got)
	}
}

func TestDeactivateTimer(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	if s.DeactivateTimer(ctx, 1) {
		t.Fatalf("deactivated a missing timer")
	}
	s.SetTimer(ctx, 1, TimerConfig{IntervalSeconds: 30, Active: true})
	if !s.DeactivateTimer(ctx, 1) {
		t.Fatalf("expected deactivation")
	}
	if s.DeactivateTimer(ctx, 1) {
		t.Fatalf("second deactivation reported a change")
	}
	if cfg, _ := s.Timer(1); cfg.Active || cfg.IntervalSeconds != 30 {
		t.Fatalf("timer = %+v", cfg)
	}
}

func TestReleaseTimerOnlyForNonConsumers(t *testing.T) {
	ctx := context.Background()
	p := &recordingPersister{}
	s := New(p)
	s.RegisterConsumer(ctx, 1)
	s.SetTimer(ctx, 1, TimerConfig{IntervalSeconds: 30, Active: true})
	saves := p.count()

	if s.ReleaseTimer(ctx, 1) {
		t.Fatalf("released the timer of a consumer")
	}
	if s.ReleaseTimer(ctx, 7) {
		t.Fatalf("released a missing timer")
	}
	if got := p.count(); got != saves {
		t.Fatalf("no-op release persisted: saves = %d, want %d", got, saves)
	}

	s.RegisterProducer(ctx, 1)
	if !s.ReleaseTimer(ctx, 1) {
		t.Fatalf("expected release after role switch")
	}
	cfg, ok := s.Timer(1)
	if !ok || cfg.Active || cfg.IntervalSeconds != 30 {
		t.Fatalf("timer = %+v %v, want kept and inactive", cfg, ok)
	}
	if got := p.count(); got != saves+2 {
		t.Fatalf("saves = %d, want %d", got, saves+2)
	}
	if s.ReleaseTimer(ctx, 1) {
		t.Fatalf("second release reported a change")
	}
}

func TestSnapshotRoundTripThroughFile(t *testing.T) {
	ctx := context.Background()
	persister := filestore.New(filepath.Join(t.TempDir(), "snapshot.json"))
	s := New(persister)
	s.RegisterProducer(ctx, 1)
	s.RegisterConsumer(ctx, 2)
	s.RegisterConsumer(ctx, 3)
	s.Push(ctx, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"})
	s.SetEnabled(ctx, true)
	s.Assign(ctx, 2)
	s.SetTimer(ctx, 3, TimerConfig{IntervalSeconds: 300, Active: true})
	s.SetTimer(ctx, 2, TimerConfig{IntervalSeconds: 30, Active: false})

	before := s.Snapshot()

	loaded := snapshot.LoadOrEmpty(ctx, persister, nil)
	restored := New(nil)
	restored.Restore(loaded)
	after := restored.Snapshot()

	if !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed across save/load:\nbefore=%+v\n after=%+v", before, after)
	}
}
