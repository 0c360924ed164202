// Package snapshot defines the durable form of the distribution state and
// the Persister contract implemented by the file, Redis and Postgres
// backends.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const Version = 1

var (
	ErrNotFound       = errors.New("snapshot not found")
	ErrMalformed      = errors.New("snapshot malformed")
	ErrUnavailable    = errors.New("snapshot storage unavailable")
	errUnknownVersion = errors.New("unsupported snapshot version")
)

type Timer struct {
	IntervalSeconds int  `json:"interval_seconds"`
	Active          bool `json:"active"`
}

type Snapshot struct {
	Version     int                `json:"version"`
	Producers   []int64            `json:"producers"`
	Consumers   []int64            `json:"consumers"`
	Queue       []string           `json:"queue"`
	Distributed map[int64][]string `json:"distributed"`
	Enabled     bool               `json:"distribution_enabled"`
	Timers      map[int64]Timer    `json:"timers"`
	SavedAt     time.Time          `json:"saved_at"`
}

type Persister interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
}

func Empty() Snapshot {
	return Snapshot{
		Version:     Version,
		Producers:   []int64{},
		Consumers:   []int64{},
		Queue:       []string{},
		Distributed: map[int64][]string{},
		Timers:      map[int64]Timer{},
	}
}

func Encode(snap Snapshot) ([]byte, error) {
	snap.Version = Version
	return json.Marshal(snap)
}

func Decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if snap.Version != Version {
		return Snapshot{}, fmt.Errorf("%w: %w %d", ErrMalformed, errUnknownVersion, snap.Version)
	}
	snap.normalize()
	return snap, nil
}

// normalize replaces nil collections so that a decoded snapshot compares
// equal to the one that was encoded.
func (s *Snapshot) normalize() {
	if s.Producers == nil {
		s.Producers = []int64{}
	}
	if s.Consumers == nil {
		s.Consumers = []int64{}
	}
	if s.Queue == nil {
		s.Queue = []string{}
	}
	if s.Distributed == nil {
		s.Distributed = map[int64][]string{}
	}
	for id, items := range s.Distributed {
		if items == nil {
			s.Distributed[id] = []string{}
		}
	}
	if s.Timers == nil {
		s.Timers = map[int64]Timer{}
	}
}

// LoadOrEmpty never fails: a missing, malformed or unreachable snapshot is
// logged and replaced by an empty one.
func LoadOrEmpty(ctx context.Context, p Persister, logger *slog.Logger) Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	snap, err := p.Load(ctx)
	switch {
	case err == nil:
		logger.Info("snapshot loaded",
			"saved_at", snap.SavedAt,
			"queue", len(snap.Queue),
			"consumers", len(snap.Consumers),
			"producers", len(snap.Producers))
		return snap
	case errors.Is(err, ErrNotFound):
		logger.Info("no snapshot found; starting empty")
	default:
		logger.Error("snapshot load failed; starting empty", "err", err)
	}
	return Empty()
}
