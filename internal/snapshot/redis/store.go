package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"autodrop/internal/rediskeys"
	"autodrop/internal/snapshot"
)

// Store keeps the encoded snapshot under a single key. SET replaces the
// value wholesale, giving last-write-wins semantics.
type Store struct {
	client     *redis.Client
	snapKey    string
	savedAtKey string
}

func New(opts *redis.Options, prefix string) *Store {
	return NewWithClient(redis.NewClient(opts), prefix)
}

func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{
		client:     client,
		snapKey:    rediskeys.SnapshotKey(prefix),
		savedAtKey: rediskeys.SavedAtKey(prefix),
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Save(ctx context.Context, snap snapshot.Snapshot) error {
	data, err := snapshot.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.snapKey, data, 0)
		pipe.Set(ctx, s.savedAtKey, snap.SavedAt.UTC().Format(time.RFC3339Nano), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", snapshot.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (snapshot.Snapshot, error) {
	data, err := s.client.Get(ctx, s.snapKey).Bytes()
	if err == redis.Nil {
		return snapshot.Snapshot{}, snapshot.ErrNotFound
	}
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: %v", snapshot.ErrUnavailable, err)
	}
	return snapshot.Decode(data)
}
