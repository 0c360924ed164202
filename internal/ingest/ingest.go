// Package ingest pushes item batches arriving on a Kafka topic into the
// store. The message key carries the producer id and the value carries one
// item per line, in the same format as an interactive push.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"autodrop/internal/items"
	"autodrop/internal/kafka"
	"autodrop/internal/retry"
	"autodrop/internal/store"
)

type Worker struct {
	consumer kafka.Consumer
	store    *store.Store
	logger   *slog.Logger
	backoff  *retry.Backoff
	sleep    func(ctx context.Context, d time.Duration) error
}

type Result struct {
	Producer int64
	Pushed   int
	Rejected []string
}

func New(consumer kafka.Consumer, st *store.Store, logger *slog.Logger, cfg retry.Config) (*Worker, error) {
	if consumer == nil {
		return nil, errors.New("consumer is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	backoff, err := retry.NewBackoff(cfg)
	if err != nil {
		return nil, fmt.Errorf("ingest backoff: %w", err)
	}
	return &Worker{
		consumer: consumer,
		store:    st,
		logger:   logger,
		backoff:  backoff,
		sleep:    retry.Sleep,
	}, nil
}

// Run polls until ctx is cancelled. Poll errors back off exponentially;
// handling errors are logged and the message is committed anyway so a bad
// batch cannot wedge the partition.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := w.backoff.Next()
			w.logger.Warn("ingest poll error", "err", err, "attempt", w.backoff.Failures(), "backoff", delay)
			if err := w.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		w.backoff.Reset()

		res, err := w.Handle(ctx, msg)
		if err != nil {
			w.logger.Warn("ingest rejected batch", "key", msg.Key, "err", err)
		} else {
			w.logger.Info("ingest pushed batch", "producer", res.Producer, "pushed", res.Pushed, "rejected", len(res.Rejected))
		}
		if err := w.consumer.Commit(ctx, msg); err != nil {
			w.logger.Warn("ingest commit failed", "key", msg.Key, "err", err)
		}
	}
}

// Handle authorizes the producer named by the message key and pushes the
// valid items. Invalid lines are reported in Result.Rejected.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) (Result, error) {
	producer, err := strconv.ParseInt(strings.TrimSpace(msg.Key), 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("%w: message key %q is not an identity", store.ErrValidation, msg.Key)
	}
	if !w.store.IsProducer(producer) {
		return Result{Producer: producer}, fmt.Errorf("%w: %d is not a producer", store.ErrUnauthorized, producer)
	}

	batch := items.FromText(string(msg.Value))
	res := Result{Producer: producer, Rejected: batch.Invalid}
	switch batch.Decision() {
	case items.DecisionMissing:
		return res, fmt.Errorf("%w: no items in message", store.ErrValidation)
	case items.DecisionReject:
		return res, items.ErrInvalidItem
	}
	res.Pushed = w.store.Push(ctx, batch.Valid)
	return res, nil
}
