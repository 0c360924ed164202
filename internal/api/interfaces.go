package api

import (
	"context"

	"autodrop/internal/registry"
	"autodrop/internal/scheduler"
	"autodrop/internal/state"
	"autodrop/internal/store"
)

type Store interface {
	Role(id int64) registry.Role
	RegisterProducer(ctx context.Context, id int64) bool
	RegisterConsumer(ctx context.Context, id int64) bool
	RemoveIdentity(ctx context.Context, id int64) bool
	Push(ctx context.Context, items []string) int
	AssignIfEnabled(ctx context.Context, consumer int64) (string, store.Outcome)
	Clear(ctx context.Context) store.ClearResult
	SetEnabled(ctx context.Context, enabled bool)
	Status() store.Status
	Delivered(consumer int64) []string
}

type Timers interface {
	Start(ctx context.Context, consumer int64, intervalSeconds int) (scheduler.StartResult, error)
	Stop(ctx context.Context, consumer int64) bool
	State(consumer int64) state.State
}
