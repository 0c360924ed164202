// Package registry tracks which identities act as producers and which as
// consumers. The two sets are disjoint. Registry is not safe for concurrent
// use; store.Store owns one and guards it with its own lock.
package registry

import "sort"

type Role string

const (
	Unregistered Role = "unregistered"
	Producer     Role = "producer"
	Consumer     Role = "consumer"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case Producer:
		return Producer, true
	case Consumer:
		return Consumer, true
	default:
		return Unregistered, false
	}
}

type Registry struct {
	producers map[int64]struct{}
	consumers map[int64]struct{}
}

func New() *Registry {
	return &Registry{
		producers: make(map[int64]struct{}),
		consumers: make(map[int64]struct{}),
	}
}

// FromLists rebuilds a registry from persisted sets. An id listed in both
// ends up a consumer, matching the outcome of the later registration.
func FromLists(producers, consumers []int64) *Registry {
	r := New()
	for _, id := range producers {
		r.producers[id] = struct{}{}
	}
	for _, id := range consumers {
		delete(r.producers, id)
		r.consumers[id] = struct{}{}
	}
	return r
}

// RegisterProducer reports whether the call changed anything.
func (r *Registry) RegisterProducer(id int64) bool {
	if _, ok := r.producers[id]; ok {
		return false
	}
	delete(r.consumers, id)
	r.producers[id] = struct{}{}
	return true
}

// RegisterConsumer reports whether the call changed anything.
func (r *Registry) RegisterConsumer(id int64) bool {
	if _, ok := r.consumers[id]; ok {
		return false
	}
	delete(r.producers, id)
	r.consumers[id] = struct{}{}
	return true
}

func (r *Registry) Remove(id int64) bool {
	_, wasProducer := r.producers[id]
	_, wasConsumer := r.consumers[id]
	delete(r.producers, id)
	delete(r.consumers, id)
	return wasProducer || wasConsumer
}

func (r *Registry) Role(id int64) Role {
	if _, ok := r.producers[id]; ok {
		return Producer
	}
	if _, ok := r.consumers[id]; ok {
		return Consumer
	}
	return Unregistered
}

func (r *Registry) IsProducer(id int64) bool {
	_, ok := r.producers[id]
	return ok
}

func (r *Registry) IsConsumer(id int64) bool {
	_, ok := r.consumers[id]
	return ok
}

// Producers returns the producer ids in ascending order.
func (r *Registry) Producers() []int64 {
	return sortedKeys(r.producers)
}

// Consumers returns the consumer ids in ascending order.
func (r *Registry) Consumers() []int64 {
	return sortedKeys(r.consumers)
}

func sortedKeys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
