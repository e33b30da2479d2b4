// Package service provides a typed service registry and a tracker that
// follows services as they are registered and withdrawn.
package service

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrNotRegistered is returned when unregistering a service twice.
var ErrNotRegistered = errors.New("service not registered")

// Reference identifies one registered service instance.
type Reference[T any] struct {
	Service T
	Name    string
	ID      int64
	Ranking int
}

func (r *Reference[T]) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%s [%d]", r.Name, r.ID)
	}
	return fmt.Sprintf("service [%d]", r.ID)
}

// EventKind classifies service registry events.
type EventKind int

const (
	// EventRegistered is delivered after a service is registered.
	EventRegistered EventKind = iota + 1
	// EventUnregistered is delivered after a service is withdrawn.
	EventUnregistered
)

// Event is a service registry notification.
type Event[T any] struct {
	Reference *Reference[T]
	Kind      EventKind
}

// RegisterOption configures a service registration.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	name    string
	ranking int
}

// WithRanking orders services; higher rankings are offered first.
func WithRanking(ranking int) RegisterOption {
	return func(o *registerOptions) {
		o.ranking = ranking
	}
}

// WithName labels the service for logs.
func WithName(name string) RegisterOption {
	return func(o *registerOptions) {
		o.name = name
	}
}

// Registry holds the registered instances of one service type.
type Registry[T any] struct {
	services  map[int64]*Reference[T]
	listeners map[int]func(Event[T])
	nextID    int64
	nextSub   int
	mu        sync.RWMutex
}

// NewRegistry creates an empty service registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		services:  make(map[int64]*Reference[T]),
		listeners: make(map[int]func(Event[T])),
	}
}

// Register publishes svc and notifies subscribers.
func (r *Registry[T]) Register(svc T, opts ...RegisterOption) *Handle[T] {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	r.nextID++
	ref := &Reference[T]{ID: r.nextID, Service: svc, Name: o.name, Ranking: o.ranking}
	r.services[ref.ID] = ref
	r.mu.Unlock()

	r.dispatch(Event[T]{Kind: EventRegistered, Reference: ref})
	return &Handle[T]{registry: r, ref: ref}
}

// Services returns the registered services, highest ranking first and
// oldest first among equal rankings.
func (r *Registry[T]) Services() []*Reference[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Reference[T], 0, len(r.services))
	for _, ref := range r.services {
		out = append(out, ref)
	}
	slices.SortFunc(out, compareReferences[T])
	return out
}

// Subscribe registers fn for registry events and returns a function that
// removes it.
func (r *Registry[T]) Subscribe(fn func(Event[T])) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.listeners[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.listeners, id)
			r.mu.Unlock()
		})
	}
}

func (r *Registry[T]) registered(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.services[id]
	return ok
}

func (r *Registry[T]) unregister(ref *Reference[T]) error {
	r.mu.Lock()
	if _, ok := r.services[ref.ID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", ref, ErrNotRegistered)
	}
	delete(r.services, ref.ID)
	r.mu.Unlock()

	r.dispatch(Event[T]{Kind: EventUnregistered, Reference: ref})
	return nil
}

func (r *Registry[T]) dispatch(ev Event[T]) {
	r.mu.RLock()
	ids := make([]int, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event[T]), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.listeners[id])
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func compareReferences[T any](a, b *Reference[T]) int {
	if c := cmp.Compare(b.Ranking, a.Ranking); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Handle is returned by Register and withdraws the service.
type Handle[T any] struct {
	registry *Registry[T]
	ref      *Reference[T]
}

// Reference returns the registered service's reference.
func (h *Handle[T]) Reference() *Reference[T] {
	return h.ref
}

// Unregister withdraws the service and notifies subscribers.
func (h *Handle[T]) Unregister() error {
	return h.registry.unregister(h.ref)
}
