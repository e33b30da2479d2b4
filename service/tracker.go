package service

import (
	"slices"
	"sync"
)

// Customizer decides which services a Tracker follows.
type Customizer[T any] interface {
	// AddingService is offered each service that appears. Returning false
	// leaves the service untracked.
	AddingService(ref *Reference[T]) bool

	// RemovedService is called when a tracked service disappears or the
	// tracker closes.
	RemovedService(ref *Reference[T])
}

// Tracker follows the services of a Registry through a Customizer. When a
// tracked service is withdrawn, the remaining untracked services are
// offered again so a replacement can be picked up.
type Tracker[T any] struct {
	registry    *Registry[T]
	customizer  Customizer[T]
	tracked     map[int64]*Reference[T]
	unsubscribe func()
	mu          sync.Mutex
	open        bool
}

// NewTracker creates a closed tracker.
func NewTracker[T any](registry *Registry[T], customizer Customizer[T]) *Tracker[T] {
	return &Tracker[T]{
		registry:   registry,
		customizer: customizer,
		tracked:    make(map[int64]*Reference[T]),
	}
}

// Open subscribes to the registry and offers every current service.
func (t *Tracker[T]) Open() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open {
		return
	}
	t.open = true
	t.unsubscribe = t.registry.Subscribe(t.handle)

	for _, ref := range t.registry.Services() {
		t.offer(ref)
	}
}

// Close unsubscribes and reports every tracked service as removed.
func (t *Tracker[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return
	}
	t.open = false
	t.unsubscribe()

	refs := make([]*Reference[T], 0, len(t.tracked))
	for _, ref := range t.tracked {
		refs = append(refs, ref)
	}
	slices.SortFunc(refs, compareReferences[T])
	for _, ref := range refs {
		delete(t.tracked, ref.ID)
		t.customizer.RemovedService(ref)
	}
}

// Tracked returns the currently tracked services.
func (t *Tracker[T]) Tracked() []*Reference[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Reference[T], 0, len(t.tracked))
	for _, ref := range t.tracked {
		out = append(out, ref)
	}
	slices.SortFunc(out, compareReferences[T])
	return out
}

func (t *Tracker[T]) handle(ev Event[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return
	}

	switch ev.Kind {
	case EventRegistered:
		// Skip a service withdrawn before its registration event arrived.
		if t.registry.registered(ev.Reference.ID) {
			t.offer(ev.Reference)
		}
	case EventUnregistered:
		ref, ok := t.tracked[ev.Reference.ID]
		if !ok {
			return
		}
		delete(t.tracked, ref.ID)
		t.customizer.RemovedService(ref)

		for _, candidate := range t.registry.Services() {
			t.offer(candidate)
		}
	}
}

// offer must be called with t.mu held.
func (t *Tracker[T]) offer(ref *Reference[T]) {
	if _, ok := t.tracked[ref.ID]; ok {
		return
	}
	if t.customizer.AddingService(ref) {
		t.tracked[ref.ID] = ref
	}
}
