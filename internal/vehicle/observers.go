package vehicle

import (
	"slices"
	"sync"
)

// observers is a listener list with unsubscribe tokens.
type observers[T any] struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]func(T)
	closed bool
}

func newObservers[T any]() *observers[T] {
	return &observers[T]{fns: make(map[uint64]func(T))}
}

func (o *observers[T]) add(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return func() {}
	}

	id := o.nextID
	o.nextID++
	o.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.fns, id)
			o.mu.Unlock()
		})
	}
}

// notify calls every listener in registration order.
func (o *observers[T]) notify(v T) {
	o.mu.Lock()
	ids := make([]uint64, 0, len(o.fns))
	for id := range o.fns {
		ids = append(ids, id)
	}
	fns := make([]func(T), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, o.fns[id])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// clear drops every listener and refuses new ones.
func (o *observers[T]) clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.fns = map[uint64]func(T){}
}
