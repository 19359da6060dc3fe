// Package atom provides a single-slot mutable cell with indivisible
// read-modify-write. All shared state in the voice engine lives in an
// Atom; Update is the only primitive through which compound changes
// are expressed.
package atom

import "sync"

// Atom holds a single value of type T behind a mutex.
type Atom[T any] struct {
	mu    sync.Mutex
	value T
}

// New creates an Atom holding the initial value.
func New[T any](initial T) *Atom[T] {
	return &Atom[T]{value: initial}
}

// Get returns the current value.
func (a *Atom[T]) Get() T {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

// Set replaces the value and returns the new value.
func (a *Atom[T]) Set(v T) T {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = v
	return v
}

// Update applies f to the current value and stores the result,
// returning the new value. No other Get/Set/Update is interleaved
// between the read and the write. A panic in f propagates to the
// caller and leaves the value unchanged.
func (a *Atom[T]) Update(f func(T) T) T {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = f(a.value)
	return a.value
}
