// Package rx provides a minimal publish/subscribe primitive: a Subject
// accepts events and multicasts them synchronously to the current
// subscribers; the Observable view supports filtering, mapping,
// flat-mapping and refinement-scoped subscription.
package rx

import (
	"sync"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Observer receives events delivered through a subscription.
type Observer[T any] func(T)

// Subscription is the handle returned by Subscribe. Unsubscribe stops
// delivery; it is safe to call more than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe detaches the observer from its source.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Observable is the read side of an event stream.
type Observable[T any] interface {
	// Subscribe registers the observer and returns its handle
	// synchronously. Events published while the handle is active are
	// delivered in publish order, on the publisher's goroutine.
	Subscribe(obs Observer[T]) *Subscription
}

// Subject is the write side of an event stream. The zero value is not
// usable; use NewSubject.
type Subject[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]Observer[T]
	log    zerolog.Logger
}

// NewSubject creates an empty Subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{
		subs: make(map[uint64]Observer[T]),
		log:  zlog.With().Str("component", "rx").Logger(),
	}
}

// Next publishes an event to all current subscribers, synchronously on
// the calling goroutine. Each subscriber sees events in publish order;
// ordering across subscribers is unspecified. A panicking observer is
// logged and does not prevent delivery to the others.
func (s *Subject[T]) Next(event T) {
	s.mu.RLock()
	observers := make([]Observer[T], 0, len(s.subs))
	for _, obs := range s.subs {
		observers = append(observers, obs)
	}
	s.mu.RUnlock()

	for _, obs := range observers {
		s.deliver(obs, event)
	}
}

func (s *Subject[T]) deliver(obs Observer[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("observer panicked during delivery")
		}
	}()
	obs(event)
}

// Subscribe implements Observable.
func (s *Subject[T]) Subscribe(obs Observer[T]) *Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = obs
	s.mu.Unlock()

	return newSubscription(func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})
}

// observableFunc adapts a subscribe function to the Observable interface.
type observableFunc[T any] func(Observer[T]) *Subscription

func (f observableFunc[T]) Subscribe(obs Observer[T]) *Subscription {
	return f(obs)
}

// Filter returns an Observable that delivers only events matching pred.
func Filter[T any](src Observable[T], pred func(T) bool) Observable[T] {
	return observableFunc[T](func(obs Observer[T]) *Subscription {
		return src.Subscribe(func(event T) {
			if pred(event) {
				obs(event)
			}
		})
	})
}

// Map returns an Observable that delivers f applied to each event.
func Map[T, U any](src Observable[T], f func(T) U) Observable[U] {
	return observableFunc[U](func(obs Observer[U]) *Subscription {
		return src.Subscribe(func(event T) {
			obs(f(event))
		})
	})
}

// Chain (flat-map) maps each event to an inner Observable and merges
// their deliveries. Unsubscribing detaches from the source and from
// every inner stream subscribed so far.
func Chain[T, U any](src Observable[T], f func(T) Observable[U]) Observable[U] {
	return observableFunc[U](func(obs Observer[U]) *Subscription {
		var mu sync.Mutex
		var inner []*Subscription
		closed := false

		outer := src.Subscribe(func(event T) {
			sub := f(event).Subscribe(obs)
			mu.Lock()
			if closed {
				mu.Unlock()
				sub.Unsubscribe()
				return
			}
			inner = append(inner, sub)
			mu.Unlock()
		})

		return newSubscription(func() {
			outer.Unsubscribe()
			mu.Lock()
			closed = true
			subs := inner
			inner = nil
			mu.Unlock()
			for _, sub := range subs {
				sub.Unsubscribe()
			}
		})
	})
}

// SubscribeTo subscribes with a refinement: refine narrows the event
// stream, and only events for which it reports ok reach the observer.
func SubscribeTo[T, U any](src Observable[T], refine func(T) (U, bool), obs Observer[U]) *Subscription {
	return src.Subscribe(func(event T) {
		if narrowed, ok := refine(event); ok {
			obs(narrowed)
		}
	})
}
