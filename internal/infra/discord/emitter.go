// Package discord binds the voice engine's platform contracts to the
// Discord gateway via discordgo.
package discord

import "sync"

// emitter is a thread-safe named-event emitter. Lifecycle events are
// latched: a handler registered after the event already fired is
// invoked immediately, so a session that binds late still observes
// ready or destroyed.
type emitter struct {
	mu       sync.Mutex
	handlers map[string][]func(err error)
	latched  map[string]error
}

// latchedEvents are one-shot lifecycle events worth replaying.
var latchedEvents = map[string]bool{
	"ready":        true,
	"disconnected": true,
	"destroyed":    true,
}

func newEmitter() *emitter {
	return &emitter{
		handlers: make(map[string][]func(err error)),
		latched:  make(map[string]error),
	}
}

// On registers a handler for the named event.
func (e *emitter) On(name string, fn func(err error)) {
	e.mu.Lock()
	e.handlers[name] = append(e.handlers[name], fn)
	err, replay := e.latched[name]
	e.mu.Unlock()

	if replay {
		fn(err)
	}
}

// emit fires the named event on all registered handlers.
func (e *emitter) emit(name string, err error) {
	e.mu.Lock()
	if latchedEvents[name] {
		e.latched[name] = err
	}
	fns := make([]func(error), len(e.handlers[name]))
	copy(fns, e.handlers[name])
	e.mu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
}
