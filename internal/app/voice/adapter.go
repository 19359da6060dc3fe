package voice

import (
	"github.com/quaverbot/quaver/internal/app/rx"
	"github.com/quaverbot/quaver/internal/platform"
)

// The adapter bridges native event-emitter objects into the event bus.
// It registers one listener per relevant native event name and
// republishes each firing as a tagged domain event. It performs no
// business logic; registration is tied to the emitter pair's lifetime
// and needs no explicit unsubscribe.

// bindConnection wires a native voice connection into the subject.
func bindConnection(subject *rx.Subject[Event], conn platform.Connection) {
	conn.On(platform.ConnReady, func(error) {
		subject.Next(ConnectionReady{})
	})
	conn.On(platform.ConnDisconnected, func(error) {
		subject.Next(ConnectionDisconnected{})
	})
	conn.On(platform.ConnDestroyed, func(error) {
		subject.Next(ConnectionDestroyed{})
	})
	conn.On(platform.ConnError, func(err error) {
		subject.Next(ConnectionError{Err: err})
	})
}

// bindPlayer wires a native audio player into the subject.
func bindPlayer(subject *rx.Subject[Event], player platform.Player) {
	player.On(platform.PlayerIdle, func(error) {
		subject.Next(PlayerIdle{})
	})
	player.On(platform.PlayerError, func(err error) {
		subject.Next(PlayerError{Err: err})
	})
}
