// Package voice implements the per-guild voice session engine: a state
// machine that owns one guild's audio connection and serializes all
// mutations against user commands and asynchronous platform events.
package voice

import (
	"github.com/quaverbot/quaver/internal/domain/track"
	"github.com/quaverbot/quaver/internal/platform"
)

// State is the per-guild session lifecycle, a sealed sum of
// Disconnected, Connecting and Connected. Transport fields exist only
// on the variants in which they are valid.
type State interface {
	isState()
}

// Disconnected holds no transport resources. It is the initial state
// and the state every teardown converges to.
type Disconnected struct {
	Queue         []track.Track
	PendingEvents []string // log lines waiting for a log thread
}

// Connecting means transport objects have been requested and the
// session is waiting for the platform's ready signal.
type Connecting struct {
	Queue         []track.Track
	Channel       platform.VoiceChannel
	Conn          platform.Connection
	Player        platform.Player
	StatusMessage *platform.MessageRef
	LogThread     *platform.ThreadRef
	PendingEvents []string
}

// Connected means the transport is live and the player is attached.
type Connected struct {
	Queue         []track.Track
	Playing       *track.Track
	Channel       platform.VoiceChannel
	Conn          platform.Connection
	PlayerState   PlayerState
	StatusMessage *platform.MessageRef
	LogThread     *platform.ThreadRef
	PendingEvents []string
}

func (Disconnected) isState() {}
func (Connecting) isState()   {}
func (Connected) isState()    {}

// PlayerStatus is the nested audio-player state within Connected.
type PlayerStatus int

const (
	StatusPlaying PlayerStatus = iota
	StatusPaused
)

// String returns the string representation of the player status.
func (s PlayerStatus) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// PlayerState pairs the player handle with its playing/paused status.
type PlayerState struct {
	Player platform.Player
	Status PlayerStatus
}

// stateName returns the lifecycle name used in logs and snapshots.
func stateName(s State) string {
	switch s.(type) {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// stateQueue returns the queue of any variant.
func stateQueue(s State) []track.Track {
	switch s := s.(type) {
	case Disconnected:
		return s.Queue
	case Connecting:
		return s.Queue
	case Connected:
		return s.Queue
	default:
		return nil
	}
}
