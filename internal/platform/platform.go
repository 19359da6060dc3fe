// Package platform defines the contracts the voice engine consumes:
// the voice transport, the media resolver, the messaging sink and the
// status renderer. Concrete bindings live under internal/infra.
package platform

import (
	"context"

	"github.com/quaverbot/quaver/internal/domain/track"
)

// Native emitter event names for voice connections.
const (
	ConnSignalling   = "signalling"
	ConnConnecting   = "connecting"
	ConnReady        = "ready"
	ConnDisconnected = "disconnected"
	ConnDestroyed    = "destroyed"
	ConnError        = "error"
)

// Native emitter event names for audio players.
const (
	PlayerIdle       = "idle"
	PlayerBuffering  = "buffering"
	PlayerPaused     = "paused"
	PlayerPlaying    = "playing"
	PlayerAutoPaused = "autoPaused"
	PlayerError      = "error"
)

// Emitter is the minimal surface of a native event-emitter object.
// Handlers registered with On are invoked each time the named event
// fires; the error argument is non-nil only for error events.
type Emitter interface {
	On(name string, fn func(err error))
}

// Connection is a live (or pending) voice connection owned by one session.
type Connection interface {
	Emitter
}

// Player is an audio player owned by one session.
type Player interface {
	Emitter
}

// AudioResource is a stream of ready-to-send audio frames.
type AudioResource interface {
	// ReadFrame returns the next frame, or io.EOF when the stream ends.
	ReadFrame() ([]byte, error)
	Close() error
}

// VoiceChannel identifies a voice channel within a guild.
type VoiceChannel struct {
	ID      string
	GuildID string
	Name    string
}

// MessageRef identifies a sent chat message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// ThreadRef identifies a thread opened on a message.
type ThreadRef struct {
	ID string
}

// DisplayContent is the rendered body of the status message.
type DisplayContent struct {
	Title       string
	Description string
	Thumbnail   string
	Footer      string
}

// VoiceTransport abstracts the voice side of the chat platform.
type VoiceTransport interface {
	// JoinChannel requests a connection to the channel. The connection is
	// returned immediately; readiness is signalled via the "ready" event.
	JoinChannel(ctx context.Context, ch VoiceChannel) (Connection, error)

	// CreatePlayer allocates a new audio player.
	CreatePlayer() Player

	// Subscribe attaches the player's output to the connection.
	// Returns false if the attachment could not be established.
	Subscribe(conn Connection, player Player) bool

	// Play starts playing the resource on the player.
	Play(player Player, res AudioResource) error

	// Pause and Unpause report whether the command took effect.
	Pause(player Player) bool
	Unpause(player Player) bool

	// Stop stops the player and releases its current resource.
	Stop(player Player)

	// Destroy tears down the connection. Destroying an already-destroyed
	// connection is not an error.
	Destroy(conn Connection) error
}

// MediaResolver turns user queries into track metadata and track URLs
// into playable audio.
type MediaResolver interface {
	Resolve(ctx context.Context, query string) ([]track.Track, error)
	ResolveAudio(ctx context.Context, url string) (AudioResource, error)
}

// MessagingSink abstracts the text side of the chat platform.
type MessagingSink interface {
	SendMessage(ctx context.Context, channelID string, content DisplayContent) (*MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, content DisplayContent) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	StartThread(ctx context.Context, ref MessageRef, name string) (*ThreadRef, error)
	DeleteThread(ctx context.Context, ref ThreadRef) error
	SendToThread(ctx context.Context, ref ThreadRef, text string) error
}

// StatusRenderer builds the status-message body from playback state.
type StatusRenderer interface {
	Render(playing *track.Track, queue []track.Track, isPlaying bool) DisplayContent
}
