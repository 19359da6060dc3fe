package discord

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/quaverbot/quaver/internal/platform"
)

// frameInterval is the pacing of opus frames (20ms per frame).
const frameInterval = 20 * time.Millisecond

// connection wraps a discordgo voice connection behind the platform
// contract. The gateway join completes asynchronously; readiness and
// failures surface through the emitter.
type connection struct {
	*emitter

	guildID   string
	channelID string

	mu        sync.Mutex
	vc        *discordgo.VoiceConnection
	destroyed bool
}

func (c *connection) voice() *discordgo.VoiceConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc
}

// player pumps opus frames from an audio resource into a voice
// connection. One playback runs at a time; starting a new one stops
// the previous pump.
type player struct {
	*emitter

	mu     sync.Mutex
	conn   *connection
	paused bool
	stop   chan struct{}
}

// Transport implements the voice transport over a discordgo session.
type Transport struct {
	session *discordgo.Session
	log     zerolog.Logger
}

// NewTransport creates a Discord voice transport.
func NewTransport(session *discordgo.Session) *Transport {
	return &Transport{
		session: session,
		log:     zlog.With().Str("component", "voice_transport").Logger(),
	}
}

// JoinChannel starts joining the voice channel. The returned connection
// emits "ready" once the gateway handshake completes, or "error" if it
// fails.
func (t *Transport) JoinChannel(ctx context.Context, ch platform.VoiceChannel) (platform.Connection, error) {
	if ch.ID == "" || ch.GuildID == "" {
		return nil, errors.New("voice channel is missing its IDs")
	}

	conn := &connection{
		emitter:   newEmitter(),
		guildID:   ch.GuildID,
		channelID: ch.ID,
	}

	go func() {
		vc, err := t.session.ChannelVoiceJoin(ch.GuildID, ch.ID, false, true)
		if err != nil {
			conn.emit(platform.ConnError, errors.Wrap(err, "voice join failed"))
			return
		}

		conn.mu.Lock()
		stale := conn.destroyed
		if !stale {
			conn.vc = vc
		}
		conn.mu.Unlock()

		// The session gave up on this connection while we were joining.
		if stale {
			_ = vc.Disconnect()
			return
		}
		conn.emit(platform.ConnReady, nil)
	}()

	return conn, nil
}

// CreatePlayer allocates an idle audio player.
func (t *Transport) CreatePlayer() platform.Player {
	return &player{emitter: newEmitter()}
}

// Subscribe attaches the player's output to the connection.
func (t *Transport) Subscribe(conn platform.Connection, p platform.Player) bool {
	c, ok := conn.(*connection)
	if !ok {
		return false
	}
	pl, ok := p.(*player)
	if !ok {
		return false
	}

	c.mu.Lock()
	dead := c.destroyed
	c.mu.Unlock()
	if dead {
		return false
	}

	pl.mu.Lock()
	pl.conn = c
	pl.mu.Unlock()
	return true
}

// Play starts streaming the resource on the player. Any playback
// already running on the player is stopped first.
func (t *Transport) Play(p platform.Player, res platform.AudioResource) error {
	pl, ok := p.(*player)
	if !ok {
		return errors.New("player does not belong to this transport")
	}

	pl.mu.Lock()
	if pl.conn == nil {
		pl.mu.Unlock()
		return errors.New("player is not subscribed to a connection")
	}
	vc := pl.conn.voice()
	if vc == nil {
		pl.mu.Unlock()
		return errors.New("voice connection is not ready")
	}
	if pl.stop != nil {
		close(pl.stop)
	}
	stop := make(chan struct{})
	pl.stop = stop
	pl.paused = false
	pl.mu.Unlock()

	go pl.pump(t.log, vc, res, stop)
	return nil
}

// pump streams frames until the resource ends or the playback is
// stopped. The end of the stream emits "idle"; a stop does not.
func (p *player) pump(log zerolog.Logger, vc *discordgo.VoiceConnection, res platform.AudioResource, stop <-chan struct{}) {
	defer func() {
		_ = res.Close()
		_ = vc.Speaking(false)
	}()

	if err := vc.Speaking(true); err != nil {
		log.Warn().Err(err).Msg("failed to set speaking state")
	}

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if p.isPaused() {
			continue
		}

		frame, err := res.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.emit(platform.PlayerIdle, nil)
			} else {
				p.emit(platform.PlayerError, errors.Wrap(err, "audio stream failed"))
			}
			return
		}

		select {
		case vc.OpusSend <- frame:
		case <-stop:
			return
		case <-time.After(time.Second):
			p.emit(platform.PlayerError, errors.New("voice send stalled"))
			return
		}
	}
}

func (p *player) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Pause suspends frame delivery.
func (t *Transport) Pause(p platform.Player) bool {
	pl, ok := p.(*player)
	if !ok {
		return false
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.stop == nil || pl.paused {
		return false
	}
	pl.paused = true
	return true
}

// Unpause resumes frame delivery.
func (t *Transport) Unpause(p platform.Player) bool {
	pl, ok := p.(*player)
	if !ok {
		return false
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.stop == nil || !pl.paused {
		return false
	}
	pl.paused = false
	return true
}

// Stop ends the current playback without emitting "idle".
func (t *Transport) Stop(p platform.Player) {
	pl, ok := p.(*player)
	if !ok {
		return
	}
	pl.mu.Lock()
	if pl.stop != nil {
		close(pl.stop)
		pl.stop = nil
	}
	pl.paused = false
	pl.mu.Unlock()
}

// Destroy tears down the connection. Destroying twice is a no-op.
func (t *Transport) Destroy(conn platform.Connection) error {
	c, ok := conn.(*connection)
	if !ok {
		return errors.New("connection does not belong to this transport")
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	vc := c.vc
	c.vc = nil
	c.mu.Unlock()

	var err error
	if vc != nil {
		err = vc.Disconnect()
	}
	c.emit(platform.ConnDestroyed, nil)
	if err != nil {
		return errors.Wrap(err, "voice disconnect failed")
	}
	return nil
}
