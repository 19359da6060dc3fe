package voice

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/quaverbot/quaver/internal/app/atom"
	"github.com/quaverbot/quaver/internal/app/rx"
	"github.com/quaverbot/quaver/internal/domain/track"
	"github.com/quaverbot/quaver/internal/platform"
)

var (
	ErrWrongGuild = errors.New("voice channel belongs to a different guild")
	ErrNoTracks   = errors.New("no tracks to queue")
)

// Deps are the external collaborators a session drives.
type Deps struct {
	Transport platform.VoiceTransport
	Resolver  platform.MediaResolver
	Messages  platform.MessagingSink
	Renderer  platform.StatusRenderer

	// OnTrackStarted, when set, is invoked after a track was handed to
	// the player. Used for play-history recording.
	OnTrackStarted func(guildID string, t track.Track)
}

// Session owns one guild's voice lifecycle. All state lives in a
// single Atom; every mutation re-reads the current state inside its
// own Update, so concurrent commands and platform events interleave
// without lost updates.
type Session struct {
	guildID string
	deps    Deps
	log     zerolog.Logger

	state  *atom.Atom[State]
	events *rx.Subject[Event]

	// The machine's own subscription to its event stream. Created when
	// the transport pair is wired, disposed on teardown so a dead
	// connection's events cannot drive the session across reconnects.
	subMu sync.Mutex
	sub   *rx.Subscription
}

// NewSession creates a session in the empty Disconnected state.
func NewSession(guildID string, deps Deps) *Session {
	return &Session{
		guildID: guildID,
		deps:    deps,
		log:     zlog.With().Str("component", "voice").Str("guild", guildID).Logger(),
		state:   atom.New[State](Disconnected{}),
		events:  rx.NewSubject[Event](),
	}
}

// GuildID returns the guild this session belongs to.
func (s *Session) GuildID() string {
	return s.guildID
}

// State returns a snapshot of the current session state.
func (s *Session) State() State {
	return s.state.Get()
}

// QueueTracks enqueues tracks for the guild. On a Disconnected session
// it also sends the status message, opens the log thread, joins the
// voice channel, creates the player and wires the event adapter. On a
// Connecting/Connected session it only appends to the queue, logs the
// request and refreshes the status message.
func (s *Session) QueueTracks(ctx context.Context, author string, channel platform.VoiceChannel, statusChannelID string, tracks []track.Track) error {
	if len(tracks) == 0 {
		return ErrNoTracks
	}
	if channel.GuildID != s.guildID {
		return errors.Wrapf(ErrWrongGuild, "channel %s is in guild %s, session is for guild %s",
			channel.ID, channel.GuildID, s.guildID)
	}

	line := fmt.Sprintf("%s added %d track(s): %s",
		author, len(tracks), strings.Join(track.Titles(tracks), ", "))

	if _, ok := s.state.Get().(Disconnected); ok {
		if err := s.connect(ctx, channel, statusChannelID, tracks); err != nil {
			return err
		}
	} else {
		s.state.Update(func(cur State) State {
			switch cur := cur.(type) {
			case Disconnected:
				cur.Queue = append(cur.Queue, tracks...)
				return cur
			case Connecting:
				cur.Queue = append(cur.Queue, tracks...)
				return cur
			case Connected:
				cur.Queue = append(cur.Queue, tracks...)
				return cur
			default:
				return cur
			}
		})
	}

	s.logEvent(ctx, line)
	s.refreshStatus(ctx)
	return nil
}

// connect performs the Disconnected -> Connecting transition: status
// message, log thread, voice join, player creation, adapter wiring,
// then the atomic state commit.
func (s *Session) connect(ctx context.Context, channel platform.VoiceChannel, statusChannelID string, tracks []track.Track) error {
	content := s.deps.Renderer.Render(nil, tracks, false)

	var msgRef *platform.MessageRef
	if ref, err := s.deps.Messages.SendMessage(ctx, statusChannelID, content); err != nil {
		s.log.Warn().Err(err).Msg("failed to send status message")
	} else {
		msgRef = ref
	}

	var threadRef *platform.ThreadRef
	if msgRef != nil {
		if ref, err := s.deps.Messages.StartThread(ctx, *msgRef, "session log"); err != nil {
			s.log.Warn().Err(err).Msg("failed to open log thread")
		} else {
			threadRef = ref
		}
	}

	conn, err := s.deps.Transport.JoinChannel(ctx, channel)
	if err != nil {
		// Roll back the partial surface before reporting the failure.
		steps := make([]cleanupStep, 0, 2)
		if threadRef != nil {
			ref := *threadRef
			steps = append(steps, cleanupStep{"delete log thread", func() error {
				return s.deps.Messages.DeleteThread(ctx, ref)
			}})
		}
		if msgRef != nil {
			ref := *msgRef
			steps = append(steps, cleanupStep{"delete status message", func() error {
				return s.deps.Messages.DeleteMessage(ctx, ref)
			}})
		}
		runCleanup(s.log, steps...)
		return errors.Wrapf(err, "failed to join voice channel %s", channel.ID)
	}

	player := s.deps.Transport.CreatePlayer()

	// Another command may have won the connect race while we were
	// suspended; in that case keep its transport and discard ours.
	var stale platform.Connection
	s.state.Update(func(cur State) State {
		switch cur := cur.(type) {
		case Disconnected:
			queue := append(append([]track.Track(nil), cur.Queue...), tracks...)
			return Connecting{
				Queue:         queue,
				Channel:       channel,
				Conn:          conn,
				Player:        player,
				StatusMessage: msgRef,
				LogThread:     threadRef,
				PendingEvents: cur.PendingEvents,
			}
		case Connecting:
			stale = conn
			cur.Queue = append(cur.Queue, tracks...)
			return cur
		case Connected:
			stale = conn
			cur.Queue = append(cur.Queue, tracks...)
			return cur
		default:
			return cur
		}
	})
	if stale != nil {
		// The losing surface is invisible to the winner's state, so the
		// message and thread go away with the connection. The connection
		// was never wired into the event bus; destroying it cannot feed
		// events back into the session.
		steps := make([]cleanupStep, 0, 3)
		if threadRef != nil {
			ref := *threadRef
			steps = append(steps, cleanupStep{"delete log thread", func() error {
				return s.deps.Messages.DeleteThread(ctx, ref)
			}})
		}
		if msgRef != nil {
			ref := *msgRef
			steps = append(steps, cleanupStep{"delete status message", func() error {
				return s.deps.Messages.DeleteMessage(ctx, ref)
			}})
		}
		steps = append(steps, cleanupStep{"destroy redundant connection", func() error {
			return s.deps.Transport.Destroy(stale)
		}})
		runCleanup(s.log, steps...)
		return nil
	}

	// Subscribe before wiring the adapter: emitters may replay an
	// already-latched ready synchronously inside On, and that delivery
	// must find the dispatch loop attached.
	s.ensureSubscribed()
	bindConnection(s.events, conn)
	bindPlayer(s.events, player)
	return nil
}

// NextTrack skips the current track. Returns false when the session is
// not Connected. With an empty queue the connection is torn down; the
// returned error carries a playback-start failure, never a skip denial.
func (s *Session) NextTrack(ctx context.Context, author string) (bool, error) {
	st, ok := s.state.Get().(Connected)
	if !ok {
		return false, nil
	}

	if len(st.Queue) == 0 {
		s.teardown(ctx, "skip with empty queue")
		return true, nil
	}

	s.logEvent(ctx, fmt.Sprintf("%s skipped the current track", author))
	if err := s.playNext(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// PlayPauseTrack toggles playing/paused. The platform command is
// issued first; local state changes only if the platform reported
// success, keeping local belief aligned with platform truth.
func (s *Session) PlayPauseTrack(ctx context.Context) (bool, error) {
	st, ok := s.state.Get().(Connected)
	if !ok {
		return false, nil
	}

	var next PlayerStatus
	switch st.PlayerState.Status {
	case StatusPlaying:
		if !s.deps.Transport.Pause(st.PlayerState.Player) {
			s.log.Warn().Msg("platform rejected pause command")
			return false, nil
		}
		next = StatusPaused
	case StatusPaused:
		if !s.deps.Transport.Unpause(st.PlayerState.Player) {
			s.log.Warn().Msg("platform rejected unpause command")
			return false, nil
		}
		next = StatusPlaying
	}

	s.state.Update(func(cur State) State {
		c, ok := cur.(Connected)
		if !ok {
			return cur
		}
		c.PlayerState.Status = next
		return c
	})
	s.refreshStatus(ctx)
	return true, nil
}

// Disconnect unconditionally tears down the session and resets it to
// the empty Disconnected state. Calling it on an already-disconnected
// session is harmless.
func (s *Session) Disconnect(ctx context.Context) error {
	s.teardown(ctx, "disconnect requested")
	return nil
}

// ensureSubscribed attaches the session's dispatch loop to its event
// stream, once per transport lifetime.
func (s *Session) ensureSubscribed() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.sub != nil {
		return
	}
	s.sub = s.events.Subscribe(s.handleEvent)
}

// handleEvent routes domain events to their handlers. Handlers have no
// caller to report to, so failures are logged and the session
// self-heals instead of propagating.
func (s *Session) handleEvent(e Event) {
	ctx := context.Background()
	switch e := e.(type) {
	case ConnectionReady:
		s.onConnectionReady(ctx)
	case ConnectionDisconnected:
		s.onConnectionGone(ctx, "connection disconnected")
	case ConnectionDestroyed:
		s.onConnectionGone(ctx, "connection destroyed")
	case ConnectionError:
		s.log.Warn().Err(e.Err).Msg("voice connection error")
	case PlayerIdle:
		s.onPlayerIdle(ctx)
	case PlayerError:
		s.log.Warn().Err(e.Err).Msg("audio player error")
	}
}

// onConnectionReady is expected only while Connecting. It attaches the
// player to the connection and starts the queue head; with nothing
// queued the connection is destroyed again.
func (s *Session) onConnectionReady(ctx context.Context) {
	st, ok := s.state.Get().(Connecting)
	if !ok {
		s.log.Warn().Str("state", stateName(s.state.Get())).
			Msg("connection ready in unexpected state, ignoring")
		return
	}

	if len(st.Queue) == 0 {
		s.logEvent(ctx, "nothing queued, leaving voice channel")
		s.teardown(ctx, "ready with empty queue")
		return
	}

	if !s.deps.Transport.Subscribe(st.Conn, st.Player) {
		// Degraded: stay Connecting, no automatic retry.
		s.log.Error().Msg("failed to attach player to connection")
		return
	}

	s.state.Update(func(cur State) State {
		c, ok := cur.(Connecting)
		if !ok {
			return cur
		}
		return Connected{
			Queue:         c.Queue,
			Channel:       c.Channel,
			Conn:          c.Conn,
			PlayerState:   PlayerState{Player: c.Player, Status: StatusPlaying},
			StatusMessage: c.StatusMessage,
			LogThread:     c.LogThread,
			PendingEvents: c.PendingEvents,
		}
	})

	if err := s.playNext(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to start playback")
	}
}

// onPlayerIdle is expected only while Connected: play the next track,
// or tear down when the queue has drained.
func (s *Session) onPlayerIdle(ctx context.Context) {
	st, ok := s.state.Get().(Connected)
	if !ok {
		s.log.Warn().Str("state", stateName(s.state.Get())).
			Msg("player idle in unexpected state, ignoring")
		return
	}

	if len(st.Queue) == 0 {
		s.logEvent(ctx, "queue finished, leaving voice channel")
		s.teardown(ctx, "queue drained")
		return
	}

	if err := s.playNext(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to play next track")
	}
}

// onConnectionGone performs the full best-effort cleanup from any
// state.
func (s *Session) onConnectionGone(ctx context.Context, reason string) {
	s.teardown(ctx, reason)
}

// playNext dequeues the queue head atomically, resolves its audio and
// hands it to the player. Resolution failures propagate to the caller;
// no automatic skip to the following track is performed.
func (s *Session) playNext(ctx context.Context) error {
	var (
		next   *track.Track
		player platform.Player
	)
	s.state.Update(func(cur State) State {
		c, ok := cur.(Connected)
		if !ok || len(c.Queue) == 0 {
			return cur
		}
		head := c.Queue[0]
		c.Queue = append([]track.Track(nil), c.Queue[1:]...)
		next = &head
		player = c.PlayerState.Player
		return c
	})
	if next == nil {
		// A concurrent operation drained the queue or tore the session
		// down; nothing left to do.
		return nil
	}

	res, err := s.deps.Resolver.ResolveAudio(ctx, next.URL)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve audio for %q", next.Title)
	}

	if err := s.deps.Transport.Play(player, res); err != nil {
		return errors.Wrapf(err, "failed to start playback of %q", next.Title)
	}

	s.state.Update(func(cur State) State {
		c, ok := cur.(Connected)
		if !ok {
			return cur
		}
		c.Playing = next
		c.PlayerState.Status = StatusPlaying
		return c
	})

	if s.deps.OnTrackStarted != nil {
		s.deps.OnTrackStarted(s.guildID, *next)
	}

	s.logEvent(ctx, "now playing "+next.Title)
	s.refreshStatus(ctx)
	return nil
}

// teardown swaps the state to empty Disconnected and releases the
// previously held resources concurrently, best-effort. It is
// idempotent: a second teardown finds nothing to release.
func (s *Session) teardown(ctx context.Context, reason string) {
	var prev State
	s.state.Update(func(cur State) State {
		prev = cur
		next := Disconnected{}
		if c, ok := cur.(Connecting); ok {
			// A destroy before ready keeps unlogged lines around, and
			// with them the queue they describe; a clean destroy clears
			// both.
			next.PendingEvents = c.PendingEvents
			if len(c.PendingEvents) > 0 {
				next.Queue = c.Queue
			}
		}
		return next
	})

	s.subMu.Lock()
	sub := s.sub
	s.sub = nil
	s.subMu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}

	var (
		conn   platform.Connection
		player platform.Player
		msg    *platform.MessageRef
		thread *platform.ThreadRef
	)
	switch prev := prev.(type) {
	case Connecting:
		conn, player, msg, thread = prev.Conn, prev.Player, prev.StatusMessage, prev.LogThread
	case Connected:
		conn, player, msg, thread = prev.Conn, prev.PlayerState.Player, prev.StatusMessage, prev.LogThread
	default:
		return
	}

	log := s.log.With().Str("reason", reason).Logger()
	log.Info().Msg("tearing down voice session")

	steps := make([]cleanupStep, 0, 4)
	if thread != nil {
		ref := *thread
		steps = append(steps, cleanupStep{"delete log thread", func() error {
			return s.deps.Messages.DeleteThread(ctx, ref)
		}})
	}
	if msg != nil {
		ref := *msg
		steps = append(steps, cleanupStep{"delete status message", func() error {
			return s.deps.Messages.DeleteMessage(ctx, ref)
		}})
	}
	if player != nil {
		p := player
		steps = append(steps, cleanupStep{"stop player", func() error {
			s.deps.Transport.Stop(p)
			return nil
		}})
	}
	if conn != nil {
		c := conn
		steps = append(steps, cleanupStep{"destroy connection", func() error {
			return s.deps.Transport.Destroy(c)
		}})
	}
	runCleanup(log, steps...)
}

// logEvent appends a line to the session log thread, flushing any
// backlog queued before the thread existed. Without a thread the line
// stays pending.
func (s *Session) logEvent(ctx context.Context, line string) {
	var (
		thread  *platform.ThreadRef
		backlog []string
	)
	s.state.Update(func(cur State) State {
		switch cur := cur.(type) {
		case Disconnected:
			cur.PendingEvents = append(cur.PendingEvents, line)
			return cur
		case Connecting:
			if cur.LogThread == nil {
				cur.PendingEvents = append(cur.PendingEvents, line)
				return cur
			}
			thread = cur.LogThread
			backlog = append(cur.PendingEvents, line)
			cur.PendingEvents = nil
			return cur
		case Connected:
			if cur.LogThread == nil {
				cur.PendingEvents = append(cur.PendingEvents, line)
				return cur
			}
			thread = cur.LogThread
			backlog = append(cur.PendingEvents, line)
			cur.PendingEvents = nil
			return cur
		default:
			return cur
		}
	})

	for _, entry := range backlog {
		if err := s.deps.Messages.SendToThread(ctx, *thread, entry); err != nil {
			s.log.Warn().Err(err).Msg("failed to append to log thread")
		}
	}
}

// refreshStatus re-renders and edits the stored status message. A
// session without a status message skips the edit; edit failures are
// logged, not propagated.
func (s *Session) refreshStatus(ctx context.Context) {
	var (
		msg       *platform.MessageRef
		playing   *track.Track
		queue     []track.Track
		isPlaying bool
	)
	switch st := s.state.Get().(type) {
	case Connecting:
		msg, queue = st.StatusMessage, st.Queue
	case Connected:
		msg, playing, queue = st.StatusMessage, st.Playing, st.Queue
		isPlaying = st.PlayerState.Status == StatusPlaying
	default:
		return
	}
	if msg == nil {
		return
	}

	content := s.deps.Renderer.Render(playing, queue, isPlaying)
	if err := s.deps.Messages.EditMessage(ctx, *msg, content); err != nil {
		s.log.Warn().Err(err).Msg("failed to refresh status message")
	}
}
