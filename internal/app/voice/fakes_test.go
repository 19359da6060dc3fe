package voice

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/quaverbot/quaver/internal/domain/track"
	"github.com/quaverbot/quaver/internal/platform"
)

// fakeEmitter implements platform.Emitter with manual firing.
type fakeEmitter struct {
	mu       sync.Mutex
	handlers map[string][]func(error)
}

func (e *fakeEmitter) On(name string, fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[string][]func(error))
	}
	e.handlers[name] = append(e.handlers[name], fn)
}

func (e *fakeEmitter) emit(name string, err error) {
	e.mu.Lock()
	fns := append(([]func(error))(nil), e.handlers[name]...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

type fakeConn struct {
	fakeEmitter
	destroyed bool

	// readyLatched mimics an emitter whose ready already fired before
	// the handler was registered and is replayed inside On.
	readyLatched bool
}

func (c *fakeConn) On(name string, fn func(error)) {
	c.fakeEmitter.On(name, fn)
	if name == platform.ConnReady && c.readyLatched {
		fn(nil)
	}
}

type fakePlayer struct {
	fakeEmitter
	stopped int
}

type playRecord struct {
	player platform.Player
	res    platform.AudioResource
}

// fakeTransport scripts the voice transport. Events are emitted by the
// tests through the connection/player fakes.
type fakeTransport struct {
	mu sync.Mutex

	joinErr     error
	latchReady  bool
	subscribeOK bool
	pauseOK     bool
	unpauseOK   bool
	playErr     error

	conns      []*fakeConn
	players    []*fakePlayer
	subscribed []playRecord
	played     []playRecord
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subscribeOK: true, pauseOK: true, unpauseOK: true}
}

func (t *fakeTransport) JoinChannel(_ context.Context, _ platform.VoiceChannel) (platform.Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.joinErr != nil {
		return nil, t.joinErr
	}
	conn := &fakeConn{readyLatched: t.latchReady}
	t.conns = append(t.conns, conn)
	return conn, nil
}

func (t *fakeTransport) CreatePlayer() platform.Player {
	t.mu.Lock()
	defer t.mu.Unlock()
	player := &fakePlayer{}
	t.players = append(t.players, player)
	return player
}

func (t *fakeTransport) Subscribe(conn platform.Connection, player platform.Player) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.subscribeOK {
		return false
	}
	t.subscribed = append(t.subscribed, playRecord{player: player})
	return true
}

func (t *fakeTransport) Play(player platform.Player, res platform.AudioResource) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playErr != nil {
		return t.playErr
	}
	t.played = append(t.played, playRecord{player: player, res: res})
	return nil
}

func (t *fakeTransport) Pause(platform.Player) bool   { return t.pauseOK }
func (t *fakeTransport) Unpause(platform.Player) bool { return t.unpauseOK }

func (t *fakeTransport) Stop(player platform.Player) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := player.(*fakePlayer); ok {
		p.stopped++
	}
}

func (t *fakeTransport) Destroy(conn platform.Connection) error {
	c, ok := conn.(*fakeConn)
	if !ok {
		return nil
	}
	t.mu.Lock()
	already := c.destroyed
	c.destroyed = true
	t.mu.Unlock()
	if already {
		// Destroying twice is treated as success by the engine.
		return nil
	}
	c.emit(platform.ConnDestroyed, nil)
	return nil
}

func (t *fakeTransport) destroyedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.conns {
		if c.destroyed {
			n++
		}
	}
	return n
}

// fakeResource is a trivial audio resource carrying its source URL.
type fakeResource struct {
	url string
}

func (r *fakeResource) ReadFrame() ([]byte, error) { return nil, io.EOF }
func (r *fakeResource) Close() error               { return nil }

// fakeResolver scripts media resolution.
type fakeResolver struct {
	mu       sync.Mutex
	audioErr error
	resolved []string
}

func (r *fakeResolver) Resolve(_ context.Context, query string) ([]track.Track, error) {
	return []track.Track{{Title: query, URL: query}}, nil
}

func (r *fakeResolver) ResolveAudio(_ context.Context, url string) (platform.AudioResource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.audioErr != nil {
		return nil, r.audioErr
	}
	r.resolved = append(r.resolved, url)
	return &fakeResource{url: url}, nil
}

// fakeSink records messaging calls.
type fakeSink struct {
	mu sync.Mutex

	sendErr   error
	threadErr error
	editErr   error

	// onSend fires once, before the first send is recorded. Used to
	// interleave a concurrent command at a deterministic point.
	onSend func()

	nextID          int
	sent            []platform.MessageRef
	edits           []platform.DisplayContent
	threadLines     []string
	deletedMessages []platform.MessageRef
	deletedThreads  []platform.ThreadRef
}

func (s *fakeSink) SendMessage(_ context.Context, channelID string, _ platform.DisplayContent) (*platform.MessageRef, error) {
	s.mu.Lock()
	hook := s.onSend
	s.onSend = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.nextID++
	ref := platform.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("msg-%d", s.nextID)}
	s.sent = append(s.sent, ref)
	return &ref, nil
}

func (s *fakeSink) EditMessage(_ context.Context, _ platform.MessageRef, content platform.DisplayContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editErr != nil {
		return s.editErr
	}
	s.edits = append(s.edits, content)
	return nil
}

func (s *fakeSink) DeleteMessage(_ context.Context, ref platform.MessageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedMessages = append(s.deletedMessages, ref)
	return nil
}

func (s *fakeSink) StartThread(_ context.Context, ref platform.MessageRef, _ string) (*platform.ThreadRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threadErr != nil {
		return nil, s.threadErr
	}
	thread := platform.ThreadRef{ID: "thread-" + ref.MessageID}
	return &thread, nil
}

func (s *fakeSink) DeleteThread(_ context.Context, ref platform.ThreadRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedThreads = append(s.deletedThreads, ref)
	return nil
}

func (s *fakeSink) SendToThread(_ context.Context, _ platform.ThreadRef, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadLines = append(s.threadLines, text)
	return nil
}

func (s *fakeSink) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.threadLines...)
}

// fakeRenderer produces a deterministic status body.
type fakeRenderer struct{}

func (fakeRenderer) Render(playing *track.Track, queue []track.Track, isPlaying bool) platform.DisplayContent {
	title := "idle"
	if playing != nil {
		title = playing.Title
	}
	return platform.DisplayContent{
		Title:       title,
		Description: fmt.Sprintf("queue=%d playing=%v", len(queue), isPlaying),
	}
}

type fixture struct {
	transport *fakeTransport
	resolver  *fakeResolver
	sink      *fakeSink
	session   *Session

	startedMu sync.Mutex
	started   []track.Track
}

func newFixture(guildID string) *fixture {
	f := &fixture{
		transport: newFakeTransport(),
		resolver:  &fakeResolver{},
		sink:      &fakeSink{},
	}
	f.session = NewSession(guildID, Deps{
		Transport: f.transport,
		Resolver:  f.resolver,
		Messages:  f.sink,
		Renderer:  fakeRenderer{},
		OnTrackStarted: func(_ string, t track.Track) {
			f.startedMu.Lock()
			f.started = append(f.started, t)
			f.startedMu.Unlock()
		},
	})
	return f
}

func (f *fixture) conn(i int) *fakeConn {
	f.transport.mu.Lock()
	defer f.transport.mu.Unlock()
	return f.transport.conns[i]
}

func (f *fixture) player(i int) *fakePlayer {
	f.transport.mu.Lock()
	defer f.transport.mu.Unlock()
	return f.transport.players[i]
}
