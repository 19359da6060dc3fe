package voice

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaverbot/quaver/internal/domain/track"
	"github.com/quaverbot/quaver/internal/platform"
)

const testGuild = "guild-1"

var testChannel = platform.VoiceChannel{ID: "vc-1", GuildID: testGuild, Name: "General"}

func tr(title string) track.Track {
	return track.Track{Title: title, URL: "https://example.com/" + title}
}

// connectFixture drives a fresh session to Connected with the given
// tracks: enqueue, then synthetic ready.
func connectFixture(t *testing.T, tracks ...track.Track) *fixture {
	t.Helper()
	f := newFixture(testGuild)
	ctx := context.Background()

	require.NoError(t, f.session.QueueTracks(ctx, "alice", testChannel, "status-ch", tracks))
	require.IsType(t, Connecting{}, f.session.State())

	f.conn(0).emit(platform.ConnReady, nil)
	require.IsType(t, Connected{}, f.session.State())
	return f
}

func TestQueueTracks_RejectsEmptyList(t *testing.T) {
	f := newFixture(testGuild)

	err := f.session.QueueTracks(context.Background(), "alice", testChannel, "status-ch", nil)

	assert.ErrorIs(t, err, ErrNoTracks)
	assert.IsType(t, Disconnected{}, f.session.State())
}

func TestQueueTracks_RejectsForeignGuildChannel(t *testing.T) {
	f := newFixture(testGuild)
	foreign := platform.VoiceChannel{ID: "vc-9", GuildID: "guild-9"}

	err := f.session.QueueTracks(context.Background(), "alice", foreign, "status-ch", []track.Track{tr("a")})

	assert.ErrorIs(t, err, ErrWrongGuild)
	// No state change and no transport activity.
	assert.IsType(t, Disconnected{}, f.session.State())
	assert.Empty(t, f.transport.conns)
	assert.Empty(t, f.sink.sent)
}

func TestQueueTracks_DisconnectedTransitionsToConnecting(t *testing.T) {
	f := newFixture(testGuild)

	err := f.session.QueueTracks(context.Background(), "alice", testChannel, "status-ch", []track.Track{tr("a")})
	require.NoError(t, err)

	st, ok := f.session.State().(Connecting)
	require.True(t, ok)
	assert.Equal(t, []track.Track{tr("a")}, st.Queue)
	assert.Equal(t, testChannel, st.Channel)
	require.NotNil(t, st.StatusMessage)
	require.NotNil(t, st.LogThread)

	// Status message sent to the status channel, log line in the thread.
	require.Len(t, f.sink.sent, 1)
	assert.Equal(t, "status-ch", f.sink.sent[0].ChannelID)
	require.Len(t, f.sink.lines(), 1)
	assert.Contains(t, f.sink.lines()[0], "alice added 1 track(s)")
}

func TestQueueTracks_ConnectionReadyStartsPlayback(t *testing.T) {
	f := connectFixture(t, tr("a"))

	st := f.session.State().(Connected)
	require.NotNil(t, st.Playing)
	assert.True(t, st.Playing.Equal(tr("a")))
	assert.Empty(t, st.Queue)
	assert.Equal(t, StatusPlaying, st.PlayerState.Status)

	assert.Len(t, f.transport.subscribed, 1)
	require.Len(t, f.transport.played, 1)
	assert.Equal(t, []track.Track{tr("a")}, f.started)
}

func TestQueueTracks_WhileConnectedOnlyAppends(t *testing.T) {
	f := connectFixture(t, tr("a"))

	err := f.session.QueueTracks(context.Background(), "bob", testChannel, "status-ch", []track.Track{tr("b"), tr("c")})
	require.NoError(t, err)

	st := f.session.State().(Connected)
	assert.Equal(t, []track.Track{tr("b"), tr("c")}, st.Queue)
	// No second join or status message.
	assert.Len(t, f.transport.conns, 1)
	assert.Len(t, f.sink.sent, 1)
	assert.Contains(t, f.sink.lines(), "bob added 2 track(s): b, c")
}

func TestConnectionReady_EmptyQueueDestroysConnection(t *testing.T) {
	f := newFixture(testGuild)
	conn := &fakeConn{}
	player := &fakePlayer{}
	f.session.state.Set(Connecting{Channel: testChannel, Conn: conn, Player: player})

	f.session.onConnectionReady(context.Background())

	st, ok := f.session.State().(Disconnected)
	require.True(t, ok)
	assert.Empty(t, st.Queue)
	assert.True(t, conn.destroyed)
	assert.Equal(t, 1, player.stopped)
	assert.Empty(t, f.transport.played)
}

func TestConnectionReady_SubscribeFailureStaysConnecting(t *testing.T) {
	f := newFixture(testGuild)
	f.transport.subscribeOK = false

	require.NoError(t, f.session.QueueTracks(context.Background(), "alice", testChannel, "status-ch", []track.Track{tr("a")}))
	f.conn(0).emit(platform.ConnReady, nil)

	// Degraded: still Connecting, nothing played, connection intact.
	assert.IsType(t, Connecting{}, f.session.State())
	assert.Empty(t, f.transport.played)
	assert.False(t, f.conn(0).destroyed)
}

func TestConnectionReady_IgnoredOutsideConnecting(t *testing.T) {
	f := newFixture(testGuild)

	f.session.onConnectionReady(context.Background())

	assert.Equal(t, Disconnected{}, f.session.State())
	assert.Empty(t, f.transport.played)
}

func TestNextTrack_NoopUnlessConnected(t *testing.T) {
	f := newFixture(testGuild)

	ok, err := f.session.NextTrack(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	f.session.state.Set(Connecting{Channel: testChannel, Conn: &fakeConn{}, Player: &fakePlayer{}})
	ok, err = f.session.NextTrack(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNextTrack_SkipsToQueueHead(t *testing.T) {
	f := connectFixture(t, tr("t0"), tr("t1"), tr("t2"))

	ok, err := f.session.NextTrack(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	st := f.session.State().(Connected)
	require.NotNil(t, st.Playing)
	assert.True(t, st.Playing.Equal(tr("t1")))
	assert.Equal(t, []track.Track{tr("t2")}, st.Queue)
	assert.Contains(t, f.sink.lines(), "alice skipped the current track")
}

func TestNextTrack_EmptyQueueTearsDown(t *testing.T) {
	f := connectFixture(t, tr("only"))

	ok, err := f.session.NextTrack(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, Disconnected{}, f.session.State())
	assert.Equal(t, 1, f.transport.destroyedCount())
	assert.Len(t, f.sink.deletedMessages, 1)
	assert.Len(t, f.sink.deletedThreads, 1)
	assert.Equal(t, 1, f.player(0).stopped)
}

func TestPlayerIdle_PlaysNextTrack(t *testing.T) {
	f := connectFixture(t, tr("t0"), tr("t1"))

	f.player(0).emit(platform.PlayerIdle, nil)

	st := f.session.State().(Connected)
	require.NotNil(t, st.Playing)
	assert.True(t, st.Playing.Equal(tr("t1")))
	assert.Empty(t, st.Queue)
	assert.Len(t, f.transport.played, 2)
}

func TestPlayerIdle_EmptyQueueTearsDown(t *testing.T) {
	f := connectFixture(t, tr("only"))

	f.player(0).emit(platform.PlayerIdle, nil)

	assert.Equal(t, Disconnected{}, f.session.State())
	assert.Equal(t, 1, f.transport.destroyedCount())
}

func TestPlayerIdle_IgnoredOutsideConnected(t *testing.T) {
	f := newFixture(testGuild)
	f.session.state.Set(Connecting{Channel: testChannel, Conn: &fakeConn{}, Player: &fakePlayer{}})

	f.session.onPlayerIdle(context.Background())

	assert.IsType(t, Connecting{}, f.session.State())
	assert.Empty(t, f.transport.played)
}

func TestPlayPauseTrack_TogglesBothWays(t *testing.T) {
	f := connectFixture(t, tr("a"))

	ok, err := f.session.PlayPauseTrack(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusPaused, f.session.State().(Connected).PlayerState.Status)

	ok, err = f.session.PlayPauseTrack(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusPlaying, f.session.State().(Connected).PlayerState.Status)
}

func TestPlayPauseTrack_PlatformFailureLeavesStateUnchanged(t *testing.T) {
	f := connectFixture(t, tr("a"))
	f.transport.pauseOK = false

	ok, err := f.session.PlayPauseTrack(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StatusPlaying, f.session.State().(Connected).PlayerState.Status)
}

func TestPlayPauseTrack_NoopOutsideConnected(t *testing.T) {
	f := newFixture(testGuild)

	ok, err := f.session.PlayPauseTrack(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	f := connectFixture(t, tr("a"))
	ctx := context.Background()

	require.NoError(t, f.session.Disconnect(ctx))
	assert.Equal(t, Disconnected{}, f.session.State())

	require.NoError(t, f.session.Disconnect(ctx))
	assert.Equal(t, Disconnected{}, f.session.State())

	// Cleanup ran exactly once.
	assert.Len(t, f.sink.deletedMessages, 1)
	assert.Len(t, f.sink.deletedThreads, 1)
}

func TestDestroyedEventAfterDisconnectConverges(t *testing.T) {
	f := connectFixture(t, tr("a"))
	ctx := context.Background()

	require.NoError(t, f.session.Disconnect(ctx))
	// The platform replays the destroy; the session must stay settled.
	f.conn(0).emit(platform.ConnDestroyed, nil)

	assert.Equal(t, Disconnected{}, f.session.State())
	assert.Len(t, f.sink.deletedMessages, 1)
}

func TestConnectionDisconnected_CleansUpFromConnected(t *testing.T) {
	f := connectFixture(t, tr("a"), tr("b"))

	f.conn(0).emit(platform.ConnDisconnected, nil)

	assert.Equal(t, Disconnected{}, f.session.State())
	assert.Len(t, f.sink.deletedMessages, 1)
	assert.Len(t, f.sink.deletedThreads, 1)
	assert.Equal(t, 1, f.player(0).stopped)
	assert.Equal(t, 1, f.transport.destroyedCount())
}

func TestResolutionFailurePropagatesWithoutSkipping(t *testing.T) {
	f := connectFixture(t, tr("t0"), tr("bad"), tr("t2"))
	f.resolver.audioErr = errors.New("unresolvable")

	ok, err := f.session.NextTrack(context.Background(), "alice")
	assert.True(t, ok)
	require.Error(t, err)

	// The bad track was consumed but never marked playing; no
	// automatic advance to t2.
	st := f.session.State().(Connected)
	require.NotNil(t, st.Playing)
	assert.True(t, st.Playing.Equal(tr("t0")))
	assert.Equal(t, []track.Track{tr("t2")}, st.Queue)
	assert.Len(t, f.transport.played, 1)
}

func TestQueueInvariant_PlayingNeverInQueue(t *testing.T) {
	f := connectFixture(t, tr("t0"), tr("t1"), tr("t2"))
	ctx := context.Background()

	check := func() {
		st, ok := f.session.State().(Connected)
		if !ok || st.Playing == nil {
			return
		}
		assert.False(t, track.Contains(st.Queue, *st.Playing))
	}

	check()
	_, _ = f.session.NextTrack(ctx, "alice")
	check()
	f.player(0).emit(platform.PlayerIdle, nil)
	check()
	require.NoError(t, f.session.QueueTracks(ctx, "bob", testChannel, "status-ch", []track.Track{tr("t3")}))
	check()
}

func TestStatusMessageRefreshedAfterMutations(t *testing.T) {
	f := connectFixture(t, tr("t0"), tr("t1"))

	before := len(f.sink.edits)
	_, _ = f.session.NextTrack(context.Background(), "alice")
	assert.Greater(t, len(f.sink.edits), before)
}

func TestConcurrentEnqueuesAreNotLost(t *testing.T) {
	f := connectFixture(t, tr("seed"))
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := f.session.QueueTracks(ctx, "alice", testChannel, "status-ch",
				[]track.Track{{Title: "t", URL: "https://example.com/t"}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st := f.session.State().(Connected)
	assert.Len(t, st.Queue, n)
}

func TestJoinFailureRollsBackMessageAndThread(t *testing.T) {
	f := newFixture(testGuild)
	f.transport.joinErr = errors.New("gateway unavailable")

	err := f.session.QueueTracks(context.Background(), "alice", testChannel, "status-ch", []track.Track{tr("a")})
	require.Error(t, err)

	assert.IsType(t, Disconnected{}, f.session.State())
	assert.Len(t, f.sink.deletedMessages, 1)
	assert.Len(t, f.sink.deletedThreads, 1)
}

func TestQueueTracks_ReadyReplayedDuringConnectStartsPlayback(t *testing.T) {
	f := newFixture(testGuild)
	// The gateway answers before the adapter is wired; ready is replayed
	// synchronously when the handler registers.
	f.transport.latchReady = true

	err := f.session.QueueTracks(context.Background(), "alice", testChannel, "status-ch", []track.Track{tr("t0")})
	require.NoError(t, err)

	st, ok := f.session.State().(Connected)
	require.True(t, ok, "a replayed ready must still drive Connecting -> Connected")
	require.NotNil(t, st.Playing)
	assert.True(t, st.Playing.Equal(tr("t0")))
	assert.Len(t, f.transport.subscribed, 1)
	assert.Len(t, f.transport.played, 1)
}

func TestDestroyWhileConnectingKeepsQueueWithPendingLines(t *testing.T) {
	f := newFixture(testGuild)
	f.sink.threadErr = errors.New("thread unavailable")
	ctx := context.Background()

	require.NoError(t, f.session.QueueTracks(ctx, "alice", testChannel, "status-ch", []track.Track{tr("t0"), tr("t1")}))
	require.IsType(t, Connecting{}, f.session.State())

	f.conn(0).emit(platform.ConnDisconnected, nil)

	// The enqueue line never reached a thread; it survives, and with it
	// the queue it describes.
	st, ok := f.session.State().(Disconnected)
	require.True(t, ok)
	require.NotEmpty(t, st.PendingEvents)
	assert.Contains(t, st.PendingEvents[0], "alice added 2 track(s)")
	assert.Equal(t, []string{"t0", "t1"}, track.Titles(st.Queue))
}

func TestDestroyWhileConnectingWithoutPendingLinesClearsQueue(t *testing.T) {
	f := newFixture(testGuild)

	require.NoError(t, f.session.QueueTracks(context.Background(), "alice", testChannel, "status-ch", []track.Track{tr("t0")}))
	st := f.session.State().(Connecting)
	require.NotNil(t, st.LogThread, "the enqueue line was flushed to the thread")

	f.conn(0).emit(platform.ConnDisconnected, nil)

	assert.Equal(t, Disconnected{}, f.session.State())
}

func TestQueueTracks_ConnectRaceLoserCleansUpItsSurface(t *testing.T) {
	f := newFixture(testGuild)
	ctx := context.Background()

	// The winner runs to completion while the loser is suspended inside
	// its status-message send.
	f.sink.onSend = func() {
		require.NoError(t, f.session.QueueTracks(ctx, "bob", testChannel, "status-ch", []track.Track{tr("w")}))
	}

	require.NoError(t, f.session.QueueTracks(ctx, "alice", testChannel, "status-ch", []track.Track{tr("l")}))

	st, ok := f.session.State().(Connecting)
	require.True(t, ok)
	assert.Equal(t, []string{"w", "l"}, track.Titles(st.Queue))
	require.NotNil(t, st.StatusMessage)
	assert.Equal(t, "msg-1", st.StatusMessage.MessageID)

	// The loser's never-bound connection goes away, the winner's stays.
	assert.True(t, f.conn(1).destroyed)
	assert.False(t, f.conn(0).destroyed)

	// The loser's status message and log thread go away with it.
	require.Len(t, f.sink.deletedMessages, 1)
	assert.Equal(t, "msg-2", f.sink.deletedMessages[0].MessageID)
	require.Len(t, f.sink.deletedThreads, 1)
	assert.Equal(t, "thread-msg-2", f.sink.deletedThreads[0].ID)
}
