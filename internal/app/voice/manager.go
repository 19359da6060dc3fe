package voice

import (
	"context"
	"sort"
	"sync"

	"github.com/quaverbot/quaver/internal/domain/track"
)

// Manager holds the per-guild sessions. Sessions are created lazily on
// first use and are fully independent of each other.
type Manager struct {
	mu       sync.RWMutex
	deps     Deps
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Session returns the guild's session, creating it on first use.
func (m *Manager) Session(guildID string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[guildID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[guildID]; ok {
		return s
	}
	s = NewSession(guildID, m.deps)
	m.sessions[guildID] = s
	return s
}

// Peek returns the guild's session without creating one.
func (m *Manager) Peek(guildID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[guildID]
	return s, ok
}

// Snapshot is a read-only view of one session, for the dashboard.
type Snapshot struct {
	GuildID string        `json:"guild_id"`
	State   string        `json:"state"`
	Playing *track.Track  `json:"playing,omitempty"`
	Queue   []track.Track `json:"queue"`
	Paused  bool          `json:"paused"`
}

// SnapshotOf builds a Snapshot from a session state.
func SnapshotOf(guildID string, st State) Snapshot {
	snap := Snapshot{
		GuildID: guildID,
		State:   stateName(st),
		Queue:   append([]track.Track(nil), stateQueue(st)...),
	}
	if c, ok := st.(Connected); ok {
		snap.Playing = c.Playing
		snap.Paused = c.PlayerState.Status == StatusPaused
	}
	return snap
}

// Snapshots returns a snapshot per known session, ordered by guild id.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snaps = append(snaps, SnapshotOf(s.GuildID(), s.State()))
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].GuildID < snaps[j].GuildID })
	return snaps
}

// Shutdown disconnects every session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		_ = s.Disconnect(ctx)
	}
}
