// Package history persists the play history in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/quaverbot/quaver/internal/domain/track"
)

const schema = `
CREATE TABLE IF NOT EXISTS plays (
	id           TEXT PRIMARY KEY,
	guild_id     TEXT NOT NULL,
	title        TEXT NOT NULL,
	url          TEXT NOT NULL,
	requested_by TEXT NOT NULL,
	played_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plays_guild_played ON plays (guild_id, played_at DESC);
`

// Entry is one recorded playback.
type Entry struct {
	ID          string    `json:"id"`
	GuildID     string    `json:"guild_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	RequestedBy string    `json:"requested_by"`
	PlayedAt    time.Time `json:"played_at"`
}

// Store records and queries played tracks.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history database")
	}
	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY under concurrent guilds.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize history schema")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a playback into the history.
func (s *Store) Record(ctx context.Context, guildID string, t track.Track) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plays (id, guild_id, title, url, requested_by, played_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), guildID, t.Title, t.URL, t.RequestedBy, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to record play")
	}
	return nil
}

// Recent returns the latest plays for a guild, newest first.
func (s *Store) Recent(ctx context.Context, guildID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, guild_id, title, url, requested_by, played_at FROM plays
		 WHERE guild_id = ? ORDER BY played_at DESC, id LIMIT ?`,
		guildID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query history")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.GuildID, &e.Title, &e.URL, &e.RequestedBy, &e.PlayedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan history row")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read history rows")
	}
	return entries, nil
}

// CountByGuild returns the total recorded plays per guild.
func (s *Store) CountByGuild(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT guild_id, COUNT(*) FROM plays GROUP BY guild_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count history")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var guildID string
		var n int
		if err := rows.Scan(&guildID, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan count row")
		}
		counts[guildID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read count rows")
	}
	return counts, nil
}
