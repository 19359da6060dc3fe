// Package filter provides the filter chain guarding enqueue requests.
package filter

import (
	"context"

	"github.com/quaverbot/quaver/internal/domain/track"
)

// Request represents an enqueue request to be validated.
type Request struct {
	GuildID   string
	Requester string
	Track     track.Track

	// Batch holds tracks already accepted earlier in the same request
	// (other items of one playlist) that are not visible in the guild
	// queue yet.
	Batch []track.Track
}

// QueueView exposes the tracks currently held by a guild's session
// (playing + queued), for filters that inspect the queue.
type QueueView interface {
	GuildTracks(guildID string) []track.Track
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g. "queue_limit", "duplicate_track"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for enqueue request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// Check performs the filter check.
	Check(ctx context.Context, req Request) Result
}

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence. The first rejection wins and
// short-circuits the rest.
func (c *Chain) Execute(ctx context.Context, req Request) Result {
	for _, f := range c.filters {
		if result := f.Check(ctx, req); !result.Accepted {
			return result
		}
	}
	return Accept()
}
