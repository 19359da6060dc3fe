package filter

import (
	"context"

	"github.com/quaverbot/quaver/internal/domain/track"
)

// DuplicateTrackFilter rejects a request when the same track is
// already playing or queued in the guild.
type DuplicateTrackFilter struct {
	queue QueueView
}

// NewDuplicateTrackFilter creates a duplicate track filter.
func NewDuplicateTrackFilter(queue QueueView) *DuplicateTrackFilter {
	return &DuplicateTrackFilter{queue: queue}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks that are already playing or queued"
}

// Check checks if the track is a duplicate of a queued track or of an
// earlier track in the same batch.
func (f *DuplicateTrackFilter) Check(_ context.Context, req Request) Result {
	if track.Contains(f.queue.GuildTracks(req.GuildID), req.Track) {
		return Reject("duplicate_track")
	}
	if track.Contains(req.Batch, req.Track) {
		return Reject("duplicate_track")
	}
	return Accept()
}
