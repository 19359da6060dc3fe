package filter

import "context"

// QueueLimitFilter rejects requests once a guild's queue holds the
// configured number of tracks.
type QueueLimitFilter struct {
	queue QueueView
	limit int
}

// NewQueueLimitFilter creates a queue length filter. A limit of zero
// or less disables the check.
func NewQueueLimitFilter(queue QueueView, limit int) *QueueLimitFilter {
	return &QueueLimitFilter{queue: queue, limit: limit}
}

// Name returns the filter name.
func (f *QueueLimitFilter) Name() string {
	return "queue_limit_filter"
}

// Description returns the filter description.
func (f *QueueLimitFilter) Description() string {
	return "Rejects requests once the guild queue reached its configured length"
}

// Check checks the guild's queue length against the limit.
func (f *QueueLimitFilter) Check(_ context.Context, req Request) Result {
	if f.limit <= 0 {
		return Accept()
	}
	if len(f.queue.GuildTracks(req.GuildID)) >= f.limit {
		return Reject("queue_limit")
	}
	return Accept()
}
