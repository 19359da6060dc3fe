// Package status renders the session status message body.
package status

import (
	"fmt"
	"strings"

	"github.com/quaverbot/quaver/internal/domain/track"
	"github.com/quaverbot/quaver/internal/platform"
)

// queuePreviewLimit caps how many upcoming tracks are listed.
const queuePreviewLimit = 10

// Renderer is a pure platform.StatusRenderer.
type Renderer struct{}

// New creates a Renderer.
func New() Renderer {
	return Renderer{}
}

// Render builds the status body from the playback snapshot.
func (Renderer) Render(playing *track.Track, queue []track.Track, isPlaying bool) platform.DisplayContent {
	content := platform.DisplayContent{
		Title:  "Nothing playing",
		Footer: fmt.Sprintf("%d track(s) queued", len(queue)),
	}

	if playing != nil {
		marker := "⏸"
		if isPlaying {
			marker = "▶️"
		}
		content.Title = fmt.Sprintf("%s %s", marker, playing.Title)
		content.Thumbnail = playing.Thumbnail
		if playing.RequestedBy != "" {
			content.Footer = fmt.Sprintf("requested by %s · %d track(s) queued",
				playing.RequestedBy, len(queue))
		}
	}

	if len(queue) == 0 {
		content.Description = "The queue is empty."
		return content
	}

	var b strings.Builder
	b.WriteString("**Up next**\n")
	for i, t := range queue {
		if i == queuePreviewLimit {
			fmt.Fprintf(&b, "… and %d more", len(queue)-queuePreviewLimit)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Title)
	}
	content.Description = strings.TrimRight(b.String(), "\n")
	return content
}
