// Package track provides the Track domain entity.
package track

import "time"

// Track is an immutable description of a playable piece of media,
// created when an enqueue request is resolved. It is never mutated
// after creation.
type Track struct {
	Title       string    // Display title
	URL         string    // Canonical media URL
	Thumbnail   string    // Thumbnail URL (optional)
	RequestedBy string    // Display name of the requester
	AddedAt     time.Time // Time when the request was resolved
}

// Equal reports structural equality on the media identity fields.
// Requester and timestamp are bookkeeping, not identity.
func (t Track) Equal(other Track) bool {
	return t.Title == other.Title &&
		t.URL == other.URL &&
		t.Thumbnail == other.Thumbnail
}

// Titles returns the titles of the given tracks, in order.
func Titles(tracks []Track) []string {
	titles := make([]string, len(tracks))
	for i, t := range tracks {
		titles[i] = t.Title
	}
	return titles
}

// Contains reports whether any track in the list equals t.
func Contains(tracks []Track, t Track) bool {
	for _, q := range tracks {
		if q.Equal(t) {
			return true
		}
	}
	return false
}
