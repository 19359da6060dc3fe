package media

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/quaverbot/quaver/internal/domain/track"
	"github.com/quaverbot/quaver/internal/platform"
)

// YtDlpResolverConfig holds yt-dlp resolver settings.
type YtDlpResolverConfig struct {
	Binary         string `yaml:"binary" mapstructure:"binary" default:"yt-dlp" validate:"required"`
	SearchPrefix   string `yaml:"search_prefix" mapstructure:"search_prefix" default:"ytsearch"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds" default:"30" validate:"gte=1"`
}

// ytDlpEntry represents one item of yt-dlp's -J output. Playlists nest
// their items under entries.
type ytDlpEntry struct {
	Title      string       `json:"title"`
	WebpageURL string       `json:"webpage_url"`
	Thumbnail  string       `json:"thumbnail"`
	Entries    []ytDlpEntry `json:"entries"`
}

// YtDlpResolver resolves queries and opens audio streams by shelling
// out to the yt-dlp binary.
type YtDlpResolver struct {
	config *YtDlpResolverConfig
}

// NewYtDlpResolver creates a yt-dlp backed resolver.
func NewYtDlpResolver(settings map[string]any) (*YtDlpResolver, error) {
	cfg := &YtDlpResolverConfig{}
	if err := mapstructure.Decode(settings, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode yt-dlp resolver settings")
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to apply yt-dlp resolver defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid yt-dlp resolver settings")
	}
	return &YtDlpResolver{config: cfg}, nil
}

// Resolve fetches metadata for a URL or search query. Free-text queries
// go through yt-dlp's search shorthand and return the top hit.
func (r *YtDlpResolver) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	target := query
	if !strings.HasPrefix(query, "http://") && !strings.HasPrefix(query, "https://") {
		target = r.config.SearchPrefix + "1:" + query
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.config.TimeoutSeconds)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.config.Binary, "-J", "--no-warnings", "--flat-playlist", target)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "yt-dlp failed: %s", strings.TrimSpace(stderr.String()))
	}

	var entry ytDlpEntry
	if err := json.Unmarshal(stdout.Bytes(), &entry); err != nil {
		return nil, errors.Wrap(err, "failed to parse yt-dlp output")
	}

	tracks := entryTracks(entry)
	if len(tracks) == 0 {
		return nil, errors.Newf("yt-dlp found nothing for: %s", query)
	}
	zlog.Debug().Msgf("yt-dlp resolved query: query=%s tracks=%d", query, len(tracks))
	return tracks, nil
}

// entryTracks flattens a yt-dlp entry (single item or playlist) into
// tracks, skipping items without a URL.
func entryTracks(entry ytDlpEntry) []track.Track {
	if len(entry.Entries) == 0 {
		if entry.WebpageURL == "" {
			return nil
		}
		return []track.Track{{
			Title:     entry.Title,
			URL:       entry.WebpageURL,
			Thumbnail: entry.Thumbnail,
		}}
	}

	tracks := make([]track.Track, 0, len(entry.Entries))
	for _, e := range entry.Entries {
		tracks = append(tracks, entryTracks(e)...)
	}
	return tracks
}

// ResolveAudio asks yt-dlp for the direct audio stream URL and hands it
// to ffmpeg for opus encoding.
func (r *YtDlpResolver) ResolveAudio(ctx context.Context, url string) (platform.AudioResource, error) {
	streamURL, err := r.streamURL(ctx, url)
	if err != nil {
		return nil, err
	}
	return newEncodedResource(streamURL)
}

// streamURL resolves the direct bestaudio URL for a track page.
func (r *YtDlpResolver) streamURL(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.config.TimeoutSeconds)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.config.Binary, "-f", "bestaudio", "-g", "--no-warnings", url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "yt-dlp failed to resolve stream: %s", strings.TrimSpace(stderr.String()))
	}

	streamURL := strings.TrimSpace(stdout.String())
	if streamURL == "" {
		return "", errors.Newf("yt-dlp returned no stream URL for: %s", url)
	}
	return streamURL, nil
}
