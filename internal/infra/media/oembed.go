package media

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/quaverbot/quaver/internal/domain/track"
	"github.com/quaverbot/quaver/internal/platform"
)

// OEmbedResolverConfig holds oEmbed resolver settings.
type OEmbedResolverConfig struct {
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint" default:"https://www.youtube.com/oembed" validate:"required,url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds" default:"10" validate:"gte=1"`
}

// oembedResponse represents the oEmbed JSON payload.
// Reference: https://oembed.com/#section2.3
type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// OEmbedResolver resolves direct media URLs into track metadata via an
// oEmbed endpoint. It cannot open audio streams; pair it with a
// yt-dlp resolver in the chain for playback.
type OEmbedResolver struct {
	config     *OEmbedResolverConfig
	httpClient *http.Client
}

// NewOEmbedResolver creates an oEmbed metadata resolver.
func NewOEmbedResolver(settings map[string]any) (*OEmbedResolver, error) {
	cfg := &OEmbedResolverConfig{}
	if err := mapstructure.Decode(settings, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode oembed resolver settings")
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to apply oembed resolver defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid oembed resolver settings")
	}
	return &OEmbedResolver{
		config:     cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}, nil
}

// Resolve looks up metadata for a media URL. Free-text queries are not
// URLs and are rejected so the next resolver in the chain can handle
// them.
func (r *OEmbedResolver) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	if !strings.HasPrefix(query, "http://") && !strings.HasPrefix(query, "https://") {
		return nil, errors.Newf("not a URL: %s", query)
	}

	params := url.Values{}
	params.Set("url", query)
	params.Set("format", "json")
	reqURL := r.config.Endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("oembed endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	var payload oembedResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "failed to parse oembed response")
	}
	if payload.Title == "" {
		return nil, errors.Newf("oembed response has no title for: %s", query)
	}

	return []track.Track{{
		Title:     payload.Title,
		URL:       query,
		Thumbnail: payload.ThumbnailURL,
	}}, nil
}

// ResolveAudio always fails; oEmbed only provides metadata.
func (r *OEmbedResolver) ResolveAudio(context.Context, string) (platform.AudioResource, error) {
	return nil, errors.New("oembed resolver cannot open audio streams")
}
