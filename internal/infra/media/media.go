// Package media resolves user queries into playable tracks and audio
// streams, through a configurable chain of resolver backends.
package media

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/quaverbot/quaver/internal/domain/track"
	"github.com/quaverbot/quaver/internal/infra/config"
	"github.com/quaverbot/quaver/internal/platform"
)

// ResolverChain tries multiple resolvers in order until one succeeds.
type ResolverChain struct {
	resolvers []platform.MediaResolver
}

// NewResolverChain creates a resolver chain.
func NewResolverChain(resolvers []platform.MediaResolver) *ResolverChain {
	return &ResolverChain{resolvers: resolvers}
}

// NewResolverChainFromConfig creates a resolver chain from configuration.
// With no resolvers configured, the chain defaults to yt-dlp alone.
func NewResolverChainFromConfig(cfgs []config.ResolverConfig) (*ResolverChain, error) {
	if len(cfgs) == 0 {
		r, err := NewYtDlpResolver(nil)
		if err != nil {
			return nil, err
		}
		zlog.Info().Msg("no resolvers configured, defaulting to yt-dlp")
		return NewResolverChain([]platform.MediaResolver{r}), nil
	}

	var resolvers []platform.MediaResolver
	for i, rcfg := range cfgs {
		var resolver platform.MediaResolver
		var err error
		switch rcfg.Kind {
		case "oembed":
			resolver, err = NewOEmbedResolver(rcfg.Settings)
		case "ytdlp":
			resolver, err = NewYtDlpResolver(rcfg.Settings)
		default:
			return nil, errors.Newf("unsupported resolver kind: %s (resolver index %d)", rcfg.Kind, i)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create resolver (index %d, kind %s)", i, rcfg.Kind)
		}
		resolvers = append(resolvers, resolver)
		zlog.Info().Msgf("registered media resolver: index=%d kind=%s", i+1, rcfg.Kind)
	}
	return NewResolverChain(resolvers), nil
}

// Resolve tries each resolver in order and returns the first non-empty
// result. Failures are logged and the next resolver is tried.
func (c *ResolverChain) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	var lastErr error
	for _, r := range c.resolvers {
		tracks, err := r.Resolve(ctx, query)
		if err != nil {
			zlog.Debug().Msgf("resolver failed, trying next: error=%v", err)
			lastErr = err
			continue
		}
		if len(tracks) > 0 {
			return tracks, nil
		}
	}
	if lastErr != nil {
		return nil, errors.Wrap(lastErr, "all resolvers failed")
	}
	return nil, errors.Newf("no resolver produced tracks for query: %s", query)
}

// ResolveAudio tries each resolver until one produces an audio stream.
func (c *ResolverChain) ResolveAudio(ctx context.Context, url string) (platform.AudioResource, error) {
	var lastErr error
	for _, r := range c.resolvers {
		res, err := r.ResolveAudio(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		return res, nil
	}
	if lastErr != nil {
		return nil, errors.Wrap(lastErr, "all resolvers failed to open audio")
	}
	return nil, errors.Newf("no resolver can open audio for: %s", url)
}
