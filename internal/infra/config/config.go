// Package config loads and validates the application configuration.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Discord   DiscordConfig    `yaml:"discord" validate:"required"`
	Dashboard DashboardConfig  `yaml:"dashboard"`
	History   HistoryConfig    `yaml:"history"`
	Resolvers []ResolverConfig `yaml:"resolvers" validate:"dive"`
	Limits    LimitsConfig     `yaml:"limits"`
	Messages  MessagesConfig   `yaml:"messages"`
	Log       LogConfig        `yaml:"log"`
}

// DiscordConfig holds gateway credentials and command settings.
type DiscordConfig struct {
	Token  string `yaml:"token" validate:"required"`
	Prefix string `yaml:"prefix" default:"!"`
}

// DashboardConfig holds the HTTP dashboard settings.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Addr    string `yaml:"addr" default:":8080"`
}

// HistoryConfig holds the play-history store settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"quaver.db"`
}

// ResolverConfig declares one media resolver and its settings.
type ResolverConfig struct {
	Kind     string         `yaml:"kind" validate:"required,oneof=oembed ytdlp"`
	Settings map[string]any `yaml:"settings"`
}

// LimitsConfig holds enqueue guard settings.
type LimitsConfig struct {
	MaxQueueLength  int  `yaml:"max_queue_length" default:"50"`
	RejectDuplicate bool `yaml:"reject_duplicate" default:"true"`
}

// MessagesConfig maps rejection codes to user-facing replies.
type MessagesConfig struct {
	QueueLimit     string `yaml:"queue_limit" default:"The queue is full."`
	DuplicateTrack string `yaml:"duplicate_track" default:"That track is already queued."`
	DefaultError   string `yaml:"default_error" default:"Something went wrong."`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
}

// Reply returns the user-facing message for a rejection code.
func (m MessagesConfig) Reply(code string) string {
	switch code {
	case "queue_limit":
		return m.QueueLimit
	case "duplicate_track":
		return m.DuplicateTrack
	default:
		return m.DefaultError
	}
}

// Load reads, defaults, overrides and validates configuration from the
// given YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to apply config defaults")
	}

	// Secrets may come from the environment instead of the file.
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}
