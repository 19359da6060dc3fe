package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/quaverbot/quaver/internal/app/filter"
	"github.com/quaverbot/quaver/internal/app/voice"
	"github.com/quaverbot/quaver/internal/domain/track"
	"github.com/quaverbot/quaver/internal/infra/config"
	"github.com/quaverbot/quaver/internal/platform"
)

// commandTimeout bounds the handling of one chat command.
const commandTimeout = 30 * time.Second

// Bot routes prefix commands from chat messages to the voice sessions.
type Bot struct {
	session  *discordgo.Session
	manager  *voice.Manager
	resolver platform.MediaResolver
	filters  *filter.Chain
	messages config.MessagesConfig
	prefix   string
	log      zerolog.Logger
}

// NewBot creates the command router.
func NewBot(session *discordgo.Session, manager *voice.Manager, resolver platform.MediaResolver, filters *filter.Chain, cfg config.DiscordConfig, messages config.MessagesConfig) *Bot {
	return &Bot{
		session:  session,
		manager:  manager,
		resolver: resolver,
		filters:  filters,
		messages: messages,
		prefix:   cfg.Prefix,
		log:      zlog.With().Str("component", "bot").Logger(),
	}
}

// Register attaches the bot's handlers to the gateway session.
func (b *Bot) Register() {
	b.session.AddHandler(b.onMessageCreate)
}

// QueueView exposes session queues to the enqueue filters.
type QueueView struct {
	manager *voice.Manager
}

// NewQueueView wraps the manager for filter checks.
func NewQueueView(manager *voice.Manager) *QueueView {
	return &QueueView{manager: manager}
}

// GuildTracks returns the playing track plus the queued tracks of a
// guild, or nil when the guild has no session.
func (v *QueueView) GuildTracks(guildID string) []track.Track {
	s, ok := v.manager.Peek(guildID)
	if !ok {
		return nil
	}
	snap := voice.SnapshotOf(guildID, s.State())
	tracks := make([]track.Track, 0, len(snap.Queue)+1)
	if snap.Playing != nil {
		tracks = append(tracks, *snap.Playing)
	}
	return append(tracks, snap.Queue...)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	if !strings.HasPrefix(m.Content, b.prefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(m.Content, b.prefix))
	if len(fields) == 0 {
		return
	}
	command := strings.ToLower(fields[0])
	args := strings.Join(fields[1:], " ")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	log := b.log.With().Str("guild_id", m.GuildID).Str("command", command).Logger()
	log.Debug().Msgf("handling command: user=%s", m.Author.Username)

	switch command {
	case "play", "p":
		b.handlePlay(ctx, m, args)
	case "skip", "next":
		b.handleSkip(ctx, m)
	case "pause", "resume":
		b.handlePause(ctx, m)
	case "stop", "leave":
		b.handleStop(ctx, m)
	case "queue", "q":
		b.handleQueue(m)
	}
}

// reply sends a short text response to the command's channel.
func (b *Bot) reply(m *discordgo.MessageCreate, text string) {
	if _, err := b.session.ChannelMessageSend(m.ChannelID, text); err != nil {
		b.log.Warn().Err(err).Msg("failed to send reply")
	}
}

// authorVoiceChannel finds the voice channel the command author is in.
func (b *Bot) authorVoiceChannel(m *discordgo.MessageCreate) (platform.VoiceChannel, bool) {
	vs, err := b.session.State.VoiceState(m.GuildID, m.Author.ID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return platform.VoiceChannel{}, false
	}

	name := ""
	if ch, err := b.session.State.Channel(vs.ChannelID); err == nil {
		name = ch.Name
	}
	return platform.VoiceChannel{ID: vs.ChannelID, GuildID: m.GuildID, Name: name}, true
}

func (b *Bot) handlePlay(ctx context.Context, m *discordgo.MessageCreate, query string) {
	if query == "" {
		b.reply(m, "Usage: "+b.prefix+"play <url or search>")
		return
	}

	channel, ok := b.authorVoiceChannel(m)
	if !ok {
		b.reply(m, "Join a voice channel first.")
		return
	}

	tracks, err := b.resolver.Resolve(ctx, query)
	if err != nil {
		b.log.Warn().Err(err).Msgf("failed to resolve query: %s", query)
		b.reply(m, b.messages.DefaultError)
		return
	}

	accepted := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		t.RequestedBy = m.Author.Username
		t.AddedAt = time.Now()

		result := b.filters.Execute(ctx, filter.Request{
			GuildID:   m.GuildID,
			Requester: m.Author.Username,
			Track:     t,
			Batch:     accepted,
		})
		if !result.Accepted {
			b.reply(m, b.messages.Reply(result.Code))
			continue
		}
		accepted = append(accepted, t)
	}
	if len(accepted) == 0 {
		return
	}

	session := b.manager.Session(m.GuildID)
	if err := session.QueueTracks(ctx, m.Author.Username, channel, m.ChannelID, accepted); err != nil {
		b.log.Error().Err(err).Msg("failed to queue tracks")
		b.reply(m, b.messages.DefaultError)
		return
	}

	if len(accepted) == 1 {
		b.reply(m, fmt.Sprintf("Queued **%s**.", accepted[0].Title))
	} else {
		b.reply(m, fmt.Sprintf("Queued %d tracks.", len(accepted)))
	}
}

func (b *Bot) handleSkip(ctx context.Context, m *discordgo.MessageCreate) {
	session, ok := b.manager.Peek(m.GuildID)
	if !ok {
		b.reply(m, "Nothing is playing.")
		return
	}

	handled, err := session.NextTrack(ctx, m.Author.Username)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to skip track")
		b.reply(m, b.messages.DefaultError)
		return
	}
	if !handled {
		b.reply(m, "Nothing is playing.")
	}
}

func (b *Bot) handlePause(ctx context.Context, m *discordgo.MessageCreate) {
	session, ok := b.manager.Peek(m.GuildID)
	if !ok {
		b.reply(m, "Nothing is playing.")
		return
	}

	toggled, err := session.PlayPauseTrack(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to toggle playback")
		b.reply(m, b.messages.DefaultError)
		return
	}
	if !toggled {
		b.reply(m, "Nothing is playing.")
	}
}

func (b *Bot) handleStop(ctx context.Context, m *discordgo.MessageCreate) {
	session, ok := b.manager.Peek(m.GuildID)
	if !ok {
		b.reply(m, "Not connected.")
		return
	}
	if err := session.Disconnect(ctx); err != nil {
		b.log.Error().Err(err).Msg("failed to disconnect")
		b.reply(m, b.messages.DefaultError)
		return
	}
	b.reply(m, "Disconnected.")
}

func (b *Bot) handleQueue(m *discordgo.MessageCreate) {
	session, ok := b.manager.Peek(m.GuildID)
	if !ok {
		b.reply(m, "The queue is empty.")
		return
	}

	snap := voice.SnapshotOf(m.GuildID, session.State())
	if snap.Playing == nil && len(snap.Queue) == 0 {
		b.reply(m, "The queue is empty.")
		return
	}

	var sb strings.Builder
	if snap.Playing != nil {
		fmt.Fprintf(&sb, "Now playing: **%s**\n", snap.Playing.Title)
	}
	for i, t := range snap.Queue {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, t.Title)
	}
	b.reply(m, sb.String())
}
