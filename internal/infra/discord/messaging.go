package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"

	"github.com/quaverbot/quaver/internal/platform"
)

// statusColor is the accent color of status embeds.
const statusColor = 0x5865F2

// Sink sends and edits status messages through the Discord REST API.
type Sink struct {
	session *discordgo.Session
}

// NewSink creates a Discord messaging sink.
func NewSink(session *discordgo.Session) *Sink {
	return &Sink{session: session}
}

// embed converts rendered display content into a Discord embed.
func embed(content platform.DisplayContent) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       content.Title,
		Description: content.Description,
		Color:       statusColor,
	}
	if content.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: content.Thumbnail}
	}
	if content.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: content.Footer}
	}
	return e
}

// SendMessage posts a new status message to the channel.
func (s *Sink) SendMessage(ctx context.Context, channelID string, content platform.DisplayContent) (*platform.MessageRef, error) {
	msg, err := s.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed(content)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "failed to send message")
	}
	return &platform.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

// EditMessage replaces the embed of an existing status message.
func (s *Sink) EditMessage(ctx context.Context, ref platform.MessageRef, content platform.DisplayContent) error {
	_, err := s.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel: ref.ChannelID,
		ID:      ref.MessageID,
		Embeds:  &[]*discordgo.MessageEmbed{embed(content)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "failed to edit message")
	}
	return nil
}

// DeleteMessage removes a status message.
func (s *Sink) DeleteMessage(ctx context.Context, ref platform.MessageRef) error {
	if err := s.session.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx)); err != nil {
		return errors.Wrap(err, "failed to delete message")
	}
	return nil
}

// StartThread opens a thread on a status message.
func (s *Sink) StartThread(ctx context.Context, ref platform.MessageRef, name string) (*platform.ThreadRef, error) {
	thread, err := s.session.MessageThreadStartComplex(ref.ChannelID, ref.MessageID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: 60,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "failed to start thread")
	}
	return &platform.ThreadRef{ID: thread.ID}, nil
}

// DeleteThread removes a thread. Threads are channels on Discord.
func (s *Sink) DeleteThread(ctx context.Context, ref platform.ThreadRef) error {
	if _, err := s.session.ChannelDelete(ref.ID, discordgo.WithContext(ctx)); err != nil {
		return errors.Wrap(err, "failed to delete thread")
	}
	return nil
}

// SendToThread posts a plain text line into a thread.
func (s *Sink) SendToThread(ctx context.Context, ref platform.ThreadRef, text string) error {
	if _, err := s.session.ChannelMessageSend(ref.ID, text, discordgo.WithContext(ctx)); err != nil {
		return errors.Wrap(err, "failed to send to thread")
	}
	return nil
}
