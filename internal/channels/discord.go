package channels

import (
	"context"
	"fmt"
	"strings"
)

// MessagePoster posts plain text into a guild channel.
type MessagePoster interface {
	PostMessage(ctx context.Context, channelID, content string) error
}

// DiscordSink posts announcements into the team's announce channel.
type DiscordSink struct {
	poster    MessagePoster
	channelID string
}

func NewDiscordSink(poster MessagePoster, channelID string) *DiscordSink {
	return &DiscordSink{poster: poster, channelID: strings.TrimSpace(channelID)}
}

func (s *DiscordSink) ID() string { return "discord" }

func (s *DiscordSink) Start(_ context.Context) error { return nil }

func (s *DiscordSink) Send(ctx context.Context, text string) error {
	if s.channelID == "" {
		return fmt.Errorf("discord announce channel is empty")
	}
	return s.poster.PostMessage(ctx, s.channelID, text)
}
