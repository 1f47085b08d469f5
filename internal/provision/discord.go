package provision

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/grixate/hunthelper/internal/config"
)

type ChannelKind int

const (
	KindText     ChannelKind = 0
	KindCategory ChannelKind = 4
)

func (k ChannelKind) String() string {
	if k == KindCategory {
		return "channel group"
	}
	return "channel"
}

// DiscordService manages guild channels with a static bot credential.
type DiscordService struct {
	apiBase    string
	guildID    string
	botToken   string
	httpClient *http.Client
}

func NewDiscordService(cfg config.DiscordConfig, httpClient *http.Client) *DiscordService {
	return &DiscordService{
		apiBase:    strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"),
		guildID:    strings.TrimSpace(cfg.GuildID),
		botToken:   strings.TrimSpace(cfg.BotToken),
		httpClient: httpClient,
	}
}

func (d *DiscordService) bot(_ context.Context, req *http.Request) error {
	if d.botToken == "" {
		return errors.New("discord token is empty")
	}
	req.Header.Set("Authorization", "Bot "+d.botToken)
	return nil
}

func (d *DiscordService) CreateChannel(ctx context.Context, kind ChannelKind, name, parentID, topic string) (string, error) {
	payload := map[string]any{"name": name, "type": int(kind)}
	if parentID != "" {
		payload["parent_id"] = parentID
	}
	if topic != "" {
		payload["topic"] = topic
	}
	endpoint := d.apiBase + "/guilds/" + url.PathEscape(d.guildID) + "/channels"
	var out struct {
		ID string `json:"id"`
	}
	if err := doJSON(ctx, d.httpClient, "discord", http.MethodPost, endpoint, d.bot, payload, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("discord response missing id")
	}
	return out.ID, nil
}

func (d *DiscordService) MoveChannel(ctx context.Context, channelID, parentID string) error {
	endpoint := d.apiBase + "/channels/" + url.PathEscape(strings.TrimSpace(channelID))
	return doJSON(ctx, d.httpClient, "discord", http.MethodPatch, endpoint, d.bot, map[string]any{"parent_id": parentID}, nil)
}

func (d *DiscordService) PostMessage(ctx context.Context, channelID, content string) error {
	endpoint := d.apiBase + "/channels/" + url.PathEscape(strings.TrimSpace(channelID)) + "/messages"
	return doJSON(ctx, d.httpClient, "discord", http.MethodPost, endpoint, d.bot, map[string]any{"content": content}, nil)
}
