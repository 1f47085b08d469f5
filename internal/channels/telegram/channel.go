package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/grixate/hunthelper/internal/config"
)

// CommandHandler answers a slash command sent from the configured chat.
type CommandHandler func(ctx context.Context, command string) (string, error)

// Channel mirrors announcements into a Telegram chat and answers a few
// read-only commands from that chat.
type Channel struct {
	cfg      config.TelegramConfig
	mu       sync.Mutex
	bot      *tgbotapi.BotAPI
	commands CommandHandler
	log      *log.Logger
}

func New(cfg config.TelegramConfig, commands CommandHandler, logger *log.Logger) *Channel {
	if logger == nil {
		logger = log.Default()
	}
	return &Channel{cfg: cfg, commands: commands, log: logger}
}

func (c *Channel) ID() string { return "telegram" }

func (c *Channel) connect() (*tgbotapi.BotAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot != nil {
		return c.bot, nil
	}
	if strings.TrimSpace(c.cfg.Token) == "" {
		return nil, fmt.Errorf("telegram token not configured")
	}
	endpoint := strings.TrimSpace(c.cfg.APIEndpoint)
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(c.cfg.Token, endpoint)
	if err != nil {
		return nil, err
	}
	c.bot = bot
	return bot, nil
}

func (c *Channel) Start(ctx context.Context) error {
	bot, err := c.connect()
	if err != nil {
		return err
	}
	if c.commands == nil {
		<-ctx.Done()
		return nil
	}
	updatesCfg := tgbotapi.NewUpdate(0)
	updatesCfg.Timeout = 60
	updates := bot.GetUpdatesChan(updatesCfg)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return nil
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !c.allowed(update.Message.Chat.ID) {
				continue
			}
			reply, err := c.commands(ctx, update.Message.Command())
			if err != nil {
				c.log.Printf("telegram command %s failed: %v", update.Message.Command(), err)
				continue
			}
			if reply == "" {
				continue
			}
			if _, err := bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, reply)); err != nil {
				c.log.Printf("telegram reply failed: %v", err)
			}
		}
	}
}

func (c *Channel) Send(_ context.Context, text string) error {
	bot, err := c.connect()
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(c.cfg.ChatID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id: %w", err)
	}
	_, err = bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (c *Channel) allowed(chatID int64) bool {
	return strconv.FormatInt(chatID, 10) == strings.TrimSpace(c.cfg.ChatID)
}
