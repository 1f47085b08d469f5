package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Drive    DriveConfig    `json:"drive"`
	Discord  DiscordConfig  `json:"discord"`
	Links    LinksConfig    `json:"links"`
	Telegram TelegramConfig `json:"telegram"`
	Digest   DigestConfig   `json:"digest"`
	Grid     GridConfig     `json:"grid"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

type ServerConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Path          string `json:"path"`
	AuthTokenHash string `json:"authTokenHash,omitempty"`
}

type StorageConfig struct {
	Backend string `json:"backend"`
	DBPath  string `json:"dbPath"`
}

type DriveConfig struct {
	APIBase      string `json:"apiBase"`
	TokenURL     string `json:"tokenUrl"`
	RootFolderID string `json:"rootFolderId"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RefreshToken string `json:"refreshToken"`
}

type DiscordConfig struct {
	APIBase           string   `json:"apiBase"`
	GuildID           string   `json:"guildId"`
	BotToken          string   `json:"botToken"`
	LogChannelID      string   `json:"logChannelId"`
	AnnounceChannelID string   `json:"announceChannelId"`
	SolvedCategoryIDs []string `json:"solvedCategoryIds"`
	PingID            string   `json:"pingId,omitempty"`
}

type LinksConfig struct {
	PuzzlePrefix      string `json:"puzzlePrefix"`
	DocumentURLFormat string `json:"documentUrlFormat"`
}

type TelegramConfig struct {
	Enabled     bool   `json:"enabled"`
	Token       string `json:"token"`
	ChatID      string `json:"chatId"`
	APIEndpoint string `json:"apiEndpoint,omitempty"`
}

type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
}

type GridConfig struct {
	SubstitutionsPath string `json:"substitutionsPath,omitempty"`
}

type RuntimeConfig struct {
	RequestTimeoutSec int `json:"requestTimeoutSec"`
	MailboxSize       int `json:"mailboxSize"`
}

const (
	BackendBolt   = "bbolt"
	BackendSQLite = "sqlite"
)

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
			Path: "/_hunthelper_",
		},
		Storage: StorageConfig{
			Backend: BackendBolt,
			DBPath:  filepath.Join(DataRoot(), "hunthelper.db"),
		},
		Drive: DriveConfig{
			APIBase:  "https://www.googleapis.com/drive/v3",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Discord: DiscordConfig{
			APIBase:           "https://discord.com/api/v8",
			SolvedCategoryIDs: []string{},
		},
		Links: LinksConfig{
			DocumentURLFormat: "https://docs.google.com/spreadsheets/d/%s/edit",
		},
		Digest: DigestConfig{
			Enabled:  false,
			Schedule: "0 * * * *",
		},
		Runtime: RuntimeConfig{
			RequestTimeoutSec: 10,
			MailboxSize:       64,
		},
	}
}

func HomeDir() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return ".hunthelper"
	}
	return filepath.Join(h, ".hunthelper")
}

func ConfigPath() string {
	return filepath.Join(HomeDir(), "config.json")
}

func DataRoot() string {
	return filepath.Join(HomeDir(), "data")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		h, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(h, path[2:])
		}
	}
	return path
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = ConfigPath()
	}
	path = expandPath(path)
	bytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			normalize(&cfg)
			return cfg, nil
		}
		return cfg, err
	}
	if err := json.Unmarshal(bytes, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if path == "" {
		path = ConfigPath()
	}
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func applyEnvOverrides(cfg *Config) {
	env := map[string]*string{
		"HUNTHELPER_SERVER_HOST":            &cfg.Server.Host,
		"HUNTHELPER_SERVER_PATH":            &cfg.Server.Path,
		"HUNTHELPER_SERVER_AUTH_TOKEN_HASH": &cfg.Server.AuthTokenHash,
		"HUNTHELPER_STORAGE_BACKEND":        &cfg.Storage.Backend,
		"HUNTHELPER_DB_PATH":                &cfg.Storage.DBPath,
		"HUNTHELPER_DRIVE_ROOT":             &cfg.Drive.RootFolderID,
		"HUNTHELPER_DRIVE_CLIENT_ID":        &cfg.Drive.ClientID,
		"HUNTHELPER_DRIVE_CLIENT_SECRET":    &cfg.Drive.ClientSecret,
		"HUNTHELPER_DRIVE_REFRESH_TOKEN":    &cfg.Drive.RefreshToken,
		"HUNTHELPER_DISCORD_GUILD":          &cfg.Discord.GuildID,
		"HUNTHELPER_DISCORD_BOT_TOKEN":      &cfg.Discord.BotToken,
		"HUNTHELPER_DISCORD_LOG":            &cfg.Discord.LogChannelID,
		"HUNTHELPER_DISCORD_ANNOUNCE":       &cfg.Discord.AnnounceChannelID,
		"HUNTHELPER_DISCORD_PING_ID":        &cfg.Discord.PingID,
		"HUNTHELPER_PUZZLE_PREFIX":          &cfg.Links.PuzzlePrefix,
		"HUNTHELPER_TELEGRAM_TOKEN":         &cfg.Telegram.Token,
		"HUNTHELPER_TELEGRAM_CHAT_ID":       &cfg.Telegram.ChatID,
		"HUNTHELPER_DIGEST_SCHEDULE":        &cfg.Digest.Schedule,
		"HUNTHELPER_SUBSTITUTIONS_PATH":     &cfg.Grid.SubstitutionsPath,
	}
	for key, target := range env {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*target = value
		}
	}

	if value := strings.TrimSpace(os.Getenv("HUNTHELPER_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("HUNTHELPER_DISCORD_SOLVED")); value != "" {
		cfg.Discord.SolvedCategoryIDs = splitCSV(value)
	}
	if value := strings.TrimSpace(os.Getenv("HUNTHELPER_TELEGRAM_ENABLED")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			cfg.Telegram.Enabled = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("HUNTHELPER_DIGEST_ENABLED")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			cfg.Digest.Enabled = parsed
		}
	}
}

func normalize(cfg *Config) {
	cfg.Storage.DBPath = expandPath(cfg.Storage.DBPath)
	cfg.Grid.SubstitutionsPath = expandPath(cfg.Grid.SubstitutionsPath)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendBolt
	}
	if cfg.Server.Path == "" {
		cfg.Server.Path = "/_hunthelper_"
	}
	if !strings.HasPrefix(cfg.Server.Path, "/") {
		cfg.Server.Path = "/" + cfg.Server.Path
	}
	if cfg.Runtime.RequestTimeoutSec <= 0 {
		cfg.Runtime.RequestTimeoutSec = 10
	}
	if cfg.Runtime.MailboxSize <= 0 {
		cfg.Runtime.MailboxSize = 64
	}
	if cfg.Discord.SolvedCategoryIDs == nil {
		cfg.Discord.SolvedCategoryIDs = []string{}
	}
}

// Validate reports every missing setting the service cannot run without.
func (c Config) Validate() error {
	var problems []error
	required := []struct {
		name  string
		value string
	}{
		{"drive.rootFolderId", c.Drive.RootFolderID},
		{"drive.clientId", c.Drive.ClientID},
		{"drive.clientSecret", c.Drive.ClientSecret},
		{"drive.refreshToken", c.Drive.RefreshToken},
		{"discord.guildId", c.Discord.GuildID},
		{"discord.botToken", c.Discord.BotToken},
		{"discord.logChannelId", c.Discord.LogChannelID},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			problems = append(problems, fmt.Errorf("%s is required", field.name))
		}
	}
	if len(c.Discord.SolvedCategoryIDs) == 0 {
		problems = append(problems, errors.New("discord.solvedCategoryIds needs at least one category"))
	}
	switch c.Storage.Backend {
	case BackendBolt, BackendSQLite:
	default:
		problems = append(problems, fmt.Errorf("storage.backend must be one of: %s, %s", BackendBolt, BackendSQLite))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Telegram.Enabled && (strings.TrimSpace(c.Telegram.Token) == "" || strings.TrimSpace(c.Telegram.ChatID) == "") {
		problems = append(problems, errors.New("telegram.token and telegram.chatId are required when telegram is enabled"))
	}
	if !strings.Contains(c.Links.DocumentURLFormat, "%s") {
		problems = append(problems, errors.New("links.documentUrlFormat must contain %s"))
	}
	return errors.Join(problems...)
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
