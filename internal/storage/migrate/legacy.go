package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grixate/hunthelper/internal/config"
	"github.com/grixate/hunthelper/internal/storage"
)

type Report struct {
	ConfigMerged          bool
	SettingsImported      int
	SubstitutionsImported int
	SubstitutionsPath     string
}

// ImportLegacy pulls settings from a legacy deployment directory: its flat
// config.json and its tab-separated mapping file. Existing settings win.
func ImportLegacy(ctx context.Context, legacyDir, configPath string, cfg config.Config, store storage.Store, mergeConfig bool) (Report, error) {
	report := Report{}
	legacyDir = expandPath(legacyDir)

	if mergeConfig {
		merged, imported, err := mergeLegacyConfig(legacyDir, cfg)
		if err != nil {
			return report, err
		}
		report.SettingsImported = imported
		if imported > 0 {
			cfg = merged
			report.ConfigMerged = true
		}
	}

	subs, err := readLegacyMapping(filepath.Join(legacyDir, "mapping"))
	if err != nil {
		return report, err
	}
	if len(subs) > 0 {
		target := strings.TrimSpace(cfg.Grid.SubstitutionsPath)
		if target == "" {
			target = filepath.Join(config.HomeDir(), "substitutions.yaml")
		}
		if _, err := os.Stat(target); os.IsNotExist(err) {
			if err := config.SaveSubstitutions(target, subs); err != nil {
				return report, err
			}
			report.SubstitutionsImported = len(subs)
		}
		report.SubstitutionsPath = target
		if cfg.Grid.SubstitutionsPath != target {
			cfg.Grid.SubstitutionsPath = target
			report.ConfigMerged = true
		}
	}

	if report.ConfigMerged {
		if err := config.Save(configPath, cfg); err != nil {
			return report, err
		}
	}

	if store != nil {
		summary := fmt.Sprintf("imported %d settings and %d substitutions from %s", report.SettingsImported, report.SubstitutionsImported, legacyDir)
		if _, err := store.AppendEvent(ctx, storage.Event{Kind: storage.EventImport, Summary: summary}); err != nil {
			return report, err
		}
	}
	return report, nil
}

// readLegacyMapping parses lines of "replacement<TAB>original".
func readLegacyMapping(path string) (config.Substitutions, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var subs config.Substitutions
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		to, from, ok := strings.Cut(text, "\t")
		if !ok || from == "" {
			return nil, fmt.Errorf("mapping line %d: expected replacement<TAB>original", line)
		}
		subs = append(subs, config.Substitution{From: from, To: to})
	}
	return subs, scanner.Err()
}

func mergeLegacyConfig(legacyDir string, cfg config.Config) (config.Config, int, error) {
	path := filepath.Join(legacyDir, "config.json")
	bytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, 0, nil
		}
		return cfg, 0, err
	}

	var legacy map[string]any
	if err := json.Unmarshal(bytes, &legacy); err != nil {
		return cfg, 0, fmt.Errorf("parse legacy config %s: %w", path, err)
	}

	imported := 0
	fill := func(target *string, key string) {
		value := legacyString(legacy[key])
		if strings.TrimSpace(*target) == "" && value != "" {
			*target = value
			imported++
		}
	}
	fill(&cfg.Links.PuzzlePrefix, "puzprefix")
	fill(&cfg.Drive.RootFolderID, "drive_root")
	fill(&cfg.Drive.ClientID, "drive_client_id")
	fill(&cfg.Drive.ClientSecret, "drive_client_secret")
	fill(&cfg.Drive.RefreshToken, "drive_refresh_token")
	fill(&cfg.Discord.BotToken, "discord_bot")
	fill(&cfg.Discord.GuildID, "discord_guild")
	fill(&cfg.Discord.LogChannelID, "discord_log")
	fill(&cfg.Discord.AnnounceChannelID, "discord_announce")
	fill(&cfg.Discord.PingID, "discord_pingid")

	if len(cfg.Discord.SolvedCategoryIDs) == 0 {
		if solved, ok := legacy["discord_solved"].([]any); ok {
			for _, item := range solved {
				if id := legacyString(item); id != "" {
					cfg.Discord.SolvedCategoryIDs = append(cfg.Discord.SolvedCategoryIDs, id)
				}
			}
			if len(cfg.Discord.SolvedCategoryIDs) > 0 {
				imported++
			}
		}
	}
	if port := legacyString(legacy["port"]); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && parsed != cfg.Server.Port && cfg.Server.Port == config.Default().Server.Port {
			cfg.Server.Port = parsed
			imported++
		}
	}
	return cfg, imported, nil
}

// legacyString renders JSON scalars; snowflake ids were sometimes stored as
// numbers.
func legacyString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
