package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grixate/hunthelper/internal/config"
	storepkg "github.com/grixate/hunthelper/internal/storage/bbolt"
)

func TestImportLegacy(t *testing.T) {
	legacy := t.TempDir()
	legacyConfig := `{"port": 8080, "puzprefix": "https://hunt.example/puzzle/", "drive_root": "root", "drive_client_id": "cid",
"drive_client_secret": "secret", "drive_refresh_token": "refresh", "discord_bot": "bot", "discord_guild": 1234,
"discord_log": "log", "discord_announce": "announce", "discord_solved": ["s0", "s1"], "discord_pingid": "42"}`
	if err := os.WriteFile(filepath.Join(legacy, "config.json"), []byte(legacyConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(legacy, "mapping"), []byte("Puzzle\tPzl\nRound\tRnd\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Discord.BotToken = "already-set"
	cfg.Grid.SubstitutionsPath = filepath.Join(t.TempDir(), "subs.yaml")
	configPath := filepath.Join(t.TempDir(), "config.json")

	store, err := storepkg.Open(filepath.Join(t.TempDir(), "hunthelper.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	report, err := ImportLegacy(context.Background(), legacy, configPath, cfg, store, true)
	if err != nil {
		t.Fatal(err)
	}
	if !report.ConfigMerged {
		t.Fatal("expected config to be merged")
	}
	if report.SubstitutionsImported != 2 {
		t.Fatalf("expected 2 substitutions, got %d", report.SubstitutionsImported)
	}

	saved, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Discord.BotToken != "already-set" {
		t.Fatalf("existing settings must win, got %q", saved.Discord.BotToken)
	}
	if saved.Discord.GuildID != "1234" || saved.Server.Port != 8080 {
		t.Fatalf("unexpected merged config %+v", saved.Discord)
	}
	if len(saved.Discord.SolvedCategoryIDs) != 2 {
		t.Fatalf("expected solved categories, got %v", saved.Discord.SolvedCategoryIDs)
	}

	subs, err := config.LoadSubstitutions(report.SubstitutionsPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := subs.Apply("Pzl 3 of Rnd 2"); got != "Puzzle 3 of Round 2" {
		t.Fatalf("unexpected substitution %q", got)
	}

	events, err := store.RecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Kind != "import" {
		t.Fatalf("expected one import event, got %+v", events)
	}
}

func TestReadLegacyMappingRejectsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping")
	if err := os.WriteFile(path, []byte("no tab here\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readLegacyMapping(path); err == nil {
		t.Fatal("expected error for malformed mapping")
	}
}
