package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/grixate/hunthelper/internal/app"
	"github.com/grixate/hunthelper/internal/config"
	"github.com/grixate/hunthelper/internal/hunt"
	"github.com/grixate/hunthelper/internal/reconcile"
	"github.com/grixate/hunthelper/internal/server"
	"github.com/grixate/hunthelper/internal/storage"
	"github.com/grixate/hunthelper/internal/storage/migrate"
)

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(logger *log.Logger) *cobra.Command {
	configPath := new(string)
	root := &cobra.Command{
		Use:   "hunthelper",
		Short: "hunthelper - keeps the hunt sheet, Drive and Discord in step",
		RunE:  func(cmd *cobra.Command, args []string) error { return cmd.Help() },
	}
	root.PersistentFlags().StringVar(configPath, "config", "", "config file path")

	root.AddCommand(serveCmd(configPath, logger))
	root.AddCommand(statusCmd(configPath))
	root.AddCommand(treeCmd(configPath))
	root.AddCommand(eventsCmd(configPath))
	root.AddCommand(hashTokenCmd())
	root.AddCommand(importLegacyCmd(configPath))
	return root
}

func resolvedConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	return config.ConfigPath()
}

func loadCfg(path string) (config.Config, error) {
	return config.Load(resolvedConfigPath(path))
}

// withState opens the store read-only for the duration of fn.
func withState(ctx context.Context, cfg config.Config, fn func(storage.Store, *reconcile.State) error) error {
	store, err := app.OpenStore(cfg)
	if err != nil {
		return fmt.Errorf("open store (is serve running?): %w", err)
	}
	defer store.Close()
	state, err := app.LoadState(ctx, store)
	if err != nil {
		return err
	}
	return fn(store, state)
}

func serveCmd(configPath *string, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config incomplete (%s): %w", resolvedConfigPath(*configPath), err)
			}
			runtime, err := app.BuildRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Shutdown()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			fmt.Fprintf(cmd.OutOrStdout(), "hunthelper serving on %s%s\n", cfg.ListenAddr(), cfg.Server.Path)
			return runtime.Serve(ctx)
		},
	}
}

func statusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show hunt counts and service configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config: %s\n", resolvedConfigPath(*configPath))
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "Config ready: false (%v)\n", strings.ReplaceAll(err.Error(), "\n", "; "))
			} else {
				fmt.Fprintln(out, "Config ready: true")
			}
			fmt.Fprintf(out, "Storage: %s %s\n", cfg.Storage.Backend, cfg.Storage.DBPath)
			fmt.Fprintf(out, "Telegram enabled: %v\n", cfg.Telegram.Enabled)
			fmt.Fprintf(out, "Digest enabled: %v (%s)\n", cfg.Digest.Enabled, cfg.Digest.Schedule)
			fmt.Fprintf(out, "Auth token set: %v\n", strings.TrimSpace(cfg.Server.AuthTokenHash) != "")

			return withState(cmd.Context(), cfg, func(_ storage.Store, st *reconcile.State) error {
				snap := app.SnapshotOf(st)
				c := snap.Counts
				fmt.Fprintf(out, "Rounds: %s (%s solved)\n", humanize.Comma(int64(c.Rounds)), humanize.Comma(int64(c.SolvedRounds)))
				fmt.Fprintf(out, "Puzzles: %s (%s solved)\n", humanize.Comma(int64(c.Puzzles)), humanize.Comma(int64(c.SolvedPuzzles)))
				fmt.Fprintf(out, "Solved holding count: %d\n", snap.SolvedCount)
				if snap.LastSolvedAt.IsZero() {
					fmt.Fprintln(out, "Last solve: never")
				} else {
					fmt.Fprintf(out, "Last solve: %s\n", humanize.Time(snap.LastSolvedAt))
				}
				if c.Broken > 0 {
					fmt.Fprintf(out, "Needs repair: %d nodes with FAILED resources\n", c.Broken)
				}
				return nil
			})
		},
	}
}

func treeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print rounds and puzzles with their external resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg(*configPath)
			if err != nil {
				return err
			}
			links := reconcile.LinksFromConfig(cfg.Links)
			return withState(cmd.Context(), cfg, func(_ storage.Store, st *reconcile.State) error {
				printTree(cmd.OutOrStdout(), st.Tree, links)
				return nil
			})
		},
	}
}

func printTree(w io.Writer, tree *hunt.Tree, links reconcile.Links) {
	rounds := tree.SortedRounds()
	if len(rounds) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	for _, round := range rounds {
		fmt.Fprintf(w, "#%s%s\n", round.Name, solvedMark(round.Solved))
		fmt.Fprintf(w, "  folder=%s sheet=%s category=%s channel=%s\n", round.Ref.FolderID, round.Ref.DocumentID, round.Ref.CategoryID, round.Ref.ChannelID)
		for _, puzzle := range round.SortedPuzzles() {
			fmt.Fprintf(w, "  %s%s\n", puzzle.Name, solvedMark(puzzle.Solved))
			fmt.Fprintf(w, "    sheet=%s channel=%s\n", puzzle.Ref.DocumentID, puzzle.Ref.ChannelID)
			fmt.Fprintf(w, "    %s\n", links.Row(puzzle))
		}
	}
}

func solvedMark(solved bool) string {
	if solved {
		return " [solved]"
	}
	return ""
}

func eventsCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg(*configPath)
			if err != nil {
				return err
			}
			return withState(cmd.Context(), cfg, func(store storage.Store, _ *reconcile.State) error {
				events, err := store.RecentEvents(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(events) == 0 {
					fmt.Fprintln(out, "no events")
					return nil
				}
				for _, event := range events {
					fmt.Fprintf(out, "%s  %-8s  %s  (%s)\n", event.CreatedAt.Format(time.RFC3339), event.Kind, event.Summary, humanize.Time(event.CreatedAt))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", storage.DefaultEventLimit, "maximum number of events")
	return cmd
}

func hashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Hash a shared secret for server.authTokenHash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && err != io.EOF {
					return err
				}
				token = line
			}
			hash, err := server.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func importLegacyCmd(configPath *string) *cobra.Command {
	var from string
	var mergeConfig bool
	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Import config.json and mapping from a legacy deployment directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(from) == "" {
				return fmt.Errorf("--from is required")
			}
			path := resolvedConfigPath(*configPath)
			cfg, err := loadCfg(*configPath)
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			report, err := migrate.ImportLegacy(cmd.Context(), from, path, cfg, store, mergeConfig)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Settings imported: %d\n", report.SettingsImported)
			fmt.Fprintf(out, "Substitutions imported: %d\n", report.SubstitutionsImported)
			if report.SubstitutionsPath != "" {
				fmt.Fprintf(out, "Substitutions file: %s\n", report.SubstitutionsPath)
			}
			if report.ConfigMerged {
				fmt.Fprintf(out, "Config updated: %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "legacy deployment directory")
	cmd.Flags().BoolVar(&mergeConfig, "merge-config", true, "fill empty settings from the legacy config.json")
	return cmd
}
