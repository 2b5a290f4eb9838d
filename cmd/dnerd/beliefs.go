package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"datanerd/internal/belief"
)

var (
	beliefDataset string
	beliefLimit   int
	clearYes      bool
)

var beliefsCmd = &cobra.Command{
	Use:   "beliefs",
	Short: "Manage your belief memory (the novelty baseline)",
	Long: `Beliefs are statements dataNERD treats as things you already know.
Findings similar to a stored belief score low on novelty and are left out
of reports. Beliefs are created only by explicit actions: these commands,
the --remember flag on analyze, or the document watcher.`,
}

var beliefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored beliefs with decayed confidence",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ucfg, err := loadConfigs()
		if err != nil {
			return err
		}
		store, _, err := openBeliefStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		beliefs, err := store.ListBeliefs(cmd.Context(), resolveUserID(ucfg), beliefDataset, beliefLimit)
		if err != nil {
			return err
		}
		if len(beliefs) == 0 {
			fmt.Println("No beliefs stored.")
			return nil
		}
		now := time.Now().UTC()
		for _, b := range beliefs {
			scope := b.DatasetID
			if scope == "" {
				scope = "*"
			}
			fmt.Printf("%-8s  %.2f  %-17s  [%s]  %s\n",
				shortID(b.ID), b.EffectiveConfidence(now), b.Source, scope, b.Text)
		}
		return nil
	},
}

var beliefsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count stored beliefs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ucfg, err := loadConfigs()
		if err != nil {
			return err
		}
		store, _, err := openBeliefStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		userID := resolveUserID(ucfg)
		n, err := store.BeliefCount(cmd.Context(), userID)
		if err != nil {
			return err
		}
		fmt.Printf("%d belief(s) stored for %s.\n", n, userID)
		return nil
	},
}

var beliefsAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Record something you already know",
	Long: `Stores the statement as a high-confidence belief (source
user_confirmed). Future findings similar to it will be filtered as boring.

Example:
  dnerd beliefs add "revenue dips every July" --dataset sales-q3`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ucfg, err := loadConfigs()
		if err != nil {
			return err
		}
		store, _, err := openBeliefStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		text := joinArgs(args)
		b, err := store.MarkKnown(cmd.Context(), resolveUserID(ucfg), beliefDataset, text)
		if err != nil {
			return err
		}
		fmt.Printf("Stored belief %s.\n", shortID(b.ID))
		return nil
	},
}

var beliefsIngestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Ingest documents as low-confidence beliefs",
	Long: `Splits each document into overlapping chunks and stores every chunk
as a belief (source document_ingested, confidence 0.6). Use this to teach
dataNERD a report or wiki page you have already read.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ucfg, err := loadConfigs()
		if err != nil {
			return err
		}
		store, _, err := openBeliefStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		userID := resolveUserID(ucfg)
		total := 0
		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			n, err := store.IngestDocument(cmd.Context(), userID, beliefDataset,
				filepath.Base(path), string(content))
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", path, err)
			}
			fmt.Printf("%s: %d chunk(s) stored.\n", path, n)
			total += n
		}
		fmt.Printf("Ingested %d chunk(s) from %d file(s).\n", total, len(args))
		return nil
	},
}

var beliefsWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a drop directory and ingest documents as they appear",
	Long: `Watches a directory for .txt, .md, and .html files and ingests each
new or changed file. Runs until interrupted. With no argument the configured
beliefs.watch_dir is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ucfg, err := loadConfigs()
		if err != nil {
			return err
		}

		dir := cfg.Beliefs.WatchDir
		if len(args) > 0 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no directory given and beliefs.watch_dir is not configured")
		}

		store, _, err := openBeliefStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		watcher, err := belief.NewWatcher(store, dir, resolveUserID(ucfg), beliefDataset)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := watcher.IngestExisting(ctx); err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		fmt.Printf("Watching %s (ctrl+c to stop)...\n", dir)
		<-ctx.Done()
		watcher.Stop()

		stats := watcher.GetStats()
		fmt.Printf("Ingested %d file(s), %d chunk(s); skipped %d.\n",
			stats.FilesIngested, stats.ChunksStored, stats.FilesSkipped)
		return nil
	},
}

var beliefsDeleteCmd = &cobra.Command{
	Use:   "delete [belief-id]",
	Short: "Delete one belief",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ucfg, err := loadConfigs()
		if err != nil {
			return err
		}
		store, _, err := openBeliefStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteBelief(cmd.Context(), resolveUserID(ucfg), args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var beliefsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all of your beliefs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			return fmt.Errorf("refusing to clear belief memory without --yes")
		}
		cfg, ucfg, err := loadConfigs()
		if err != nil {
			return err
		}
		store, _, err := openBeliefStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		userID := resolveUserID(ucfg)
		n, err := store.ClearUserBeliefs(cmd.Context(), userID)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d belief(s) for %s.\n", n, userID)
		return nil
	},
}

// shortID trims a UUID to its first segment for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// joinArgs joins command arguments back into one statement.
func joinArgs(args []string) string {
	result := ""
	for i, arg := range args {
		if i > 0 {
			result += " "
		}
		result += arg
	}
	return result
}

func init() {
	beliefsCmd.PersistentFlags().StringVar(&beliefDataset, "dataset", "", "scope to a dataset id (empty spans datasets)")
	beliefsListCmd.Flags().IntVar(&beliefLimit, "limit", 50, "maximum beliefs to list")
	beliefsClearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm deletion")

	beliefsCmd.AddCommand(beliefsListCmd)
	beliefsCmd.AddCommand(beliefsCountCmd)
	beliefsCmd.AddCommand(beliefsAddCmd)
	beliefsCmd.AddCommand(beliefsIngestCmd)
	beliefsCmd.AddCommand(beliefsWatchCmd)
	beliefsCmd.AddCommand(beliefsDeleteCmd)
	beliefsCmd.AddCommand(beliefsClearCmd)
}
