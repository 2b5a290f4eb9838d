package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"datanerd/internal/config"
	"datanerd/internal/runstore"
)

var (
	runsLimit   int
	runsAllUser bool
	runsJSON    bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived analysis runs",
}

func openArchive() (*runstore.Store, *config.UserConfig, error) {
	cfg, ucfg, err := loadConfigs()
	if err != nil {
		return nil, nil, err
	}
	store, err := runstore.NewStore(cfg.Runs)
	if err != nil {
		return nil, nil, err
	}
	return store, ucfg, nil
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, ucfg, err := openArchive()
		if err != nil {
			return err
		}
		defer store.Close()

		userID := resolveUserID(ucfg)
		if runsAllUser {
			userID = ""
		}
		records, err := store.List(cmd.Context(), userID, runsLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No archived runs.")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %-9s  %-16s  %s  %6s  +%d ·%d -%d\n",
				r.RunID, r.Status, r.DatasetID,
				r.StartedAt.Local().Format("2006-01-02 15:04"),
				r.Duration.Round(time.Second),
				r.Approved, r.Boring, r.Rejected)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one archived run's report (or full state with --json)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openArchive()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, st, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if runsJSON {
			out, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("Run %s (%s) on %s: %d question(s), %d iteration(s), %s\n\n",
			rec.RunID, rec.Status, rec.DatasetID, rec.Questions, rec.Iterations,
			rec.Duration.Round(time.Millisecond))
		report := rec.FinalResponse
		if report == "" {
			fmt.Println("No report (run did not reach synthesis).")
			return nil
		}
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
			if rendered, err := r.Render(report); err == nil {
				report = rendered
			}
		}
		fmt.Println(report)
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [run-id]",
	Short: "Delete one archived run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openArchive()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted.")
		return nil
	},
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	runsListCmd.Flags().BoolVar(&runsAllUser, "all-users", false, "list every user's runs")
	runsShowCmd.Flags().BoolVar(&runsJSON, "json", false, "dump the full run state as JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}
