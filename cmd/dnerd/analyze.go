package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datanerd/cmd/dnerd/ui"
	"datanerd/internal/critic"
	"datanerd/internal/dataset"
	"datanerd/internal/execution"
	"datanerd/internal/llm"
	"datanerd/internal/novelty"
	"datanerd/internal/orchestrator"
	"datanerd/internal/runstore"
	"datanerd/internal/types"
)

var (
	demoFlag     bool
	rememberFlag bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [dataset-id...]",
	Short: "Run the full analysis pipeline against one or more datasets",
	Long: `Runs the cyclic analysis graph against a dataset:
  1. Planner: generates statistical questions from the schema
  2. Analyst: writes analysis code and executes it (self-correcting on errors)
  3. Critic: gates findings on statistical soundness
  4. Novelty: suppresses findings you already know (belief memory)
  5. Synthesizer: writes the final report

With --demo the built-in customer dataset is analyzed with the in-process
interpreter, so no runner or dataset service is needed. A Gemini API key is
required either way (GEMINI_API_KEY or .dnerd/config.json).

With several dataset ids the runs are scheduled through the run queue and
execute concurrently; reports print as each run finishes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&demoFlag, "demo", false, "use the built-in demo dataset and local execution")
	analyzeCmd.Flags().BoolVar(&rememberFlag, "remember", false, "record approved insights as beliefs after the run")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, ucfg, err := loadConfigs()
	if err != nil {
		return err
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no Gemini API key configured: set GEMINI_API_KEY or add gemini_api_key to .dnerd/config.json")
	}
	if demoFlag && len(args) > 1 {
		return fmt.Errorf("--demo analyzes the single built-in dataset")
	}
	datasetID := args[0]
	userID := resolveUserID(ucfg)

	store, engine, err := openBeliefStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// Execution boundary and dataset metadata. Demo mode and local mode run
	// generated Go in-process; otherwise code ships to the runner service.
	var (
		adapter  execution.Adapter
		datasets dataset.Provider
	)
	switch {
	case demoFlag:
		p := dataset.NewDemoProvider()
		datasets = p
		adapter = execution.NewLocalRunner(p, cfg.Execution)
		datasetID = "demo"
	case cfg.Execution.Mode == "local":
		p := dataset.NewDemoProvider()
		datasets = p
		adapter = execution.NewLocalRunner(p, cfg.Execution)
	default:
		if !cfg.IsRunnerEnabled() {
			return fmt.Errorf("execution mode is %q but the runner integration is disabled; enable it or use --demo", cfg.Execution.Mode)
		}
		if !cfg.IsDatasetServiceEnabled() {
			return fmt.Errorf("dataset service integration is disabled; enable it or use --demo")
		}
		adapter = execution.NewHTTPRunner(cfg.Integrations.Runner)
		datasets = dataset.NewHTTPProvider(cfg.Integrations.Dataset)
	}

	// Syntax precheck is best-effort: a missing grammar just means garbage
	// code spends a runner round trip instead of failing fast.
	precheck, err := execution.NewPrecheck(adapter.Language())
	if err != nil {
		logger.Warn("syntax precheck unavailable", zap.Error(err))
		precheck = nil
	} else {
		defer precheck.Close()
	}

	archive, err := runstore.NewStore(cfg.Runs)
	if err != nil {
		logger.Warn("run archive unavailable, runs will not be persisted", zap.Error(err))
		archive = nil
	} else {
		defer archive.Close()
	}

	eng := orchestrator.NewEngine(cfg.Analysis, orchestrator.Deps{
		LLM:      llm.NewGeminiClient(cfg.LLM),
		Adapter:  adapter,
		Precheck: precheck,
		Beliefs:  store,
		Gate:     novelty.NewEngine(cfg.Novelty, store, engine),
		Critic:   critic.NewScorer(cfg.Analysis),
		Datasets: datasets,
		Archive:  archiverOrNil(archive),
	})

	if len(args) > 1 {
		return runAnalyzeBatch(ctx, eng, store, args, userID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan types.RunEvent, 64)
	type outcome struct {
		st  *types.RunState
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		st, err := eng.Run(runCtx, orchestrator.Request{
			UserID:    userID,
			DatasetID: datasetID,
			Events:    events,
		})
		resCh <- outcome{st: st, err: err}
		close(events)
	}()

	if usePlainOutput(ucfg) {
		printPlainEvents(events)
	} else {
		prog := tea.NewProgram(ui.NewProgress(datasetID, events, cancel, ui.ThemeFor(ucfg.Theme)))
		if _, err := prog.Run(); err != nil {
			// The terminal is unusable for a TUI; keep draining so the run
			// finishes either way.
			printPlainEvents(events)
		}
	}

	out := <-resCh
	if out.err != nil {
		var aborted *types.RunAbortedError
		if errors.As(out.err, &aborted) && aborted.Retryable {
			return fmt.Errorf("%w (transient failure, retry may succeed)", out.err)
		}
		return out.err
	}

	printReport(out.st)

	if rememberFlag {
		n, err := orchestrator.RecordApproved(ctx, store, out.st)
		if err != nil {
			return fmt.Errorf("run succeeded but recording beliefs failed after %d: %w", n, err)
		}
		fmt.Printf("\nRecorded %d finding(s) to belief memory.\n", n)
	}
	return nil
}

// runAnalyzeBatch schedules one run per dataset through the run queue and
// prints each report as its run finishes. Output is always plain: several
// concurrent runs cannot share one progress view.
func runAnalyzeBatch(ctx context.Context, eng *orchestrator.Engine, store orchestrator.BeliefStore, datasetIDs []string, userID string) error {
	queue := orchestrator.NewRunQueue(eng, orchestrator.DefaultRunQueueConfig())
	if err := queue.Start(); err != nil {
		return err
	}
	defer queue.Stop()

	type pending struct {
		datasetID string
		ch        <-chan orchestrator.RunResult
	}
	pendings := make([]pending, 0, len(datasetIDs))
	for _, id := range datasetIDs {
		ch, err := queue.Submit(ctx, orchestrator.Request{UserID: userID, DatasetID: id}, orchestrator.PriorityHigh)
		if err != nil {
			return fmt.Errorf("queueing %s: %w", id, err)
		}
		pendings = append(pendings, pending{datasetID: id, ch: ch})
	}

	var firstErr error
	for _, p := range pendings {
		select {
		case res := <-p.ch:
			if res.Err != nil {
				fmt.Printf("\n=== %s: failed: %v\n", p.datasetID, res.Err)
				if firstErr == nil {
					firstErr = res.Err
				}
				continue
			}
			fmt.Printf("\n=== %s ===\n", p.datasetID)
			printReport(res.State)
			if rememberFlag {
				if n, err := orchestrator.RecordApproved(ctx, store, res.State); err != nil {
					fmt.Printf("recording beliefs failed after %d: %v\n", n, err)
				} else {
					fmt.Printf("Recorded %d finding(s) to belief memory.\n", n)
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return firstErr
}

// archiverOrNil keeps a typed-nil *runstore.Store out of the Archiver
// interface field.
func archiverOrNil(s *runstore.Store) orchestrator.Archiver {
	if s == nil {
		return nil
	}
	return s
}

// printPlainEvents streams run progress as plain lines for non-TTY use.
func printPlainEvents(events <-chan types.RunEvent) {
	for ev := range events {
		switch ev.Kind {
		case types.EventQuestionStarted:
			fmt.Printf("? %s\n", ev.Message)
		case types.EventExecutionRetry:
			fmt.Printf("~ retrying: %s\n", ev.Err)
		case types.EventCritiqueRetry:
			fmt.Printf("~ revising: %s\n", ev.Err)
		case types.EventQuestionAbandoned:
			fmt.Printf("x abandoned: %s\n", ev.Message)
		case types.EventInsightApproved:
			fmt.Printf("+ %s\n", ev.Message)
		case types.EventInsightBoring:
			fmt.Printf(". already known: %s\n", ev.Message)
		case types.EventInsightRejected:
			fmt.Printf("- rejected: %s\n", ev.Message)
		case types.EventRunAborted:
			fmt.Printf("! aborted: %s\n", ev.Err)
		}
	}
}

// printReport renders the final markdown report plus a disposition summary.
func printReport(st *types.RunState) {
	fmt.Println()
	rendered := st.FinalResponse
	if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
		if out, err := r.Render(st.FinalResponse); err == nil {
			rendered = out
		}
	}
	fmt.Println(rendered)

	fmt.Printf("Run %s finished in %s: %d novel, %d already known, %d rejected.\n",
		st.RunID, st.Elapsed().Round(time.Millisecond),
		len(st.Approved), len(st.Boring), len(st.Rejected))

	if len(st.VizConfigs) > 0 {
		fmt.Printf("%d chart(s) suggested:\n", len(st.VizConfigs))
		for _, v := range st.VizConfigs {
			fmt.Printf("  - %s: %s (%s", v.ChartType, v.Title, v.XColumn)
			if v.YColumn != "" {
				fmt.Printf(" vs %s", v.YColumn)
			}
			fmt.Println(")")
		}
	}
}
