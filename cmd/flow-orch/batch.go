package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/batch"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/config"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/observer"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/resultstore"
)

func init() {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Run configured batches on their cron schedules",
		RunE:  runBatch,
	}

	batchListCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured batches and their next run times",
		RunE:  runBatchList,
	}
	batchCmd.AddCommand(batchListCmd)
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Batches) == 0 {
		return fmt.Errorf("no batches configured")
	}

	store, err := resultstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	scheduler, err := batch.NewScheduler(cfg.Batches)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("batch scheduler running with %d batches", len(cfg.Batches))
	scheduler.Start(func(bc config.BatchConfig) error {
		return executeBatch(ctx, cfg, store, bc)
	})

	<-ctx.Done()
	scheduler.Stop()
	return nil
}

// executeBatch runs one batch to completion: fetch candidates by the batch
// label, process them under the batch strategy, and record the outcome.
func executeBatch(ctx context.Context, cfg *config.Config, store *resultstore.Store, bc config.BatchConfig) error {
	started := time.Now()
	log.Printf("batch %s starting (strategy %s)", bc.Name, bc.Strategy)

	sched, err := buildScheduler(cfg, bc.Strategy, bc.MaxConcurrent, logProgress)
	if err != nil {
		return err
	}

	batchCfg := *cfg
	if bc.Label != "" {
		batchCfg.GitHub.CandidateLabel = bc.Label
	}

	queued := 0
	if batchCfg.GitHub.Repo != "" {
		queued, err = queueGitHubIssues(sched, store, &batchCfg)
		if err != nil {
			return err
		}
	}
	if queued == 0 {
		queued, err = queueBacklog(sched, store, cfg.General.BacklogDir)
		if err != nil {
			return err
		}
	}
	if queued == 0 {
		log.Printf("batch %s: nothing to do", bc.Name)
		return nil
	}

	notifier := buildNotifier(cfg)
	obs := observer.New(30 * time.Minute)
	seen := make(map[string]bool)

	sched.Start(ctx)
	defer sched.Stop()

	for {
		select {
		case <-ctx.Done():
			persistResults(sched, store, notifier, obs, seen)
			return ctx.Err()
		case <-time.After(time.Second):
		}
		persistResults(sched, store, notifier, obs, seen)
		m := sched.Metrics()
		if m.Pending == 0 && m.Running == 0 {
			if err := store.RecordBatch(bc.Name, bc.Strategy, started, time.Now(), m.Completed, m.Failed); err != nil {
				log.Printf("recording batch %s: %v", bc.Name, err)
			}
			log.Printf("batch %s done: %d completed, %d failed", bc.Name, m.Completed, m.Failed)
			return nil
		}
	}
}

func runBatchList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	scheduler, err := batch.NewScheduler(cfg.Batches)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCRON\tSTRATEGY\tNEXT RUN")
	for _, name := range scheduler.ListBatches() {
		bc, _ := scheduler.GetConfig(name)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", bc.Name, bc.Cron, bc.Strategy,
			scheduler.NextRun(name).Format(time.RFC3339))
	}
	w.Flush()
	return nil
}
