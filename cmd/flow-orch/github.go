package main

import (
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/config"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/issues"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/resultstore"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/strategy"
)

func init() {
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch labeled GitHub issues into the store",
		RunE:  runFetch,
	}
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.GitHub.Repo == "" {
		return fmt.Errorf("github repo not configured")
	}

	fetcher := issues.NewFetcher(&cfg.GitHub)
	candidates, err := fetcher.FetchCandidates()
	if err != nil {
		return err
	}

	store, err := resultstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRIORITY\tDEPENDS ON")
	for _, issue := range candidates {
		if err := store.UpsertIssue(issue); err != nil {
			return fmt.Errorf("upserting %s: %w", issue.ID, err)
		}
		deps := "-"
		if len(issue.Dependencies) > 0 {
			deps = fmt.Sprint(issue.Dependencies)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", issue.ID, truncate(issue.Title, 50), issue.Priority, deps)
	}
	w.Flush()

	fmt.Printf("Fetched %d candidate issues from %s\n", len(candidates), cfg.GitHub.Repo)
	return nil
}

// queueGitHubIssues pulls labeled candidates and enqueues them alongside the
// backlog. Issues that fail to queue (already tracked, already finished) are
// skipped with a log line.
func queueGitHubIssues(sched *strategy.Scheduler, store *resultstore.Store, cfg *config.Config) (int, error) {
	if cfg.GitHub.Repo == "" {
		return 0, fmt.Errorf("github repo not configured")
	}

	fetcher := issues.NewFetcher(&cfg.GitHub)
	candidates, err := fetcher.FetchCandidates()
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, issue := range candidates {
		if err := store.UpsertIssue(issue); err != nil {
			return queued, err
		}
		if err := sched.AddIssue(issue); err != nil {
			log.Printf("skipping github issue %s: %v", issue.ID, err)
			continue
		}
		if err := fetcher.MarkProcessed(issue.ID); err != nil {
			log.Printf("labeling github issue %s: %v", issue.ID, err)
		}
		queued++
	}
	return queued, nil
}
