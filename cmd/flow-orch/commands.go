package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/backlog"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/resultstore"
)

var (
	listStatus   string
	resultsLimit int
)

func init() {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show issue counts from the store",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked issues",
		RunE:  runList,
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	rootCmd.AddCommand(listCmd)

	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Show recent run results",
		RunE:  runResults,
	}
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 20, "number of results to show")
	rootCmd.AddCommand(resultsCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync issues from the backlog directory into the store",
		RunE:  runSync,
	}
	rootCmd.AddCommand(syncCmd)
}

func openStore() (*resultstore.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return resultstore.New(cfg.General.DatabasePath)
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	counts := map[domain.Status]int{}
	total := 0
	for _, status := range []domain.Status{
		domain.StatusPending, domain.StatusRunning, domain.StatusCompleted,
		domain.StatusFailed, domain.StatusCancelled,
	} {
		issues, err := store.ListIssues(status)
		if err != nil {
			return err
		}
		counts[status] = len(issues)
		total += len(issues)
	}

	fmt.Printf("Issues: %d total | %d pending | %d running | %d completed | %d failed | %d cancelled\n",
		total, counts[domain.StatusPending], counts[domain.StatusRunning],
		counts[domain.StatusCompleted], counts[domain.StatusFailed], counts[domain.StatusCancelled])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	issues, err := store.ListIssues(domain.Status(listStatus))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tTIER\tRETRIES")
	for _, issue := range issues {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d/%d\n",
			issue.ID, truncate(issue.Title, 50), issue.Status,
			issue.Priority, issue.Tier(), issue.RetryCount, issue.MaxRetries)
	}
	w.Flush()
	return nil
}

func runResults(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.ListResults(resultsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ISSUE\tSTATUS\tDURATION\tPR\tMESSAGE")
	for _, r := range results {
		pr := r.PRURL
		if pr == "" {
			pr = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.IssueID, r.Status, r.Duration.Round(time.Second), pr, truncate(r.Message, 40))
	}
	w.Flush()
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	issues, err := backlog.ParseDir(cfg.General.BacklogDir)
	if err != nil {
		return err
	}

	store, err := resultstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, issue := range issues {
		if err := store.UpsertIssue(issue); err != nil {
			return fmt.Errorf("upserting %s: %w", issue.ID, err)
		}
	}

	fmt.Printf("Synced %d issues from %s\n", len(issues), cfg.General.BacklogDir)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
