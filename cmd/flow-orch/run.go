package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/backlog"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/config"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/executor"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/notify"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/observer"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/resource"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/resultstore"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/strategy"
	"github.com/hochfrequenz/claude-flow-orchestrator/tui"
	"github.com/hochfrequenz/claude-flow-orchestrator/web/api"
)

var (
	runStrategy      string
	runMaxConcurrent int
	runWatch         bool
	runServe         bool
	runTUI           bool
	runGitHub        bool
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run [ISSUE-FILE...]",
		Short: "Process the backlog through the configured strategy",
		Long: `Run queues backlog issues and processes them until the queue drains.
With --watch the orchestrator keeps running and picks up backlog changes;
with --github it also queues open issues carrying the candidate label.`,
		RunE: runRun,
	}
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "override execution strategy (sequential, parallel, priority)")
	runCmd.Flags().IntVar(&runMaxConcurrent, "max-concurrent", 0, "override concurrency ceiling")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "keep running and watch the backlog for changes")
	runCmd.Flags().BoolVar(&runServe, "serve", false, "expose the web API while running")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show the terminal dashboard while running")
	runCmd.Flags().BoolVar(&runGitHub, "github", false, "also queue labeled GitHub issues")
	rootCmd.AddCommand(runCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func logProgress(issueID, stage string, progress float64, message string) {
	log.Printf("[%s] %s (%.0f%%) %s", issueID, stage, progress*100, message)
}

// buildScheduler assembles the scheduler, backend and resource pool from
// config. Empty name and zero maxConcurrent fall back to the config values.
func buildScheduler(cfg *config.Config, name string, maxConcurrent int, progress strategy.ProgressFunc) (*strategy.Scheduler, error) {
	if name == "" {
		name = cfg.Scheduler.Strategy
	}
	if maxConcurrent <= 0 {
		maxConcurrent = cfg.Scheduler.MaxConcurrent
	}

	backend := executor.NewWorkflow(executor.Config{
		RepoURL:          cfg.General.RepoURL,
		WorkspaceDir:     cfg.General.WorkspaceDir,
		RunnerCommand:    cfg.Runner.Command,
		InstallCommand:   cfg.Runner.InstallCommand,
		PriorityBranches: name == strategy.NamePriority,
		KeepWorkspaces:   cfg.Runner.KeepWorkspaces,
		SkipPR:           cfg.Runner.SkipPR,
	})

	pool := resource.NewManager(resource.Config{
		Slots:            cfg.Resources.Slots,
		CPUCores:         cfg.Resources.CPUCores,
		MemoryMB:         cfg.Resources.MemoryMB,
		FastStorageSlots: cfg.Resources.FastStorageSlots,
	})

	return strategy.New(name, strategy.Options{
		MaxConcurrent:               maxConcurrent,
		ReservedSlots:               cfg.Scheduler.ReservedSlots,
		BoostThreshold:              time.Duration(cfg.Scheduler.BoostThresholdSeconds) * time.Second,
		DisableStarvationPrevention: cfg.Scheduler.DisableStarvationBoost,
		Backend:                     backend,
		ResourceManager:             pool,
		Progress:                    progress,
	})
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Notifications.SlackWebhook == "" {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
}

// queueBacklog parses and enqueues backlog issues, skipping ones that
// already finished
func queueBacklog(sched *strategy.Scheduler, store *resultstore.Store, dir string) (int, error) {
	issues, err := backlog.ParseDir(dir)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, issue := range issues {
		if err := store.UpsertIssue(issue); err != nil {
			return queued, fmt.Errorf("recording %s: %w", issue.ID, err)
		}
		if err := sched.AddIssue(issue); err != nil {
			log.Printf("skipping %s: %v", issue.ID, err)
			continue
		}
		queued++
	}
	return queued, nil
}

// persistResults drains newly finished results into the store and the
// notifier, marking each in the seen set so it is handled once.
func persistResults(sched *strategy.Scheduler, store *resultstore.Store, notifier notify.Notifier, obs *observer.Observer, seen map[string]bool) {
	for id, result := range sched.Results() {
		if seen[id] {
			continue
		}
		seen[id] = true
		obs.RecordResult(result)
		if err := store.SaveResult(result); err != nil {
			log.Printf("saving result for %s: %v", id, err)
		}
		if err := notifier.Send(notify.ForResult(result)); err != nil {
			log.Printf("notifying for %s: %v", id, err)
		}
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := resultstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Progress sinks are registered after scheduler construction; all
	// appends happen before Start, so the slice is stable once the
	// scheduling loop runs.
	var sinks []strategy.ProgressFunc
	progress := func(issueID, stage string, progress float64, message string) {
		for _, sink := range sinks {
			sink(issueID, stage, progress, message)
		}
	}

	sched, err := buildScheduler(cfg, runStrategy, runMaxConcurrent, progress)
	if err != nil {
		return err
	}

	var events chan tui.ProgressMsg
	if runTUI {
		events = make(chan tui.ProgressMsg, 256)
		sinks = append(sinks, tui.ProgressSink(events))
	} else {
		sinks = append(sinks, logProgress)
	}

	var server *api.Server
	if runServe {
		server = api.NewServer(sched, fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port))
		sinks = append(sinks, server.Progress())
	}

	// Queue explicit issue files first, then the backlog directory
	for _, path := range args {
		issue, err := backlog.ParseFile(path)
		if err != nil {
			return err
		}
		if err := store.UpsertIssue(issue); err != nil {
			return err
		}
		if err := sched.AddIssue(issue); err != nil {
			return err
		}
	}
	if len(args) == 0 {
		queued, err := queueBacklog(sched, store, cfg.General.BacklogDir)
		if err != nil {
			return err
		}
		log.Printf("queued %d issues from %s", queued, cfg.General.BacklogDir)
	}

	if runGitHub {
		queued, err := queueGitHubIssues(sched, store, cfg)
		if err != nil {
			return err
		}
		log.Printf("queued %d issues from github", queued)
	}

	notifier := buildNotifier(cfg)
	obs := observer.New(30 * time.Minute)
	seen := make(map[string]bool)

	sched.Start(ctx)
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)

	// Result pump: persist and notify as issues finish
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				persistResults(sched, store, notifier, obs, seen)
				return nil
			case <-ticker.C:
				persistResults(sched, store, notifier, obs, seen)
			}
		}
	})

	if server != nil {
		srv := server
		g.Go(func() error {
			log.Printf("web API listening on %s:%d", cfg.Web.Host, cfg.Web.Port)
			if err := srv.Start(); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			srv.Stop()
			return nil
		})
	}

	if runWatch {
		watcher, err := observer.NewBacklogWatcher(cfg.General.BacklogDir, func(paths []string) {
			for _, path := range paths {
				issue, err := backlog.ParseFile(path)
				if err != nil {
					log.Printf("parsing %s: %v", path, err)
					continue
				}
				if err := store.UpsertIssue(issue); err != nil {
					log.Printf("recording %s: %v", issue.ID, err)
					continue
				}
				if err := sched.AddIssue(issue); err != nil {
					log.Printf("skipping %s: %v", issue.ID, err)
				}
			}
		})
		if err != nil {
			return err
		}
		watcher.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			watcher.Stop()
			return nil
		})
	}

	if runTUI {
		model := tui.NewModel(sched, events)
		p := tea.NewProgram(model, tea.WithAltScreen())
		g.Go(func() error {
			<-gctx.Done()
			p.Quit()
			return nil
		})
		if _, err := p.Run(); err != nil {
			return err
		}
		stop()
	} else if !runWatch {
		// Drain mode: wait for the queue to empty, then shut down
		g.Go(func() error {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					m := sched.Metrics()
					if m.Pending == 0 && m.Running == 0 {
						stop()
						return nil
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	m := sched.Metrics()
	fmt.Printf("Done: %d completed, %d failed (success rate %.0f%%)\n",
		m.Completed, m.Failed, m.SuccessRate*100)
	return nil
}
