package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/strategy"
)

// Workflow stages and their progress fractions
const (
	stageWorkspace = "workspace"
	stageClone     = "clone"
	stageBranch    = "branch"
	stageInstall   = "install"
	stageSpawn     = "spawn"
	stageImplement = "implement"
	stagePR        = "pr"
	stageCleanup   = "cleanup"
)

// Config configures the workflow backend
type Config struct {
	RepoURL      string
	WorkspaceDir string

	// RunnerCommand invokes the external implementation runner. The prompt
	// file path is appended as the final argument.
	RunnerCommand []string

	// InstallCommand prepares the runner inside the cloned repo. Empty
	// skips the install stage.
	InstallCommand []string

	// PriorityBranches switches branch naming to priority/<tier>/ form
	PriorityBranches bool

	// KeepWorkspaces skips workspace removal after completion, useful
	// for debugging failed runs
	KeepWorkspaces bool

	// SkipPR skips branch push and PR creation
	SkipPR bool
}

// runFunc executes an external command in dir, streaming output to logW
type runFunc func(ctx context.Context, dir string, logW io.Writer, name string, args ...string) error

// outputFunc executes an external command in dir and returns its combined output
type outputFunc func(ctx context.Context, dir string, name string, args ...string) (string, error)

// Workflow implements strategy.Backend by driving an issue through the full
// implementation pipeline: workspace, clone, branch, install, runner, PR.
type Workflow struct {
	config     Config
	workspaces *WorkspaceManager

	run    runFunc
	output outputFunc
}

var _ strategy.Backend = (*Workflow)(nil)

// NewWorkflow creates the workflow backend
func NewWorkflow(config Config) *Workflow {
	return &Workflow{
		config:     config,
		workspaces: NewWorkspaceManager(config.RepoURL, config.WorkspaceDir),
		run:        streamCommand,
		output:     combinedOutput,
	}
}

// Execute runs the complete workflow for one issue. Any stage failure
// aborts the run; the workspace is cleaned up on both paths.
func (w *Workflow) Execute(ctx context.Context, issue *domain.Issue, report strategy.ProgressFunc) (*domain.Result, error) {
	report(issue.ID, stageWorkspace, 0.1, "Creating isolated workspace")
	workspacePath, err := w.workspaces.Create(issue)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	issue.WorkspacePath = workspacePath
	defer w.cleanup(issue, workspacePath, report)

	report(issue.ID, stageClone, 0.2, "Cloning repository")
	repoPath, err := w.workspaces.Clone(ctx, workspacePath)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}

	report(issue.ID, stageBranch, 0.3, "Creating feature branch")
	branch := BranchName(issue, time.Now())
	if w.config.PriorityBranches {
		branch = PriorityBranchName(issue, time.Now())
	}
	if w.config.RepoURL != "" {
		if err := w.workspaces.CreateBranch(ctx, repoPath, branch); err != nil {
			return nil, fmt.Errorf("branch: %w", err)
		}
	}
	issue.BranchName = branch

	if len(w.config.InstallCommand) > 0 {
		report(issue.ID, stageInstall, 0.4, "Installing runner")
		if err := w.runStage(ctx, issue, repoPath, workspacePath, w.config.InstallCommand); err != nil {
			return nil, fmt.Errorf("install: %w", err)
		}
	}

	report(issue.ID, stageSpawn, 0.5, "Writing issue prompt")
	promptFile := filepath.Join(workspacePath, "issue_prompt.txt")
	if err := os.WriteFile(promptFile, []byte(FormatPrompt(issue)), 0644); err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}

	if len(w.config.RunnerCommand) > 0 {
		report(issue.ID, stageImplement, 0.8, "Running implementation")
		args := append(append([]string{}, w.config.RunnerCommand...), promptFile)
		if err := w.runStage(ctx, issue, repoPath, workspacePath, args); err != nil {
			return nil, fmt.Errorf("implement: %w", err)
		}
	}

	var prURL string
	if !w.config.SkipPR && w.config.RepoURL != "" {
		report(issue.ID, stagePR, 0.9, "Creating pull request")
		prURL, err = w.createPullRequest(ctx, issue, repoPath, branch)
		if err != nil {
			return nil, fmt.Errorf("pr: %w", err)
		}
	}

	result := domain.NewResult(issue.ID, domain.StatusCompleted, true,
		fmt.Sprintf("issue %s completed", issue.ID))
	result.PRURL = prURL
	return result, nil
}

// runStage runs an external command with output streamed to a log file in
// the workspace, so a stuck run can be inspected with tail -f
func (w *Workflow) runStage(ctx context.Context, issue *domain.Issue, repoPath, workspacePath string, command []string) error {
	logPath := filepath.Join(workspacePath, "runner.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logFile.Close()

	return w.run(ctx, repoPath, logFile, command[0], command[1:]...)
}

// createPullRequest pushes the branch and opens a PR via the gh CLI
func (w *Workflow) createPullRequest(ctx context.Context, issue *domain.Issue, repoPath, branch string) (string, error) {
	if _, err := w.output(ctx, repoPath, "git", "push", "-u", "origin", branch); err != nil {
		return "", fmt.Errorf("git push: %w", err)
	}

	title := fmt.Sprintf("feat: resolve issue %s - %s", issue.ID, issue.Title)
	out, err := w.output(ctx, repoPath, "gh", "pr", "create",
		"--title", title,
		"--body", prBody(issue),
		"--head", branch,
	)
	if err != nil {
		return "", fmt.Errorf("gh pr create: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (w *Workflow) cleanup(issue *domain.Issue, workspacePath string, report strategy.ProgressFunc) {
	if w.config.KeepWorkspaces {
		return
	}
	report(issue.ID, stageCleanup, 1.0, "Cleaning up workspace")
	if err := w.workspaces.Cleanup(workspacePath); err != nil {
		log.Printf("cleanup failed for issue %s: %v", issue.ID, err)
	}
}

// FormatPrompt renders the implementation prompt handed to the runner
func FormatPrompt(issue *domain.Issue) string {
	deps := "None"
	if len(issue.Dependencies) > 0 {
		deps = strings.Join(issue.Dependencies, ", ")
	}
	return fmt.Sprintf(`# Issue %s: %s

## Description
%s

## Instructions
Please implement the solution for this issue following the project guidelines:
1. Analyze the requirements carefully
2. Make minimal, focused changes
3. Ensure all tests pass
4. Follow existing code patterns
5. Create comprehensive commit messages

## Dependencies (completed before this issue)
%s

## Priority Level
%d
`, issue.ID, issue.Title, issue.Body, deps, issue.Priority)
}

func prBody(issue *domain.Issue) string {
	return fmt.Sprintf("Automated implementation of issue %s.\n\n%s\n\nBranch: %s",
		issue.ID, issue.Title, issue.BranchName)
}

// streamCommand runs a command with stdout and stderr streamed line by
// line to logW
func streamCommand(ctx context.Context, dir string, logW io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(2)
	readLines := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		for scanner.Scan() {
			mu.Lock()
			fmt.Fprintln(logW, scanner.Text())
			mu.Unlock()
		}
	}
	go readLines(stdout)
	go readLines(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// combinedOutput runs a command and returns its combined output
func combinedOutput(ctx context.Context, dir string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %s: %w", name, out, err)
	}
	return string(out), nil
}
