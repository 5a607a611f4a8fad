// Package executor runs the per-issue implementation workflow: isolated
// workspace, repository clone, feature branch, external runner, pull request.
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

// WorkspaceManager creates and tears down isolated per-issue workspaces.
// Each workspace gets a unique directory so concurrent runs of the same
// issue never collide.
type WorkspaceManager struct {
	repoURL string
	baseDir string
}

// NewWorkspaceManager creates a WorkspaceManager rooted at baseDir
func NewWorkspaceManager(repoURL, baseDir string) *WorkspaceManager {
	return &WorkspaceManager{
		repoURL: repoURL,
		baseDir: baseDir,
	}
}

// Create makes a fresh workspace directory for an issue
func (m *WorkspaceManager) Create(issue *domain.Issue) (string, error) {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return "", fmt.Errorf("creating workspace base dir: %w", err)
	}

	suffix := uuid.NewString()[:8]
	path := filepath.Join(m.baseDir, fmt.Sprintf("issue-%s-%s", issue.ID, suffix))
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	return path, nil
}

// Clone clones the configured repository into <workspace>/repo. With no
// repository URL configured it creates an empty repo dir instead, so the
// rest of the workflow still has a working directory.
func (m *WorkspaceManager) Clone(ctx context.Context, workspacePath string) (string, error) {
	repoPath := filepath.Join(workspacePath, "repo")

	if m.repoURL == "" {
		if err := os.MkdirAll(repoPath, 0755); err != nil {
			return "", fmt.Errorf("creating repo dir: %w", err)
		}
		return repoPath, nil
	}

	cmd := exec.CommandContext(ctx, "git", "clone", m.repoURL, repoPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git clone: %s: %w", out, err)
	}
	return repoPath, nil
}

// CreateBranch creates and checks out a branch in the cloned repo
func (m *WorkspaceManager) CreateBranch(ctx context.Context, repoPath, branch string) error {
	cmd := exec.CommandContext(ctx, "git", "checkout", "-b", branch)
	cmd.Dir = repoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout -b: %s: %w", out, err)
	}
	return nil
}

// Cleanup removes a workspace. Paths outside the base directory are
// refused rather than deleted.
func (m *WorkspaceManager) Cleanup(workspacePath string) error {
	base, err := filepath.Abs(m.baseDir)
	if err != nil {
		return err
	}
	target, err := filepath.Abs(workspacePath)
	if err != nil {
		return err
	}
	if target == base || !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove %s: outside workspace base %s", workspacePath, m.baseDir)
	}
	return os.RemoveAll(target)
}

// BranchName returns the feature branch name for an issue
func BranchName(issue *domain.Issue, now time.Time) string {
	return fmt.Sprintf("feature/issue-%s-%d", issue.ID, now.Unix())
}

// PriorityBranchName returns a branch name carrying the issue's tier
func PriorityBranchName(issue *domain.Issue, now time.Time) string {
	return fmt.Sprintf("priority/%s/issue-%s-%d", issue.Tier(), issue.ID, now.Unix())
}
