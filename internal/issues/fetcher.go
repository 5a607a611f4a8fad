// Package issues fetches candidate issues from GitHub via the gh CLI and
// maps them onto the scheduler's issue model.
package issues

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/config"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

// Dependency references in issue bodies: "depends-on: #12" or "Depends-On: #12, #15"
var dependsOnRegex = regexp.MustCompile(`(?im)^depends-on:\s*(.+)$`)
var issueRefRegex = regexp.MustCompile(`#(\d+)`)

// Fetcher handles fetching and updating GitHub issues via gh CLI
type Fetcher struct {
	config *config.GitHubConfig
}

// NewFetcher creates a new Fetcher with the given config
func NewFetcher(cfg *config.GitHubConfig) *Fetcher {
	return &Fetcher{config: cfg}
}

type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

func (gh *ghIssue) labelNames() []string {
	labels := make([]string, len(gh.Labels))
	for i, l := range gh.Labels {
		labels[i] = l.Name
	}
	return labels
}

// toIssue maps a gh issue onto the scheduler's issue model
func toIssue(gh *ghIssue) *domain.Issue {
	issue := domain.NewIssue(strconv.Itoa(gh.Number), gh.Title, gh.Body)
	issue.Priority = priorityFromLabels(gh.labelNames())
	issue.Dependencies = parseDependencies(gh.Body)
	return issue
}

// priorityFromLabels maps a priority/<tier> label to a numeric priority.
// Issues without a priority label default to medium.
func priorityFromLabels(labels []string) int {
	for _, label := range labels {
		tier, ok := strings.CutPrefix(label, "priority/")
		if !ok {
			continue
		}
		switch domain.Tier(tier) {
		case domain.TierCritical:
			return domain.PriorityCritical
		case domain.TierHigh:
			return domain.PriorityHigh
		case domain.TierMedium:
			return domain.PriorityMedium
		case domain.TierLow:
			return domain.PriorityLow
		case domain.TierDeferred:
			return 0
		}
	}
	return domain.PriorityMedium
}

// parseDependencies extracts issue numbers from depends-on lines in a body
func parseDependencies(body string) []string {
	var deps []string
	for _, line := range dependsOnRegex.FindAllStringSubmatch(body, -1) {
		for _, ref := range issueRefRegex.FindAllStringSubmatch(line[1], -1) {
			deps = append(deps, ref[1])
		}
	}
	return deps
}

// FetchCandidates returns open issues carrying the candidate label but not
// the processed label
func (f *Fetcher) FetchCandidates() ([]*domain.Issue, error) {
	cmd := exec.Command("gh", "issue", "list",
		"--repo", f.config.Repo,
		"--label", f.config.CandidateLabel,
		"--json", "number,title,body,labels",
		"--limit", "100")

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("gh issue list: %w", err)
	}

	var ghIssues []ghIssue
	if err := json.Unmarshal(output, &ghIssues); err != nil {
		return nil, fmt.Errorf("parse gh output: %w", err)
	}

	var issues []*domain.Issue
	for i := range ghIssues {
		if hasLabel(ghIssues[i].labelNames(), f.config.ProcessedLabel) {
			continue
		}
		issues = append(issues, toIssue(&ghIssues[i]))
	}

	return issues, nil
}

func hasLabel(labels []string, target string) bool {
	for _, l := range labels {
		if l == target {
			return true
		}
	}
	return false
}

// MarkProcessed swaps the candidate label for the processed label
func (f *Fetcher) MarkProcessed(issueID string) error {
	return f.UpdateLabels(issueID, []string{f.config.ProcessedLabel}, []string{f.config.CandidateLabel})
}

// UpdateLabels adds and removes labels on an issue
func (f *Fetcher) UpdateLabels(issueID string, add, remove []string) error {
	args := []string{"issue", "edit", issueID, "--repo", f.config.Repo}
	for _, l := range add {
		args = append(args, "--add-label", l)
	}
	for _, l := range remove {
		args = append(args, "--remove-label", l)
	}
	return exec.Command("gh", args...).Run()
}

// PostComment posts a comment on an issue
func (f *Fetcher) PostComment(issueID, body string) error {
	cmd := exec.Command("gh", "issue", "comment", issueID,
		"--repo", f.config.Repo, "--body", body)
	return cmd.Run()
}

// CloseIssue closes an issue as completed
func (f *Fetcher) CloseIssue(issueID string) error {
	cmd := exec.Command("gh", "issue", "close", issueID,
		"--repo", f.config.Repo, "--reason", "completed")
	return cmd.Run()
}
