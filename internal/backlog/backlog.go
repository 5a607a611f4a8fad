// Package backlog parses issue files from a backlog directory. Issues are
// markdown files with YAML frontmatter carrying priority, dependencies and
// retry settings.
package backlog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

// Issue file pattern: issue-<id>-name.md or <id>-name.md
var (
	issueFileStandard  = regexp.MustCompile(`^issue-([A-Za-z0-9]+)-.*\.md$`)
	issueFileNumPrefix = regexp.MustCompile(`^(\d+)-.*\.md$`)

	titleRegex = regexp.MustCompile(`^#\s+(.+)$`)
)

// Frontmatter is the YAML header of an issue file
type Frontmatter struct {
	Priority   int      `yaml:"priority"`
	DependsOn  []string `yaml:"depends_on"`
	MaxRetries int      `yaml:"max_retries"`
}

// ParseFrontmatter extracts the YAML frontmatter from markdown content.
// Content without a frontmatter block parses to zero values.
func ParseFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}

	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return &Frontmatter{}, content, nil
	}

	fmData := rest[:endIdx]
	remaining := rest[endIdx+4:]

	var fm Frontmatter
	if err := yaml.Unmarshal(fmData, &fm); err != nil {
		return nil, nil, err
	}

	return &fm, bytes.TrimLeft(remaining, "\n"), nil
}

// ParseFile parses a single issue file
func ParseFile(path string) (*domain.Issue, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	id, ok := issueIDFromFilename(filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("not an issue file: %s", filepath.Base(path))
	}

	fm, body, err := ParseFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("parsing frontmatter of %s: %w", path, err)
	}

	title := extractTitle(body)
	if title == "" {
		title = id
	}

	issue := domain.NewIssue(id, title, string(bytes.TrimSpace(body)))
	issue.Priority = fm.Priority
	issue.Dependencies = fm.DependsOn
	if fm.MaxRetries > 0 {
		issue.MaxRetries = fm.MaxRetries
	}
	return issue, nil
}

// ParseDir parses all issue files in a directory, ordered by ID so repeated
// scans of the same backlog produce the same sequence
func ParseDir(dir string) ([]*domain.Issue, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var issues []*domain.Issue
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		if _, ok := issueIDFromFilename(entry.Name()); !ok {
			continue
		}
		issue, err := ParseFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}

	sort.Slice(issues, func(i, j int) bool {
		return issues[i].ID < issues[j].ID
	})
	return issues, nil
}

func issueIDFromFilename(filename string) (string, bool) {
	if matches := issueFileStandard.FindStringSubmatch(filename); matches != nil {
		return matches[1], true
	}
	if matches := issueFileNumPrefix.FindStringSubmatch(filename); matches != nil {
		return matches[1], true
	}
	return "", false
}

func extractTitle(content []byte) string {
	for _, line := range strings.Split(string(content), "\n") {
		if matches := titleRegex.FindStringSubmatch(strings.TrimSpace(line)); matches != nil {
			return strings.TrimSpace(matches[1])
		}
	}
	return ""
}
