// Package resultstore persists issues and their terminal results in SQLite,
// so outcomes survive between orchestrator invocations. Live scheduler state
// is never written here.
package resultstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

// Store provides SQLite-backed issue and result persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertIssue inserts or updates an issue
func (s *Store) UpsertIssue(issue *domain.Issue) error {
	depsJSON, err := json.Marshal(issue.Dependencies)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO issues (id, title, body, priority, dependencies, status, retry_count, max_retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			priority = excluded.priority,
			dependencies = excluded.dependencies,
			status = excluded.status,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries,
			updated_at = excluded.updated_at
	`,
		issue.ID,
		issue.Title,
		issue.Body,
		issue.Priority,
		string(depsJSON),
		string(issue.Status),
		issue.RetryCount,
		issue.MaxRetries,
		issue.CreatedAt,
		time.Now(),
	)
	return err
}

// GetIssue retrieves an issue by ID
func (s *Store) GetIssue(id string) (*domain.Issue, error) {
	row := s.db.QueryRow(`
		SELECT id, title, body, priority, dependencies, status, retry_count, max_retries, created_at
		FROM issues WHERE id = ?
	`, id)

	var issue domain.Issue
	var body sql.NullString
	var status, depsJSON string

	err := row.Scan(&issue.ID, &issue.Title, &body, &issue.Priority, &depsJSON,
		&status, &issue.RetryCount, &issue.MaxRetries, &issue.CreatedAt)
	if err != nil {
		return nil, err
	}

	issue.Status = domain.Status(status)
	if body.Valid {
		issue.Body = body.String
	}
	if depsJSON != "" && depsJSON != "null" {
		if err := json.Unmarshal([]byte(depsJSON), &issue.Dependencies); err != nil {
			return nil, err
		}
	}
	return &issue, nil
}

// ListIssues returns all issues with a given status, or all issues when
// status is empty, ordered by priority then age
func (s *Store) ListIssues(status domain.Status) ([]*domain.Issue, error) {
	query := `SELECT id, title, body, priority, dependencies, status, retry_count, max_retries, created_at FROM issues`
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY priority DESC, created_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []*domain.Issue
	for rows.Next() {
		var issue domain.Issue
		var body sql.NullString
		var st, depsJSON string
		if err := rows.Scan(&issue.ID, &issue.Title, &body, &issue.Priority, &depsJSON,
			&st, &issue.RetryCount, &issue.MaxRetries, &issue.CreatedAt); err != nil {
			return nil, err
		}
		issue.Status = domain.Status(st)
		if body.Valid {
			issue.Body = body.String
		}
		if depsJSON != "" && depsJSON != "null" {
			if err := json.Unmarshal([]byte(depsJSON), &issue.Dependencies); err != nil {
				return nil, err
			}
		}
		issues = append(issues, &issue)
	}
	return issues, rows.Err()
}

// SaveResult records a terminal result for an issue
func (s *Store) SaveResult(result *domain.Result) error {
	detailsJSON, err := json.Marshal(result.ErrorDetails)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO results (issue_id, status, success, message, duration_ms, pr_url, error_details, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(issue_id) DO UPDATE SET
			status = excluded.status,
			success = excluded.success,
			message = excluded.message,
			duration_ms = excluded.duration_ms,
			pr_url = excluded.pr_url,
			error_details = excluded.error_details,
			recorded_at = excluded.recorded_at
	`,
		result.IssueID,
		string(result.Status),
		result.Success,
		result.Message,
		result.Duration.Milliseconds(),
		result.PRURL,
		string(detailsJSON),
		time.Now(),
	)
	if err != nil {
		return err
	}

	// Keep the issue row in step with its terminal result
	_, err = s.db.Exec(`UPDATE issues SET status = ?, updated_at = ? WHERE id = ?`,
		string(result.Status), time.Now(), result.IssueID)
	return err
}

// GetResult retrieves a result by issue ID
func (s *Store) GetResult(issueID string) (*domain.Result, error) {
	row := s.db.QueryRow(`
		SELECT issue_id, status, success, message, duration_ms, pr_url, error_details
		FROM results WHERE issue_id = ?
	`, issueID)

	var result domain.Result
	var status, detailsJSON string
	var message, prURL sql.NullString
	var durationMS int64

	err := row.Scan(&result.IssueID, &status, &result.Success, &message, &durationMS, &prURL, &detailsJSON)
	if err != nil {
		return nil, err
	}

	result.Status = domain.Status(status)
	result.Duration = time.Duration(durationMS) * time.Millisecond
	if message.Valid {
		result.Message = message.String
	}
	if prURL.Valid {
		result.PRURL = prURL.String
	}
	if detailsJSON != "" && detailsJSON != "null" {
		if err := json.Unmarshal([]byte(detailsJSON), &result.ErrorDetails); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

// ListResults returns the most recent results, newest first
func (s *Store) ListResults(limit int) ([]*domain.Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT issue_id, status, success, message, duration_ms, pr_url, error_details
		FROM results ORDER BY recorded_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.Result
	for rows.Next() {
		var result domain.Result
		var status, detailsJSON string
		var message, prURL sql.NullString
		var durationMS int64
		if err := rows.Scan(&result.IssueID, &status, &result.Success, &message, &durationMS, &prURL, &detailsJSON); err != nil {
			return nil, err
		}
		result.Status = domain.Status(status)
		result.Duration = time.Duration(durationMS) * time.Millisecond
		if message.Valid {
			result.Message = message.String
		}
		if prURL.Valid {
			result.PRURL = prURL.String
		}
		if detailsJSON != "" && detailsJSON != "null" {
			if err := json.Unmarshal([]byte(detailsJSON), &result.ErrorDetails); err != nil {
				return nil, err
			}
		}
		results = append(results, &result)
	}
	return results, rows.Err()
}

// CompletedIDs returns the set of issue IDs with a successful result
func (s *Store) CompletedIDs() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT issue_id FROM results WHERE success = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	completed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		completed[id] = true
	}
	return completed, rows.Err()
}

// RecordBatch journals a finished batch run
func (s *Store) RecordBatch(name, strategy string, started, finished time.Time, completed, failed int) error {
	_, err := s.db.Exec(`
		INSERT INTO batches (name, strategy, started_at, finished_at, issues_completed, issues_failed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, name, strategy, started, finished, completed, failed)
	return err
}
