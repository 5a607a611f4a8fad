package resultstore

const schema = `
CREATE TABLE IF NOT EXISTS issues (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    body TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    dependencies TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    retry_count INTEGER NOT NULL DEFAULT 0,
    max_retries INTEGER NOT NULL DEFAULT 3,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_issues_priority ON issues(priority);

CREATE TABLE IF NOT EXISTS results (
    issue_id TEXT PRIMARY KEY REFERENCES issues(id),
    status TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    message TEXT,
    duration_ms INTEGER,
    pr_url TEXT,
    error_details TEXT,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);

CREATE TABLE IF NOT EXISTS batches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    strategy TEXT,
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    issues_completed INTEGER DEFAULT 0,
    issues_failed INTEGER DEFAULT 0
);
`
