package storage

const schemaVersion = "1"

const schemaSQL = `
-- One row per rip; status moves from running to a terminal state
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY NOT NULL,
    seed_url TEXT NOT NULL,
    root_path TEXT NOT NULL,
    mode TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'completed', 'canceled', 'failed')),
    started_at TEXT NOT NULL,
    finished_at TEXT,

    -- Totals, filled in when the run ends
    resources INTEGER NOT NULL DEFAULT 0,
    downloaded INTEGER NOT NULL DEFAULT 0,
    failures INTEGER NOT NULL DEFAULT 0,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- One row per resource outcome within a run
CREATE TABLE IF NOT EXISTS resources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    final_url TEXT NOT NULL,
    local_path TEXT NOT NULL,
    content_type TEXT,
    outcome TEXT NOT NULL CHECK (outcome IN ('downloaded', 'up_to_date', 'unavailable', 'failed')),
    depth INTEGER NOT NULL DEFAULT 0,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    ttfb_ms INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resources_run ON resources(run_id);
CREATE INDEX IF NOT EXISTS idx_resources_outcome ON resources(run_id, outcome);

-- Outcome totals per run
CREATE VIEW IF NOT EXISTS run_outcomes AS
SELECT
    run_id,
    outcome,
    COUNT(*) as count,
    SUM(size_bytes) as bytes
FROM resources
GROUP BY run_id, outcome;

-- Journal metadata as key-value pairs
CREATE TABLE IF NOT EXISTS journal_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`
