package store

// Schema v1 - ledger and run history
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per artist that has been attempted. No row means pending.
CREATE TABLE IF NOT EXISTS artist_progress (
  artist_id TEXT PRIMARY KEY,
  status TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
  reason TEXT,
  attempts INTEGER NOT NULL DEFAULT 0,
  run_id TEXT,
  updated_at INTEGER NOT NULL
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_artist_progress_status ON artist_progress(status);

-- One row per pipeline stage invocation
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  stage TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'running',
  config_json TEXT,
  started_at INTEGER NOT NULL,
  finished_at INTEGER,
  considered INTEGER NOT NULL DEFAULT 0,
  completed INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  filtered INTEGER NOT NULL DEFAULT 0,
  albums INTEGER NOT NULL DEFAULT 0,
  error TEXT
);
`

// Schema v2 - indexes for status and report queries
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_artist_progress_status_updated ON artist_progress(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_artist_progress_reason ON artist_progress(reason) WHERE status = 'failed';
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`
