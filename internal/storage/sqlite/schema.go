package sqlite

import (
	"fmt"
)

// schemaSQL is the baseline schema for a fresh database. Subsequent evolution
// happens through the versioned migrations in migrations.go.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		archive_config_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS targets (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		include_patterns_json TEXT,
		exclude_patterns_json TEXT,
		date_range_start INTEGER,
		date_range_end INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
		UNIQUE(project_id, domain)
	);
	CREATE INDEX IF NOT EXISTS idx_targets_project ON targets(project_id);

	CREATE TABLE IF NOT EXISTS scrape_pages (
		id TEXT PRIMARY KEY,
		target_id TEXT NOT NULL,
		job_id TEXT,
		url TEXT NOT NULL,
		archive_source TEXT NOT NULL,
		snapshot_timestamp INTEGER,
		status TEXT NOT NULL,
		filter_reason TEXT,
		filter_category TEXT,
		matched_pattern TEXT,
		filter_confidence REAL,
		priority_score INTEGER DEFAULT 5,
		can_be_manually_processed INTEGER DEFAULT 0,
		related_page_ref TEXT,
		original_filter_decision TEXT,
		filter_details_json TEXT,
		manual_override INTEGER DEFAULT 0,
		attempt_count INTEGER DEFAULT 0,
		last_error TEXT,
		mime_type TEXT,
		content_length INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (target_id) REFERENCES targets(id) ON DELETE CASCADE,
		UNIQUE(target_id, url, snapshot_timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_scrape_pages_target ON scrape_pages(target_id);
	CREATE INDEX IF NOT EXISTS idx_scrape_pages_status ON scrape_pages(status);
	CREATE INDEX IF NOT EXISTS idx_scrape_pages_job ON scrape_pages(job_id);

	CREATE TABLE IF NOT EXISTS scrape_page_overrides (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scrape_page_id TEXT NOT NULL,
		previous_status TEXT NOT NULL,
		new_status TEXT NOT NULL,
		reason TEXT,
		actor TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (scrape_page_id) REFERENCES scrape_pages(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_overrides_scrape_page ON scrape_page_overrides(scrape_page_id);

	CREATE TABLE IF NOT EXISTS pages (
		id TEXT PRIMARY KEY,
		scrape_page_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		content_markdown TEXT,
		content_text TEXT,
		extraction_tier INTEGER,
		quality_score REAL,
		quality_breakdown_json TEXT,
		metadata_json TEXT,
		captured_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (scrape_page_id) REFERENCES scrape_pages(id) ON DELETE CASCADE,
		FOREIGN KEY (target_id) REFERENCES targets(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_pages_target ON pages(target_id);
	CREATE INDEX IF NOT EXISTS idx_pages_scrape_page ON pages(scrape_page_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		pages_discovered INTEGER DEFAULT 0,
		pages_fetched INTEGER DEFAULT 0,
		pages_extracted INTEGER DEFAULT 0,
		pages_failed INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		parent_id TEXT,
		queue_name TEXT NOT NULL,
		job_type TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER DEFAULT 5,
		attempt_count INTEGER DEFAULT 0,
		max_attempts INTEGER DEFAULT 5,
		last_error TEXT,
		result_json TEXT,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		last_heartbeat INTEGER,
		available_at INTEGER NOT NULL,
		FOREIGN KEY (parent_id) REFERENCES jobs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_queue_status ON jobs(queue_name, status, available_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_parent ON jobs(parent_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_heartbeat ON jobs(status, last_heartbeat);

	CREATE TABLE IF NOT EXISTS dual_write_intents (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		payload_hash TEXT NOT NULL,
		consistency_level TEXT NOT NULL,
		status TEXT NOT NULL,
		attempt_count INTEGER DEFAULT 0,
		last_error TEXT,
		submitted_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_intents_status ON dual_write_intents(status, submitted_at);
	CREATE INDEX IF NOT EXISTS idx_intents_entity ON dual_write_intents(entity_type, entity_id);

	CREATE TABLE IF NOT EXISTS dead_letters (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		payload_json TEXT,
		attempt_count INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		resolved_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_dead_letters_source ON dead_letters(source, created_at DESC);

	CREATE TABLE IF NOT EXISTS consistency_checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_at INTEGER NOT NULL,
		entity_type TEXT NOT NULL,
		primary_count INTEGER NOT NULL,
		secondary_count INTEGER NOT NULL,
		mismatches INTEGER NOT NULL,
		consistency_score REAL NOT NULL,
		details_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_consistency_checks_run ON consistency_checks(run_at DESC);

	CREATE TABLE IF NOT EXISTS cdc_checkpoints (
		checkpoint_key TEXT PRIMARY KEY,
		last_processed_at INTEGER NOT NULL,
		last_processed_id TEXT,
		updated_at INTEGER NOT NULL
	);
`

// InitSchema creates the baseline schema (idempotent) and runs versioned migrations.
func (s *SQLiteDB) InitSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create baseline schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
