package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate runs database migrations
func (s *SQLiteDB) migrate() error {
	ctx := context.Background()

	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "scrape_pages_fts", up: migrateV1ScrapePagesFTS},
		{version: 2, name: "pages_fts", up: migrateV2PagesFTS},
		{version: 3, name: "job_heartbeat_index", up: migrateV3JobHeartbeatIndex},
		{version: 4, name: "scrape_pages_content_digest", up: migrateV4ScrapePagesContentDigest},
		{version: 5, name: "pages_content_digest_and_seen_timestamps", up: migrateV5PagesContentDigest},
		{version: 6, name: "targets_match_type", up: migrateV6TargetsMatchType},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

func (s *SQLiteDB) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLiteDB) runMigration(ctx context.Context, m migration) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		return nil // Already applied
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// migrateV1ScrapePagesFTS creates an FTS5 index over scrape page URLs for fast
// list-page-pattern and manual-review lookups, when FTS5 is compiled in.
func migrateV1ScrapePagesFTS(ctx context.Context, tx *sql.Tx) error {
	var fts5Enabled bool
	err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM pragma_compile_options WHERE compile_options LIKE '%ENABLE_FTS5%')").
		Scan(&fts5Enabled)
	if err != nil || !fts5Enabled {
		return nil
	}

	queries := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS scrape_pages_fts USING fts5(
			id UNINDEXED,
			url,
			content=scrape_pages,
			content_rowid=rowid
		)`,
		`CREATE TRIGGER IF NOT EXISTS scrape_pages_ai AFTER INSERT ON scrape_pages BEGIN
			INSERT INTO scrape_pages_fts(rowid, id, url) VALUES (new.rowid, new.id, new.url);
		END`,
		`CREATE TRIGGER IF NOT EXISTS scrape_pages_ad AFTER DELETE ON scrape_pages BEGIN
			DELETE FROM scrape_pages_fts WHERE rowid = old.rowid;
		END`,
		`CREATE TRIGGER IF NOT EXISTS scrape_pages_au AFTER UPDATE ON scrape_pages BEGIN
			DELETE FROM scrape_pages_fts WHERE rowid = old.rowid;
			INSERT INTO scrape_pages_fts(rowid, id, url) VALUES (new.rowid, new.id, new.url);
		END`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return nil // FTS5 virtual table creation is best-effort
		}
	}

	return nil
}

// migrateV2PagesFTS creates an FTS5 index over extracted page content for the
// full-text search sink.
func migrateV2PagesFTS(ctx context.Context, tx *sql.Tx) error {
	var fts5Enabled bool
	err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM pragma_compile_options WHERE compile_options LIKE '%ENABLE_FTS5%')").
		Scan(&fts5Enabled)
	if err != nil || !fts5Enabled {
		return nil
	}

	queries := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts USING fts5(
			id UNINDEXED,
			title,
			content_text,
			content=pages,
			content_rowid=rowid
		)`,
		`CREATE TRIGGER IF NOT EXISTS pages_ai AFTER INSERT ON pages BEGIN
			INSERT INTO pages_fts(rowid, id, title, content_text)
			VALUES (new.rowid, new.id, new.title, new.content_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS pages_ad AFTER DELETE ON pages BEGIN
			DELETE FROM pages_fts WHERE rowid = old.rowid;
		END`,
		`CREATE TRIGGER IF NOT EXISTS pages_au AFTER UPDATE ON pages BEGIN
			DELETE FROM pages_fts WHERE rowid = old.rowid;
			INSERT INTO pages_fts(rowid, id, title, content_text)
			VALUES (new.rowid, new.id, new.title, new.content_text);
		END`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return nil
		}
	}

	return nil
}

// migrateV3JobHeartbeatIndex adds the partial index used by stale-job
// detection to requeue jobs abandoned by a crashed worker.
func migrateV3JobHeartbeatIndex(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_jobs_running_heartbeat ON jobs(last_heartbeat) WHERE status = 'running'`)
	if err != nil {
		return fmt.Errorf("failed to create running-heartbeat index: %w", err)
	}
	return nil
}

// migrateV4ScrapePagesContentDigest adds the content digest column the
// Intelligent Filter's duplicate-detection rule compares across a domain,
// plus a scoped index for the lookup.
func migrateV4ScrapePagesContentDigest(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE scrape_pages ADD COLUMN content_digest TEXT`); err != nil {
		return fmt.Errorf("failed to add content_digest column: %w", err)
	}
	_, err := tx.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_scrape_pages_digest ON scrape_pages(target_id, content_digest)`)
	if err != nil {
		return fmt.Errorf("failed to create content_digest index: %w", err)
	}
	return nil
}

// migrateV5PagesContentDigest adds the Page-side identity columns used by
// UpsertPage's (target_id, content_digest) dedup key: a matching digest for a
// target updates last_seen_timestamp in place instead of inserting a
// duplicate row. SQLite's ALTER TABLE cannot add a UNIQUE constraint, so
// uniqueness is enforced by the upsert's own select-then-insert/update,
// unlike scrape_pages' (target_id, url, snapshot_timestamp) key, which is a
// table UNIQUE constraint; this index only makes that select and
// FindByDigest's lookup fast.
func migrateV5PagesContentDigest(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		`ALTER TABLE pages ADD COLUMN content_digest TEXT`,
		`ALTER TABLE pages ADD COLUMN first_seen_timestamp INTEGER`,
		`ALTER TABLE pages ADD COLUMN last_seen_timestamp INTEGER`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add pages identity column: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE pages SET first_seen_timestamp = created_at, last_seen_timestamp = updated_at WHERE first_seen_timestamp IS NULL`); err != nil {
		return fmt.Errorf("failed to backfill pages seen timestamps: %w", err)
	}
	_, err := tx.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_pages_digest ON pages(target_id, content_digest)`)
	if err != nil {
		return fmt.Errorf("failed to create pages content_digest index: %w", err)
	}
	return nil
}

// migrateV6TargetsMatchType adds the §3 Target match scope columns: how a
// discovered snapshot's URL is matched against the target (host_exact,
// subdomain, or prefix, the last requiring url_path), and whether
// non-HTML attachments under that scope are included.
func migrateV6TargetsMatchType(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		`ALTER TABLE targets ADD COLUMN match_type TEXT NOT NULL DEFAULT 'host_exact'`,
		`ALTER TABLE targets ADD COLUMN url_path TEXT`,
		`ALTER TABLE targets ADD COLUMN include_attachments INTEGER DEFAULT 0`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add targets match_type column: %w", err)
		}
	}
	return nil
}
