package sqlite

import (
	"github.com/ternarybob/arbor"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
	"github.com/linksmith/chrono-scraper-sub002/internal/interfaces"
)

// Manager is the transactional-store side of the Persistence Facade: a thin
// wrapper over *SQLiteDB whose methods satisfy every storage interface in
// internal/interfaces by embedding one small struct per entity. Callers that
// only need one surface (e.g. filter.AlreadyProcessedChecker) can narrow a
// *Manager down to the interface they need at the call site.
type Manager struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewManager opens the SQLite database, applies the baseline schema and
// migrations, and returns a Manager satisfying every storage interface this
// codebase defines.
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (*Manager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("path", config.Path).Msg("Storage manager initialized")

	return &Manager{db: db, logger: logger}, nil
}

// DB exposes the underlying *SQLiteDB (whose DB method returns the *sql.DB)
// for callers that need to open their own multi-statement transactions
// spanning more than one of the entity surfaces below.
func (m *Manager) DB() *SQLiteDB {
	return m.db
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

var (
	_ interfaces.ProjectStorage       = (*Manager)(nil)
	_ interfaces.TargetStorage        = (*Manager)(nil)
	_ interfaces.ScrapePageStorage    = (*Manager)(nil)
	_ interfaces.PageStorage          = (*Manager)(nil)
	_ interfaces.SessionStorage       = (*Manager)(nil)
	_ interfaces.JobStorage           = (*Manager)(nil)
	_ interfaces.DeadLetterStorage    = (*Manager)(nil)
	_ interfaces.DualWriteStorage     = (*Manager)(nil)
	_ interfaces.ConsistencyStorage   = (*Manager)(nil)
	_ interfaces.CDCCheckpointStorage = (*Manager)(nil)
)
