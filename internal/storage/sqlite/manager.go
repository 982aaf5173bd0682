package sqlite

import (
	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/common"
	"github.com/hydrafrog/hydrafrog/internal/interfaces"
)

// Manager implements the StorageManager interface
type Manager struct {
	db       *SQLiteDB
	projects interfaces.ProjectStorage
	runs     interfaces.RunStorage
	crawls   interfaces.CrawlStorage
	logger   arbor.ILogger
}

// NewManager creates a new SQLite storage manager
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:       db,
		projects: NewProjectStorage(db, logger),
		runs:     NewRunStorage(db, logger),
		crawls:   NewCrawlStorage(db, logger),
		logger:   logger,
	}, nil
}

// Projects returns the project storage interface
func (m *Manager) Projects() interfaces.ProjectStorage {
	return m.projects
}

// Runs returns the crawl run storage interface
func (m *Manager) Runs() interfaces.RunStorage {
	return m.runs
}

// Crawls returns the crawl child-row storage interface
func (m *Manager) Crawls() interfaces.CrawlStorage {
	return m.crawls
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
