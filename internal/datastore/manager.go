// Package datastore persists image generation records with GORM on SQLite or MySQL.
package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

// slowQueryThreshold is the query duration logged at warn level
const slowQueryThreshold = 500 * time.Millisecond

// Manager defines the interface for database lifecycle operations.
type Manager interface {
	// Initialize creates or updates the schema.
	Initialize() error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Path returns the database location (file path for SQLite, host:port/db for MySQL).
	Path() string
	// Close closes the database connection.
	Close() error
	// IsMySQL returns true if this is a MySQL manager.
	IsMySQL() bool
}

// NewManager opens the database selected by settings: MySQL when enabled,
// SQLite otherwise.
func NewManager(settings *conf.Settings, log logger.Logger) (Manager, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}

	if settings.MySQL.Enabled {
		return NewMySQLManager(&MySQLConfig{
			Host:     settings.MySQL.Host,
			Port:     settings.MySQL.Port,
			Username: settings.MySQL.Username,
			Password: settings.MySQL.Password,
			Database: settings.MySQL.Database,
			Debug:    settings.Debug,
		}, log)
	}

	path := settings.SQLite.Path
	if path == "" {
		path = conf.DefaultSQLitePath
	}
	return NewSQLiteManager(path, log)
}

// gormConfig returns the shared GORM config with the module logger attached
func gormConfig(log logger.Logger) *gorm.Config {
	var gl gorm_logger.Interface = gorm_logger.Discard
	if log != nil {
		gl = logger.NewGormLoggerAdapter(log, slowQueryThreshold)
	}
	return &gorm.Config{Logger: gl}
}

const promptIndexName = "idx_image_generations_prompt"

// migrate runs AutoMigrate for every entity and creates the prompt index.
// The prompt is a TEXT column, which MySQL can only index by prefix, so the
// index is created by hand instead of through a struct tag.
func migrate(db *gorm.DB, isMySQL bool) error {
	if err := db.AutoMigrate(&ImageGeneration{}); err != nil {
		return err
	}

	if db.Migrator().HasIndex(&ImageGeneration{}, promptIndexName) {
		return nil
	}

	column := "prompt"
	if isMySQL {
		column = "prompt(191)"
	}
	return db.Exec(fmt.Sprintf("CREATE INDEX %s ON image_generations (%s)", promptIndexName, column)).Error
}

// SQLiteManager handles the SQLite database file.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
	log    logger.Logger
}

// NewSQLiteManager opens (and creates) the SQLite database at path. The parent
// directory is created when missing.
func NewSQLiteManager(path string, log logger.Logger) (*SQLiteManager, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("operation", "create-database-directory").
				Context("path", dir).
				Build()
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, dbError(err, "open-sqlite", "path", path)
	}

	if log != nil {
		log.Info("opened SQLite database", logger.String("path", path))
	}

	return &SQLiteManager{db: db, dbPath: path, log: log}, nil
}

// Initialize creates or updates the schema.
func (m *SQLiteManager) Initialize() error {
	if err := migrate(m.db, false); err != nil {
		return dbError(err, "auto-migrate", "path", m.dbPath)
	}
	return nil
}

// DB returns the underlying GORM database.
func (m *SQLiteManager) DB() *gorm.DB {
	return m.db
}

// Path returns the database file path.
func (m *SQLiteManager) Path() string {
	return m.dbPath
}

// Close closes the database connection.
func (m *SQLiteManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

// IsMySQL returns false for SQLite manager.
func (m *SQLiteManager) IsMySQL() bool {
	return false
}
