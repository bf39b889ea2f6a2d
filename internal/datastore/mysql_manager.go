package datastore

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/iconforge/internal/logger"
)

// MySQL connection pool settings
const (
	mysqlMaxIdleConns    = 10
	mysqlMaxOpenConns    = 100
	mysqlConnMaxLifetime = time.Hour
)

// MySQLConfig holds MySQL connection settings.
type MySQLConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Debug    bool
}

// DSN returns the go-sql-driver DSN for the config
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

// MySQLManager handles a MySQL database.
type MySQLManager struct {
	db       *gorm.DB
	location string // host:port/database for display
	log      logger.Logger
}

// NewMySQLManager connects to MySQL and configures the connection pool.
func NewMySQLManager(cfg *MySQLConfig, log logger.Logger) (*MySQLManager, error) {
	location := fmt.Sprintf("%s:%s/%s", cfg.Host, cfg.Port, cfg.Database)

	db, err := gorm.Open(mysql.Open(cfg.DSN()), gormConfig(log))
	if err != nil {
		return nil, dbError(err, "open-mysql", "location", location)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxIdleConns(mysqlMaxIdleConns)
	sqlDB.SetMaxOpenConns(mysqlMaxOpenConns)
	sqlDB.SetConnMaxLifetime(mysqlConnMaxLifetime)

	if log != nil {
		log.Info("connected to MySQL database", logger.String("location", location))
	}

	return &MySQLManager{db: db, location: location, log: log}, nil
}

// Initialize creates or updates the schema.
func (m *MySQLManager) Initialize() error {
	if err := migrate(m.db, true); err != nil {
		return dbError(err, "auto-migrate", "location", m.location)
	}
	return nil
}

// DB returns the underlying GORM database.
func (m *MySQLManager) DB() *gorm.DB {
	return m.db
}

// Path returns the database location (host:port/database).
func (m *MySQLManager) Path() string {
	return m.location
}

// Close closes the database connection.
func (m *MySQLManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

// IsMySQL returns true for MySQL manager.
func (m *MySQLManager) IsMySQL() bool {
	return true
}
