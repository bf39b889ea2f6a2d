package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/tphakala/iconforge/internal/datastore"
)

// maxBatchSize bounds a single insert statement
const maxBatchSize = 10000

// Config holds the configuration for the export tool.
type Config struct {
	// Source database
	SQLitePath string

	// Target database, either another SQLite file or MySQL
	TargetSQLite  string
	MySQLHost     string
	MySQLPort     string
	MySQLUser     string
	MySQLPass     string
	MySQLDatabase string

	// Export options
	BatchSize  int
	Clean      bool
	SkipVerify bool
	Verbose    bool

	// Config file path for fallback
	ConfigPath string
}

// Load validates the configuration, falling back to config.yaml for missing
// connection settings.
func (c *Config) Load() error {
	if c.SQLitePath == "" || (c.TargetSQLite == "" && c.MySQLHost == "") {
		if err := c.loadFromConfigFile(); err != nil && c.SQLitePath == "" {
			return fmt.Errorf("--sqlite-path is required (or provide config.yaml): %w", err)
		}
	}

	if _, err := os.Stat(c.SQLitePath); os.IsNotExist(err) {
		return fmt.Errorf("SQLite database not found: %s", c.SQLitePath)
	}

	if c.TargetSQLite == "" && c.MySQLHost == "" {
		return fmt.Errorf("a target is required: --target-sqlite or --mysql-host")
	}
	if c.TargetSQLite != "" && c.MySQLHost != "" {
		return fmt.Errorf("--target-sqlite and --mysql-host are mutually exclusive")
	}
	if c.TargetSQLite != "" {
		src, _ := filepath.Abs(c.SQLitePath)
		dst, _ := filepath.Abs(c.TargetSQLite)
		if src == dst {
			return fmt.Errorf("source and target are the same database")
		}
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("batch-size must be at least 1")
	}
	if c.BatchSize > maxBatchSize {
		return fmt.Errorf("batch-size too large (max %d)", maxBatchSize)
	}

	return nil
}

// loadFromConfigFile fills missing connection settings from config.yaml
func (c *Config) loadFromConfigFile() error {
	v := viper.New()

	configPath := c.ConfigPath
	if configPath == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			p := filepath.Join(homeDir, ".config", "iconforge", "config.yaml")
			if _, statErr := os.Stat(p); statErr == nil {
				configPath = p
			}
		}
		if configPath == "" {
			configPath = "config.yaml"
		}
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if c.SQLitePath == "" {
		c.SQLitePath = v.GetString("sqlite.path")
	}

	if c.TargetSQLite == "" && c.MySQLHost == "" && v.GetBool("mysql.enabled") {
		c.MySQLHost = v.GetString("mysql.host")
		c.MySQLPort = v.GetString("mysql.port")
		c.MySQLUser = v.GetString("mysql.username")
		c.MySQLPass = v.GetString("mysql.password")
		c.MySQLDatabase = v.GetString("mysql.database")
	}

	return nil
}

// MySQLConfig returns the target MySQL connection settings
func (c *Config) MySQLConfig() *datastore.MySQLConfig {
	port := c.MySQLPort
	if port == "" {
		port = "3306"
	}
	return &datastore.MySQLConfig{
		Host:     c.MySQLHost,
		Port:     port,
		Username: c.MySQLUser,
		Password: c.MySQLPass,
		Database: c.MySQLDatabase,
	}
}

// TargetDescription returns the target for display, with the password masked
func (c *Config) TargetDescription() string {
	if c.TargetSQLite != "" {
		return "sqlite:" + c.TargetSQLite
	}
	m := c.MySQLConfig()
	return fmt.Sprintf("mysql:%s:****@tcp(%s:%s)/%s", m.Username, m.Host, m.Port, m.Database)
}
