package main

import (
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/logger"
)

// Migrator copies the generation history between databases.
type Migrator struct {
	cfg    Config
	source datastore.Manager
	target datastore.Manager
	out    io.Writer
}

// MigrationStats tracks migration statistics.
type MigrationStats struct {
	StartTime time.Time
	EndTime   time.Time
	Tables    []TableStats
}

// TableStats tracks per-table migration statistics.
type TableStats struct {
	Name      string
	Migrated  int64
	Skipped   int64
	Errors    int64
	Duration  time.Duration
	BatchSize int
}

// Print outputs the migration statistics.
func (s *MigrationStats) Print(out io.Writer) {
	fmt.Fprintln(out, "\n=== Export Summary ===")
	fmt.Fprintf(out, "Duration: %s\n\n", s.EndTime.Sub(s.StartTime).Round(time.Millisecond))

	fmt.Fprintf(out, "%-25s %10s %10s %10s %12s\n", "Table", "Migrated", "Skipped", "Errors", "Duration")
	for _, t := range s.Tables {
		fmt.Fprintf(out, "%-25s %10d %10d %10d %12s\n",
			t.Name, t.Migrated, t.Skipped, t.Errors, t.Duration.Round(time.Millisecond))
	}
}

// NewMigrator opens both databases and creates the target schema.
func NewMigrator(cfg *Config, out io.Writer) (*Migrator, error) {
	m := &Migrator{cfg: *cfg, out: out}

	var log logger.Logger
	if cfg.Verbose {
		log = logger.Global().Module("dbexport")
	}

	source, err := datastore.NewSQLiteManager(cfg.SQLitePath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	m.source = source

	if cfg.TargetSQLite != "" {
		m.target, err = datastore.NewSQLiteManager(cfg.TargetSQLite, log)
	} else {
		m.target, err = datastore.NewMySQLManager(cfg.MySQLConfig(), log)
	}
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to open target database: %w", err)
	}

	if err := ping(m.source.DB()); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if err := ping(m.target.DB()); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to ping target database: %w", err)
	}

	if err := m.target.Initialize(); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to create target schema: %w", err)
	}

	fmt.Fprintln(out, "Database connections established successfully")
	return m, nil
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes both database connections.
func (m *Migrator) Close() {
	if m.source != nil {
		_ = m.source.Close()
	}
	if m.target != nil {
		_ = m.target.Close()
	}
}

// Run executes the export.
func (m *Migrator) Run() (*MigrationStats, error) {
	stats := &MigrationStats{StartTime: time.Now()}

	if m.cfg.Clean {
		fmt.Fprintln(m.out, "Cleaning target table...")
		if err := m.target.DB().Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&datastore.ImageGeneration{}).Error; err != nil {
			return nil, fmt.Errorf("failed to clean target: %w", err)
		}
	}

	tableStats, err := migrateTable[datastore.ImageGeneration](m, "image_generations", m.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to migrate image_generations: %w", err)
	}
	stats.Tables = append(stats.Tables, *tableStats)

	stats.EndTime = time.Now()
	return stats, nil
}

// migrateTable copies a table in batches. Rows whose primary key already exists
// in the target are skipped, so an export can be re-run.
func migrateTable[T any](m *Migrator, tableName string, batchSize int) (*TableStats, error) {
	start := time.Now()
	stats := &TableStats{
		Name:      tableName,
		BatchSize: batchSize,
	}

	fmt.Fprintf(m.out, "Migrating %s...\n", tableName)

	var sourceCount int64
	if err := m.source.DB().Model(new(T)).Count(&sourceCount).Error; err != nil {
		return stats, fmt.Errorf("failed to count source records: %w", err)
	}

	if sourceCount == 0 {
		fmt.Fprintf(m.out, "  %s: no records to migrate\n", tableName)
		stats.Duration = time.Since(start)
		return stats, nil
	}

	var processed int64
	batchNum := 0

	err := m.source.DB().Model(new(T)).FindInBatches(new([]T), batchSize, func(tx *gorm.DB, batch int) error {
		batchNum++
		records := tx.Statement.Dest.(*[]T)

		result := m.target.DB().Clauses(clause.OnConflict{DoNothing: true}).Create(records)
		if result.Error != nil {
			stats.Errors += int64(len(*records))
			fmt.Fprintf(m.out, "  Batch %d error: %v\n", batchNum, result.Error)
			// a failed batch is counted and the export continues
			return nil //nolint:nilerr // see above
		}

		stats.Migrated += result.RowsAffected
		stats.Skipped += int64(len(*records)) - result.RowsAffected
		processed += int64(len(*records))

		if m.cfg.Verbose || batchNum%10 == 0 {
			fmt.Fprintf(m.out, "  %s: %d/%d (%.1f%%)\n", tableName, processed, sourceCount,
				float64(processed)/float64(sourceCount)*100)
		}

		return nil
	}).Error
	if err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	fmt.Fprintf(m.out, "  %s: completed (%d migrated, %d skipped, %d errors) in %s\n",
		tableName, stats.Migrated, stats.Skipped, stats.Errors, stats.Duration.Round(time.Millisecond))

	return stats, nil
}
