// Package migrations applies versioned schema changes to the catalog
// database and records them in the schema_migrations table.
package migrations

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Migration is a single schema change.
type Migration struct {
	Version     string
	Description string
	Up          func(tx *gorm.DB) error
	Down        func(tx *gorm.DB) error
}

// MigrationRecord tracks an applied migration.
type MigrationRecord struct {
	ID          uint      `gorm:"primarykey"`
	Version     string    `gorm:"uniqueIndex;size:32;not null"`
	Description string    `gorm:"not null"`
	AppliedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for migration records.
func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Version     string
	Description string
	AppliedAt   *time.Time
}

// Applied reports whether the migration has been applied.
func (s MigrationStatus) Applied() bool {
	return s.AppliedAt != nil
}

// Migrator applies registered migrations in version order.
type Migrator struct {
	db         *gorm.DB
	logger     *slog.Logger
	migrations []Migration
}

// NewMigrator creates a Migrator with no registered migrations.
func NewMigrator(db *gorm.DB, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, logger: logger}
}

// RegisterAll adds migrations to the registry.
func (m *Migrator) RegisterAll(migrations []Migration) {
	m.migrations = append(m.migrations, migrations...)
	slices.SortFunc(m.migrations, func(a, b Migration) int {
		return strings.Compare(a.Version, b.Version)
	})
}

// Up applies all pending migrations, each in its own transaction.
func (m *Migrator) Up(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if _, ok := applied[migration.Version]; ok {
			continue
		}

		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:     migration.Version,
				Description: migration.Description,
				AppliedAt:   time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", migration.Version, err)
		}

		m.logger.InfoContext(ctx, "migration applied",
			slog.String("version", migration.Version),
			slog.String("description", migration.Description),
		)
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("initializing migrations table: %w", err)
	}

	var record MigrationRecord
	err := m.db.WithContext(ctx).Order("version DESC").Limit(1).Find(&record).Error
	if err != nil {
		return fmt.Errorf("getting last migration: %w", err)
	}
	if record.Version == "" {
		return nil
	}

	idx := slices.IndexFunc(m.migrations, func(mg Migration) bool { return mg.Version == record.Version })
	if idx < 0 {
		return fmt.Errorf("migration definition not found for version %s", record.Version)
	}
	migration := m.migrations[idx]
	if migration.Down == nil {
		return fmt.Errorf("migration %s does not support rollback", record.Version)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := migration.Down(tx); err != nil {
			return err
		}
		return tx.Where("version = ?", migration.Version).Delete(&MigrationRecord{}).Error
	})
	if err != nil {
		return fmt.Errorf("rolling back migration %s: %w", migration.Version, err)
	}

	m.logger.InfoContext(ctx, "migration rolled back", slog.String("version", migration.Version))
	return nil
}

// Status returns the status of every registered migration.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(m.migrations))
	for _, migration := range m.migrations {
		status := MigrationStatus{Version: migration.Version, Description: migration.Description}
		if record, ok := applied[migration.Version]; ok {
			status.AppliedAt = &record.AppliedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (m *Migrator) applied(ctx context.Context) (map[string]MigrationRecord, error) {
	if err := m.db.WithContext(ctx).AutoMigrate(&MigrationRecord{}); err != nil {
		return nil, fmt.Errorf("initializing migrations table: %w", err)
	}

	var records []MigrationRecord
	if err := m.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("getting applied migrations: %w", err)
	}

	applied := make(map[string]MigrationRecord, len(records))
	for _, record := range records {
		applied[record.Version] = record
	}
	return applied, nil
}
