package migrations

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/screenrec/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return db
}

func newMigrator(t *testing.T, db *gorm.DB) *Migrator {
	t.Helper()
	m := NewMigrator(db, nil)
	m.RegisterAll(AllMigrations())
	return m
}

func TestAllMigrations_VersionsAreUniqueAndOrdered(t *testing.T) {
	migrations := AllMigrations()
	require.NotEmpty(t, migrations)

	seen := make(map[string]bool)
	prev := ""
	for _, m := range migrations {
		assert.False(t, seen[m.Version], "duplicate version %s", m.Version)
		assert.Greater(t, m.Version, prev)
		assert.NotNil(t, m.Up)
		assert.NotNil(t, m.Down)
		seen[m.Version] = true
		prev = m.Version
	}
}

func TestMigrator_Up(t *testing.T) {
	db := setupTestDB(t)
	m := newMigrator(t, db)
	ctx := context.Background()

	require.NoError(t, m.Up(ctx))
	assert.True(t, db.Migrator().HasTable(&models.Recording{}))
	assert.True(t, db.Migrator().HasIndex(&models.Recording{}, codecIndex))

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, len(AllMigrations()))
	for _, s := range statuses {
		assert.True(t, s.Applied(), s.Version)
	}

	// Applying again is a no-op.
	require.NoError(t, m.Up(ctx))
}

func TestMigrator_Down(t *testing.T) {
	db := setupTestDB(t)
	m := newMigrator(t, db)
	ctx := context.Background()

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Down(ctx))
	assert.False(t, db.Migrator().HasIndex(&models.Recording{}, codecIndex))
	assert.True(t, db.Migrator().HasTable(&models.Recording{}))

	require.NoError(t, m.Down(ctx))
	assert.False(t, db.Migrator().HasTable(&models.Recording{}))

	// Nothing left to roll back.
	require.NoError(t, m.Down(ctx))

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.False(t, s.Applied(), s.Version)
	}
}

func TestMigrator_UnknownVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, newMigrator(t, db).Up(ctx))

	empty := NewMigrator(db, nil)
	err := empty.Down(ctx)
	assert.ErrorContains(t, err, "definition not found")
}
