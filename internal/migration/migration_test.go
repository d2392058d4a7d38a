package migration

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	up, _, err := src.ReadUp(version)
	require.NoError(t, err)
	up.Close()

	down, _, err := src.ReadDown(version)
	require.NoError(t, err)
	down.Close()
}

func TestApplySQLiteIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, ApplySQLite(db))
	require.NoError(t, ApplySQLite(db))

	for _, table := range []string{"users", "events", "ticket_classes", "orders", "order_items", "tickets", "payment_webhooks", "email_logs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
