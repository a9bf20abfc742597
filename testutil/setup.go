package testutil

import (
	"testing"

	"github.com/kasuganosora/guildserver/cache"
	"github.com/kasuganosora/guildserver/config"
	dbadapter "github.com/kasuganosora/guildserver/db"
	"github.com/kasuganosora/guildserver/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates a private in-memory SQLite database and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestPubSub creates a LocalPubSub (no Redis required).
func SetupTestPubSub(t *testing.T) cache.PubSub {
	t.Helper()
	ps, err := cache.NewPubSub(cache.Config{})
	require.NoError(t, err, "SetupTestPubSub: NewPubSub")
	return ps
}
