// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/recipesnap/apiserver/config"
	"github.com/recipesnap/apiserver/internal/db"
	"github.com/recipesnap/apiserver/internal/logging"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB opens a private in-memory SQLite database with the full schema and
// closes it when the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	settings, err := db.ResolveSettings(config.DatabaseConfig{
		URL: fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, "test")
	require.NoError(t, err)

	gdb, err := db.Open(context.Background(), settings, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close(gdb)
	})
	return gdb
}

// CountRows returns the number of rows in table.
func CountRows(t testing.TB, gdb *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Table(table).Count(&n).Error)
	return n
}
