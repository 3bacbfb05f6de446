package data

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestData 每个测试独立的内存 SQLite；单连接保证所有语句看到同一个库
func newTestData(t *testing.T) *Data {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &Data{db: db}
}

func testLogger() log.Logger {
	return log.DefaultLogger
}

func TestInTxRollsBackAndReusesOuterTransaction(t *testing.T) {
	d := newTestData(t)
	repo := NewCartRepo(d, testLogger())
	ctx := context.Background()
	seedCart(t, d, "u1", 2)

	boom := errors.New("boom")
	err := d.InTx(ctx, func(ctx context.Context) error {
		return d.InTx(ctx, func(ctx context.Context) error {
			require.NoError(t, repo.ClearCart(ctx, "u1"))
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	items, err := repo.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
