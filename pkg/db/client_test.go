package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func count(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&testModel{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))
	assert.Equal(t, int64(1), count(t, db))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, int64(1), count(t, db))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&testModel{Name: "doomed"})
			panic("boom")
		})
	})
	assert.Zero(t, count(t, db))
}

func TestPingAndDriver(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	assert.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, config.DBDriverSQLite, client.Driver())
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, nil)
	assert.ErrorContains(t, err, "DSN is required")

	_, err = New(context.Background(), config.DBConfig{DSN: "x", Driver: "mysql"}, nil)
	assert.ErrorContains(t, err, "unsupported db driver")
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:storefront.db?_busy_timeout=5000", sqliteDSN("storefront.db"))
	assert.Equal(t, "file::memory:?_busy_timeout=5000", sqliteDSN("file::memory:"))
	assert.Equal(t, "file:x.db?cache=shared", sqliteDSN("file:x.db?cache=shared"))
}

func TestQueryLoggerReportsSlowAndFailedStatements(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: logger.ParseLevel("debug"), Output: &buf})
	q := newQueryLogger(logg, 10*time.Millisecond)
	ctx := context.Background()
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	q.Trace(ctx, time.Now(), stmt, nil)
	assert.Zero(t, buf.Len(), "fast successful statements stay quiet")

	q.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	assert.Zero(t, buf.Len(), "not found is not a failure")

	q.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	assert.Contains(t, buf.String(), "slow query")
	assert.Contains(t, buf.String(), "SELECT 1")

	buf.Reset()
	q.Trace(ctx, time.Now(), stmt, errors.New("syntax error"))
	assert.Contains(t, buf.String(), "query failed")

	buf.Reset()
	q.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), stmt, errors.New("syntax error"))
	assert.Zero(t, buf.Len())
}

func TestQueryLoggerWithoutServiceLogger(t *testing.T) {
	assert.Equal(t, gormlogger.Discard, newQueryLogger(nil, time.Second))
}

type uniqueModel struct {
	ID   int
	Code string `gorm:"uniqueIndex:ux_unique_models_code"`
}

func TestIsUniqueViolationSQLite(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AutoMigrate(&uniqueModel{}))
	require.NoError(t, db.Create(&uniqueModel{Code: "dup"}).Error)

	err := db.Create(&uniqueModel{Code: "dup"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "unique_models.code"))
	assert.False(t, IsUniqueViolation(err, "orders.id"))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}
