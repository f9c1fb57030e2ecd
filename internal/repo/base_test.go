package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type widget struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&widget{}))
	return conn
}

type ctxKey struct{}

func TestBaseDBBindsContext(t *testing.T) {
	conn := openDB(t)
	base := NewBase(conn)

	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	assert.Equal(t, ctx, base.DB(ctx).Statement.Context)
	assert.Same(t, conn, base.DB(nil))
}

func TestBaseWithTxSharesTransaction(t *testing.T) {
	conn := openDB(t)
	base := NewBase(conn)
	assert.Same(t, conn, base.WithTx(nil).db)

	err := conn.Transaction(func(tx *gorm.DB) error {
		bound := base.WithTx(tx)
		assert.Same(t, tx, bound.db)
		return bound.DB(context.Background()).Create(&widget{ID: 1, Name: "kept"}).Error
	})
	require.NoError(t, err)
	assert.Same(t, conn, base.db, "original base must stay unbound")
}

func TestFindOne(t *testing.T) {
	conn := openDB(t)
	require.NoError(t, conn.Create(&widget{ID: 7, Name: "seven"}).Error)

	found, err := FindOne[widget](conn.Where("id = ?", 7))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "seven", found.Name)

	missing, err := FindOne[widget](conn.Where("id = ?", 8))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
