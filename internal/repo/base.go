// Package repo holds the helpers shared by the gorm-backed repositories.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Base carries the connection a repository runs against. The zero value is
// not usable.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB scopes the connection to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// WithTx rebinds the base to tx so several repositories can share one
// transaction. A nil tx is ignored.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx != nil {
		b.db = tx
	}
	return b
}

// FindOne runs query.First into a new T and maps "no rows" to (nil, nil).
func FindOne[T any](query *gorm.DB) (*T, error) {
	out := new(T)
	err := query.First(out).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return out, nil
}
