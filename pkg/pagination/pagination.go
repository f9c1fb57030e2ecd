// Package pagination implements keyset cursors over (created_at, id).
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrInvalidCursor is returned for any cursor this package did not produce.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params is a page request as received from a client.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting to DefaultLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer is the row count to fetch so a following page can be detected.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Trim cuts rows fetched with LimitWithBuffer down to the page size and
// returns the cursor for the next page, or nil on the last page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, *Cursor) {
	size := NormalizeLimit(limit)
	if len(rows) <= size {
		return rows, nil
	}
	rows = rows[:size]
	next := key(rows[size-1])
	return rows, &next
}

// Encode renders c as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UTC().UnixNano(), 36) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token made by Cursor.Encode. An empty token yields nil.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 36, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: parsed}, nil
}
