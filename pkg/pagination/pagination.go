// Package pagination implements keyset paging over (created_at, id). A
// cursor names the last row of the previous page; queries fetch one row past
// the limit to learn whether another page exists.
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
	DefaultLimit = 25
	MaxLimit     = 100
)

var errMalformed = errors.New("malformed cursor")

// Params is what a list endpoint accepts from the query string.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the sort key of the last row served.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit clamps limit into [1, MaxLimit], with DefaultLimit for
// anything non-positive.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer is the row count to fetch: the page plus one look-ahead row.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor renders "<unix nanos>.<id>" as unpadded URL-safe base64 so it
// can sit in a query string untouched.
func EncodeCursor(c Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor returns nil for a blank value.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, errMalformed
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, errMalformed
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, errMalformed
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, errMalformed
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: parsed}, nil
}

// Trim cuts a look-ahead fetch down to limit rows and returns the cursor of
// the next page, or "" when this page is the last.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, EncodeCursor(key(rows[limit-1]))
}
