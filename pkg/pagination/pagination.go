// Package pagination implements keyset cursors for newest-first listings.
package pagination

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	cursorVersion byte = 1
	cursorLen          = 1 + 8 + 16
)

// Cursor marks the last row of a page. The next page holds rows strictly
// older than it.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Admits reports whether a row keyed by (createdAt, id) belongs after the
// cursor in newest-first order.
func (c Cursor) Admits(createdAt time.Time, id uuid.UUID) bool {
	return Newer(c.CreatedAt, c.ID, createdAt, id)
}

// Newer orders rows newest first. Equal timestamps fall back to the id so
// the order is total.
func Newer(aAt time.Time, aID uuid.UUID, bAt time.Time, bID uuid.UUID) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return bytes.Compare(aID[:], bID[:]) > 0
}

// NormalizeLimit clamps limit into [1, MaxLimit], using DefaultLimit for
// zero or negative values.
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

// LimitWithBuffer asks for one extra row so the caller can tell whether a
// next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor packs the cursor into a URL-safe token.
func EncodeCursor(c Cursor) string {
	buf := make([]byte, cursorLen)
	buf[0] = cursorVersion
	binary.BigEndian.PutUint64(buf[1:9], uint64(c.CreatedAt.UnixNano()))
	copy(buf[9:], c.ID[:])
	return base64.RawURLEncoding.EncodeToString(buf)
}

// ParseCursor reverses EncodeCursor. A blank token means "first page" and
// yields a nil cursor.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	if len(raw) != cursorLen || raw[0] != cursorVersion {
		return nil, fmt.Errorf("unsupported cursor")
	}
	id, err := uuid.FromBytes(raw[9:])
	if err != nil {
		return nil, fmt.Errorf("cursor id: %w", err)
	}
	return &Cursor{
		CreatedAt: time.Unix(0, int64(binary.BigEndian.Uint64(raw[1:9]))).UTC(),
		ID:        id,
	}, nil
}
