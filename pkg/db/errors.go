package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// IsUniqueViolation reports whether err references a unique constraint violation
// on either postgres or sqlite. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}
