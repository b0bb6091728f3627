// Package outboxtest boots a migrated in-memory outbox for tests.
package outboxtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/fieldreport/pkg/db"
	"github.com/angelmondragon/fieldreport/pkg/migrate"
	"github.com/angelmondragon/fieldreport/pkg/outbox"
)

// NewDB opens an isolated in-memory sqlite database with the outbox schema applied.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := dbpkg.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.Up(context.Background(), sqlDB, dbpkg.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// NewRepository returns a repository over a fresh database.
func NewRepository(t testing.TB) *outbox.Repository {
	t.Helper()
	return outbox.NewRepository(NewDB(t))
}

// NewService returns a manager over a fresh database.
func NewService(t testing.TB) (*outbox.Service, *outbox.Repository) {
	t.Helper()
	repo := NewRepository(t)
	return outbox.NewService(repo, nil), repo
}
