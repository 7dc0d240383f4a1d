// Package storetest opens throwaway migrated stores for tests.
package storetest

import (
	"fmt"
	"testing"

	"pos-service/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// New returns a migrated store backed by a private in-memory SQLite database.
// The store is closed when the test ends.
func New(t testing.TB) *store.Store {
	s, _ := NewWithRaw(t)
	return s
}

// NewWithRaw is New plus a second handle on the same database, for tests
// that need to write around the store.
func NewWithRaw(t testing.TB) (*store.Store, *sqlx.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	s, err := store.NewStore(string(store.DialectSQLite), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate())

	raw, err := sqlx.Connect(string(store.DialectSQLite), dsn)
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = raw.Close() })

	return s, raw
}
