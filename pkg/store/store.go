// Package store persists validated entity rows in a SQL database.
//
// Writes go through transactions that support nested savepoints, which is
// what lets the batch engine isolate a single bad row without losing the
// rest of its chunk.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ErrNotFound is returned by Get when no row matches the key.
var ErrNotFound = errors.New("row not found")

// Row is one record ready for persistence, keyed by column name.
type Row map[string]any

// Table describes an upsert target.
type Table struct {
	Name string

	// KeyColumns form the conflict target (primary or unique key).
	KeyColumns []string

	// Columns are every writable column, keys included.
	Columns []string

	// CreatedColumn is written on insert only. Empty disables it.
	CreatedColumn string

	// UpdatedColumn is written on every insert and update. Empty disables it.
	UpdatedColumn string
}

// Validate checks that the table definition can drive an upsert.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if len(t.KeyColumns) == 0 {
		return fmt.Errorf("table %s: at least one key column is required", t.Name)
	}
	for _, key := range t.KeyColumns {
		if !t.hasColumn(key) {
			return fmt.Errorf("table %s: key column %q is not a column", t.Name, key)
		}
	}
	return nil
}

// Key renders the key of row for logs and failure reports.
func (t Table) Key(row Row) string {
	parts := make([]string, 0, len(t.KeyColumns))
	for _, col := range t.KeyColumns {
		parts = append(parts, fmt.Sprint(row[col]))
	}
	return strings.Join(parts, "|")
}

// UpdateColumns returns the columns replaced when an insert hits an existing key.
func (t Table) UpdateColumns() []string {
	cols := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		if t.isKey(col) || col == t.CreatedColumn {
			continue
		}
		cols = append(cols, col)
	}
	if t.UpdatedColumn != "" {
		cols = append(cols, t.UpdatedColumn)
	}
	return cols
}

func (t Table) selectColumns() []string {
	cols := append([]string(nil), t.Columns...)
	if t.CreatedColumn != "" {
		cols = append(cols, t.CreatedColumn)
	}
	if t.UpdatedColumn != "" {
		cols = append(cols, t.UpdatedColumn)
	}
	return cols
}

func (t Table) hasColumn(name string) bool {
	for _, col := range t.Columns {
		if col == name {
			return true
		}
	}
	return false
}

func (t Table) isKey(name string) bool {
	for _, key := range t.KeyColumns {
		if key == name {
			return true
		}
	}
	return false
}

// Store opens write transactions.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a write transaction.
type Tx interface {
	// Upsert inserts rows, replacing every non-key column of rows whose key
	// already exists. The created column of existing rows is preserved.
	Upsert(ctx context.Context, table Table, rows []Row) error

	// Savepoint runs fn inside a nested sub-transaction. When fn fails,
	// only its writes are undone and the enclosing transaction stays usable.
	Savepoint(ctx context.Context, fn func() error) error

	Commit() error
	Rollback() error
}

// IsConnectionError reports whether err means the database connection
// itself is gone, as opposed to a problem with the statement or its data.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08: connection exception
		return pqErr.Code.Class() == "08"
	}
	return false
}
