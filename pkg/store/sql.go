package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore implements Store on database/sql for PostgreSQL and SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
	now     func() time.Time
}

// Open connects to the database identified by driver and dsn.
// SQLite databases are limited to one connection so that ":memory:"
// refers to a single database.
func Open(driverName, dsn string) (*SQLStore, error) {
	dialect, err := ParseDialect(driverName)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect, err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	}

	return NewSQLStore(db, dialect), nil
}

// NewSQLStore wraps an existing connection pool.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		sb:      dialect.builder(),
		now:     time.Now,
	}
}

// SetClock replaces the clock used for created/updated timestamps (for testing).
func (s *SQLStore) SetClock(now func() time.Time) {
	s.now = now
}

// Dialect returns the SQL dialect of the store.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// DB returns the underlying connection pool.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a write transaction.
func (s *SQLStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return &sqlTx{store: s, tx: tx}, nil
}

// Get loads the row of table whose key columns equal key, in KeyColumns order.
func (s *SQLStore) Get(ctx context.Context, table Table, key ...any) (Row, error) {
	if len(key) != len(table.KeyColumns) {
		return nil, fmt.Errorf("table %s: expected %d key values, got %d", table.Name, len(table.KeyColumns), len(key))
	}

	where := sq.Eq{}
	for i, col := range table.KeyColumns {
		where[col] = key[i]
	}

	cols := table.selectColumns()
	sqlStr, args, err := s.sb.Select(cols...).From(table.Name).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("selecting from %s: %w", table.Name, err)
	}

	row := make(Row, len(cols))
	for i, col := range cols {
		if b, ok := values[i].([]byte); ok {
			row[col] = string(b)
			continue
		}
		row[col] = values[i]
	}
	return row, nil
}

// Count returns the number of rows in table.
func (s *SQLStore) Count(ctx context.Context, table Table) (int, error) {
	sqlStr, args, err := s.sb.Select("COUNT(*)").From(table.Name).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table.Name, err)
	}
	return count, nil
}

type sqlTx struct {
	store      *SQLStore
	tx         *sql.Tx
	savepoints int
}

func (t *sqlTx) Upsert(ctx context.Context, table Table, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	sqlStr, args, err := t.store.upsertQuery(table, rows, t.store.now().UTC())
	if err != nil {
		return err
	}

	if _, err := t.tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upserting %d rows into %s: %w", len(rows), table.Name, err)
	}
	return nil
}

func (t *sqlTx) Savepoint(ctx context.Context, fn func() error) error {
	t.savepoints++
	name := fmt.Sprintf("sp_%d", t.savepoints)

	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("creating savepoint %s: %w", name, err)
	}

	if fnErr := fn(); fnErr != nil {
		if _, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return errors.Join(fnErr, fmt.Errorf("rolling back to savepoint %s: %w", name, err))
		}
		if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
			return errors.Join(fnErr, fmt.Errorf("releasing savepoint %s: %w", name, err))
		}
		return fnErr
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("releasing savepoint %s: %w", name, err)
	}
	return nil
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// upsertQuery builds one multi-row INSERT ... ON CONFLICT statement.
func (s *SQLStore) upsertQuery(table Table, rows []Row, now time.Time) (string, []any, error) {
	if err := table.Validate(); err != nil {
		return "", nil, err
	}

	cols := append([]string(nil), table.Columns...)
	if table.CreatedColumn != "" {
		cols = append(cols, table.CreatedColumn)
	}
	if table.UpdatedColumn != "" {
		cols = append(cols, table.UpdatedColumn)
	}

	query := s.sb.Insert(table.Name).Columns(cols...)

	for _, row := range rows {
		for col := range row {
			if !table.hasColumn(col) {
				return "", nil, fmt.Errorf("table %s: unknown column %q", table.Name, col)
			}
		}

		values := make([]any, 0, len(cols))
		for _, col := range table.Columns {
			v, err := s.dialect.value(row[col])
			if err != nil {
				return "", nil, fmt.Errorf("table %s column %s: %w", table.Name, col, err)
			}
			values = append(values, v)
		}
		if table.CreatedColumn != "" {
			values = append(values, now)
		}
		if table.UpdatedColumn != "" {
			values = append(values, now)
		}
		query = query.Values(values...)
	}

	query = query.Suffix(conflictClause(table))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("building upsert query: %w", err)
	}
	return sqlStr, args, nil
}

func conflictClause(table Table) string {
	target := strings.Join(table.KeyColumns, ", ")

	updates := table.UpdateColumns()
	if len(updates) == 0 {
		return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", target)
	}

	sets := make([]string, 0, len(updates))
	for _, col := range updates {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", target, strings.Join(sets, ", "))
}
