package store

import (
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// Dialect selects the SQL flavour. Values double as database/sql driver names.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

// ParseDialect maps a driver name to a dialect.
func ParseDialect(name string) (Dialect, error) {
	switch name {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

func (d Dialect) builder() sq.StatementBuilderType {
	if d == Postgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// value converts a row value to a driver argument. Slices become native
// arrays on Postgres and JSON text on SQLite.
func (d Dialect) value(v any) (any, error) {
	switch x := v.(type) {
	case []int, []int64, []string, []bool, []float64:
		if d == Postgres {
			return pq.Array(x), nil
		}
		data, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("encoding array: %w", err)
		}
		return string(data), nil
	default:
		return v, nil
	}
}
