package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

var widgets = Table{
	Name:          "widgets",
	KeyColumns:    []string{"id"},
	Columns:       []string{"id", "label", "tags"},
	CreatedColumn: "created_at",
	UpdatedColumn: "updated_at",
}

func TestTable_Validate(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		wantErr string
	}{
		{name: "valid", table: widgets},
		{name: "candidates", table: CandidatesTable},
		{name: "missing name", table: Table{KeyColumns: []string{"id"}, Columns: []string{"id"}}, wantErr: "table name is required"},
		{name: "missing key", table: Table{Name: "t", Columns: []string{"id"}}, wantErr: "table t: at least one key column is required"},
		{name: "key not a column", table: Table{Name: "t", KeyColumns: []string{"id"}, Columns: []string{"label"}}, wantErr: `table t: key column "id" is not a column`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestTable_UpdateColumns(t *testing.T) {
	assert.Equal(t, []string{"label", "tags", "updated_at"}, widgets.UpdateColumns())

	cols := CandidatesTable.UpdateColumns()
	assert.NotContains(t, cols, "candidate_id")
	assert.NotContains(t, cols, "created_at")
	assert.Contains(t, cols, "name")
	assert.Equal(t, "updated_at", cols[len(cols)-1])
	assert.Len(t, cols, len(CandidatesTable.Columns))
}

func TestTable_Key(t *testing.T) {
	composite := Table{Name: "t", KeyColumns: []string{"cycle", "id"}, Columns: []string{"cycle", "id"}}

	assert.Equal(t, "C001", CandidatesTable.Key(Row{"candidate_id": "C001", "name": "x"}))
	assert.Equal(t, "2024|C001", composite.Key(Row{"id": "C001", "cycle": 2024}))
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"postgres", Postgres, false},
		{"postgresql", Postgres, false},
		{"sqlite3", SQLite, false},
		{"sqlite", SQLite, false},
		{"mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialect_Value(t *testing.T) {
	v, err := SQLite.value([]int{2020, 2022})
	assert.NoError(t, err)
	assert.Equal(t, "[2020,2022]", v)

	v, err = Postgres.value([]int{2020, 2022})
	assert.NoError(t, err)
	_, isValuer := v.(driver.Valuer)
	assert.True(t, isValuer, "postgres arrays should be wrapped with pq.Array")

	v, err = Postgres.value("plain")
	assert.NoError(t, err)
	assert.Equal(t, "plain", v)
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"conn done wrapped", fmt.Errorf("upserting: %w", sql.ErrConnDone), true},
		{"pq connection failure", &pq.Error{Code: "08006"}, true},
		{"pq connection does not exist", fmt.Errorf("exec: %w", &pq.Error{Code: "08003"}), true},
		{"pq unique violation", &pq.Error{Code: "23505"}, false},
		{"pq check violation", &pq.Error{Code: "23514"}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionError(tt.err))
		})
	}
}
