package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestUpsertQuery_Postgres(t *testing.T) {
	s := NewSQLStore(nil, Postgres)

	sqlStr, args, err := s.upsertQuery(widgets, []Row{
		{"id": "w1", "label": "one", "tags": []string{"a"}},
		{"id": "w2", "label": "two"},
	}, fixedNow)
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO widgets (id,label,tags,created_at,updated_at) VALUES ($1,$2,$3,$4,$5),($6,$7,$8,$9,$10) "+
			"ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label, tags = EXCLUDED.tags, updated_at = EXCLUDED.updated_at",
		sqlStr)
	require.Len(t, args, 10)
	assert.Equal(t, "w1", args[0])
	assert.Equal(t, fixedNow, args[3])
	assert.Equal(t, fixedNow, args[4])
	assert.Nil(t, args[7], "missing columns are written as NULL")
}

func TestUpsertQuery_SQLite(t *testing.T) {
	s := NewSQLStore(nil, SQLite)

	sqlStr, args, err := s.upsertQuery(widgets, []Row{{"id": "w1", "tags": []int{1, 2}}}, fixedNow)
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO widgets (id,label,tags,created_at,updated_at) VALUES (?,?,?,?,?) "+
			"ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label, tags = EXCLUDED.tags, updated_at = EXCLUDED.updated_at",
		sqlStr)
	assert.Equal(t, "[1,2]", args[2])
}

func TestUpsertQuery_KeyOnlyTableDoesNothingOnConflict(t *testing.T) {
	s := NewSQLStore(nil, Postgres)
	table := Table{Name: "seen", KeyColumns: []string{"id"}, Columns: []string{"id"}}

	sqlStr, _, err := s.upsertQuery(table, []Row{{"id": 1}}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO seen (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", sqlStr)
}

func TestUpsertQuery_UnknownColumn(t *testing.T) {
	s := NewSQLStore(nil, Postgres)

	_, _, err := s.upsertQuery(widgets, []Row{{"id": "w1", "colour": "red"}}, fixedNow)
	assert.EqualError(t, err, `table widgets: unknown column "colour"`)
}

func TestTx_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(db, Postgres)
	s.SetClock(func() time.Time { return fixedNow })

	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO widgets (id,label,tags,created_at,updated_at) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO UPDATE SET`)).
		WithArgs("w1", "one", nil, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^RELEASE SAVEPOINT sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^SAVEPOINT sp_2$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO widgets`).
		WithArgs("w2", "two", nil, fixedNow, fixedNow).
		WillReturnError(errors.New("check constraint violated"))
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT sp_2$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^RELEASE SAVEPOINT sp_2$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)

	err = tx.Savepoint(ctx, func() error {
		return tx.Upsert(ctx, widgets, []Row{{"id": "w1", "label": "one"}})
	})
	require.NoError(t, err)

	err = tx.Savepoint(ctx, func() error {
		return tx.Upsert(ctx, widgets, []Row{{"id": "w2", "label": "two"}})
	})
	assert.ErrorContains(t, err, "check constraint violated")

	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_RollbackAfterCommitIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := NewSQLStore(db, Postgres).BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_EmptyRowsIssuesNoStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := NewSQLStore(db, Postgres).BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Upsert(ctx, widgets, nil))
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCount_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM candidates`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := NewSQLStore(db, Postgres).Count(context.Background(), CandidatesTable)
	require.NoError(t, err)
	assert.Equal(t, 42, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
