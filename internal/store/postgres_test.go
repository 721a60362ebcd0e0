package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS form_facts`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT facts FROM form_facts WHERE form_key = \$1`).
		WithArgs("('DailyForm', 'Andy')").
		WillReturnError(pgx.ErrNoRows)

	facts, ok, err := s.Load(context.Background(), andy)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, facts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT facts FROM form_facts`).
		WithArgs("('DailyForm', 'Andy')").
		WillReturnRows(pgxmock.NewRows([]string{"facts"}).
			AddRow([]byte(`{"weather":{"low":"48","conditions":"Rain"}}`)))

	facts, ok, err := s.Load(context.Background(), andy)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"low": "48", "conditions": "Rain"}, facts["weather"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT facts FROM form_facts`).
		WithArgs("('DailyForm', 'Andy')").
		WillReturnError(assert.AnError)

	_, _, err := s.Load(context.Background(), andy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: load facts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(form_key\) DO UPDATE`).
		WithArgs("('DailyForm', 'Andy')", "DailyForm", "Andy", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Save(context.Background(), andy, map[string]any{"zip_code": "07307"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT form_key, form_type, form_id, run_id, facts, updated_at`).
		WillReturnRows(pgxmock.NewRows([]string{"form_key", "form_type", "form_id", "run_id", "facts", "updated_at"}).
			AddRow("('DailyForm', 'Andy')", "DailyForm", "Andy", "run-1", []byte(`{"zip_code":"07307"}`), now))

	recs, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "run-1", recs[0].RunID)
	assert.Equal(t, now, recs[0].UpdatedAt)
	assert.Equal(t, "07307", recs[0].Facts["zip_code"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List_BadJSON(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT form_key`).
		WillReturnRows(pgxmock.NewRows([]string{"form_key", "form_type", "form_id", "run_id", "facts", "updated_at"}).
			AddRow("k", "DailyForm", "Andy", "run-1", []byte(`{`), time.Now()))

	_, err := s.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal facts")
	assert.NoError(t, mock.ExpectationsWereMet())
}
