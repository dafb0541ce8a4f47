package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referral-triage-server/internal/domain"
)

func setupMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestPostgresStore_Record(t *testing.T) {
	store, mock := setupMockStore(t)

	result := newTestResult("REF-1", domain.PriorityCritical, time.Now().UTC())

	mock.ExpectExec("INSERT INTO classifications").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Record(context.Background(), result)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordOutcome(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("UPDATE classifications SET outcome").
		WithArgs("accepted", "cls-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.RecordOutcome(context.Background(), "cls-1", domain.OutcomeAccepted)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordOutcome_NotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("UPDATE classifications SET outcome").
		WithArgs("accepted", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RecordOutcome(context.Background(), "missing", domain.OutcomeAccepted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := setupMockStore(t)

	classifiedAt := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "referral_id", "priority", "score", "confidence",
		"sub_scores", "weight_version", "outcome", "classified_at",
	}).AddRow(
		"cls-1", "REF-1", "CRITICAL", 0.82, 0.74,
		`{"age":0.8,"severity":0.9,"specialty":1,"symptoms":0.6}`,
		int64(3), "none", classifiedAt,
	)

	mock.ExpectQuery("SELECT (.+) FROM classifications").
		WithArgs("cls-1").
		WillReturnRows(rows)

	got, err := store.Get(context.Background(), "cls-1")
	require.NoError(t, err)
	assert.Equal(t, "cls-1", got.ID)
	assert.Equal(t, domain.PriorityCritical, got.Priority)
	assert.InDelta(t, 0.9, got.SubScores[domain.FactorSeverity], 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM classifications").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "referral_id", "priority", "score", "confidence",
			"sub_scores", "weight_version", "outcome", "classified_at",
		}))

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPostgresStore_Accuracy(t *testing.T) {
	store, mock := setupMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM classifications").
		WillReturnRows(sqlmock.NewRows([]string{"count", "decided", "correct"}).
			AddRow(10, 8, 7))

	report, err := store.Accuracy(context.Background(), now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 8, report.Decided)
	assert.Equal(t, 7, report.Correct)
	assert.InDelta(t, 0.875, report.Accuracy, 1e-9)
}
