package feedback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referral-triage-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	tmpDir, err := os.MkdirTemp("", "feedback-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	return store
}

func newTestRecord(referralID string, createdAt time.Time) *domain.FeedbackRecord {
	return &domain.FeedbackRecord{
		ID:               uuid.New().String(),
		ClassificationID: uuid.New().String(),
		ReferralID:       referralID,
		ClinicianID:      "dr-gomez",
		OriginalScore:    0.82,
		CorrectedScore:   0.45,
		Difference:       0.37,
		Rationale:        "Chronic condition, already under treatment",
		CreatedAt:        createdAt,
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "feedback-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := newTestRecord("REF-100", time.Now().UTC())

	err := store.Save(ctx, record)
	require.NoError(t, err)

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.ClassificationID, got.ClassificationID)
	assert.Equal(t, "REF-100", got.ReferralID)
	assert.Equal(t, "dr-gomez", got.ClinicianID)
	assert.InDelta(t, 0.37, got.Difference, 1e-9)
	assert.Equal(t, record.Rationale, got.Rationale)
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSQLiteStore_SaveNeverUpdates(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := newTestRecord("REF-101", time.Now().UTC())
	require.NoError(t, store.Save(ctx, record))

	// Same primary key again must fail, corrections are append-only.
	err := store.Save(ctx, record)
	require.Error(t, err)
}

func TestSQLiteStore_ListSince(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	old := newTestRecord("REF-old", now.Add(-48*time.Hour))
	mid := newTestRecord("REF-mid", now.Add(-2*time.Hour))
	recent := newTestRecord("REF-recent", now.Add(-10*time.Minute))

	require.NoError(t, store.Save(ctx, old))
	require.NoError(t, store.Save(ctx, mid))
	require.NoError(t, store.Save(ctx, recent))

	records, err := store.ListSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "REF-recent", records[0].ReferralID)
	assert.Equal(t, "REF-mid", records[1].ReferralID)
}

func TestSQLiteStore_CountSince(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Save(ctx, newTestRecord("REF-1", now.Add(-72*time.Hour))))
	require.NoError(t, store.Save(ctx, newTestRecord("REF-2", now.Add(-time.Hour))))

	count, err := store.CountSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
