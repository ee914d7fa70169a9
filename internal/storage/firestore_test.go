package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreLedgerConfig(t *testing.T) {
	t.Run("missing GCP project ID", func(t *testing.T) {
		_, err := NewFirestoreLedger(context.Background(), "", "(default)", "sign_ins")
		assert.Error(t, err, "Expected error when GCP project ID is missing for Firestore storage")
		assert.Contains(t, err.Error(), "projectID is required")
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := NewFirestoreLedger(context.Background(), "test-project", "(default)", "")
		assert.Error(t, err, "Expected error when collection is empty")
		assert.Contains(t, err.Error(), "collection is required")
	})
}

// newEmulatorLedger connects to the Firestore emulator with a fresh collection
// per test. The client library routes to FIRESTORE_EMULATOR_HOST on its own.
func newEmulatorLedger(t *testing.T) *FirestoreLedger {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ledger, err := NewFirestoreLedger(context.Background(), "bid-front-test", "(default)", "sign_ins_"+uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestFirestoreLedgerRecordSignIn(t *testing.T) {
	ctx := context.Background()
	ledger := newEmulatorLedger(t)
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	second := first.Add(48 * time.Hour)

	_, err := ledger.GetSignIn(ctx, "u1")
	assert.ErrorIs(t, err, ErrSignInNotFound)

	require.NoError(t, ledger.RecordSignIn(ctx, SignInEvent{UserID: "u1", Email: "a@example.com", Provider: "google", At: first}))
	got, err := ledger.GetSignIn(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Count)
	assert.Equal(t, "google", got.LastProvider)
	assert.True(t, got.FirstSeen.Equal(first))
	assert.True(t, got.LastSeen.Equal(first))

	require.NoError(t, ledger.RecordSignIn(ctx, SignInEvent{UserID: "u1", Email: "a+new@example.com", Provider: "naver", At: second}))
	got, err = ledger.GetSignIn(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Count, "existing document is incremented")
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "a+new@example.com", got.Email)
	assert.Equal(t, "naver", got.LastProvider)
	assert.True(t, got.FirstSeen.Equal(first), "first sign-in time is kept")
	assert.True(t, got.LastSeen.Equal(second))
}

func TestFirestoreLedgerRecentSignIns(t *testing.T) {
	ctx := context.Background()
	ledger := newEmulatorLedger(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []SignInEvent{
		{UserID: "old", Email: "old@example.com", Provider: "kakao", At: base},
		{UserID: "newest", Email: "newest@example.com", Provider: "google", At: base.Add(2 * time.Hour)},
		{UserID: "middle", Email: "middle@example.com", Provider: "naver", At: base.Add(time.Hour)},
	}
	for _, ev := range events {
		require.NoError(t, ledger.RecordSignIn(ctx, ev))
	}

	recent, err := ledger.RecentSignIns(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(recent))
	for _, r := range recent {
		ids = append(ids, r.UserID)
	}
	assert.Equal(t, []string{"newest", "middle", "old"}, ids)

	limited, err := ledger.RecentSignIns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "newest", limited[0].UserID)
	assert.Equal(t, "middle", limited[1].UserID)
}
