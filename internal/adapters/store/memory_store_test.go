package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/adapters/store"
	"github.com/mikey/subscription-sentry/internal/core"
)

func newTestStore(t *testing.T, dedupWindow time.Duration) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore(zap.NewNop(), 90*24*time.Hour, dedupWindow, 0)
	t.Cleanup(s.Stop)
	return s
}

func record(messageID, service string, detectedAt time.Time) *core.SubscriptionRecord {
	return &core.SubscriptionRecord{
		MessageID:   messageID,
		ServiceName: service,
		TrialEnd:    "2025-07-15",
		Confidence:  0.95,
		DetectedAt:  detectedAt,
	}
}

func TestMemoryStoreSaveAndDedupByMessageID(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	old := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, s.Save(ctx, record("msg-1", "Netflix", old)))
	require.NoError(t, s.Save(ctx, record("msg-1", "Netflix", old)))

	assert.Len(t, s.All(), 1, "same message id is stored once")
}

func TestMemoryStoreDedupWindow(t *testing.T) {
	s := newTestStore(t, 7*24*time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, record("msg-1", "Netflix", time.Now())))
	require.NoError(t, s.Save(ctx, record("msg-2", "Netflix", time.Now())))
	require.NoError(t, s.Save(ctx, record("msg-3", "Hulu", time.Now())))

	records := s.All()
	require.Len(t, records, 2, "second Netflix detection inside the window is suppressed")
	assert.Equal(t, "Netflix", records[0].ServiceName)
	assert.Equal(t, "Hulu", records[1].ServiceName)
}

func TestMemoryStoreSameServiceOutsideWindow(t *testing.T) {
	s := newTestStore(t, 7*24*time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, record("msg-1", "Netflix", time.Now().Add(-8*24*time.Hour))))
	require.NoError(t, s.Save(ctx, record("msg-2", "Netflix", time.Now())))

	assert.Len(t, s.All(), 2)
}

func TestMemoryStoreExists(t *testing.T) {
	s := newTestStore(t, 7*24*time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, record("msg-1", "Netflix", time.Now())))

	exists, err := s.Exists(ctx, "Netflix", "msg-1", 0)
	require.NoError(t, err)
	assert.True(t, exists, "matched by message id even with no window")

	exists, err = s.Exists(ctx, "Netflix", "other", 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, exists, "matched by recent detection window")

	exists, err = s.Exists(ctx, "Hulu", "msg-1", 7*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStoreCleanup(t *testing.T) {
	s := store.NewMemoryStore(zap.NewNop(), 24*time.Hour, 0, 0)
	t.Cleanup(s.Stop)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, record("msg-1", "Netflix", time.Now().Add(-48*time.Hour))))
	require.NoError(t, s.Save(ctx, record("msg-2", "Hulu", time.Now())))

	require.NoError(t, s.Cleanup(ctx))

	records := s.All()
	require.Len(t, records, 1)
	assert.Equal(t, "msg-2", records[0].MessageID)
}

func TestMemoryStoreSaveCopiesRecord(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	rec := record("msg-1", "Netflix", time.Now())
	require.NoError(t, s.Save(ctx, rec))
	rec.ServiceName = "mutated"

	assert.Equal(t, "Netflix", s.All()[0].ServiceName)
}
