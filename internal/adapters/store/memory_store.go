package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/core"
)

// MemoryStore is an in-memory implementation of the ResultStore
// interface, used by the CLI and in tests
type MemoryStore struct {
	records     []*core.SubscriptionRecord
	mu          sync.RWMutex
	logger      *zap.Logger
	retention   time.Duration
	dedupWindow time.Duration
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryStore creates a new in-memory result store
func NewMemoryStore(logger *zap.Logger, retention, dedupWindow, cleanupFreq time.Duration) *MemoryStore {
	s := &MemoryStore{
		logger:      logger,
		retention:   retention,
		dedupWindow: dedupWindow,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}

	return s
}

// Save persists a record unless a duplicate already exists
func (s *MemoryStore) Save(ctx context.Context, rec *core.SubscriptionRecord) error {
	dup, err := s.Exists(ctx, rec.ServiceName, rec.MessageID, s.dedupWindow)
	if err != nil {
		return err
	}
	if dup {
		s.logger.Debug("Skipping duplicate subscription record",
			zap.String("service", rec.ServiceName),
			zap.String("message_id", rec.MessageID))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.records = append(s.records, &clone)
	return nil
}

// Exists reports whether a record for the service was already stored for
// the message, or within the window
func (s *MemoryStore) Exists(_ context.Context, serviceName, messageID string, window time.Duration) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	for _, rec := range s.records {
		if rec.ServiceName != serviceName {
			continue
		}
		if rec.MessageID == messageID {
			return true, nil
		}
		if window > 0 && rec.DetectedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// All returns a snapshot of the stored records
func (s *MemoryStore) All() []*core.SubscriptionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.SubscriptionRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Cleanup removes records older than the retention period
func (s *MemoryStore) Cleanup(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.retention)
	kept := s.records[:0]
	removed := 0
	for _, rec := range s.records {
		if rec.DetectedAt.After(cutoff) {
			kept = append(kept, rec)
		} else {
			removed++
		}
	}
	s.records = kept

	if removed > 0 {
		s.logger.Debug("Cleaned up expired subscription records", zap.Int("removed", removed))
	}
	return nil
}

func (s *MemoryStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to clean up store", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
