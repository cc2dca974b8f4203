package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/core"
)

// SQLiteStore is a SQLite implementation of the ResultStore interface
type SQLiteStore struct {
	db          *sql.DB
	logger      *zap.Logger
	retention   time.Duration
	dedupWindow time.Duration
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewSQLiteStore creates a new SQLite result store
func NewSQLiteStore(dbPath string, logger *zap.Logger, retention, dedupWindow, cleanupFreq time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL,
			service_name TEXT NOT NULL,
			from_registry BOOLEAN,
			trial_end TEXT,
			first_charge TEXT,
			renewal TEXT,
			amount REAL,
			currency TEXT,
			billing_cycle TEXT,
			confidence REAL,
			detected_at TIMESTAMP,
			UNIQUE(service_name, message_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_subscriptions_detected_at ON subscriptions(detected_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	s := &SQLiteStore{
		db:          db,
		logger:      logger,
		retention:   retention,
		dedupWindow: dedupWindow,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}

	return s, nil
}

// Save persists a record unless a duplicate already exists
func (s *SQLiteStore) Save(ctx context.Context, rec *core.SubscriptionRecord) error {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscriptions
			(message_id, service_name, from_registry, trial_end, first_charge, renewal,
			 amount, currency, billing_cycle, confidence, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.MessageID, rec.ServiceName, rec.FromRegistry, rec.TrialEnd, rec.FirstCharge,
		rec.Renewal, rec.Amount, rec.Currency, string(rec.BillingCycle), rec.Confidence,
		rec.DetectedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert subscription record: %w", err)
	}
	return nil
}

// Exists reports whether a record for the service was already stored for
// the message, or within the window
func (s *SQLiteStore) Exists(ctx context.Context, serviceName, messageID string, window time.Duration) (bool, error) {
	cutoff := time.Now().Add(-window).UTC().Format(time.RFC3339)

	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM subscriptions
		WHERE service_name = ? AND (message_id = ? OR detected_at > ?)
		LIMIT 1
	`, serviceName, messageID, cutoff).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	return true, nil
}

// Cleanup removes records older than the retention period
func (s *SQLiteStore) Cleanup(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention).UTC().Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE detected_at <= ?
	`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up expired records: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else if rowsAffected > 0 {
		s.logger.Debug("Cleaned up expired subscription records", zap.Int64("removed", rowsAffected))
	}
	return nil
}

func (s *SQLiteStore) startCleanupTask() {
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

// Stop stops the background cleanup task and closes the database
func (s *SQLiteStore) Stop() {
	close(s.stopCh)
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}
