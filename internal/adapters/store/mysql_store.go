package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/core"
)

// MySQLStore is a MySQL implementation of the ResultStore interface
type MySQLStore struct {
	db          *sql.DB
	logger      *zap.Logger
	retention   time.Duration
	dedupWindow time.Duration
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewMySQLStore creates a new MySQL result store
func NewMySQLStore(dsn string, logger *zap.Logger, retention, dedupWindow, cleanupFreq time.Duration) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS subscriptions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			message_id VARCHAR(255) NOT NULL,
			service_name VARCHAR(255) NOT NULL,
			from_registry BOOLEAN,
			trial_end VARCHAR(10),
			first_charge VARCHAR(10),
			renewal VARCHAR(10),
			amount DOUBLE,
			currency VARCHAR(8),
			billing_cycle VARCHAR(16),
			confidence DOUBLE,
			detected_at TIMESTAMP,
			UNIQUE KEY uniq_service_message (service_name, message_id),
			KEY idx_detected_at (detected_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	s := &MySQLStore{
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
func (s *MySQLStore) Save(ctx context.Context, rec *core.SubscriptionRecord) error {
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
		rec.DetectedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert subscription record: %w", err)
	}
	return nil
}

// Exists reports whether a record for the service was already stored for
// the message, or within the window
func (s *MySQLStore) Exists(ctx context.Context, serviceName, messageID string, window time.Duration) (bool, error) {
	cutoff := time.Now().Add(-window).UTC()

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
func (s *MySQLStore) Cleanup(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention).UTC()

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

func (s *MySQLStore) startCleanupTask() {
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
func (s *MySQLStore) Stop() {
	close(s.stopCh)
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close MySQL connection", zap.Error(err))
	}
}
