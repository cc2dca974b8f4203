package core

import (
	"context"
	"time"
)

// GateDecision is the outcome of the prefilter/confirmation screens
type GateDecision struct {
	Passed bool
	Reason string
	Term   string
}

// Gate screens a message before any extraction backend is invoked
type Gate interface {
	Check(subject, body string) GateDecision
}

// DecisionPolicy converts an extraction result into an accept/reject
// decision using confidence and registry thresholds
type DecisionPolicy interface {
	Decide(res *ExtractionResult) Decision
}

// ModelClient defines the interface for the structured-model extraction backend
type ModelClient interface {
	// ExtractSubscription asks the backend whether the email documents a
	// paid-service signup and, if so, for the structured fields
	ExtractSubscription(ctx context.Context, msg *EmailMessage) (*ModelReply, error)
}

// Extractor produces a full extraction result from a single message.
// Implementations never return an error for a single message; failure
// modes resolve to an empty or low-confidence result.
type Extractor interface {
	Extract(msg *EmailMessage) *ExtractionResult
}

// MailboxSource supplies raw message records for a bounded recent window.
// Search, fetch and pagination semantics belong to the implementation.
type MailboxSource interface {
	Messages(ctx context.Context, since time.Time) ([]*EmailMessage, error)
}

// ResultStore is the persistence collaborator for accepted extractions
type ResultStore interface {
	// Save persists a record, deduplicating against existing ones by
	// (service name, message id) and by a recent-time window per service.
	// A deduplicated save is not an error.
	Save(ctx context.Context, rec *SubscriptionRecord) error

	// Exists reports whether a record for the service was already stored
	// for the message, or within the given window of its detection time
	Exists(ctx context.Context, serviceName, messageID string, window time.Duration) (bool, error)

	// Cleanup removes records older than the store's retention period
	Cleanup(ctx context.Context) error
}
