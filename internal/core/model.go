package core

import (
	"time"
)

// EmailMessage represents a raw transactional email supplied by the mailbox collaborator
type EmailMessage struct {
	ID            string
	Subject       string
	SenderName    string
	SenderAddress string
	Body          string
	ReceivedAt    time.Time
}

// ServiceNameGuess is one candidate merchant identity with its provenance
type ServiceNameGuess struct {
	Value        string
	Confidence   float64
	FromRegistry bool
}

// DateRole tags an extracted date with its semantic role
type DateRole string

const (
	RoleTrialEnd    DateRole = "trial_end"
	RoleFirstCharge DateRole = "first_charge"
	RoleRenewal     DateRole = "renewal"
	RoleUnassigned  DateRole = "unassigned"
)

// DateMethod records how a date expression was resolved
type DateMethod string

const (
	MethodAbsolute DateMethod = "absolute"
	MethodRelative DateMethod = "relative"
)

// BillingCycle is the recurring billing cadence
type BillingCycle string

const (
	CycleDaily   BillingCycle = "daily"
	CycleWeekly  BillingCycle = "weekly"
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// ExtractedDate is a single date found in the email text
type ExtractedDate struct {
	ISODate       string
	Role          DateRole
	MatchedPhrase string
	Method        DateMethod
}

// ExtractionResult is the unit of pipeline output, one per input message.
// Empty date fields and a nil service name with low confidence mean
// "not a subscription". Date fields hold ISO dates (YYYY-MM-DD) or "".
type ExtractionResult struct {
	ServiceName    *ServiceNameGuess
	TrialEnd       string
	FirstCharge    string
	Renewal        string
	Amount         float64
	Currency       string
	BillingCycle   BillingCycle
	Confidence     float64
	NeedsReview    bool
	MatchedPhrases []string
	Language       string
	Backend        string
	ExtractedAt    time.Time
}

// HasDate reports whether any of the three date fields is set
func (r *ExtractionResult) HasDate() bool {
	return r.TrialEnd != "" || r.FirstCharge != "" || r.Renewal != ""
}

// DateCount returns how many of the three date fields are set
func (r *ExtractionResult) DateCount() int {
	n := 0
	if r.TrialEnd != "" {
		n++
	}
	if r.FirstCharge != "" {
		n++
	}
	if r.Renewal != "" {
		n++
	}
	return n
}

// ModelReply is the structured object the model backend is instructed to return
type ModelReply struct {
	IsSubscription  bool    `json:"is_subscription"`
	ServiceName     string  `json:"service_name"`
	Type            string  `json:"type"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	BillingCycle    string  `json:"billing_cycle"`
	TrialEndDate    string  `json:"trial_end_date"`
	FirstChargeDate string  `json:"first_charge_date"`
	RenewalDate     string  `json:"renewal_date"`
	StartDate       string  `json:"start_date"`
	CancelURL       string  `json:"cancel_url"`
	Confidence      float64 `json:"confidence"`
}

// DecisionOutcome classifies an extraction result for the consuming side
type DecisionOutcome string

const (
	OutcomeAccept      DecisionOutcome = "accept"
	OutcomeReject      DecisionOutcome = "reject"
	OutcomeNeedsReview DecisionOutcome = "needs_review"
)

// Decision is derived from an ExtractionResult plus policy thresholds.
// It is recomputed on demand, never stored.
type Decision struct {
	Outcome DecisionOutcome
	Reason  string
}

// SubscriptionRecord is the shape handed to the persistence collaborator
// for an accepted extraction
type SubscriptionRecord struct {
	MessageID    string
	ServiceName  string
	FromRegistry bool
	TrialEnd     string
	FirstCharge  string
	Renewal      string
	Amount       float64
	Currency     string
	BillingCycle BillingCycle
	Confidence   float64
	DetectedAt   time.Time
}
