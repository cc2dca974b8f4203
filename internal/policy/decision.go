package policy

import (
	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/registry"
)

// DefaultMinConfidence is the pipeline-level acceptance threshold
const DefaultMinConfidence = 0.9

// Reason codes carried on decisions
const (
	ReasonAccepted       = "accepted"
	ReasonNoServiceName  = "no_service_name"
	ReasonUnknownService = "unknown_service"
	ReasonLowConfidence  = "low_confidence"
)

// Policy converts extraction results into accept/reject decisions.
// Acceptance requires all of: confidence at or above the threshold, a
// service name, and registry membership for that name.
type Policy struct {
	registry      *registry.Registry
	minConfidence float64
}

// New creates a policy over the registry; minConfidence <= 0 selects the
// default threshold
func New(reg *registry.Registry, minConfidence float64) *Policy {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Policy{registry: reg, minConfidence: minConfidence}
}

// Decide is the batch-pipeline decision: strict accept-or-reject.
// Sub-threshold results are rejected, not queued for review; the
// automated ingestion path is conservative by policy.
func (p *Policy) Decide(res *core.ExtractionResult) core.Decision {
	if res.ServiceName == nil {
		return core.Decision{Outcome: core.OutcomeReject, Reason: ReasonNoServiceName}
	}
	if !p.registry.IsKnown(res.ServiceName.Value) {
		return core.Decision{Outcome: core.OutcomeReject, Reason: ReasonUnknownService}
	}
	if res.Confidence < p.minConfidence {
		return core.Decision{Outcome: core.OutcomeReject, Reason: ReasonLowConfidence}
	}
	return core.Decision{Outcome: core.OutcomeAccept, Reason: ReasonAccepted}
}

// Triage is the interactive-review decision: borderline results surface
// as NeedsReview at the extractor-flag granularity instead of being
// discarded
func (p *Policy) Triage(res *core.ExtractionResult) core.Decision {
	decision := p.Decide(res)
	if decision.Outcome == core.OutcomeAccept {
		return decision
	}
	if res.NeedsReview {
		return core.Decision{Outcome: core.OutcomeNeedsReview, Reason: decision.Reason}
	}
	return decision
}
