package core

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/subscription-sentry/internal/registry"
)

// DefaultModelTimeout bounds a single backend call. On timeout the
// pipeline degrades to the rule-based extractor synchronously; the
// rule-based path is the designed safety net, so no retry is attempted.
const DefaultModelTimeout = 30 * time.Second

// DedupWindow is the recent-time window the store collaborator uses to
// suppress duplicate detections of the same service
const DedupWindow = 7 * 24 * time.Hour

// ExtractionService is the core pipeline: prefilter gate, model-based
// extraction with rule-based fallback, decision policy, persistence.
type ExtractionService struct {
	gate         Gate
	model        ModelClient
	rules        Extractor
	policy       DecisionPolicy
	store        ResultStore
	registry     *registry.Registry
	logger       *zap.Logger
	modelTimeout time.Duration
}

// NewExtractionService creates the pipeline service. model and store may
// be nil: without a model client every message takes the rule-based
// path, and without a store accepted results are only returned.
func NewExtractionService(
	gate Gate,
	model ModelClient,
	rules Extractor,
	policy DecisionPolicy,
	store ResultStore,
	reg *registry.Registry,
	logger *zap.Logger,
	modelTimeout time.Duration,
) *ExtractionService {
	if modelTimeout <= 0 {
		modelTimeout = DefaultModelTimeout
	}
	return &ExtractionService{
		gate:         gate,
		model:        model,
		rules:        rules,
		policy:       policy,
		store:        store,
		registry:     reg,
		logger:       logger,
		modelTimeout: modelTimeout,
	}
}

// ProcessMessage runs one message through the full pipeline. It always
// returns a well-formed result and decision; no failure of a backend or
// the store escapes as an error.
func (s *ExtractionService) ProcessMessage(ctx context.Context, msg *EmailMessage) (*ExtractionResult, Decision) {
	if decision := s.gate.Check(msg.Subject, msg.Body); !decision.Passed {
		s.logger.Debug("Message rejected by prefilter",
			zap.String("message_id", msg.ID),
			zap.String("reason", decision.Reason))
		return s.emptyResult("prefilter"), Decision{Outcome: OutcomeReject, Reason: decision.Reason}
	}

	result := s.extract(ctx, msg)
	decision := s.policy.Decide(result)

	if decision.Outcome == OutcomeAccept && s.store != nil {
		if err := s.store.Save(ctx, RecordFromResult(msg, result)); err != nil {
			s.logger.Error("Failed to persist extraction result",
				zap.Error(err),
				zap.String("message_id", msg.ID))
		}
	}

	return result, decision
}

// Triage runs one message through the pipeline with the interactive
// decision mode, surfacing borderline results for manual review
func (s *ExtractionService) Triage(ctx context.Context, msg *EmailMessage) (*ExtractionResult, Decision) {
	if decision := s.gate.Check(msg.Subject, msg.Body); !decision.Passed {
		return s.emptyResult("prefilter"), Decision{Outcome: OutcomeReject, Reason: decision.Reason}
	}
	result := s.extract(ctx, msg)
	if triager, ok := s.policy.(interface {
		Triage(res *ExtractionResult) Decision
	}); ok {
		return result, triager.Triage(result)
	}
	return result, s.policy.Decide(result)
}

// ProcessBatch processes a bounded mailbox page with up to concurrency
// workers. Messages are independent; no ordering is guaranteed between
// them. Cancelling ctx stops scheduling further messages but never
// aborts an in-flight single-message extraction.
func (s *ExtractionService) ProcessBatch(ctx context.Context, msgs []*EmailMessage, concurrency int) []*ExtractionResult {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]*ExtractionResult, len(msgs))
	g := &errgroup.Group{}
	g.SetLimit(concurrency)

	for i, msg := range msgs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// the in-flight extraction carries its own timeout rather
			// than the batch context, so batch cancellation cannot
			// abort it mid-message
			res, _ := s.ProcessMessage(context.WithoutCancel(ctx), msg)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for i := range results {
		if results[i] == nil {
			results[i] = s.emptyResult("cancelled")
		}
	}
	return results
}

// extract attempts the model backend and falls back to the rule-based
// extractor on any failure
func (s *ExtractionService) extract(ctx context.Context, msg *EmailMessage) *ExtractionResult {
	if s.model == nil {
		return s.rules.Extract(msg)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()

	reply, err := s.model.ExtractSubscription(callCtx, msg)
	if err != nil {
		s.logger.Warn("Model backend failed, falling back to rule-based extraction",
			zap.Error(err),
			zap.String("message_id", msg.ID))
		return s.rules.Extract(msg)
	}

	if !reply.IsSubscription || reply.ServiceName == "" {
		return s.emptyResult("model")
	}
	return s.mapModelReply(reply)
}

// mapModelReply validates and normalizes a structured backend reply
func (s *ExtractionService) mapModelReply(reply *ModelReply) *ExtractionResult {
	guess := &ServiceNameGuess{
		Value:      reply.ServiceName,
		Confidence: clamp01(reply.Confidence),
	}
	if canonical, ok := s.registry.Canonical(reply.ServiceName); ok {
		guess.Value = canonical
		guess.FromRegistry = true
	}

	result := &ExtractionResult{
		ServiceName: guess,
		TrialEnd:    validISODate(reply.TrialEndDate),
		FirstCharge: validISODate(reply.FirstChargeDate),
		Renewal:     validISODate(reply.RenewalDate),
		Amount:      reply.Amount,
		Currency:    reply.Currency,
		Confidence:  clamp01(reply.Confidence),
		Language:    "en",
		Backend:     "model",
		ExtractedAt: time.Now(),
	}

	switch BillingCycle(reply.BillingCycle) {
	case CycleDaily, CycleWeekly, CycleMonthly, CycleYearly:
		result.BillingCycle = BillingCycle(reply.BillingCycle)
	}

	result.NeedsReview = result.Confidence < 0.7 || !result.HasDate()
	return result
}

func (s *ExtractionService) emptyResult(backend string) *ExtractionResult {
	return &ExtractionResult{
		Confidence:  0,
		NeedsReview: true,
		Language:    "en",
		Backend:     backend,
		ExtractedAt: time.Now(),
	}
}

// RecordFromResult builds the persistence record for an accepted result
func RecordFromResult(msg *EmailMessage, res *ExtractionResult) *SubscriptionRecord {
	rec := &SubscriptionRecord{
		MessageID:    msg.ID,
		TrialEnd:     res.TrialEnd,
		FirstCharge:  res.FirstCharge,
		Renewal:      res.Renewal,
		Amount:       res.Amount,
		Currency:     res.Currency,
		BillingCycle: res.BillingCycle,
		Confidence:   res.Confidence,
		DetectedAt:   res.ExtractedAt,
	}
	if res.ServiceName != nil {
		rec.ServiceName = res.ServiceName.Value
		rec.FromRegistry = res.ServiceName.FromRegistry
	}
	return rec
}

// validISODate returns the date unchanged when it parses as YYYY-MM-DD,
// otherwise ""; malformed backend dates are dropped, never propagated
func validISODate(date string) string {
	if date == "" {
		return ""
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return ""
	}
	return date
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
