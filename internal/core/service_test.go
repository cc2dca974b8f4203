package core_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/registry"
)

type stubGate struct {
	passed bool
	reason string
}

func (g *stubGate) Check(subject, body string) core.GateDecision {
	return core.GateDecision{Passed: g.passed, Reason: g.reason}
}

type stubModel struct {
	reply *core.ModelReply
	err   error
	calls atomic.Int64
}

func (m *stubModel) ExtractSubscription(ctx context.Context, msg *core.EmailMessage) (*core.ModelReply, error) {
	m.calls.Add(1)
	return m.reply, m.err
}

type stubRules struct {
	result *core.ExtractionResult
	calls  atomic.Int64
}

func (r *stubRules) Extract(msg *core.EmailMessage) *core.ExtractionResult {
	r.calls.Add(1)
	if r.result != nil {
		return r.result
	}
	return &core.ExtractionResult{Backend: "rule", Language: "en", ExtractedAt: time.Now()}
}

type acceptAllPolicy struct{}

func (acceptAllPolicy) Decide(res *core.ExtractionResult) core.Decision {
	return core.Decision{Outcome: core.OutcomeAccept, Reason: "accepted"}
}

type reviewPolicy struct{}

func (reviewPolicy) Decide(res *core.ExtractionResult) core.Decision {
	return core.Decision{Outcome: core.OutcomeReject, Reason: "low_confidence"}
}

func (reviewPolicy) Triage(res *core.ExtractionResult) core.Decision {
	return core.Decision{Outcome: core.OutcomeNeedsReview, Reason: "low_confidence"}
}

type stubStore struct {
	saved []*core.SubscriptionRecord
	err   error
}

func (s *stubStore) Save(ctx context.Context, rec *core.SubscriptionRecord) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, rec)
	return nil
}

func (s *stubStore) Exists(ctx context.Context, serviceName, messageID string, window time.Duration) (bool, error) {
	return false, nil
}

func (s *stubStore) Cleanup(ctx context.Context) error { return nil }

func newService(gate core.Gate, model core.ModelClient, rules core.Extractor, pol core.DecisionPolicy, store core.ResultStore) *core.ExtractionService {
	return core.NewExtractionService(gate, model, rules, pol, store, registry.New(nil), zap.NewNop(), time.Second)
}

func testMessage(id string) *core.EmailMessage {
	return &core.EmailMessage{
		ID:            id,
		Subject:       "Welcome to Netflix",
		SenderAddress: "info@netflix.com",
		Body:          "Your free trial ends on July 15, 2025.",
		ReceivedAt:    time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestProcessMessagePrefilterShortCircuits(t *testing.T) {
	model := &stubModel{}
	rules := &stubRules{}
	svc := newService(&stubGate{passed: false, reason: "marketing_content"}, model, rules, acceptAllPolicy{}, nil)

	result, decision := svc.ProcessMessage(context.Background(), testMessage("msg-1"))

	assert.Equal(t, core.OutcomeReject, decision.Outcome)
	assert.Equal(t, "marketing_content", decision.Reason)
	assert.Equal(t, "prefilter", result.Backend)
	assert.True(t, result.NeedsReview)
	assert.EqualValues(t, 0, model.calls.Load(), "rejected mail must never reach a backend")
	assert.EqualValues(t, 0, rules.calls.Load())
}

func TestProcessMessageModelPath(t *testing.T) {
	model := &stubModel{reply: &core.ModelReply{
		IsSubscription:  true,
		ServiceName:     "netflix",
		Amount:          15.49,
		Currency:        "USD",
		BillingCycle:    "monthly",
		TrialEndDate:    "2025-07-15",
		FirstChargeDate: "July 20",
		Confidence:      0.95,
	}}
	store := &stubStore{}
	svc := newService(&stubGate{passed: true}, model, &stubRules{}, acceptAllPolicy{}, store)

	result, decision := svc.ProcessMessage(context.Background(), testMessage("msg-2"))

	assert.Equal(t, core.OutcomeAccept, decision.Outcome)
	assert.Equal(t, "model", result.Backend)
	require.NotNil(t, result.ServiceName)
	assert.Equal(t, "Netflix", result.ServiceName.Value, "registry casing is canonical")
	assert.True(t, result.ServiceName.FromRegistry)
	assert.Equal(t, "2025-07-15", result.TrialEnd)
	assert.Empty(t, result.FirstCharge, "malformed backend dates are dropped")
	assert.Equal(t, core.CycleMonthly, result.BillingCycle)
	assert.False(t, result.NeedsReview)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "msg-2", store.saved[0].MessageID)
	assert.Equal(t, "Netflix", store.saved[0].ServiceName)
	assert.True(t, store.saved[0].FromRegistry)
}

func TestProcessMessageModelReplyValidation(t *testing.T) {
	model := &stubModel{reply: &core.ModelReply{
		IsSubscription: true,
		ServiceName:    "Quizlet",
		BillingCycle:   "biweekly",
		RenewalDate:    "2025-09-01",
		Confidence:     1.7,
	}}
	svc := newService(&stubGate{passed: true}, model, &stubRules{}, acceptAllPolicy{}, nil)

	result, _ := svc.ProcessMessage(context.Background(), testMessage("msg-3"))

	require.NotNil(t, result.ServiceName)
	assert.Equal(t, "Quizlet", result.ServiceName.Value)
	assert.False(t, result.ServiceName.FromRegistry)
	assert.Equal(t, core.BillingCycle(""), result.BillingCycle, "unrecognized cycles are dropped")
	assert.InDelta(t, 1.0, result.Confidence, 1e-9, "confidence is clamped")
	assert.Equal(t, "2025-09-01", result.Renewal)
}

func TestProcessMessageModelFailureFallsBack(t *testing.T) {
	model := &stubModel{err: errors.New("throttled")}
	rules := &stubRules{}
	svc := newService(&stubGate{passed: true}, model, rules, acceptAllPolicy{}, nil)

	result, _ := svc.ProcessMessage(context.Background(), testMessage("msg-4"))

	assert.EqualValues(t, 1, model.calls.Load())
	assert.EqualValues(t, 1, rules.calls.Load())
	assert.Equal(t, "rule", result.Backend)
}

func TestProcessMessageModelSaysNotSubscription(t *testing.T) {
	model := &stubModel{reply: &core.ModelReply{IsSubscription: false}}
	rules := &stubRules{}
	svc := newService(&stubGate{passed: true}, model, rules, acceptAllPolicy{}, nil)

	result, _ := svc.ProcessMessage(context.Background(), testMessage("msg-5"))

	assert.Equal(t, "model", result.Backend)
	assert.True(t, result.NeedsReview)
	assert.Zero(t, result.Confidence)
	assert.EqualValues(t, 0, rules.calls.Load(), "a definitive negative does not fall back")
}

func TestProcessMessageWithoutModelUsesRules(t *testing.T) {
	rules := &stubRules{}
	svc := newService(&stubGate{passed: true}, nil, rules, acceptAllPolicy{}, nil)

	result, _ := svc.ProcessMessage(context.Background(), testMessage("msg-6"))

	assert.EqualValues(t, 1, rules.calls.Load())
	assert.Equal(t, "rule", result.Backend)
}

func TestProcessMessageStoreFailureDoesNotEscape(t *testing.T) {
	model := &stubModel{reply: &core.ModelReply{
		IsSubscription: true,
		ServiceName:    "Netflix",
		TrialEndDate:   "2025-07-15",
		Confidence:     0.95,
	}}
	store := &stubStore{err: errors.New("disk full")}
	svc := newService(&stubGate{passed: true}, model, &stubRules{}, acceptAllPolicy{}, store)

	_, decision := svc.ProcessMessage(context.Background(), testMessage("msg-7"))

	assert.Equal(t, core.OutcomeAccept, decision.Outcome)
	assert.Empty(t, store.saved)
}

func TestTriagePrefersPolicyTriage(t *testing.T) {
	svc := newService(&stubGate{passed: true}, nil, &stubRules{}, reviewPolicy{}, nil)

	_, decision := svc.Triage(context.Background(), testMessage("msg-8"))

	assert.Equal(t, core.OutcomeNeedsReview, decision.Outcome)
	assert.Equal(t, "low_confidence", decision.Reason)
}

func TestProcessBatch(t *testing.T) {
	model := &stubModel{reply: &core.ModelReply{
		IsSubscription: true,
		ServiceName:    "Netflix",
		TrialEndDate:   "2025-07-15",
		Confidence:     0.95,
	}}
	svc := newService(&stubGate{passed: true}, model, &stubRules{}, acceptAllPolicy{}, nil)

	msgs := make([]*core.EmailMessage, 5)
	for i := range msgs {
		msgs[i] = testMessage("batch-" + string(rune('a'+i)))
	}

	results := svc.ProcessBatch(context.Background(), msgs, 2)

	require.Len(t, results, 5)
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, "model", res.Backend)
	}
	assert.EqualValues(t, 5, model.calls.Load())
}

func TestProcessBatchCancelledContext(t *testing.T) {
	model := &stubModel{}
	svc := newService(&stubGate{passed: true}, model, &stubRules{}, acceptAllPolicy{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := svc.ProcessBatch(ctx, []*core.EmailMessage{testMessage("x"), testMessage("y")}, 2)

	require.Len(t, results, 2)
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, "cancelled", res.Backend)
		assert.True(t, res.NeedsReview)
	}
	assert.EqualValues(t, 0, model.calls.Load())
}
