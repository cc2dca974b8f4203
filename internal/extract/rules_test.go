package extract_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/extract"
	"github.com/mikey/subscription-sentry/internal/registry"
)

func newRuleExtractor(t *testing.T) *extract.RuleBasedExtractor {
	t.Helper()
	return extract.NewRuleBasedExtractor(registry.New(nil), zap.NewNop())
}

func TestExtractTrialConfirmation(t *testing.T) {
	e := newRuleExtractor(t)

	res := e.Extract(&core.EmailMessage{
		ID:            "msg-1",
		Subject:       "Welcome to Netflix",
		SenderAddress: "info@netflix.com",
		Body:          "Your free trial ends on July 15, 2025. After that you will be charged $15.49/month.",
		ReceivedAt:    time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NotNil(t, res.ServiceName)
	assert.Equal(t, "Netflix", res.ServiceName.Value)
	assert.True(t, res.ServiceName.FromRegistry)
	assert.Equal(t, "2025-07-15", res.TrialEnd)
	assert.InDelta(t, 15.49, res.Amount, 1e-9)
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, core.CycleMonthly, res.BillingCycle)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.False(t, res.NeedsReview)
	assert.Equal(t, "rule", res.Backend)
	assert.Equal(t, "en", res.Language)
}

func TestExtractHuluTrialFromSubject(t *testing.T) {
	e := newRuleExtractor(t)

	res := e.Extract(&core.EmailMessage{
		Subject:    "Your Hulu Free Trial Has Begun",
		Body:       "Your free trial ends on August 15, 2025. After the trial you will be charged $7.99/month.",
		ReceivedAt: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NotNil(t, res.ServiceName)
	assert.Equal(t, "Hulu", res.ServiceName.Value)
	assert.True(t, res.ServiceName.FromRegistry)
	assert.Equal(t, "2025-08-15", res.TrialEnd)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)
	assert.False(t, res.NeedsReview)
}

func TestExtractAppleTVPlusCharge(t *testing.T) {
	e := newRuleExtractor(t)

	res := e.Extract(&core.EmailMessage{
		Subject:    "Your Apple TV+ Trial is Active",
		Body:       "Your Apple TV+ trial is active. You will be charged $9.99 on July 22, 2025.",
		ReceivedAt: time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC),
	})

	require.NotNil(t, res.ServiceName)
	assert.Equal(t, "Apple TV+", res.ServiceName.Value, "longest registry match wins over Apple")
	assert.Equal(t, "2025-07-22", res.FirstCharge)
}

func TestExtractTrialAndChargeDates(t *testing.T) {
	e := newRuleExtractor(t)

	res := e.Extract(&core.EmailMessage{
		Subject:    "",
		Body:       "Your free trial ends on 2025-08-01. You will be charged on 2025-09-01 for your Spotify Premium subscription.",
		ReceivedAt: time.Date(2025, time.July, 10, 0, 0, 0, 0, time.UTC),
	})

	require.NotNil(t, res.ServiceName)
	assert.Equal(t, "Spotify", res.ServiceName.Value)
	assert.Equal(t, "2025-08-01", res.TrialEnd)
	assert.Equal(t, "2025-09-01", res.FirstCharge)
	assert.Equal(t, 2, res.DateCount())
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.False(t, res.NeedsReview)
}

func TestExtractRelativeDate(t *testing.T) {
	e := newRuleExtractor(t)

	res := e.Extract(&core.EmailMessage{
		Subject:       "Your Hulu trial",
		SenderAddress: "no-reply@hulu.com",
		Body:          "Welcome! Your free trial ends in 3 days and we want you to enjoy it.",
		ReceivedAt:    time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "2025-07-13", res.TrialEnd)
	assert.False(t, res.NeedsReview)
}

func TestExtractFallbackFirstCharge(t *testing.T) {
	e := newRuleExtractor(t)

	res := e.Extract(&core.EmailMessage{
		Subject:    "",
		Body:       "Welcome to your Hulu plan. Your first charge will occur on July 18.",
		ReceivedAt: time.Date(2025, time.July, 10, 0, 0, 0, 0, time.UTC),
	})

	require.NotNil(t, res.ServiceName)
	assert.Equal(t, "Hulu", res.ServiceName.Value)
	assert.Equal(t, "2025-07-18", res.FirstCharge)
	assert.Empty(t, res.TrialEnd)
	// no phrase window association here, so the 0.1 bonus is withheld
	assert.InDelta(t, 0.89, res.Confidence, 1e-9)
	assert.False(t, res.NeedsReview)
}

func TestExtractNonEnglishContent(t *testing.T) {
	e := newRuleExtractor(t)

	res := e.Extract(&core.EmailMessage{
		Subject:    "Bienvenido a Netflix",
		Body:       "Tu prueba gratis termina el 15 de julio de 2025.",
		ReceivedAt: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "unknown", res.Language)
	assert.InDelta(t, 0.1, res.Confidence, 1e-9)
	assert.True(t, res.NeedsReview)
	assert.Nil(t, res.ServiceName)
	assert.False(t, res.HasDate())
}

func TestExtractNoDatesHalvesConfidence(t *testing.T) {
	e := newRuleExtractor(t)

	res := e.Extract(&core.EmailMessage{
		Subject:    "",
		Body:       "Welcome to Notion! You will love your new workspace plan.",
		ReceivedAt: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NotNil(t, res.ServiceName)
	assert.Equal(t, "Notion", res.ServiceName.Value)
	assert.False(t, res.HasDate())
	// 0.1 base + 0.8*0.3 service + 2 keyword hits, halved for no date
	assert.InDelta(t, 0.22, res.Confidence, 1e-9)
	assert.True(t, res.NeedsReview)
}

func TestExtractAmounts(t *testing.T) {
	cases := []struct {
		name         string
		body         string
		wantAmount   float64
		wantCurrency string
	}{
		{
			name:         "dollar symbol",
			body:         "you will be charged $9.99 for the plan",
			wantAmount:   9.99,
			wantCurrency: "USD",
		},
		{
			name:         "euro symbol with space",
			body:         "you will be charged € 12.50 for the plan",
			wantAmount:   12.5,
			wantCurrency: "EUR",
		},
		{
			name:         "iso code",
			body:         "you will be charged USD 29 for the plan",
			wantAmount:   29,
			wantCurrency: "USD",
		},
		{
			name:         "comma decimal separator",
			body:         "you will be charged €9,99 for the plan",
			wantAmount:   9.99,
			wantCurrency: "EUR",
		},
		{
			name:         "no amount",
			body:         "you will be charged for the plan",
			wantAmount:   0,
			wantCurrency: "",
		},
	}

	e := newRuleExtractor(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.Extract(&core.EmailMessage{
				Body:       tc.body,
				ReceivedAt: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
			})
			assert.InDelta(t, tc.wantAmount, res.Amount, 1e-9)
			assert.Equal(t, tc.wantCurrency, res.Currency)
		})
	}
}

func TestExtractBillingCycle(t *testing.T) {
	cases := []struct {
		name string
		body string
		want core.BillingCycle
	}{
		{name: "per month", body: "you will be billed $9.99 per month for the service", want: core.CycleMonthly},
		{name: "slash year", body: "you will be billed $99/year for the service", want: core.CycleYearly},
		{name: "annually beats monthly order", body: "you will be billed annually for the service, not monthly", want: core.CycleYearly},
		{name: "weekly", body: "you will be billed weekly for the service", want: core.CycleWeekly},
		{name: "none", body: "you will be billed for the service at some point", want: core.BillingCycle("")},
	}

	e := newRuleExtractor(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.Extract(&core.EmailMessage{
				Body:       tc.body,
				ReceivedAt: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
			})
			assert.Equal(t, tc.want, res.BillingCycle)
		})
	}
}

func TestExtractNeedsReviewWithoutServiceName(t *testing.T) {
	e := newRuleExtractor(t)

	res := e.Extract(&core.EmailMessage{
		Subject:    "Hi",
		Body:       "Your free trial ends on July 15, 2025 and you will have the full plan with this account.",
		ReceivedAt: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
	})

	assert.Nil(t, res.ServiceName)
	assert.Equal(t, "2025-07-15", res.TrialEnd)
	assert.True(t, res.NeedsReview)
}
