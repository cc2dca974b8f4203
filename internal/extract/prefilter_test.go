package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/extract"
)

func TestPrefilterCheck(t *testing.T) {
	cases := []struct {
		name       string
		subject    string
		body       string
		wantPassed bool
		wantReason string
	}{
		{
			name:       "confirmation language passes",
			subject:    "Welcome to Netflix",
			body:       "Your free trial ends on July 15.",
			wantPassed: true,
		},
		{
			name:       "marketing term rejects",
			subject:    "Big summer sale",
			body:       "Everything must go.",
			wantPassed: false,
			wantReason: "marketing_content",
		},
		{
			name:       "unsubscribe footer rejects even with confirmation language",
			subject:    "Welcome to Netflix",
			body:       "Your subscription is active. Click here to unsubscribe.",
			wantPassed: false,
			wantReason: "marketing_content",
		},
		{
			name:       "no confirmation language rejects",
			subject:    "Meeting notes",
			body:       "See the agenda attached.",
			wantPassed: false,
			wantReason: "no_confirmation_language",
		},
		{
			name:       "matching is case insensitive",
			subject:    "WELCOME TO HULU",
			body:       "Enjoy!",
			wantPassed: true,
		},
	}

	p := extract.NewPrefilter(zap.NewNop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := p.Check(tc.subject, tc.body)
			assert.Equal(t, tc.wantPassed, decision.Passed)
			assert.Equal(t, tc.wantReason, decision.Reason)
		})
	}
}

func TestPrefilterRecordsMatchedTerm(t *testing.T) {
	p := extract.NewPrefilter(zap.NewNop())

	decision := p.Check("Newsletter signup", "")
	assert.False(t, decision.Passed)
	assert.Equal(t, "newsletter", decision.Term)

	decision = p.Check("Welcome to Figma", "")
	assert.True(t, decision.Passed)
	assert.Equal(t, "welcome to", decision.Term)
}
