package extract

import (
	"strings"

	"github.com/mikey/subscription-sentry/internal/core"
	"go.uber.org/zap"
)

// rejectTerms marks marketing, promotional and bulk mail. Any hit means
// the message is rejected before a backend is ever invoked.
var rejectTerms = []string{
	"unsubscribe",
	"newsletter",
	"marketing",
	"promotional",
	"sale",
	"discount",
	"offer",
	"deal",
	"coupon",
	"promo",
	"spam",
	"bulk",
	"mailing list",
	"opt-out",
	"limited time",
	"clearance",
}

// requirePhrases is confirmation-style language. At least one must be
// present for a message to count as a signup candidate.
var requirePhrases = []string{
	"welcome to",
	"subscription confirmed",
	"trial started",
	"signup confirmed",
	"registration complete",
	"billing confirmation",
	"payment confirmation",
	"subscription activated",
	"trial activated",
	"trial is active",
	"free trial",
	"your subscription",
	"membership confirmed",
	"subscription receipt",
}

// Prefilter is the two keyword screens run before any extraction
type Prefilter struct {
	logger *zap.Logger
}

// NewPrefilter creates a new prefilter gate
func NewPrefilter(logger *zap.Logger) *Prefilter {
	return &Prefilter{logger: logger}
}

// Check runs the reject screen and then the require screen over
// subject+body, case-insensitive
func (p *Prefilter) Check(subject, body string) core.GateDecision {
	text := strings.ToLower(subject + "\n" + body)

	for _, term := range rejectTerms {
		if strings.Contains(text, term) {
			if p.logger != nil {
				p.logger.Debug("Prefilter rejected marketing mail", zap.String("term", term))
			}
			return core.GateDecision{Passed: false, Reason: "marketing_content", Term: term}
		}
	}

	for _, phrase := range requirePhrases {
		if strings.Contains(text, phrase) {
			return core.GateDecision{Passed: true, Term: phrase}
		}
	}

	if p.logger != nil {
		p.logger.Debug("Prefilter found no confirmation language")
	}
	return core.GateDecision{Passed: false, Reason: "no_confirmation_language"}
}
