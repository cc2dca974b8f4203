package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/registry"
)

// englishFunctionWords is a cheap proxy for the English gate, not a real
// language classifier. A wrong non-English rejection just falls to
// manual review; running full extraction on non-English text risks
// silent garbage.
var englishFunctionWords = map[string]bool{
	"the": true, "and": true, "for": true, "you": true, "your": true,
	"with": true, "this": true, "that": true, "have": true, "will": true,
	"from": true, "are": true, "was": true, "has": true, "been": true,
}

const minEnglishHits = 3

// subscriptionKeywords is the fixed vocabulary behind the keyword-hit
// term of the confidence formula
var subscriptionKeywords = []string{
	"subscription", "trial", "billing", "payment", "renewal", "welcome",
	"confirm", "activate", "upgrade", "premium", "pro", "plan", "charge",
}

var (
	reSymbolAmount = regexp.MustCompile(`([$€£¥])\s?(\d+(?:[.,]\d{1,2})?)`)
	reCodeAmount   = regexp.MustCompile(`\b(usd|eur|gbp|jpy|cad|aud)\s?(\d+(?:[.,]\d{1,2})?)\b`)
)

var currencyBySymbol = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

// billingCyclePatterns are checked in order; first hit wins
var billingCyclePatterns = []struct {
	cycle    core.BillingCycle
	patterns []string
}{
	{core.CycleYearly, []string{"/year", "/yr", "per year", "a year", "yearly", "annually", "annual"}},
	{core.CycleMonthly, []string{"/month", "/mo", "per month", "a month", "each month", "monthly"}},
	{core.CycleWeekly, []string{"/week", "/wk", "per week", "a week", "weekly"}},
	{core.CycleDaily, []string{"/day", "per day", "daily"}},
}

// RuleBasedExtractor is the deterministic extraction path. It is used
// standalone and as the fallback whenever the model backend fails.
type RuleBasedExtractor struct {
	registry *registry.Registry
	dates    *DateExtractor
	names    *ServiceNameResolver
	phrases  *PhraseAssociator
	logger   *zap.Logger
}

// NewRuleBasedExtractor creates a rule-based extractor over the registry
func NewRuleBasedExtractor(reg *registry.Registry, logger *zap.Logger) *RuleBasedExtractor {
	return &RuleBasedExtractor{
		registry: reg,
		dates:    NewDateExtractor(),
		names:    NewServiceNameResolver(reg),
		phrases:  NewPhraseAssociator(),
		logger:   logger,
	}
}

// Extract runs the deterministic pass over one message. It always
// returns a well-formed result and never fails.
func (e *RuleBasedExtractor) Extract(msg *core.EmailMessage) *core.ExtractionResult {
	result := &core.ExtractionResult{
		Language:    "en",
		Backend:     "rule",
		ExtractedAt: time.Now(),
	}

	text := strings.ToLower(msg.Subject + "\n" + msg.Body)

	if countEnglishWords(text) < minEnglishHits {
		result.Language = "unknown"
		result.Confidence = 0.1
		result.NeedsReview = true
		if e.logger != nil {
			e.logger.Debug("Non-English content, skipping extraction", zap.String("message_id", msg.ID))
		}
		return result
	}

	dateMatches := e.dates.ExtractMatches(text, msg.ReceivedAt)
	result.ServiceName = e.names.Resolve(msg)

	associated, associationHit := e.phrases.Associate(text, dateMatches)
	for _, d := range associated {
		switch d.Role {
		case core.RoleTrialEnd:
			if result.TrialEnd == "" {
				result.TrialEnd = d.ISODate
			}
		case core.RoleFirstCharge:
			if result.FirstCharge == "" {
				result.FirstCharge = d.ISODate
			}
		case core.RoleRenewal:
			if result.Renewal == "" {
				result.Renewal = d.ISODate
			}
		}
		if d.MatchedPhrase != "" {
			result.MatchedPhrases = append(result.MatchedPhrases, d.MatchedPhrase)
		}
	}

	result.Amount, result.Currency = scanAmount(text)
	result.BillingCycle = scanBillingCycle(text)

	keywordHits := 0
	for _, kw := range subscriptionKeywords {
		if strings.Contains(text, kw) {
			keywordHits++
		}
	}

	result.Confidence = e.score(result, keywordHits, associationHit, len(dateMatches) > 0)
	result.NeedsReview = result.Confidence < 0.7 || result.ServiceName == nil || !result.HasDate()

	return result
}

// score applies the tuned confidence formula. The weights were derived
// against the phrase-window heuristic's behavior; changing one without
// the other silently shifts the accept threshold.
func (e *RuleBasedExtractor) score(result *core.ExtractionResult, keywordHits int, associationHit, anyDateFound bool) float64 {
	confidence := 0.1
	if result.ServiceName != nil {
		confidence += result.ServiceName.Confidence * 0.3
	}
	if result.HasDate() {
		confidence += 0.4
	}
	if result.DateCount() > 1 {
		confidence += 0.1
	}
	keywordBonus := 0.05 * float64(keywordHits)
	if keywordBonus > 0.2 {
		keywordBonus = 0.2
	}
	confidence += keywordBonus
	if associationHit {
		confidence += 0.1
	}
	if !anyDateFound {
		confidence *= 0.5
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

func countEnglishWords(text string) int {
	hits := 0
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if englishFunctionWords[word] {
			hits++
		}
	}
	return hits
}

// scanAmount finds the first price in the text; symbol matches are
// preferred over ISO-code matches at the same position
func scanAmount(text string) (float64, string) {
	symLoc := reSymbolAmount.FindStringSubmatchIndex(text)
	codeLoc := reCodeAmount.FindStringSubmatchIndex(text)

	if symLoc != nil && (codeLoc == nil || symLoc[0] <= codeLoc[0]) {
		amount, err := parseAmount(text[symLoc[4]:symLoc[5]])
		if err == nil {
			return amount, currencyBySymbol[text[symLoc[2]:symLoc[3]]]
		}
	}
	if codeLoc != nil {
		amount, err := parseAmount(text[codeLoc[4]:codeLoc[5]])
		if err == nil {
			return amount, strings.ToUpper(text[codeLoc[2]:codeLoc[3]])
		}
	}
	return 0, ""
}

func parseAmount(raw string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
}

func scanBillingCycle(text string) core.BillingCycle {
	for _, bc := range billingCyclePatterns {
		for _, p := range bc.patterns {
			if strings.Contains(text, p) {
				return bc.cycle
			}
		}
	}
	return ""
}
