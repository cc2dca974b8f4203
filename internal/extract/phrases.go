package extract

import (
	"strings"

	"github.com/mikey/subscription-sentry/internal/core"
)

// phraseWindow is how many characters either side of a role phrase are
// searched for a date literal. The confidence formula was tuned against
// this width; do not widen it casually.
const phraseWindow = 50

// Role-defining phrase sets. Order within a set matters: the first
// phrase that associates a date wins for that role.
var (
	trialEndPhrases = []string{
		"trial ends on",
		"trial will end on",
		"trial ends",
		"trial expires on",
		"trial period ends",
		"free trial ends",
		"ends on",
		"expires on",
	}
	firstChargePhrases = []string{
		"will be charged on",
		"will be billed on",
		"charged on",
		"billed on",
		"first payment of",
		"payment will be processed on",
		"charged",
		"billed",
	}
	renewalPhrases = []string{
		"renews on",
		"will renew on",
		"renewal date",
		"auto-renews on",
		"next billing date",
		"renews",
	}
)

// Fallback trigger vocabularies for the default-assignment branch, in
// the exact decision order the pipeline relies on
var (
	chargedPhrasings    = []string{"will be charged", "will be billed"}
	firstChargeTriggers = []string{"first charge", "first payment", "first billing"}
	billingKeywords     = []string{"billing", "billed", "charge", "payment"}
)

// PhraseAssociator links extracted dates to semantic roles by proximity
// to role-defining phrases
type PhraseAssociator struct{}

// NewPhraseAssociator creates a new associator
func NewPhraseAssociator() *PhraseAssociator {
	return &PhraseAssociator{}
}

// Associate assigns roles to dates by phrase proximity. When no
// association succeeds but at least one date exists, the ordered
// fallback assigns the earliest-extracted date a default role. The
// second return value distinguishes a real window association from a
// fallback assignment; only the former feeds the confidence formula.
func (a *PhraseAssociator) Associate(text string, dates []DateMatch) ([]core.ExtractedDate, bool) {
	text = strings.ToLower(text)

	assigned := make([]bool, len(dates))
	var out []core.ExtractedDate

	roles := []struct {
		role    core.DateRole
		phrases []string
	}{
		{core.RoleTrialEnd, trialEndPhrases},
		{core.RoleFirstCharge, firstChargePhrases},
		{core.RoleRenewal, renewalPhrases},
	}

	for _, rp := range roles {
		for _, phrase := range rp.phrases {
			idx := strings.Index(text, phrase)
			if idx < 0 {
				continue
			}
			start := idx - phraseWindow
			if start < 0 {
				start = 0
			}
			end := idx + len(phrase) + phraseWindow
			if end > len(text) {
				end = len(text)
			}
			window := text[start:end]

			found := false
			for i, d := range dates {
				if assigned[i] {
					continue
				}
				if strings.Contains(window, d.Literal) {
					assigned[i] = true
					out = append(out, core.ExtractedDate{
						ISODate:       d.ISODate,
						Role:          rp.role,
						MatchedPhrase: phrase,
						Method:        d.Method,
					})
					found = true
					break
				}
			}
			if found {
				// first phrase match per role wins
				break
			}
		}
	}

	if len(out) > 0 {
		return out, true
	}
	if len(dates) > 0 {
		out = append(out, a.defaultAssignment(text, dates[0]))
	}
	return out, false
}

// defaultAssignment applies the ordered fallback for the common case of
// a single date with ambiguous phrasing. Defaulting to first-charge is
// the safer assumption for review purposes than leaving it unassigned.
func (a *PhraseAssociator) defaultAssignment(text string, earliest DateMatch) core.ExtractedDate {
	date := core.ExtractedDate{
		ISODate: earliest.ISODate,
		Method:  earliest.Method,
	}

	if phrase, ok := containsAny(text, chargedPhrasings); ok {
		date.Role = core.RoleFirstCharge
		date.MatchedPhrase = phrase
		return date
	}
	if phrase, ok := containsAny(text, firstChargeTriggers); ok {
		date.Role = core.RoleFirstCharge
		date.MatchedPhrase = phrase
		return date
	}
	if strings.Contains(text, "trial") {
		date.Role = core.RoleTrialEnd
		date.MatchedPhrase = "trial"
		return date
	}
	if phrase, ok := containsAny(text, billingKeywords); ok {
		date.Role = core.RoleFirstCharge
		date.MatchedPhrase = phrase
		return date
	}
	date.Role = core.RoleFirstCharge
	return date
}

func containsAny(text string, phrases []string) (string, bool) {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return phrase, true
		}
	}
	return "", false
}
