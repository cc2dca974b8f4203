package registry

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// knownMerchants is the built-in whitelist of well-known subscription
// merchants. Matching is exact (case-insensitive) on purpose: registry
// membership gates acceptance downstream, so a false positive here is
// worse than a miss.
var knownMerchants = []string{
	"Netflix",
	"Hulu",
	"Disney+",
	"HBO Max",
	"Paramount+",
	"Peacock",
	"Apple TV+",
	"Apple Music",
	"Apple",
	"Spotify",
	"YouTube Premium",
	"YouTube TV",
	"Amazon Prime",
	"Prime Video",
	"Audible",
	"Crunchyroll",
	"Twitch",
	"Dropbox",
	"Notion",
	"Slack",
	"Zoom",
	"Adobe",
	"Canva",
	"Figma",
	"GitHub",
	"Grammarly",
	"Duolingo",
	"Headspace",
	"Calm",
	"Patreon",
	"Substack",
	"Medium",
	"LinkedIn",
	"NordVPN",
	"ExpressVPN",
	"iCloud",
	"Google One",
	"Microsoft 365",
	"Xbox Game Pass",
	"PlayStation Plus",
	"Nintendo Switch Online",
	"Peloton",
	"Strava",
	"MasterClass",
	"Skillshare",
	"Coursera",
	"The New York Times",
	"The Washington Post",
}

// Registry is the immutable set of known subscription merchants.
// Loaded once at startup, safe for concurrent reads, no mutation API.
type Registry struct {
	canonical map[string]string
	ordered   []string
	logger    *zap.Logger
}

// New creates a registry over the built-in merchant list
func New(logger *zap.Logger) *Registry {
	return NewWithNames(knownMerchants, logger)
}

// NewWithNames creates a registry over an explicit merchant list
func NewWithNames(names []string, logger *zap.Logger) *Registry {
	canonical := make(map[string]string, len(names))
	ordered := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := canonical[key]; dup {
			continue
		}
		canonical[key] = name
		ordered = append(ordered, name)
	}

	// Longest names first so "Apple TV+" is tried before "Apple";
	// alphabetical within a length for deterministic matching order
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	if logger != nil {
		logger.Debug("Initialized merchant registry", zap.Int("merchants", len(ordered)))
	}

	return &Registry{
		canonical: canonical,
		ordered:   ordered,
		logger:    logger,
	}
}

// IsKnown reports whether the name matches a registry entry exactly,
// ignoring case
func (r *Registry) IsKnown(name string) bool {
	_, ok := r.canonical[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Canonical returns the registry's casing for a known name
func (r *Registry) Canonical(name string) (string, bool) {
	canonical, ok := r.canonical[strings.ToLower(strings.TrimSpace(name))]
	return canonical, ok
}

// Names returns the merchant names, longest first
func (r *Registry) Names() []string {
	return r.ordered
}
