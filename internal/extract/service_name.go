package extract

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/registry"
)

// subjectStopWords are skipped when scanning subject tokens for a
// merchant name
var subjectStopWords = map[string]bool{
	"your":         true,
	"the":          true,
	"trial":        true,
	"subscription": true,
	"welcome":      true,
	"thank":        true,
}

// ServiceNameResolver determines the merchant identity from sender
// address, subject and body
type ServiceNameResolver struct {
	registry *registry.Registry
	titler   cases.Caser
}

// NewServiceNameResolver creates a resolver over the given registry
func NewServiceNameResolver(reg *registry.Registry) *ServiceNameResolver {
	return &ServiceNameResolver{
		registry: reg,
		titler:   cases.Title(language.English),
	}
}

// Resolve runs the four passes in precedence order and returns the first
// successful guess, or nil if every pass comes up empty
func (r *ServiceNameResolver) Resolve(msg *core.EmailMessage) *core.ServiceNameGuess {
	if guess := r.fromBody(msg.Body); guess != nil {
		return guess
	}
	if guess := r.fromSenderDomain(msg.SenderAddress); guess != nil {
		return guess
	}
	if guess := r.fromBodyLines(msg.Body); guess != nil {
		return guess
	}
	return r.fromSubject(msg.Subject)
}

// fromBody scans the whole body against the registry. Registry names are
// ordered longest first so "Apple TV+" wins over a bare "Apple" match.
func (r *ServiceNameResolver) fromBody(body string) *core.ServiceNameGuess {
	lower := strings.ToLower(body)
	for _, name := range r.registry.Names() {
		if strings.Contains(lower, strings.ToLower(name)) {
			return &core.ServiceNameGuess{Value: name, Confidence: 0.8, FromRegistry: true}
		}
	}
	return nil
}

// fromSenderDomain uses the token before the first dot of the sender
// domain, e.g. "hulu" from "no-reply@hulu.com"
func (r *ServiceNameResolver) fromSenderDomain(address string) *core.ServiceNameGuess {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return nil
	}
	domain := address[at+1:]
	token := domain
	if dot := strings.Index(domain, "."); dot > 0 {
		token = domain[:dot]
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if canonical, ok := r.registry.Canonical(token); ok {
		return &core.ServiceNameGuess{Value: canonical, Confidence: 0.95, FromRegistry: true}
	}
	return &core.ServiceNameGuess{Value: r.titler.String(token), Confidence: 0.7, FromRegistry: false}
}

// fromBodyLines is a per-line safety net over fromBody for bodies where
// formatting splits a merchant name onto its own line
func (r *ServiceNameResolver) fromBodyLines(body string) *core.ServiceNameGuess {
	for _, line := range strings.Split(strings.ToLower(body), "\n") {
		for _, name := range r.registry.Names() {
			if strings.Contains(line, strings.ToLower(name)) {
				return &core.ServiceNameGuess{Value: name, Confidence: 0.8, FromRegistry: true}
			}
		}
	}
	return nil
}

// fromSubject scans subject tokens, skipping stop words and short tokens
func (r *ServiceNameResolver) fromSubject(subject string) *core.ServiceNameGuess {
	for _, token := range strings.Fields(subject) {
		token = strings.Trim(token, ".,:;!?\"'()[]")
		if token == "" || len(token) <= 3 {
			continue
		}
		if subjectStopWords[strings.ToLower(token)] {
			continue
		}
		if canonical, ok := r.registry.Canonical(token); ok {
			return &core.ServiceNameGuess{Value: canonical, Confidence: 0.85, FromRegistry: true}
		}
		return &core.ServiceNameGuess{Value: r.titler.String(token), Confidence: 0.6, FromRegistry: false}
	}
	return nil
}
