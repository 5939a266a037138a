// Package security holds the bot's guard rails: log redaction, rate
// limiting, outbound URL filtering and input validation.
package security

import (
	"regexp"
	"slices"
	"strings"
	"sync"
)

const RedactPlaceholder = "***REDACTED***"

// minLiteral keeps short values like "dev" from masking ordinary words.
const minLiteral = 6

var secretKey = regexp.MustCompile(`(?i)^([a-z0-9]+[_-])*(secret|secret_key|token|password|api_?key|authorization|credentials?|dsn)$`)

// IsSecretKey reports whether a config key or log attribute name holds a
// credential: "token", "bot_token", "api_key", "secret_key".
func IsSecretKey(key string) bool { return secretKey.MatchString(key) }

// Redactor masks credentials in free text: the token formats of the
// services the bot talks to plus any literal registered at runtime. The
// zero value masks literals only. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
	replacer *strings.Replacer // rebuilt when literals change
}

func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

func (r *Redactor) AddPattern(p *regexp.Regexp) {
	r.mu.Lock()
	r.patterns = append(r.patterns, p)
	r.mu.Unlock()
}

// AddLiteral masks secret wherever it appears, e.g. a key read from the
// environment. Short and repeated values are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < minLiteral {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.literals, secret) {
		return
	}
	r.literals = append(r.literals, secret)
	// Longest first so a secret containing another is masked whole.
	slices.SortFunc(r.literals, func(a, b string) int { return len(b) - len(a) })
	pairs := make([]string, 0, 2*len(r.literals))
	for _, lit := range r.literals {
		pairs = append(pairs, lit, RedactPlaceholder)
	}
	r.replacer = strings.NewReplacer(pairs...)
}

func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	r.mu.RLock()
	replacer, patterns := r.replacer, r.patterns
	r.mu.RUnlock()

	if replacer != nil {
		s = replacer.Replace(s)
	}
	for _, p := range patterns {
		s = p.ReplaceAllLiteralString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap masks a decoded YAML or JSON document in place. Values under
// secret keys are replaced whole; other strings go through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		m[k] = r.redactValue(k, v)
	}
}

func (r *Redactor) redactValue(key string, v any) any {
	switch val := v.(type) {
	case string:
		if val != "" && IsSecretKey(key) {
			return RedactPlaceholder
		}
		return r.Redact(val)
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(key, item)
		}
	}
	return v
}

// DefaultPatterns covers the credentials this bot handles.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9_\-]{20,}`),    // OpenAI
		regexp.MustCompile(`\d{6,12}:[A-Za-z0-9_\-]{30,}`),      // Telegram bot token
		regexp.MustCompile(`fc-[a-f0-9]{32}`),                   // Firecrawl
		regexp.MustCompile(`(pk|sk)-lf-[a-f0-9\-]{20,}`),        // Langfuse
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{20,}`), // echoed Authorization headers
	}
}
