package record

import (
	"strconv"
	"strings"
)

// Severity is the 1-5 impact scale for failure records. Zero means
// unset, which is valid for non-failure types.
type Severity int

const (
	// SeverityUnset marks records that carry no severity (heuristics,
	// experiments, notes).
	SeverityUnset Severity = 0

	// DefaultSeverity is substituted for absent, malformed, or
	// out-of-range values at the parse boundary.
	DefaultSeverity Severity = 3

	minSeverity Severity = 1
	maxSeverity Severity = 5
)

// severitySynonyms maps the word forms found in hand-written files to
// the numeric scale.
var severitySynonyms = map[string]Severity{
	"low":      2,
	"medium":   3,
	"high":     4,
	"critical": 5,
}

// InRange reports whether the severity is on the 1-5 scale.
func (s Severity) InRange() bool {
	return s >= minSeverity && s <= maxSeverity
}

// ParseSeverity normalizes a severity string: digits 1-5 pass through,
// word synonyms (low/medium/high/critical) map to their numeric value,
// and everything else yields DefaultSeverity with ok=false. It never
// returns an error; tolerance here is a deliberate contract.
func ParseSeverity(s string) (Severity, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultSeverity, false
	}
	if sev, ok := severitySynonyms[s]; ok {
		return sev, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		sev := Severity(n)
		if sev.InRange() {
			return sev, true
		}
	}
	return DefaultSeverity, false
}
