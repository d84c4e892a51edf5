package record

import (
	"fmt"
	"strings"
	"time"
)

// Type classifies a knowledge record.
type Type string

const (
	TypeFailure    Type = "failure"
	TypeHeuristic  Type = "heuristic"
	TypeExperiment Type = "experiment"
	TypeNote       Type = "note"
)

// ValidTypes defines the allowed record types.
var ValidTypes = map[Type]bool{
	TypeFailure:    true,
	TypeHeuristic:  true,
	TypeExperiment: true,
	TypeNote:       true,
}

// ParseType normalizes a type string. Returns ok=false for unknown types.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	return t, ValidTypes[t]
}

// Record is a single knowledge record. The same struct backs both
// representations: the content file under Key and the index row keyed
// by Key.
type Record struct {
	Key       string    `json:"key"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Domain    string    `json:"domain"`
	Severity  Severity  `json:"severity"`
	Tags      []string  `json:"tags,omitempty"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`

	// Body is the free-text prose below the header block. It is opaque
	// to the index; only the content file carries it.
	Body string `json:"-"`
}

// ValidationError reports bad writer input. It is never retried and is
// surfaced to the caller immediately.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks the fields a caller controls. Key and CreatedAt are
// derived by the writer and are not validated here.
func (r *Record) Validate() error {
	if !ValidTypes[r.Type] {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", r.Type)}
	}
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "title", Message: "title must not be empty"}
	}
	if r.Severity != SeverityUnset && !r.Severity.InRange() {
		return &ValidationError{Field: "severity", Message: fmt.Sprintf("severity %d out of range 1-5", r.Severity)}
	}
	return nil
}

// JoinTags renders the tag set as the comma-separated form stored in the
// index row and the content-file header.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

// SplitTags parses a comma-separated tag list, trimming whitespace and
// dropping empty entries. Returns nil for a blank input.
func SplitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
