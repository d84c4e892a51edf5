// Package parse extracts structured record fields from a content
// file's semi-structured text. It is deliberately tolerant: every
// field except the title has a default, and malformed values fall back
// to that default silently. Only a missing title (or an unreadable
// file) is a hard *ParseError.
package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/kbsync/internal/record"
)

// Defaults substituted when a header field is absent or malformed.
const (
	DefaultDomain = "unknown"
	DefaultType   = record.TypeNote
)

// ParseError reports a file this package cannot extract a record from.
// The reconciler skips such files with a warning; it never aborts a
// whole pass over one bad file.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable content file: %s", e.Reason)
}

var (
	titleRe   = regexp.MustCompile(`^#\s+(.+?)\s*$`)
	sectionRe = regexp.MustCompile(`^##\s+(.+?)\s*$`)

	// labelRe accepts both header syntaxes: "**Domain**: x" and
	// "Domain: x", case-insensitive labels.
	labelRe = regexp.MustCompile(`(?i)^(?:\*\*(type|domain|severity|tags|created)\*\*|(type|domain|severity|tags|created))\s*:\s*(.*)$`)
)

// Parse extracts a record from content-file text. The returned record
// has no Key; the caller owns the key-to-file mapping.
func Parse(data []byte) (record.Record, error) {
	rec := record.Record{
		Type:     DefaultType,
		Domain:   DefaultDomain,
		Severity: record.DefaultSeverity,
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	var (
		haveTitle   bool
		inSummary   bool
		haveSummary bool
	)

	for _, line := range lines {
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			inSummary = strings.EqualFold(m[1], "Summary")
			continue
		}

		if !haveTitle {
			if m := titleRe.FindStringSubmatch(line); m != nil {
				rec.Title = m[1]
				haveTitle = true
				continue
			}
		}

		if inSummary && !haveSummary {
			if text := strings.TrimSpace(line); text != "" {
				rec.Summary = summaryValue(text)
				haveSummary = true
			}
			continue
		}

		m := labelRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := m[1]
		if label == "" {
			label = m[2]
		}
		value := strings.TrimSpace(m[3])

		switch strings.ToLower(label) {
		case "type":
			if t, ok := record.ParseType(value); ok {
				rec.Type = t
			}
		case "domain":
			if value != "" {
				rec.Domain = value
			}
		case "severity":
			rec.Severity, _ = record.ParseSeverity(value)
		case "tags":
			rec.Tags = record.SplitTags(value)
		case "created":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				rec.CreatedAt = t
			}
		}
	}

	if !haveTitle {
		return record.Record{}, &ParseError{Reason: "no level-1 heading found"}
	}

	return rec, nil
}

// summaryValue folds the renderer's "(none)" placeholder back to the
// empty default so recovered files round-trip cleanly.
func summaryValue(s string) string {
	if s == "(none)" {
		return ""
	}
	return s
}
