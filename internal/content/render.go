package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/kbsync/internal/record"
)

// recoveredNotice marks a file rebuilt from its index row so a human
// reading it knows the prose sections are placeholders.
const recoveredNotice = "> Recovered from the index by `kbsync reconcile --fix`.\n" +
	"> The original prose body was lost; the header above is authoritative."

// Render serializes a record into the canonical content-file form:
// a level-1 title, a bold-labeled header block, then free-text
// sections. This is the only serializer; the recovered variant differs
// solely in its body.
func Render(rec record.Record) []byte {
	var b strings.Builder
	writeHeader(&b, rec)

	fmt.Fprintf(&b, "\n## Summary\n\n%s\n", orEmpty(rec.Summary))

	body := strings.TrimSpace(rec.Body)
	if body == "" {
		body = "(none)"
	}
	fmt.Fprintf(&b, "\n## Details\n\n%s\n", body)

	return []byte(b.String())
}

// RenderRecovered serializes an index row into a replacement content
// file. The header block matches the row exactly; the body is marked
// machine-recovered.
func RenderRecovered(rec record.Record) []byte {
	var b strings.Builder
	writeHeader(&b, rec)

	fmt.Fprintf(&b, "\n## Summary\n\n%s\n", orEmpty(rec.Summary))
	fmt.Fprintf(&b, "\n## Details\n\n%s\n", recoveredNotice)

	return []byte(b.String())
}

func writeHeader(b *strings.Builder, rec record.Record) {
	fmt.Fprintf(b, "# %s\n\n", rec.Title)
	fmt.Fprintf(b, "**Type**: %s\n", rec.Type)
	fmt.Fprintf(b, "**Domain**: %s\n", rec.Domain)
	if rec.Severity != record.SeverityUnset {
		fmt.Fprintf(b, "**Severity**: %d\n", rec.Severity)
	}
	if len(rec.Tags) > 0 {
		fmt.Fprintf(b, "**Tags**: %s\n", record.JoinTags(rec.Tags))
	}
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(b, "**Created**: %s\n", rec.CreatedAt.UTC().Format(time.RFC3339))
	}
}

func orEmpty(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(none)"
	}
	return s
}
