package record

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSlugRunes bounds the slug portion of a canonical key so keys stay
// usable as filenames.
const maxSlugRunes = 48

const dateStampLayout = "20060102"

// stripMarks decomposes and removes combining marks, folding accented
// characters to their ASCII base ("café" -> "cafe").
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug converts a title into the filename-safe key suffix: lowercased,
// diacritics folded, runs of non-alphanumerics collapsed to single
// dashes, bounded to maxSlugRunes. An empty result becomes "untitled".
func Slug(title string) string {
	folded, _, err := transform.String(stripMarks, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	dash := true // suppress a leading dash
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if runes := []rune(slug); len(runes) > maxSlugRunes {
		slug = strings.Trim(string(runes[:maxSlugRunes]), "-")
	}
	if slug == "" {
		return "untitled"
	}
	return slug
}

// Key derives the canonical key from a date stamp and a title. The date
// must be captured once at operation start and passed in; deriving it
// here from the wall clock would let a day boundary split the key from
// the record's stored timestamp.
func Key(date time.Time, title string) string {
	return date.Format(dateStampLayout) + "_" + Slug(title)
}

// DisambiguateKey appends the collision suffix for the nth duplicate of
// a key (n >= 2).
func DisambiguateKey(key string, n int) string {
	return fmt.Sprintf("%s-%d", key, n)
}

// KeyDate extracts the date stamp encoded in a canonical key. Returns
// ok=false when the key does not start with a valid stamp (for example
// a hand-named file adopted by the reconciler).
func KeyDate(key string) (time.Time, bool) {
	stamp, _, found := strings.Cut(key, "_")
	if !found {
		return time.Time{}, false
	}
	t, err := time.Parse(dateStampLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
