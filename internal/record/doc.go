// Package record defines the knowledge-record data model shared by the
// content store, the index store, the writer, and the reconciler.
//
// A record is identified by its canonical key, derived once at creation
// from a date stamp and a slugified title. The key is the join point
// between the two stores: a consistent system has at most one content
// file and at most one index row per key.
//
// Severity is normalized at exactly one boundary (ParseSeverity). Word
// synonyms and out-of-range values collapse to a default rather than
// failing, matching the tolerance contract of the metadata parser.
package record
