// Package content provides the human-readable side of the record
// store: one markdown file per canonical key, deterministically named
// <key>.md under a single root directory.
//
// Writes go through a temp-file rename so a crashed writer never
// leaves a torn file. Reads refuse symlinks and oversized files; keys
// containing path separators or traversal sequences are rejected
// before touching the filesystem. List excludes placeholder names so
// templates never show up as orphans in a reconcile pass.
package content
