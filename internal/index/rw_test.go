package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roach88/kbsync/internal/record"
)

func testRecord(key string) record.Record {
	return record.Record{
		Key:       key,
		Type:      record.TypeFailure,
		Title:     "DB timeout",
		Domain:    "storage",
		Severity:  4,
		Tags:      []string{"io", "timeout"},
		Summary:   "Connection pool exhausted under load.",
		CreatedAt: time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestInsertGet_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testRecord("20250101_db-timeout"))
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if id == 0 {
		t.Error("Insert() returned id 0")
	}

	row, err := s.Get(ctx, "20250101_db-timeout")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if row.ID != id {
		t.Errorf("row.ID = %d, want %d", row.ID, id)
	}
	if row.Type != record.TypeFailure || row.Title != "DB timeout" || row.Domain != "storage" {
		t.Errorf("row fields = %+v", row.Record)
	}
	if row.Severity != 4 {
		t.Errorf("row.Severity = %d, want 4", row.Severity)
	}
	if len(row.Tags) != 2 || row.Tags[0] != "io" {
		t.Errorf("row.Tags = %v", row.Tags)
	}
	if !row.CreatedAt.Equal(time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("row.CreatedAt = %v", row.CreatedAt)
	}
}

func TestInsert_DuplicateKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, testRecord("20250101_db-timeout")); err != nil {
		t.Fatalf("first Insert() failed: %v", err)
	}

	_, err := s.Insert(ctx, testRecord("20250101_db-timeout"))
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("second Insert() = %v, want ErrDuplicateKey", err)
	}

	// The failed insert must not leave a second row
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("len(keys) = %d after duplicate insert, want 1", len(keys))
	}
}

func TestInsert_NullSeverity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := testRecord("20250101_heuristic")
	rec.Type = record.TypeHeuristic
	rec.Severity = record.SeverityUnset

	if _, err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	row, err := s.Get(ctx, "20250101_heuristic")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if row.Severity != record.SeverityUnset {
		t.Errorf("row.Severity = %d, want unset", row.Severity)
	}
}

func TestExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "20250101_db-timeout")
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if ok {
		t.Error("Exists() = true on empty store")
	}

	if _, err := s.Insert(ctx, testRecord("20250101_db-timeout")); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	ok, err = s.Exists(ctx, "20250101_db-timeout")
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if !ok {
		t.Error("Exists() = false after insert")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "20250101_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() = %v, want ErrNotFound", err)
	}
}

func TestKeys_SortedByKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"20250103_c", "20250101_a", "20250102_b"} {
		rec := testRecord(key)
		if _, err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert(%s) failed: %v", key, err)
		}
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}

	want := []string{"20250101_a", "20250102_b", "20250103_c"}
	if len(keys) != len(want) {
		t.Fatalf("len(keys) = %d, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestKeys_EmptyStore(t *testing.T) {
	s := openTestStore(t)

	keys, err := s.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	if keys == nil {
		t.Error("Keys() = nil, want empty slice")
	}
}

func TestScan_Filter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	failure := testRecord("20250101_failure")
	heuristic := testRecord("20250101_heuristic")
	heuristic.Type = record.TypeHeuristic
	heuristic.Severity = record.SeverityUnset

	for _, rec := range []record.Record{failure, heuristic} {
		if _, err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}

	var got []string
	for row, err := range s.Scan(ctx, Filter{Type: record.TypeFailure}) {
		if err != nil {
			t.Fatalf("Scan() failed: %v", err)
		}
		got = append(got, row.Key)
	}

	if len(got) != 1 || got[0] != "20250101_failure" {
		t.Errorf("Scan(type=failure) = %v", got)
	}
}

func TestScan_MinSeverity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	low := testRecord("20250101_low")
	low.Severity = 2
	high := testRecord("20250101_high")
	high.Severity = 5

	for _, rec := range []record.Record{low, high} {
		if _, err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}

	var got []string
	for row, err := range s.Scan(ctx, Filter{MinSeverity: 4}) {
		if err != nil {
			t.Fatalf("Scan() failed: %v", err)
		}
		got = append(got, row.Key)
	}

	if len(got) != 1 || got[0] != "20250101_high" {
		t.Errorf("Scan(min severity 4) = %v", got)
	}
}
