package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/54b3r/hrassist-go/internal/rag"
)

func openTestIndex(t *testing.T, opts Options) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:", opts)
	if err != nil {
		t.Fatalf("open in-memory index: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(source string, idx int, vec ...float32) rag.IndexEntry {
	return rag.IndexEntry{
		Chunk:  rag.Chunk{Source: source, Index: idx, Page: 1, Text: source + " text"},
		Vector: vec,
	}
}

func Test_SQLite_QueryEmpty(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, Options{})
	_, err := s.Query(context.Background(), []float32{1, 0}, 3)
	var empty *rag.EmptyIndexError
	if !errors.As(err, &empty) {
		t.Fatalf("want *rag.EmptyIndexError, got %v", err)
	}
}

func Test_SQLite_FewerThanK(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, Options{})
	ctx := context.Background()
	if err := s.Rebuild(ctx, []rag.IndexEntry{entry("a", 0, 1, 0), entry("b", 0, 0.6, 0.8)}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	got, err := s.Query(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 results, got %d", len(got))
	}
	if got[0].Source != "a" || got[0].Score < got[1].Score {
		t.Errorf("results not in descending order: %+v", got)
	}
}

func Test_SQLite_TiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, Options{})
	ctx := context.Background()
	entries := []rag.IndexEntry{
		entry("first", 0, 1, 1),
		entry("second", 0, 2, 2),
		entry("third", 0, 3, 3),
		entry("other", 0, -1, 1),
	}
	if err := s.Rebuild(ctx, entries); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	got, err := s.Query(ctx, []float32{1, 1}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Source != want {
			t.Errorf("result %d = %q, want %q", i, got[i].Source, want)
		}
	}
}

func Test_SQLite_L2Score(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, Options{Metric: rag.MetricL2})
	ctx := context.Background()
	if err := s.Rebuild(ctx, []rag.IndexEntry{entry("far", 0, 4, 0), entry("near", 0, 1, 0)}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	got, err := s.Query(ctx, []float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got[0].Source != "near" {
		t.Errorf("want nearest first, got %+v", got)
	}
	if got[0].Score != 0.5 || got[1].Score != 0.2 {
		t.Errorf("scores = %v, %v; want 0.5, 0.2", got[0].Score, got[1].Score)
	}
}

func Test_SQLite_DimensionMismatch(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, Options{})
	ctx := context.Background()
	if err := s.Rebuild(ctx, []rag.IndexEntry{entry("a", 0, 1, 0)}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	var dm *rag.DimensionMismatchError
	if err := s.Add(ctx, []rag.IndexEntry{entry("b", 0, 1, 0, 0)}); !errors.As(err, &dm) {
		t.Fatalf("Add: want *rag.DimensionMismatchError, got %v", err)
	}
	if dm.Want != 2 || dm.Got != 3 {
		t.Errorf("mismatch = %+v", dm)
	}
	if _, err := s.Query(ctx, []float32{1}, 1); !errors.As(err, &dm) {
		t.Errorf("Query: want *rag.DimensionMismatchError, got %v", err)
	}

	stats, _ := s.Stats(ctx)
	if stats.Entries != 1 {
		t.Errorf("rejected write must not change the index, entries = %d", stats.Entries)
	}
}

func Test_SQLite_FailedRebuildLeavesIndexUnchanged(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, Options{})
	ctx := context.Background()
	if err := s.Rebuild(ctx, []rag.IndexEntry{entry("a", 0, 1, 0), entry("b", 0, 0, 1)}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	before, err := s.Query(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query before: %v", err)
	}

	// Mixed dimensions are rejected before the transaction starts.
	if err := s.Rebuild(ctx, []rag.IndexEntry{entry("c", 0, 1, 0), entry("d", 0, 1)}); err == nil {
		t.Fatal("want error for mixed dimensions")
	}
	// A cancelled context fails inside the transaction.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Rebuild(cancelled, []rag.IndexEntry{entry("e", 0, 1, 0)}); err == nil {
		t.Fatal("want error for cancelled context")
	}

	after, err := s.Query(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query after: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("result count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("result %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func Test_SQLite_AddAppends(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, Options{})
	ctx := context.Background()
	if err := s.Rebuild(ctx, []rag.IndexEntry{entry("a", 0, 1, 0)}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if err := s.Add(ctx, []rag.IndexEntry{entry("b", 0, 1, 0)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := s.Query(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 || got[0].Source != "a" || got[1].Source != "b" {
		t.Errorf("want [a b], got %+v", got)
	}
}

func Test_SQLite_ReopenRestoresEntries(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, Options{Metric: rag.MetricL2, Model: "text-embedding-3-small"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	entries := []rag.IndexEntry{entry("a", 0, 1, 2, 3), entry("b", 1, 4, 5, 6), entry("c", 2, 7, 8, 9)}
	if err := s.Rebuild(ctx, entries); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	want, _ := s.Query(ctx, []float32{1, 2, 3}, 3)
	_ = s.Close()

	s2, err := OpenSQLite(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })

	stats, _ := s2.Stats(ctx)
	if stats.Entries != 3 || stats.Dimension != 3 || stats.Metric != rag.MetricL2 || stats.Model != "text-embedding-3-small" {
		t.Errorf("stats after reopen = %+v", stats)
	}
	got, err := s2.Query(ctx, []float32{1, 2, 3}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d differs after reopen: %+v vs %+v", i, got[i], want[i])
		}
	}
}

func Test_SQLite_MetadataMismatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := OpenSQLite(path, Options{Metric: rag.MetricCosine, Model: "model-a"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Close()

	var ce *rag.ConfigError
	if _, err := OpenSQLite(path, Options{Metric: rag.MetricL2}); !errors.As(err, &ce) {
		t.Errorf("metric change: want *rag.ConfigError, got %v", err)
	}
	if _, err := OpenSQLite(path, Options{Model: "model-b"}); !errors.As(err, &ce) {
		t.Errorf("model change: want *rag.ConfigError, got %v", err)
	}

	s3, err := OpenSQLite(path, Options{Metric: rag.MetricL2, Model: "model-b", Reset: true})
	if err != nil {
		t.Fatalf("reset open: %v", err)
	}
	defer s3.Close()
	stats, _ := s3.Stats(context.Background())
	if stats.Metric != rag.MetricL2 || stats.Model != "model-b" {
		t.Errorf("stats after reset = %+v", stats)
	}
}

func Test_SQLite_QueryRejectsNonPositiveK(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, Options{})
	var ce *rag.ConfigError
	if _, err := s.Query(context.Background(), []float32{1}, 0); !errors.As(err, &ce) {
		t.Errorf("want *rag.ConfigError, got %v", err)
	}
}
