package search

import (
	"testing"
	"time"
)

func TestTimePartitionedIndex_RangeOverlap(t *testing.T) {
	idx := newTimePartitionedIndex(time.Hour)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	idx.index(1, base)
	idx.index(2, base.Add(2*time.Hour))
	idx.index(3, base.Add(5*time.Hour))

	bm := idx.rangeBitmap(TimeRange{Start: base, End: base.Add(3 * time.Hour)})
	if bm.GetCardinality() != 2 {
		t.Fatalf("cardinality = %d, want 2 (docs 1 and 2)", bm.GetCardinality())
	}
	if bm.Contains(3) {
		t.Error("doc 3 falls outside the range and should not be included")
	}
}

func TestTimePartitionedIndex_EmptyRange(t *testing.T) {
	idx := newTimePartitionedIndex(time.Hour)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	idx.index(1, base)

	bm := idx.rangeBitmap(TimeRange{Start: base.Add(10 * time.Hour), End: base.Add(11 * time.Hour)})
	if bm.GetCardinality() != 0 {
		t.Errorf("cardinality = %d, want 0", bm.GetCardinality())
	}
}
