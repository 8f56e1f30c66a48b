package search

import (
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
)

// timePartitionedIndex maps partition-start epochs to a bitmap of the
// documents whose timestamp falls in that bucket, default 1h wide. A
// range query iterates only the partitions whose interval overlaps the
// query range and returns their union as a superset of matching
// documents; Search applies the exact timestamp bound with a date-range
// query on the timestamp field.
type timePartitionedIndex struct {
	mu       sync.RWMutex
	size     time.Duration
	buckets  map[int64]*roaring.Bitmap
	starts   []int64 // kept sorted for binary search
}

func newTimePartitionedIndex(size time.Duration) *timePartitionedIndex {
	if size <= 0 {
		size = time.Hour
	}
	return &timePartitionedIndex{size: size, buckets: make(map[int64]*roaring.Bitmap)}
}

func (t *timePartitionedIndex) partitionStart(ts time.Time) int64 {
	return ts.Unix() / int64(t.size.Seconds()) * int64(t.size.Seconds())
}

func (t *timePartitionedIndex) index(id uint32, ts time.Time) {
	if ts.IsZero() {
		return
	}
	start := t.partitionStart(ts)

	t.mu.Lock()
	defer t.mu.Unlock()
	bm, ok := t.buckets[start]
	if !ok {
		bm = roaring.New()
		t.buckets[start] = bm
		i := sort.Search(len(t.starts), func(i int) bool { return t.starts[i] >= start })
		t.starts = append(t.starts, 0)
		copy(t.starts[i+1:], t.starts[i:])
		t.starts[i] = start
	}
	bm.Add(id)
}

// rangeBitmap returns the union of every partition whose [start, end)
// interval overlaps [r.Start, r.End).
func (t *timePartitionedIndex) rangeBitmap(r TimeRange) *roaring.Bitmap {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := roaring.New()
	stepSeconds := int64(t.size.Seconds())
	lo := sort.Search(len(t.starts), func(i int) bool {
		return t.starts[i]+stepSeconds > r.Start.Unix()
	})
	for i := lo; i < len(t.starts); i++ {
		start := t.starts[i]
		if start >= r.End.Unix() {
			break
		}
		out.Or(t.buckets[start])
	}
	return out
}
