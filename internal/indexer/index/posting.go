package index

import "github.com/RoaringBitmap/roaring/v2/roaring64"

type TermEntry struct {
	Term   string
	DocIDs []int
}

// ToIDs converts a bitmap to ascending document ids.
func ToIDs(bm *roaring64.Bitmap) []int {
	ids := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, int(it.Next()))
	}
	return ids
}

// FromIDs builds a bitmap from document ids.
func FromIDs(ids ...int) *roaring64.Bitmap {
	bm := roaring64.New()
	for _, id := range ids {
		bm.Add(uint64(id))
	}
	return bm
}
