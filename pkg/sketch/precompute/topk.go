package precompute

import "container/heap"

// scoredPair is one collocate candidate while reducing a head group.
type scoredPair struct {
	coll  uint32
	count uint64
	score float64
}

// better orders pairs by score descending, then co-occurrence descending,
// then lemma id ascending.
func better(a, b scoredPair) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.count != b.count {
		return a.count > b.count
	}
	return a.coll < b.coll
}

// topK is a bounded min-heap: the weakest retained pair sits at the root and
// is evicted when a stronger candidate arrives.
type topK struct {
	k     int
	pairs pairHeap
}

func newTopK(k int) *topK { return &topK{k: k} }

func (t *topK) reset() { t.pairs = t.pairs[:0] }

func (t *topK) offer(p scoredPair) {
	if len(t.pairs) < t.k {
		heap.Push(&t.pairs, p)
		return
	}
	if better(p, t.pairs[0]) {
		t.pairs[0] = p
		heap.Fix(&t.pairs, 0)
	}
}

// drain empties the heap, returning pairs best-first.
func (t *topK) drain() []scoredPair {
	out := make([]scoredPair, len(t.pairs))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.pairs).(scoredPair)
	}
	return out
}

type pairHeap []scoredPair

func (h pairHeap) Len() int           { return len(h) }
func (h pairHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h pairHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *pairHeap) Push(x any) { *h = append(*h, x.(scoredPair)) }

func (h *pairHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
