package ptrack

// heapItem is a value with its priority. Smaller priority is popped first.
type heapItem[T any] struct {
	value    T
	priority float64
}

// Copied from container/heap - https://golang.org/pkg/container/heap/
// Why make copy? Just want to avoid interface boxing on every push/pop in the search loops

type priorityHeap[T any] []heapItem[T]

func (h priorityHeap[T]) Len() int           { return len(h) }
func (h priorityHeap[T]) Less(i, j int) bool { return h[i].priority < h[j].priority }
func (h priorityHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

// Push pushes the element x onto the heap.
// The complexity is O(log n) where n = h.Len().
func (h *priorityHeap[T]) Push(value T, priority float64) {
	*h = append(*h, heapItem[T]{value: value, priority: priority})
	h.up(h.Len() - 1)
}

// Pop removes and returns the minimum element (according to Less) from the heap.
// The complexity is O(log n) where n = h.Len().
func (h *priorityHeap[T]) Pop() heapItem[T] {
	n := h.Len() - 1
	h.Swap(0, n)
	h.down(0, n)
	heapSize := len(*h)
	lastNode := (*h)[heapSize-1]
	*h = (*h)[0 : heapSize-1]
	return lastNode
}

// Peek returns the minimum element without removing it
func (h priorityHeap[T]) Peek() heapItem[T] {
	return h[0]
}

func (h priorityHeap[T]) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		j = i
	}
}

func (h priorityHeap[T]) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.Less(j2, j1) {
			j = j2
		}
		if !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		i = j
	}
	return i > i0
}

// knnHeap keeps k closest neighbors seen so far.
// It is a max-heap on squared distance (stored negated), so the worst neighbor is on top.
type knnHeap struct {
	k     int
	items priorityHeap[int]
}

func newKnnHeap(k int) *knnHeap {
	return &knnHeap{
		k:     k,
		items: make(priorityHeap[int], 0, k+1),
	}
}

func (h *knnHeap) full() bool {
	return h.items.Len() >= h.k
}

// worst returns squared distance of the farthest kept neighbor
func (h *knnHeap) worst() float64 {
	return -h.items.Peek().priority
}

// offer keeps index if it is closer than the worst kept one
func (h *knnHeap) offer(index int, sqDist float64) {
	if !h.full() {
		h.items.Push(index, -sqDist)
		return
	}
	if sqDist >= h.worst() {
		return
	}
	h.items.Pop()
	h.items.Push(index, -sqDist)
}

// neighbors drains the heap into ascending order of Euclidean distance
func (h *knnHeap) neighbors() []Neighbor {
	result := make([]Neighbor, h.items.Len())
	for i := len(result) - 1; i >= 0; i-- {
		item := h.items.Pop()
		result[i] = Neighbor{Index: item.value, Distance: sqrtNonNegative(-item.priority)}
	}
	return result
}
