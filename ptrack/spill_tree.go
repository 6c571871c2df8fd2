package ptrack

import (
	"math"
	"math/rand"
	"slices"
)

// Fixed seed keeps tree layout (and therefore query results) reproducible between runs
const spillTreeSeed = 42

type spillNode struct {
	// Split hyperplane: points with <x - origin, direction> < threshold go left
	origin    Descriptor
	direction Descriptor
	threshold float64
	// overlap nodes are searched defeatist (no backtracking), metric nodes backtrack
	overlap bool
	left    *spillNode
	right   *spillNode
	points  []int
}

func (node *spillNode) isLeaf() bool {
	return node.left == nil
}

func (node *spillNode) project(x Descriptor) float64 {
	sum := 0.0
	for d := range x {
		sum += (x[d] - node.origin[d]) * node.direction[d]
	}
	return sum
}

// spillTree is a hybrid spill tree (Liu, Moore, Gray, Yang 2004).
// Spilled points are stored in both children so a single defeatist descent finds most true neighbors.
type spillTree struct {
	data   []Descriptor
	dims   int
	params SpillTreeParams
	root   *spillNode
}

func newSpillTree(data []Descriptor, params SpillTreeParams) *spillTree {
	indices := make([]int, len(data))
	for i := range indices {
		indices[i] = i
	}
	tree := &spillTree{
		data:   data,
		dims:   len(data[0]),
		params: params,
	}
	rng := rand.New(rand.NewSource(spillTreeSeed))
	tree.root = tree.build(indices, rng)
	return tree
}

func (tree *spillTree) farthestFrom(from Descriptor, indices []int) int {
	best, bestDist := indices[0], -1.0
	for _, idx := range indices {
		if dist := from.squaredDistance(tree.data[idx]); dist > bestDist {
			best, bestDist = idx, dist
		}
	}
	return best
}

func (tree *spillTree) build(indices []int, rng *rand.Rand) *spillNode {
	if len(indices) <= tree.params.Branching {
		return &spillNode{points: indices}
	}
	// Two far apart pivots approximate the direction of largest spread
	start := indices[rng.Intn(len(indices))]
	pivotA := tree.farthestFrom(tree.data[start], indices)
	pivotB := tree.farthestFrom(tree.data[pivotA], indices)
	origin := tree.data[pivotA]
	length := math.Sqrt(origin.squaredDistance(tree.data[pivotB]))
	if length == 0 {
		return &spillNode{points: indices}
	}
	direction := make(Descriptor, tree.dims)
	for d := range direction {
		direction[d] = (tree.data[pivotB][d] - origin[d]) / length
	}
	node := &spillNode{
		origin:    origin,
		direction: direction,
	}

	projections := make([]float64, len(indices))
	for i, idx := range indices {
		projections[i] = node.project(tree.data[idx])
	}
	sorted := slices.Clone(projections)
	slices.Sort(sorted)
	node.threshold = sorted[len(sorted)/2]
	spread := sorted[len(sorted)-1] - sorted[0]
	band := tree.params.Tau * spread

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for i, idx := range indices {
		if projections[i] < node.threshold+band {
			left = append(left, idx)
		}
		if projections[i] >= node.threshold-band {
			right = append(right, idx)
		}
	}
	limit := int(math.Floor(tree.params.Rho * float64(len(indices))))
	if band > 0 && len(left) <= limit && len(right) <= limit {
		node.overlap = true
	} else {
		// Too much spill: plain metric split on the median
		left, right = left[:0], right[:0]
		for i, idx := range indices {
			if projections[i] < node.threshold {
				left = append(left, idx)
			} else {
				right = append(right, idx)
			}
		}
	}
	if len(left) == 0 || len(right) == 0 || len(left) == len(indices) || len(right) == len(indices) {
		return &spillNode{points: indices}
	}
	node.left = tree.build(left, rng)
	node.right = tree.build(right, rng)
	return node
}

func (tree *spillTree) Len() int {
	return len(tree.data)
}

func (tree *spillTree) Kind() IndexKind {
	return IndexSpillTree
}

func (tree *spillTree) Query(descriptors []Descriptor, k, searchEffort int) ([][]Neighbor, error) {
	if err := checkQuery(tree.dims, descriptors, k); err != nil {
		return nil, err
	}
	results := make([][]Neighbor, len(descriptors))
	branches := make(priorityHeap[*spillNode], 0, 64)
	// Spilled points live in several leaves. Stamp marks points already offered for current query.
	stamps := make([]int, len(tree.data))
	for i := range descriptors {
		branches = branches[:0]
		results[i] = tree.search(descriptors[i], k, searchEffort, &branches, stamps, i+1)
	}
	return results, nil
}

func (tree *spillTree) search(query Descriptor, k, searchEffort int, branches *priorityHeap[*spillNode], stamps []int, stamp int) []Neighbor {
	best := newKnnHeap(k)
	branches.Push(tree.root, 0)
	leaves := 0
	for branches.Len() > 0 {
		branch := branches.Pop()
		if best.full() && branch.priority >= best.worst() {
			break
		}
		node := branch.value
		for !node.isLeaf() {
			diff := node.project(query) - node.threshold
			near, far := node.left, node.right
			if diff >= 0 {
				near, far = node.right, node.left
			}
			if !node.overlap {
				branches.Push(far, maxFloat64(branch.priority, diff*diff))
			}
			node = near
		}
		for _, idx := range node.points {
			if stamps[idx] == stamp {
				continue
			}
			stamps[idx] = stamp
			best.offer(idx, query.squaredDistance(tree.data[idx]))
		}
		leaves++
		if searchEffort > 0 && leaves >= searchEffort {
			break
		}
	}
	return best.neighbors()
}
