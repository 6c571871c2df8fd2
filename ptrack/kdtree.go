package ptrack

import (
	"slices"
)

const (
	defaultKDLeafSize = 8
	// Variance is estimated on first points only, like FLANN does
	kdVarianceSample = 100
)

type kdNode struct {
	dim    int
	split  float64
	left   *kdNode
	right  *kdNode
	points []int
}

func (node *kdNode) isLeaf() bool {
	return node.left == nil
}

// kdTree is a KD-tree searched best-bin-first.
type kdTree struct {
	data []Descriptor
	dims int
	root *kdNode
}

func newKDTree(data []Descriptor, leafSize int) *kdTree {
	indices := make([]int, len(data))
	for i := range indices {
		indices[i] = i
	}
	tree := &kdTree{
		data: data,
		dims: len(data[0]),
	}
	tree.root = tree.build(indices, leafSize)
	return tree
}

func (tree *kdTree) build(indices []int, leafSize int) *kdNode {
	if len(indices) <= leafSize {
		return &kdNode{points: indices}
	}
	dim, variance := tree.widestDimension(indices)
	if variance == 0 {
		// All sampled points are identical
		return &kdNode{points: indices}
	}
	slices.SortFunc(indices, func(a, b int) int {
		va, vb := tree.data[a][dim], tree.data[b][dim]
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return a - b
	})
	mid := len(indices) / 2
	split := tree.data[indices[mid]][dim]
	// Move equal values to the right side so the plane really separates both halves
	for mid > 0 && tree.data[indices[mid-1]][dim] == split {
		mid--
	}
	if mid == 0 {
		// Median equals the minimum: split right after the run of equal values instead
		for mid < len(indices) && tree.data[indices[mid]][dim] == split {
			mid++
		}
		if mid == len(indices) {
			return &kdNode{points: indices}
		}
		split = tree.data[indices[mid]][dim]
	}
	return &kdNode{
		dim:   dim,
		split: split,
		left:  tree.build(indices[:mid], leafSize),
		right: tree.build(indices[mid:], leafSize),
	}
}

func (tree *kdTree) widestDimension(indices []int) (int, float64) {
	n := minInt(len(indices), kdVarianceSample)
	mean := make([]float64, tree.dims)
	for _, idx := range indices[:n] {
		for d, v := range tree.data[idx] {
			mean[d] += v
		}
	}
	for d := range mean {
		mean[d] /= float64(n)
	}
	bestDim, bestVariance := 0, -1.0
	for d := 0; d < tree.dims; d++ {
		variance := 0.0
		for _, idx := range indices[:n] {
			diff := tree.data[idx][d] - mean[d]
			variance += diff * diff
		}
		if variance > bestVariance {
			bestDim, bestVariance = d, variance
		}
	}
	if bestVariance == 0 && n < len(indices) {
		// Sample may be degenerate while the rest is not
		return tree.widestDimension(indices[n:])
	}
	return bestDim, bestVariance
}

func (tree *kdTree) Len() int {
	return len(tree.data)
}

func (tree *kdTree) Kind() IndexKind {
	return IndexKDTree
}

func (tree *kdTree) Query(descriptors []Descriptor, k, searchEffort int) ([][]Neighbor, error) {
	if err := checkQuery(tree.dims, descriptors, k); err != nil {
		return nil, err
	}
	results := make([][]Neighbor, len(descriptors))
	branches := make(priorityHeap[*kdNode], 0, 64)
	for i := range descriptors {
		branches = branches[:0]
		results[i] = tree.search(descriptors[i], k, searchEffort, &branches)
	}
	return results, nil
}

func (tree *kdTree) search(query Descriptor, k, searchEffort int, branches *priorityHeap[*kdNode]) []Neighbor {
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
			diff := query[node.dim] - node.split
			near, far := node.left, node.right
			if diff >= 0 {
				near, far = node.right, node.left
			}
			branches.Push(far, maxFloat64(branch.priority, diff*diff))
			node = near
		}
		for _, idx := range node.points {
			best.offer(idx, query.squaredDistance(tree.data[idx]))
		}
		leaves++
		if searchEffort > 0 && leaves >= searchEffort {
			break
		}
	}
	return best.neighbors()
}
