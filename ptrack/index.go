package ptrack

import (
	"fmt"

	"github.com/pkg/errors"
)

// IndexKind is for search structure type used by FeatureIndex
type IndexKind uint16

const (
	// IndexKDTree is a KD-tree searched best-bin-first. Exact when search effort is unbounded.
	IndexKDTree IndexKind = iota
	// IndexSpillTree is a hybrid spill tree: faster on large model sets at the cost of small recall loss
	IndexSpillTree
)

func (kind IndexKind) String() string {
	switch kind {
	case IndexKDTree:
		return "kdtree"
	case IndexSpillTree:
		return "spilltree"
	default:
		return fmt.Sprintf("IndexKind(%d)", uint16(kind))
	}
}

// ParseIndexKind parses textual index kind as used in config files
func ParseIndexKind(s string) (IndexKind, error) {
	switch s {
	case "", "kdtree":
		return IndexKDTree, nil
	case "spilltree":
		return IndexSpillTree, nil
	default:
		return IndexKDTree, errors.Wrapf(ErrInvalidArgument, "unknown index kind %q", s)
	}
}

// Neighbor is a single result of nearest neighbor query
type Neighbor struct {
	// Index of model descriptor
	Index int
	// Euclidean distance to query descriptor
	Distance float64
}

// FeatureIndex answers approximate k-nearest-neighbor queries over model descriptors.
// Implementations are read-only after construction and safe for concurrent queries.
type FeatureIndex interface {
	// Query returns up to k neighbors per descriptor in ascending distance order.
	// searchEffort bounds number of visited leaves; values < 1 mean exhaustive search.
	Query(descriptors []Descriptor, k, searchEffort int) ([][]Neighbor, error)
	// Len returns number of indexed descriptors
	Len() int
	// Kind returns search structure type
	Kind() IndexKind
}

// SpillTreeParams tunes spill tree construction.
type SpillTreeParams struct {
	// Branching is max number of points in a leaf. Default 50
	Branching int
	// Rho is the balance threshold: when a spilled child would hold more than Rho of its parent's points, node falls back to a plain metric split. Default 0.7
	Rho float64
	// Tau is the overlap band half-width as a fraction of the projection spread. Default 0.1
	Tau float64
}

// MaxSpillTreeRho bounds SpillTreeParams.Rho. Every spilled child holds at most Rho of its parent's points,
// so total tree size stays polynomial only while 2·Rho is not much above 1.
const MaxSpillTreeRho = 0.8

// DefaultSpillTreeParams returns default spill tree parameters
func DefaultSpillTreeParams() SpillTreeParams {
	return SpillTreeParams{
		Branching: 50,
		Rho:       0.7,
		Tau:       0.1,
	}
}

func (params SpillTreeParams) validate() error {
	if params.Branching < 1 {
		return errors.Wrapf(ErrInvalidArgument, "spill tree branching must be positive, got %d", params.Branching)
	}
	if params.Rho <= 0 || params.Rho > MaxSpillTreeRho {
		return errors.Wrapf(ErrInvalidArgument, "spill tree rho must be in (0, %g], got %f", MaxSpillTreeRho, params.Rho)
	}
	if params.Tau < 0 || params.Tau >= 1 {
		return errors.Wrapf(ErrInvalidArgument, "spill tree tau must be in [0, 1), got %f", params.Tau)
	}
	return nil
}

// NewFeatureIndex builds search structure of given kind over a copy of model descriptors.
// params are used only by IndexSpillTree.
func NewFeatureIndex(kind IndexKind, model []Descriptor, params SpillTreeParams) (FeatureIndex, error) {
	if len(model) == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "can't build index over empty model set")
	}
	dims := len(model[0])
	if dims == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "model descriptors are empty")
	}
	data := make([]Descriptor, len(model))
	for i := range model {
		if len(model[i]) != dims {
			return nil, errors.Wrapf(ErrInvalidArgument, "model descriptor %d has length %d, expected %d", i, len(model[i]), dims)
		}
		data[i] = append(Descriptor(nil), model[i]...)
	}
	switch kind {
	case IndexKDTree:
		return newKDTree(data, defaultKDLeafSize), nil
	case IndexSpillTree:
		if err := params.validate(); err != nil {
			return nil, err
		}
		return newSpillTree(data, params), nil
	default:
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown index kind %d", kind)
	}
}

func checkQuery(dims int, descriptors []Descriptor, k int) error {
	if k < 1 {
		return errors.Wrapf(ErrInvalidArgument, "k must be at least 1, got %d", k)
	}
	for i := range descriptors {
		if len(descriptors[i]) != dims {
			return errors.Wrapf(ErrInvalidArgument, "query descriptor %d has length %d, expected %d", i, len(descriptors[i]), dims)
		}
	}
	return nil
}
