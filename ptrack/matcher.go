package ptrack

import (
	"github.com/pkg/errors"
)

// Matcher pairs observed features with model features through FeatureIndex.
type Matcher struct {
	index FeatureIndex
	model []Feature
	// Drop candidates whose Laplacian sign differs from observed one
	laplacianPruning bool
}

// NewMatcher creates matcher over model features. Index must be built over the same features in the same order.
func NewMatcher(index FeatureIndex, model []Feature, laplacianPruning bool) (*Matcher, error) {
	if index == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "index is nil")
	}
	if index.Len() != len(model) {
		return nil, errors.Wrapf(ErrInvalidArgument, "index holds %d descriptors while model has %d features", index.Len(), len(model))
	}
	return &Matcher{
		index:            index,
		model:            model,
		laplacianPruning: laplacianPruning,
	}, nil
}

// Match returns one correspondence per observed feature with up to k candidates sorted by ascending distance.
// No filtering is done except optional Laplacian pruning.
func (matcher *Matcher) Match(observed []Feature, k, searchEffort int) ([]Correspondence, error) {
	if len(observed) == 0 {
		return []Correspondence{}, nil
	}
	descriptors, err := descriptorsOf(observed)
	if err != nil {
		return nil, errors.Wrap(err, "can't collect observed descriptors")
	}
	neighbors, err := matcher.index.Query(descriptors, k, searchEffort)
	if err != nil {
		return nil, errors.Wrap(err, "can't query feature index")
	}
	corrs := make([]Correspondence, len(observed))
	for i := range observed {
		candidates := make([]Candidate, 0, k)
		for _, neighbor := range neighbors[i] {
			model := &matcher.model[neighbor.Index]
			if matcher.laplacianPruning && model.Laplacian != observed[i].Laplacian {
				continue
			}
			candidates = append(candidates, Candidate{
				Distance:   neighbor.Distance,
				ModelIndex: neighbor.Index,
				Model:      model,
			})
		}
		sortCandidates(candidates)
		corrs[i] = Correspondence{
			Observed:   observed[i],
			Candidates: candidates,
		}
	}
	return corrs, nil
}
