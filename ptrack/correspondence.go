package ptrack

// Candidate is a model feature proposed as a match for an observed feature
type Candidate struct {
	// Euclidean descriptor distance
	Distance float64
	// ModelIndex is index of model feature in tracker's model set
	ModelIndex int
	// Model points into tracker's model set. Read only.
	Model *Feature
}

// Correspondence pairs an observed feature with its candidates ranked by ascending distance.
type Correspondence struct {
	Observed   Feature
	Candidates []Candidate
}

// Best returns closest candidate. Correspondence must have at least one candidate.
func (corr *Correspondence) Best() Candidate {
	return corr.Candidates[0]
}

// sortCandidates sorts candidates by ascending distance keeping order of equal ones
func sortCandidates(candidates []Candidate) {
	switch len(candidates) {
	case 0, 1:
		return
	case 2:
		if candidates[1].Distance < candidates[0].Distance {
			candidates[0], candidates[1] = candidates[1], candidates[0]
		}
	default:
		insertionSortCandidates(candidates)
	}
}

// k is small (2-10 usually) so insertion sort beats generic sort and is stable
func insertionSortCandidates(candidates []Candidate) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Distance < candidates[j-1].Distance; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}

// correspondencePoints returns positions of best model candidates and of observed features
func correspondencePoints(corrs []Correspondence) (model, observed []Point) {
	model = make([]Point, len(corrs))
	observed = make([]Point, len(corrs))
	for i := range corrs {
		model[i] = corrs[i].Best().Model.Position
		observed[i] = corrs[i].Observed.Position
	}
	return model, observed
}
