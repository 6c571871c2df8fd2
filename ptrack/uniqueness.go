package ptrack

// DefaultUniquenessRatio is the usual best/second-best distance ratio threshold
const DefaultUniquenessRatio = 0.8

// FilterByUniqueness keeps correspondences with exactly one candidate or with
// candidates[0].Distance / candidates[1].Distance <= ratio. Order is preserved.
// Candidates must be sorted by ascending distance.
func FilterByUniqueness(corrs []Correspondence, ratio float64) []Correspondence {
	kept := make([]Correspondence, 0, len(corrs))
	for i := range corrs {
		if isUnique(corrs[i].Candidates, ratio) {
			kept = append(kept, corrs[i])
		}
	}
	return kept
}

func isUnique(candidates []Candidate, ratio float64) bool {
	switch len(candidates) {
	case 0:
		return false
	case 1:
		return true
	}
	d0, d1 := candidates[0].Distance, candidates[1].Distance
	if d1 == 0 {
		// Both candidates are exact matches: as ambiguous as it gets
		return d0 == 0 && ratio >= 1
	}
	return d0/d1 <= ratio
}
