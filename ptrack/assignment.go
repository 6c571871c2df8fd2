package ptrack

import (
	"github.com/arthurkushman/go-hungarian"
)

// AssignOneToOne makes sure every model feature backs at most one correspondence.
// When several observed features claim the same model feature, an optimal assignment
// (Hungarian algorithm, maximizing 1/(1+distance) over all candidates) decides which one keeps it.
// A correspondence survives only if it is assigned to its best candidate. Order is preserved.
func AssignOneToOne(corrs []Correspondence) []Correspondence {
	kept := make([]Correspondence, 0, len(corrs))
	if len(corrs) == 0 {
		return kept
	}

	// Columns are distinct model features mentioned by any candidate
	columns := make(map[int]int)
	for i := range corrs {
		for _, candidate := range corrs[i].Candidates {
			if _, ok := columns[candidate.ModelIndex]; !ok {
				columns[candidate.ModelIndex] = len(columns)
			}
		}
	}
	if len(columns) == 0 {
		return kept
	}

	// Square matrix padded with zeros (no similarity)
	size := maxInt(len(corrs), len(columns))
	similarity := make([][]float64, size)
	for i := range similarity {
		similarity[i] = make([]float64, size)
	}
	for i := range corrs {
		for _, candidate := range corrs[i].Candidates {
			col := columns[candidate.ModelIndex]
			score := 1.0 / (1.0 + candidate.Distance)
			if score > similarity[i][col] {
				similarity[i][col] = score
			}
		}
	}

	assigned := make([]int, len(corrs))
	for i := range assigned {
		assigned[i] = -1
	}
	assignments := hungarian.SolveMax(similarity)
	for row, rowMap := range assignments {
		if row >= len(corrs) {
			continue
		}
		// Inner map holds a single {column: score} entry
		for col := range rowMap {
			if col < size && similarity[row][col] > 0 {
				assigned[row] = col
			}
			break
		}
	}

	for i := range corrs {
		if len(corrs[i].Candidates) == 0 || assigned[i] < 0 {
			continue
		}
		if assigned[i] == columns[corrs[i].Best().ModelIndex] {
			kept = append(kept, corrs[i])
		}
	}
	return kept
}
