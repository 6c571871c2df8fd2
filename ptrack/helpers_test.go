package ptrack

import (
	"math"
	"math/rand"
	"testing"
)

const (
	eps = 0.00001
)

// randomModel generates features spread over [offset, offset+extent]^2 with random descriptors
func randomModel(rng *rand.Rand, n, dims int, offset, extent float64) []Feature {
	features := make([]Feature, n)
	for i := range features {
		descriptor := make(Descriptor, dims)
		for d := range descriptor {
			descriptor[d] = rng.Float64()
		}
		features[i] = NewFeature(
			Point{X: offset + rng.Float64()*extent, Y: offset + rng.Float64()*extent},
			1.0+rng.Float64()*2.0,
			rng.Float64()*360.0,
			rng.Intn(2),
			descriptor,
		)
	}
	return features
}

// transformFeatures maps model features through homography, rescales and rotates them and perturbs descriptors
func transformFeatures(rng *rand.Rand, model []Feature, h *Homography, scale, rotation, noise float64) []Feature {
	observed := make([]Feature, len(model))
	for i, f := range model {
		descriptor := make(Descriptor, len(f.Descriptor))
		for d := range descriptor {
			descriptor[d] = f.Descriptor[d]
			if noise > 0 {
				descriptor[d] += (rng.Float64()*2 - 1) * noise
			}
		}
		observed[i] = NewFeature(h.Apply(f.Position), f.Scale*scale, f.Orientation+rotation, f.Laplacian, descriptor)
	}
	return observed
}

// pointCorrespondences pairs every src point (model side) with dst point (observed side)
func pointCorrespondences(src, dst []Point) []Correspondence {
	models := make([]Feature, len(src))
	corrs := make([]Correspondence, len(src))
	for i := range src {
		models[i] = Feature{Position: src[i], Scale: 1}
		corrs[i] = Correspondence{
			Observed:   Feature{Position: dst[i], Scale: 1},
			Candidates: []Candidate{{Distance: 0.1, ModelIndex: i, Model: &models[i]}},
		}
	}
	return corrs
}

// distanceCorrespondence creates correspondence with candidates of given distances
func distanceCorrespondence(observed Feature, distances ...float64) Correspondence {
	candidates := make([]Candidate, len(distances))
	for i, d := range distances {
		candidates[i] = Candidate{Distance: d, ModelIndex: i, Model: &Feature{Scale: 1}}
	}
	return Correspondence{Observed: observed, Candidates: candidates}
}

func bruteForceNearest(model []Descriptor, query Descriptor) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i := range model {
		if d := query.Distance(model[i]); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

func assertPointNear(t *testing.T, got, want Point, tolerance float64) {
	t.Helper()
	if math.Abs(got.X-want.X) > tolerance || math.Abs(got.Y-want.Y) > tolerance {
		t.Errorf("Expected point %v, got %v", want, got)
	}
}
