package ptrack

import (
	"math"
	"testing"

	"github.com/pkg/errors"
)

func matchAt(x, y, distance float64) Correspondence {
	return distanceCorrespondence(Feature{Position: NewPoint(x, y), Scale: 1}, distance)
}

func clusterMatches(cx, cy, spacing, distance float64) []Correspondence {
	matches := make([]Correspondence, 0, 9)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			matches = append(matches, matchAt(cx+float64(dx)*spacing, cy+float64(dy)*spacing, distance))
		}
	}
	return matches
}

func TestRegionTrackerNoMatches(t *testing.T) {
	prior, _ := NewUniformMask(100, 100)
	rt := NewRegionTrackerDefault()
	step, err := rt.Track(nil, prior)
	if err != nil {
		t.Fatal(err)
	}
	if !step.Lost {
		t.Errorf("Empty mask must lose the object")
	}
	if _, known := rt.Region(); known {
		t.Errorf("Lost step must not set region")
	}
}

func TestRegionTrackerSinglePeak(t *testing.T) {
	prior, _ := NewUniformMask(100, 100)
	rt := NewRegionTrackerDefault()
	step, err := rt.Track([]Correspondence{matchAt(30, 40, 0.5)}, prior)
	if err != nil {
		t.Fatal(err)
	}
	// A single pixel has no spread: zero area region at the peak
	if !step.Lost {
		t.Errorf("Zero area region must be reported as lost")
	}
	assertPointNear(t, step.Region.Center, NewPoint(30, 40), eps)
}

func TestRegionTrackerCluster(t *testing.T) {
	prior, _ := NewUniformMask(100, 100)
	rt := NewRegionTrackerDefault()
	matches := append(clusterMatches(60, 50, 5, 0.1), matchAt(5, 5, 10))

	step, err := rt.Track(matches, prior)
	if err != nil {
		t.Fatal(err)
	}
	if step.Lost {
		t.Fatal("Cluster must be found")
	}
	assertPointNear(t, step.Region.Center, NewPoint(60, 50), 0.2)
	if len(step.Inside) != 9 {
		t.Errorf("Expected 9 cluster matches inside region, got %d", len(step.Inside))
	}
	for _, corr := range step.Inside {
		if corr.Observed.Position == NewPoint(5, 5) {
			t.Errorf("Weak outlier must stay outside region")
		}
	}
	if step.Region.Width < step.Region.Height {
		t.Errorf("Width must hold the major axis: %f < %f", step.Region.Width, step.Region.Height)
	}
	region, known := rt.Region()
	if !known || region != step.Region {
		t.Errorf("Region state must be updated on success")
	}

	// Object moves a bit: next step starts from the previous region
	step, err = rt.Track(clusterMatches(64, 53, 5, 0.1), prior)
	if err != nil {
		t.Fatal(err)
	}
	if step.Lost {
		t.Fatal("Shifted cluster must be followed")
	}
	assertPointNear(t, step.Region.Center, NewPoint(64, 53), 0.01)
	if len(step.Inside) != 9 {
		t.Errorf("Expected 9 matches inside region after shift, got %d", len(step.Inside))
	}
	if math.Abs(step.Region.Width-step.Region.Height) > eps {
		t.Errorf("Symmetric cluster must give square region, got %fx%f", step.Region.Width, step.Region.Height)
	}
}

func TestRegionTrackerPriorMask(t *testing.T) {
	prior, _ := NewProbabilityMask(100, 100)
	// Prior allows left half only
	for y := 0; y < 100; y++ {
		for x := 0; x < 50; x++ {
			prior.Set(x, y, 1)
		}
	}
	rt := NewRegionTrackerDefault()
	matches := append(clusterMatches(20, 50, 5, 0.1), clusterMatches(80, 50, 5, 0.1)...)
	step, err := rt.Track(matches, prior)
	if err != nil {
		t.Fatal(err)
	}
	if step.Lost {
		t.Fatal("Cluster in allowed half must be found")
	}
	assertPointNear(t, step.Region.Center, NewPoint(20, 50), 0.01)
	if step.Mask.At(80, 50) != 0 {
		t.Errorf("Prior must zero out votes outside allowed area")
	}
}

func TestRegionTrackerOutsideImage(t *testing.T) {
	prior, _ := NewUniformMask(100, 100)
	rt := NewRegionTrackerDefault()
	outside := NewOrientedRect(500, 500, 10, 10, 0)
	rt.SetRegion(outside)
	step, err := rt.Track(clusterMatches(50, 50, 5, 0.1), prior)
	if err != nil {
		t.Fatal(err)
	}
	if !step.Lost {
		t.Errorf("Region outside image must be lost")
	}
	if step.Region != outside {
		t.Errorf("Window outside of the mask must return the previous region, got %v", step.Region)
	}
	if region, _ := rt.Region(); region != outside {
		t.Errorf("Lost step must keep region unchanged, got %v", region)
	}

	rt.Reset()
	if _, known := rt.Region(); known {
		t.Errorf("Reset must forget region")
	}
	if _, err := rt.Track(nil, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for nil prior, got %v", err)
	}
}
