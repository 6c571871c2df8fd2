package ptrack

import (
	"math"

	"github.com/pkg/errors"
)

// MinMatchDistance replaces zero descriptor distance when matches vote into the probability mask
const MinMatchDistance = 1e-6

// TrackStep is outcome of a single RegionTracker step
type TrackStep struct {
	// Region is updated region estimate. When Lost it is zero area if the window held no mass,
	// or the unchanged previous region if the window missed the mask entirely.
	Region OrientedRect
	// Lost is set when region collapsed (no mass in search window)
	Lost bool
	// Inside holds matched correspondences whose observed point lies inside Region
	Inside []Correspondence
	// Mask is the probability mask the step was run on
	Mask *ProbabilityMask
}

// RegionTracker relocates object's oriented region frame-to-frame with mean-shift over a probability mask built from matches.
// Not safe for concurrent use.
type RegionTracker struct {
	region  OrientedRect
	known   bool
	maxIter int
	eps     float64
}

// NewRegionTrackerDefault creates RegionTracker with unknown region and default mean-shift parameters
func NewRegionTrackerDefault() *RegionTracker {
	return &RegionTracker{
		maxIter: DefaultMeanShiftIterations,
		eps:     DefaultMeanShiftEpsilon,
	}
}

// NewRegionTracker creates RegionTracker with unknown region
func NewRegionTracker(maxIter int, eps float64) *RegionTracker {
	return &RegionTracker{
		maxIter: maxIter,
		eps:     eps,
	}
}

// Region returns current region and whether it is known at all
func (rt *RegionTracker) Region() (OrientedRect, bool) {
	return rt.region, rt.known
}

// SetRegion seeds tracker with a region estimate
func (rt *RegionTracker) SetRegion(region OrientedRect) {
	rt.region = region
	rt.known = true
}

// Reset forgets region: next step searches whole image
func (rt *RegionTracker) Reset() {
	rt.region = OrientedRect{}
	rt.known = false
}

// Track runs one tracking step.
//
// Every matched observed point votes 1/distance of its best candidate into a fresh mask, mask is multiplied
// by prior, and mean-shift with scale and orientation adaptation runs inside the previous region's bounding box
// (or the whole mask if region is unknown). Region state is updated only when the step did not lose the object.
func (rt *RegionTracker) Track(matched []Correspondence, prior *ProbabilityMask) (TrackStep, error) {
	if prior == nil {
		return TrackStep{}, errors.Wrap(ErrInvalidArgument, "prior mask is nil")
	}
	mask, err := NewProbabilityMask(prior.Width(), prior.Height())
	if err != nil {
		return TrackStep{}, errors.Wrap(err, "can't create probability mask")
	}
	for i := range matched {
		if len(matched[i].Candidates) == 0 {
			continue
		}
		pos := matched[i].Observed.Position
		mask.Set(int(math.Floor(pos.X)), int(math.Floor(pos.Y)), 1.0/maxFloat64(matched[i].Best().Distance, MinMatchDistance))
	}
	if err := mask.MulElem(prior); err != nil {
		return TrackStep{}, errors.Wrap(err, "can't apply prior mask")
	}

	window := mask.Bounds()
	if rt.known {
		var ok bool
		window, ok = pixelRect(rt.region.BoundingBox(), mask.Width(), mask.Height())
		if !ok {
			return TrackStep{Region: rt.region, Lost: true, Mask: mask}, nil
		}
	}

	region, ok := camShift(mask, window, rt.maxIter, rt.eps)
	if !ok || region.Empty() {
		return TrackStep{Region: region, Lost: true, Mask: mask}, nil
	}

	inside := make([]Correspondence, 0, len(matched))
	for i := range matched {
		if len(matched[i].Candidates) > 0 && region.Contains(matched[i].Observed.Position) {
			inside = append(inside, matched[i])
		}
	}
	rt.region = region
	rt.known = true
	return TrackStep{Region: region, Inside: inside, Mask: mask}, nil
}
