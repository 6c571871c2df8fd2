package ptrack

import (
	"math"

	"github.com/pkg/errors"
)

// Descriptor is a fixed-length vector summarizing local appearance around a feature point
type Descriptor []float64

// Distance returns Euclidean distance between two descriptors of the same length
func (d Descriptor) Distance(other Descriptor) float64 {
	return math.Sqrt(d.squaredDistance(other))
}

func (d Descriptor) squaredDistance(other Descriptor) float64 {
	sum := 0.0
	for i := range d {
		diff := d[i] - other[i]
		sum += diff * diff
	}
	return sum
}

// Feature is a local feature point produced by an external detector.
type Feature struct {
	Position Point
	// Scale must be positive for pose voting
	Scale float64
	// Orientation in degrees, [0, 360)
	Orientation float64
	// Laplacian is the sign of the Laplacian (or any class bit). Features of different class never match when pruning is enabled.
	Laplacian  int
	Descriptor Descriptor
}

// NewFeature creates feature and normalizes its orientation into [0, 360)
func NewFeature(position Point, scale, orientation float64, laplacian int, descriptor Descriptor) Feature {
	return Feature{
		Position:    position,
		Scale:       scale,
		Orientation: normalizeDegrees(orientation),
		Laplacian:   laplacian,
		Descriptor:  descriptor,
	}
}

// descriptorsOf extracts descriptors and checks they all share the same length
func descriptorsOf(features []Feature) ([]Descriptor, error) {
	descriptors := make([]Descriptor, len(features))
	for i := range features {
		if len(features[i].Descriptor) == 0 {
			return nil, errors.Wrapf(ErrInvalidArgument, "feature %d has empty descriptor", i)
		}
		if len(features[i].Descriptor) != len(features[0].Descriptor) {
			return nil, errors.Wrapf(ErrInvalidArgument, "feature %d has descriptor length %d, expected %d", i, len(features[i].Descriptor), len(features[0].Descriptor))
		}
		descriptors[i] = features[i].Descriptor
	}
	return descriptors, nil
}
