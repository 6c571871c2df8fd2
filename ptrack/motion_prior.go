package ptrack

import (
	"math"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

const (
	// Pixels far from predicted center keep this much confidence so fast motion does not zero out real matches
	motionPriorFloor    = 0.05
	motionPriorMinSigma = 5.0
)

// MotionPrior predicts region center with 2D Kalman filter and renders a Gaussian prior mask around prediction.
type MotionPrior struct {
	dt          float64
	tracker     *kalman_filter.Kalman2D
	predicted   Point
	sigma       float64
	initialized bool
}

// NewMotionPriorWithTime creates MotionPrior with specified time step between frames
func NewMotionPriorWithTime(dt float64) *MotionPrior {
	return &MotionPrior{
		dt: dt,
	}
}

// NewMotionPrior creates MotionPrior with default time step of 1.0
func NewMotionPrior() *MotionPrior {
	return NewMotionPriorWithTime(1.0)
}

// Observe feeds region found on the current frame into the filter
func (mp *MotionPrior) Observe(region OrientedRect) error {
	mp.sigma = maxFloat64(math.Hypot(region.Width, region.Height)/2.0, motionPriorMinSigma)
	if !mp.initialized {
		/* Kalman filter props */
		ux := 0.0
		uy := 0.0
		stdDevA := 2.0
		stdDevMx := 0.1
		stdDevMy := 0.1
		mp.tracker = kalman_filter.NewKalman2D(mp.dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(region.Center.X, region.Center.Y))
		mp.predicted = region.Center
		mp.initialized = true
		return nil
	}
	err := mp.tracker.Update(region.Center.X, region.Center.Y)
	if err != nil {
		return errors.Wrap(err, "Can't update motion prior")
	}
	return nil
}

// Predict advances filter by one frame and returns predicted region center.
// Returns false while nothing was observed yet.
func (mp *MotionPrior) Predict() (Point, bool) {
	if !mp.initialized {
		return Point{}, false
	}
	mp.tracker.Predict()
	stateX, stateY := mp.tracker.GetState()
	mp.predicted = Point{X: stateX, Y: stateY}
	return mp.predicted, true
}

// Mask renders prior of given size. Uniform until first observation.
func (mp *MotionPrior) Mask(width, height int) (*ProbabilityMask, error) {
	if !mp.initialized {
		return NewUniformMask(width, height)
	}
	mask, err := NewProbabilityMask(width, height)
	if err != nil {
		return nil, err
	}
	twoSigmaSq := 2 * mp.sigma * mp.sigma
	for y := 0; y < height; y++ {
		dy := float64(y) - mp.predicted.Y
		for x := 0; x < width; x++ {
			dx := float64(x) - mp.predicted.X
			mask.Set(x, y, maxFloat64(math.Exp(-(dx*dx+dy*dy)/twoSigmaSq), motionPriorFloor))
		}
	}
	return mask, nil
}

// Reset forgets motion history
func (mp *MotionPrior) Reset() {
	mp.tracker = nil
	mp.initialized = false
	mp.predicted = Point{}
	mp.sigma = 0
}
