package ptrack

import (
	"image"
	"math"
)

const (
	// DefaultMeanShiftIterations caps mean-shift iterations per tracking step
	DefaultMeanShiftIterations = 10
	// DefaultMeanShiftEpsilon is the squared centroid shift below which mean-shift stops
	DefaultMeanShiftEpsilon = 1e-8
	// Window is grown by this many pixels on every side before orientation/size estimation
	camShiftTolerance = 10
)

// meanShift moves window (keeping its size) to the centroid of mask mass until shift is below eps or maxIter is reached.
// Returns false if window holds no mass.
func meanShift(mask *ProbabilityMask, window image.Rectangle, maxIter int, eps float64) (image.Rectangle, bool) {
	bounds := mask.Bounds()
	for i := 0; i < maxIter; i++ {
		m := mask.moments(window)
		if m.m00 <= 0 {
			return window, false
		}
		dx := math.Round(m.m10/m.m00 - float64(window.Dx())/2.0)
		dy := math.Round(m.m01/m.m00 - float64(window.Dy())/2.0)
		shifted := clampWindow(window.Add(image.Point{X: int(dx), Y: int(dy)}), bounds)
		moved := shifted.Min.Sub(window.Min)
		window = shifted
		if float64(moved.X*moved.X+moved.Y*moved.Y) < eps {
			break
		}
	}
	return window, true
}

// clampWindow slides window back inside bounds without changing its size (unless it is bigger than bounds)
func clampWindow(window, bounds image.Rectangle) image.Rectangle {
	w, h := minInt(window.Dx(), bounds.Dx()), minInt(window.Dy(), bounds.Dy())
	x := maxInt(bounds.Min.X, minInt(window.Min.X, bounds.Max.X-w))
	y := maxInt(bounds.Min.Y, minInt(window.Min.Y, bounds.Max.Y-h))
	return image.Rect(x, y, x+w, y+h)
}

// camShift runs mean-shift and then adapts orientation and size of the region from second order moments
// of the mask around the converged window. Major axis becomes region's Width and sets its Angle.
// Returns zero-area region centered at the window when there is no mass to follow.
func camShift(mask *ProbabilityMask, window image.Rectangle, maxIter int, eps float64) (OrientedRect, bool) {
	converged, ok := meanShift(mask, window, maxIter, eps)
	if !ok {
		return OrientedRect{Center: windowCenter(converged)}, false
	}
	grown := image.Rect(
		converged.Min.X-camShiftTolerance,
		converged.Min.Y-camShiftTolerance,
		converged.Max.X+camShiftTolerance,
		converged.Max.Y+camShiftTolerance,
	).Intersect(mask.Bounds())
	m := mask.moments(grown)
	if m.m00 <= 0 {
		return OrientedRect{Center: windowCenter(converged)}, false
	}
	inv := 1.0 / m.m00
	xc, yc := m.m10*inv, m.m01*inv
	// Central moments normalized by mass
	a := m.m20*inv - xc*xc
	b := m.m11*inv - xc*yc
	c := m.m02*inv - yc*yc

	square := math.Sqrt(4*b*b + (a-c)*(a-c))
	theta := math.Atan2(2*b, a-c+square)
	cs, sn := math.Cos(theta), math.Sin(theta)
	rotateA := cs*cs*a + 2*cs*sn*b + sn*sn*c
	rotateC := sn*sn*a - 2*cs*sn*b + cs*cs*c
	length := math.Sqrt(math.Max(rotateA, 0)) * 4
	width := math.Sqrt(math.Max(rotateC, 0)) * 4
	if length < width {
		length, width = width, length
		theta += math.Pi / 2
	}
	return OrientedRect{
		Center: Point{X: xc + float64(grown.Min.X), Y: yc + float64(grown.Min.Y)},
		Width:  length,
		Height: width,
		Angle:  normalizeDegrees(theta * 180.0 / math.Pi),
	}, true
}

func windowCenter(window image.Rectangle) Point {
	return Point{
		X: float64(window.Min.X) + float64(window.Dx())/2.0,
		Y: float64(window.Min.Y) + float64(window.Dy())/2.0,
	}
}
