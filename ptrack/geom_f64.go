package ptrack

import (
	"image"
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
)

// Point is a 2D point in image coordinates
type Point = r2.Point

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

func NewPointFrom(point image.Point) Point {
	return Point{
		X: float64(point.X),
		Y: float64(point.Y),
	}
}

// OrientedRect is a rectangle rotated around its center.
// Angle is in degrees, counter-clockwise in image coordinates.
type OrientedRect struct {
	Center Point
	Width  float64
	Height float64
	Angle  float64
}

func NewOrientedRect(cx, cy, width, height, angle float64) OrientedRect {
	return OrientedRect{
		Center: Point{X: cx, Y: cy},
		Width:  width,
		Height: height,
		Angle:  angle,
	}
}

// NewOrientedRectFrom creates axis-aligned OrientedRect from image.Rectangle
func NewOrientedRectFrom(rect image.Rectangle) OrientedRect {
	return OrientedRect{
		Center: Point{
			X: float64(rect.Min.X) + float64(rect.Dx())/2.0,
			Y: float64(rect.Min.Y) + float64(rect.Dy())/2.0,
		},
		Width:  float64(rect.Dx()),
		Height: float64(rect.Dy()),
	}
}

// Area returns rectangle's area
func (rect OrientedRect) Area() float64 {
	return rect.Width * rect.Height
}

// Empty reports whether rectangle has zero (or negative) area. Tracker treats it as lost track.
func (rect OrientedRect) Empty() bool {
	return !(rect.Width > 0 && rect.Height > 0)
}

// Corners returns the four corners in drawing order
func (rect OrientedRect) Corners() [4]Point {
	rad := rect.Angle * math.Pi / 180.0
	cs, sn := math.Cos(rad), math.Sin(rad)
	hw, hh := rect.Width/2.0, rect.Height/2.0
	offsets := [4][2]float64{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}}
	var corners [4]Point
	for i, o := range offsets {
		corners[i] = Point{
			X: rect.Center.X + o[0]*cs - o[1]*sn,
			Y: rect.Center.Y + o[0]*sn + o[1]*cs,
		}
	}
	return corners
}

// BoundingBox returns axis-aligned bounding box of rectangle
func (rect OrientedRect) BoundingBox() r2.Rect {
	c := rect.Corners()
	return r2.RectFromPoints(c[0], c[1], c[2], c[3])
}

// Contains reports whether point lies inside of rectangle's polygon (ray casting).
func (rect OrientedRect) Contains(pt Point) bool {
	if rect.Empty() {
		return false
	}
	corners := rect.Corners()
	return polygonContains(corners[:], pt)
}

func polygonContains(polygon []Point, pt Point) bool {
	inside := false
	for i, j := 0, len(polygon)-1; i < len(polygon); j, i = i, i+1 {
		pi, pj := polygon[i], polygon[j]
		if (pi.Y > pt.Y) != (pj.Y > pt.Y) {
			xCross := (pj.X-pi.X)*(pt.Y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if pt.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// pixelRect converts floating bounding box to integer pixel window clipped to [0,width)x[0,height).
// Returns false when nothing is left after clipping.
func pixelRect(box r2.Rect, width, height int) (image.Rectangle, bool) {
	full := r2.Rect{
		X: r1.Interval{Lo: 0, Hi: float64(width)},
		Y: r1.Interval{Lo: 0, Hi: float64(height)},
	}
	clipped := box.Intersection(full)
	if clipped.IsEmpty() {
		return image.Rectangle{}, false
	}
	win := image.Rect(
		int(math.Floor(clipped.X.Lo)),
		int(math.Floor(clipped.Y.Lo)),
		int(math.Ceil(clipped.X.Hi)),
		int(math.Ceil(clipped.Y.Hi)),
	).Intersect(image.Rect(0, 0, width, height))
	if win.Empty() {
		return image.Rectangle{}, false
	}
	return win, true
}

func euclideanDistance(p1, p2 Point) float64 {
	return p1.Sub(p2).Norm()
}
