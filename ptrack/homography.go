package ptrack

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	// DirectSolveLimit is the number of correspondences below which the homography is solved exactly from the first four
	DirectSolveLimit = 10
	// DefaultReprojThreshold is max reprojection error (pixels) of a RANSAC inlier
	DefaultReprojThreshold = 3.0
	// DefaultRansacIterations caps number of RANSAC hypotheses
	DefaultRansacIterations = 2000
	// DefaultRansacConfidence is used for adaptive early exit of RANSAC
	DefaultRansacConfidence = 0.995
	// DefaultMaxScaleChange bounds determinant of the affine part of a valid homography to [1/x, x]
	DefaultMaxScaleChange = 10.0
	// DefaultSeed seeds RANSAC sampling when nothing else is given
	DefaultSeed = 1

	collinearEps = 1e-6
)

// Homography is a 3x3 projective transform from model image coordinates to observed image coordinates.
type Homography struct {
	matrix *mat.Dense
}

// NewHomography creates a Homography from a row-major slice of 9 floats.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Wrapf(ErrInvalidArgument, "homography needs 9 values, got %d", len(vals))
	}
	return &Homography{mat.NewDense(3, 3, append([]float64(nil), vals...))}, nil
}

// IdentityHomography returns homography mapping every point onto itself
func IdentityHomography() *Homography {
	return &Homography{mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})}
}

// At returns the value of the homography at the given index.
func (h *Homography) At(row, col int) float64 {
	return h.matrix.At(row, col)
}

// Data returns row-major copy of matrix
func (h *Homography) Data() [9]float64 {
	var data [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			data[r*3+c] = h.matrix.At(r, c)
		}
	}
	return data
}

// Apply transforms the given point. Points mapped to infinity come back with infinite coordinates.
func (h *Homography) Apply(pt Point) Point {
	return applyMatrix(h.matrix, pt)
}

// Corners maps corners of model image of given size: top-left, top-right, bottom-right, bottom-left
func (h *Homography) Corners(width, height float64) [4]Point {
	return [4]Point{
		h.Apply(Point{X: 0, Y: 0}),
		h.Apply(Point{X: width, Y: 0}),
		h.Apply(Point{X: width, Y: height}),
		h.Apply(Point{X: 0, Y: height}),
	}
}

// Inverse returns homography from observed image coordinates to model image coordinates.
func (h *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.matrix); err != nil {
		return nil, errors.Wrap(err, "homography is not invertible")
	}
	return &Homography{&inv}, nil
}

func applyMatrix(m mat.Matrix, pt Point) Point {
	x := m.At(0, 0)*pt.X + m.At(0, 1)*pt.Y + m.At(0, 2)
	y := m.At(1, 0)*pt.X + m.At(1, 1)*pt.Y + m.At(1, 2)
	z := m.At(2, 0)*pt.X + m.At(2, 1)*pt.Y + m.At(2, 2)
	if z == 0 {
		return Point{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point{X: x / z, Y: y / z}
}

type estimateOptions struct {
	reprojThreshold float64
	maxIterations   int
	confidence      float64
	maxScaleChange  float64
	rng             *rand.Rand
}

// EstimateOption tunes homography estimation
type EstimateOption func(*estimateOptions)

// WithEstimateSeed seeds RANSAC sampling
func WithEstimateSeed(seed int64) EstimateOption {
	return func(opts *estimateOptions) {
		opts.rng = rand.New(rand.NewSource(seed))
	}
}

// WithEstimateRand makes RANSAC draw samples from given source. Source must not be shared between goroutines.
func WithEstimateRand(rng *rand.Rand) EstimateOption {
	return func(opts *estimateOptions) {
		opts.rng = rng
	}
}

// WithReprojThreshold sets max reprojection error of a RANSAC inlier (pixels)
func WithReprojThreshold(threshold float64) EstimateOption {
	return func(opts *estimateOptions) {
		opts.reprojThreshold = threshold
	}
}

// WithRansacIterations sets max number of RANSAC hypotheses
func WithRansacIterations(iterations int) EstimateOption {
	return func(opts *estimateOptions) {
		opts.maxIterations = iterations
	}
}

// WithMaxScaleChange sets validation bound for determinant of homography's affine part
func WithMaxScaleChange(maxScaleChange float64) EstimateOption {
	return func(opts *estimateOptions) {
		opts.maxScaleChange = maxScaleChange
	}
}

// EstimateHomography recovers homography mapping best model candidates onto observed points.
//
// Fewer than 4 correspondences is ErrInvalidArgument. Fewer than DirectSolveLimit correspondences are solved
// exactly from the first four; larger sets go through RANSAC with least squares refit on inliers.
// Degenerate configurations and matrices failing validation give ErrEstimationFailure.
func EstimateHomography(corrs []Correspondence, opts ...EstimateOption) (*Homography, error) {
	h, _, err := EstimateHomographyInliers(corrs, opts...)
	return h, err
}

// EstimateHomographyInliers is EstimateHomography which also reports which correspondences fit the result
// within reprojection threshold.
func EstimateHomographyInliers(corrs []Correspondence, opts ...EstimateOption) (*Homography, []bool, error) {
	options := estimateOptions{
		reprojThreshold: DefaultReprojThreshold,
		maxIterations:   DefaultRansacIterations,
		confidence:      DefaultRansacConfidence,
		maxScaleChange:  DefaultMaxScaleChange,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.rng == nil {
		options.rng = rand.New(rand.NewSource(DefaultSeed))
	}

	if len(corrs) < 4 {
		return nil, nil, errors.Wrapf(ErrInvalidArgument, "homography needs at least 4 correspondences, got %d", len(corrs))
	}
	for i := range corrs {
		if len(corrs[i].Candidates) == 0 {
			return nil, nil, errors.Wrapf(ErrInvalidArgument, "correspondence %d has no candidates", i)
		}
	}
	src, dst := correspondencePoints(corrs)

	var matrix *mat.Dense
	if len(corrs) < DirectSolveLimit {
		var err error
		matrix, err = solveFourPoints(src[:4], dst[:4])
		if err != nil {
			return nil, nil, err
		}
	} else {
		var err error
		matrix, err = ransacHomography(src, dst, options)
		if err != nil {
			return nil, nil, err
		}
	}

	normalized, ok := validateHomography(matrix, options.maxScaleChange)
	if !ok {
		return nil, nil, errors.Wrap(ErrEstimationFailure, "homography failed validation")
	}
	_, inliers := countInliers(normalized, src, dst, options.reprojThreshold)
	return &Homography{normalized}, inliers, nil
}

func collinear(a, b, c Point) bool {
	ab, ac := b.Sub(a), c.Sub(a)
	scale := ab.Norm() * ac.Norm()
	return scale == 0 || math.Abs(ab.Cross(ac)) <= collinearEps*scale
}

// degenerateQuad reports whether any three of four points are collinear (or coincide)
func degenerateQuad(pts []Point) bool {
	return collinear(pts[0], pts[1], pts[2]) ||
		collinear(pts[0], pts[1], pts[3]) ||
		collinear(pts[0], pts[2], pts[3]) ||
		collinear(pts[1], pts[2], pts[3])
}

// solveFourPoints computes exact homography mapping src[i] onto dst[i] with h22 fixed to 1.
func solveFourPoints(src, dst []Point) (*mat.Dense, error) {
	if degenerateQuad(src) || degenerateQuad(dst) {
		return nil, errors.Wrap(ErrEstimationFailure, "degenerate point configuration")
	}
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		X, Y := src[i].X, src[i].Y
		x, y := dst[i].X, dst[i].Y
		r := 2 * i
		// x = (h00 X + h01 Y + h02)/(h20 X + h21 Y + 1)
		a.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)
		// y = (h10 X + h11 Y + h12)/(h20 X + h21 Y + 1)
		a.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}
	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return nil, errors.Wrap(ErrEstimationFailure, "singular linear system: "+err.Error())
	}
	vals := make([]float64, 9)
	for i := 0; i < 8; i++ {
		vals[i] = h.AtVec(i)
	}
	vals[8] = 1
	return mat.NewDense(3, 3, vals), nil
}

// normalizationMatrix moves centroid to origin and scales mean distance to sqrt(2) (Hartley normalization)
func normalizationMatrix(pts []Point) (*mat.Dense, *mat.Dense) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pts))
	cy /= float64(len(pts))
	meanDist := 0.0
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= float64(len(pts))
	s := 1.0
	if meanDist > 0 {
		s = math.Sqrt2 / meanDist
	}
	t := mat.NewDense(3, 3, []float64{s, 0, -s * cx, 0, s, -s * cy, 0, 0, 1})
	tInv := mat.NewDense(3, 3, []float64{1 / s, 0, cx, 0, 1 / s, cy, 0, 0, 1})
	return t, tInv
}

// leastSquaresHomography fits homography to all point pairs with normalized DLT.
func leastSquaresHomography(src, dst []Point) (*mat.Dense, error) {
	t1, _ := normalizationMatrix(src)
	t2, t2Inv := normalizationMatrix(dst)
	a := mat.NewDense(2*len(src), 9, nil)
	for i := range src {
		p := applyMatrix(t1, src[i])
		q := applyMatrix(t2, dst[i])
		a.SetRow(2*i, []float64{p.X, p.Y, 1, 0, 0, 0, -p.X * q.X, -p.Y * q.X, -q.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, p.X, p.Y, 1, -p.X * q.Y, -p.Y * q.Y, -q.Y})
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFullV); !ok {
		return nil, errors.Wrap(ErrEstimationFailure, "failed to factorize DLT system")
	}
	var v mat.Dense
	svd.VTo(&v)
	vals := make([]float64, 9)
	for i := range vals {
		vals[i] = v.At(i, 8)
	}
	hn := mat.NewDense(3, 3, vals)
	var tmp, h mat.Dense
	tmp.Mul(t2Inv, hn)
	h.Mul(&tmp, t1)
	return &h, nil
}

func countInliers(m mat.Matrix, src, dst []Point, threshold float64) (int, []bool) {
	inliers := make([]bool, len(src))
	count := 0
	for i := range src {
		projected := applyMatrix(m, src[i])
		if euclideanDistance(projected, dst[i]) <= threshold {
			inliers[i] = true
			count++
		}
	}
	return count, inliers
}

// sampleFour draws 4 distinct indices out of n using partial Fisher-Yates over scratch
func sampleFour(rng *rand.Rand, scratch []int) [4]int {
	n := len(scratch)
	for i := range scratch {
		scratch[i] = i
	}
	var out [4]int
	for i := 0; i < 4; i++ {
		j := i + rng.Intn(n-i)
		scratch[i], scratch[j] = scratch[j], scratch[i]
		out[i] = scratch[i]
	}
	return out
}

// ransacHomography is RANdom SAmple Consensus over 4-point hypotheses followed by least squares refit on the best inlier set
func ransacHomography(src, dst []Point, options estimateOptions) (*mat.Dense, error) {
	n := len(src)
	scratch := make([]int, n)
	sampleSrc := make([]Point, 4)
	sampleDst := make([]Point, 4)

	var best *mat.Dense
	var bestInliers []bool
	bestCount := 0
	iterations := options.maxIterations
	for iter := 0; iter < iterations; iter++ {
		idx := sampleFour(options.rng, scratch)
		for i, j := range idx {
			sampleSrc[i] = src[j]
			sampleDst[i] = dst[j]
		}
		hypothesis, err := solveFourPoints(sampleSrc, sampleDst)
		if err != nil {
			continue
		}
		count, inliers := countInliers(hypothesis, src, dst, options.reprojThreshold)
		if count <= bestCount {
			continue
		}
		best, bestInliers, bestCount = hypothesis, inliers, count
		iterations = minInt(options.maxIterations, adaptiveIterations(float64(count)/float64(n), options.confidence, iter+1))
	}
	if best == nil || bestCount < 4 {
		return nil, errors.Wrap(ErrEstimationFailure, "no consistent 4-point hypothesis")
	}

	inSrc := make([]Point, 0, bestCount)
	inDst := make([]Point, 0, bestCount)
	for i := range bestInliers {
		if bestInliers[i] {
			inSrc = append(inSrc, src[i])
			inDst = append(inDst, dst[i])
		}
	}
	refined, err := leastSquaresHomography(inSrc, inDst)
	if err != nil {
		return best, nil
	}
	if refinedCount, _ := countInliers(refined, src, dst, options.reprojThreshold); refinedCount < bestCount {
		return best, nil
	}
	return refined, nil
}

// adaptiveIterations returns number of hypotheses needed to draw an all-inlier sample with given confidence
func adaptiveIterations(inlierRatio, confidence float64, done int) int {
	if inlierRatio >= 1 {
		return done
	}
	allInliers := math.Pow(inlierRatio, 4)
	if allInliers <= 0 {
		return math.MaxInt32
	}
	needed := math.Log(1-confidence) / math.Log(1-allInliers)
	if math.IsNaN(needed) || needed > math.MaxInt32 {
		return math.MaxInt32
	}
	return maxInt(done, int(math.Ceil(needed)))
}

// validateHomography checks entries are finite and matrix is well conditioned.
// The affine part's determinant must stay within [1/maxScaleChange, maxScaleChange]: larger area change
// or a mirror flip can't come from a planar object seen by a camera.
// Returns matrix scaled so that h22 = 1.
func validateHomography(m *mat.Dense, maxScaleChange float64) (*mat.Dense, bool) {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if !isFinite(m.At(r, c)) {
				return nil, false
			}
		}
	}
	h22 := m.At(2, 2)
	if math.Abs(h22) < 1e-12 {
		return nil, false
	}
	var normalized mat.Dense
	normalized.Scale(1/h22, m)
	det := mat.Det(&normalized)
	if !isFinite(det) || math.Abs(det) < 1e-12 {
		return nil, false
	}
	affineDet := normalized.At(0, 0)*normalized.At(1, 1) - normalized.At(0, 1)*normalized.At(1, 0)
	if maxScaleChange > 1 && (affineDet < 1/maxScaleChange || affineDet > maxScaleChange) {
		return nil, false
	}
	return &normalized, true
}
