package ptrack

import (
	"math/rand"
	"sync"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// DefaultK is number of candidates per observed feature used by Detect and Track
	DefaultK = 2
	// DefaultSearchEffort bounds number of index leaves visited per query
	DefaultSearchEffort = 250
	// DefaultScaleIncrement is histogram bin width on scale ratio axis
	DefaultScaleIncrement = 1.5
	// DefaultRotationBins is number of histogram bins on rotation axis
	DefaultRotationBins = 20
)

type trackerOptions struct {
	indexKind        IndexKind
	spill            SpillTreeParams
	k                int
	searchEffort     int
	uniqueness       float64
	scaleIncrement   float64
	rotationBins     int
	keepFraction     float64
	seed             int64
	reprojThreshold  float64
	ransacIterations int
	maxScaleChange   float64
	meanShiftIter    int
	meanShiftEps     float64
	imageWidth       int
	imageHeight      int
	laplacianPruning bool
	oneToOne         bool
	motionPrior      bool
	logger           golog.Logger
}

func defaultTrackerOptions() trackerOptions {
	return trackerOptions{
		indexKind:        IndexKDTree,
		spill:            DefaultSpillTreeParams(),
		k:                DefaultK,
		searchEffort:     DefaultSearchEffort,
		uniqueness:       DefaultUniquenessRatio,
		scaleIncrement:   DefaultScaleIncrement,
		rotationBins:     DefaultRotationBins,
		keepFraction:     DefaultVoteKeepFraction,
		seed:             DefaultSeed,
		reprojThreshold:  DefaultReprojThreshold,
		ransacIterations: DefaultRansacIterations,
		maxScaleChange:   DefaultMaxScaleChange,
		meanShiftIter:    DefaultMeanShiftIterations,
		meanShiftEps:     DefaultMeanShiftEpsilon,
	}
}

// Option configures Tracker
type Option func(*trackerOptions)

// WithIndex selects nearest neighbor search structure
func WithIndex(kind IndexKind) Option {
	return func(opts *trackerOptions) {
		opts.indexKind = kind
	}
}

// WithSpillTree selects spill tree index with given parameters
func WithSpillTree(branching int, rho, tau float64) Option {
	return func(opts *trackerOptions) {
		opts.indexKind = IndexSpillTree
		opts.spill = SpillTreeParams{Branching: branching, Rho: rho, Tau: tau}
	}
}

// WithK sets number of candidates per observed feature. Values below 2 disable uniqueness test in practice.
func WithK(k int) Option {
	return func(opts *trackerOptions) {
		opts.k = k
	}
}

// WithSearchEffort sets max number of index leaves visited per query. Values < 1 mean exhaustive search.
func WithSearchEffort(searchEffort int) Option {
	return func(opts *trackerOptions) {
		opts.searchEffort = searchEffort
	}
}

// WithUniqueness sets ratio threshold used by Track
func WithUniqueness(ratio float64) Option {
	return func(opts *trackerOptions) {
		opts.uniqueness = ratio
	}
}

// WithScaleIncrement sets scale bin width of pose voting
func WithScaleIncrement(scaleIncrement float64) Option {
	return func(opts *trackerOptions) {
		opts.scaleIncrement = scaleIncrement
	}
}

// WithRotationBins sets number of rotation bins of pose voting
func WithRotationBins(bins int) Option {
	return func(opts *trackerOptions) {
		opts.rotationBins = bins
	}
}

// WithKeepFraction sets pose voting threshold relative to the fullest bin
func WithKeepFraction(fraction float64) Option {
	return func(opts *trackerOptions) {
		opts.keepFraction = fraction
	}
}

// WithSeed seeds RANSAC. Every estimation starts from this seed so results are reproducible.
func WithSeed(seed int64) Option {
	return func(opts *trackerOptions) {
		opts.seed = seed
	}
}

// WithRansac sets RANSAC reprojection threshold (pixels) and max iterations
func WithRansac(reprojThreshold float64, iterations int) Option {
	return func(opts *trackerOptions) {
		opts.reprojThreshold = reprojThreshold
		opts.ransacIterations = iterations
	}
}

// WithHomographyScaleLimit sets validation bound of homography's affine determinant
func WithHomographyScaleLimit(maxScaleChange float64) Option {
	return func(opts *trackerOptions) {
		opts.maxScaleChange = maxScaleChange
	}
}

// WithMeanShift sets mean-shift iteration cap and convergence tolerance
func WithMeanShift(maxIter int, eps float64) Option {
	return func(opts *trackerOptions) {
		opts.meanShiftIter = maxIter
		opts.meanShiftEps = eps
	}
}

// WithImageSize sets observed image size. Needed by Track when no prior mask is given.
func WithImageSize(width, height int) Option {
	return func(opts *trackerOptions) {
		opts.imageWidth = width
		opts.imageHeight = height
	}
}

// WithLaplacianPruning drops candidates with Laplacian sign different from observed feature's
func WithLaplacianPruning(enabled bool) Option {
	return func(opts *trackerOptions) {
		opts.laplacianPruning = enabled
	}
}

// WithOneToOne makes Detect keep at most one observation per model feature
func WithOneToOne(enabled bool) Option {
	return func(opts *trackerOptions) {
		opts.oneToOne = enabled
	}
}

// WithMotionPrior makes Track follow region centre with Kalman filter. Its prediction is the prior mask when caller passes none.
func WithMotionPrior(enabled bool) Option {
	return func(opts *trackerOptions) {
		opts.motionPrior = enabled
	}
}

// WithLogger sets logger. Default logger discards everything.
func WithLogger(logger golog.Logger) Option {
	return func(opts *trackerOptions) {
		opts.logger = logger
	}
}

// TrackResult is outcome of Tracker.Track
type TrackResult struct {
	// Homography re-estimated from correspondences inside Region. Nil when it could not be estimated.
	Homography *Homography
	// Region is the updated region. When Lost it is either zero area (no mass to follow)
	// or the unchanged previous region (search window outside the mask).
	Region OrientedRect
	// Lost is set when region collapsed. Tracker keeps its previous region in that case.
	Lost bool
	// Correspondences inside Region used for re-estimation
	Correspondences []Correspondence
}

// Err returns ErrTrackLost for a lost step and nil otherwise.
// Lost is a regular outcome of Track, this is just a shortcut for callers propagating it as error.
func (result *TrackResult) Err() error {
	if !result.Lost {
		return nil
	}
	return errors.Wrapf(ErrTrackLost, "region collapsed at (%.1f, %.1f)", result.Region.Center.X, result.Region.Center.Y)
}

// Tracker locates a planar model in observed feature sets and follows its region across frames.
//
// Detect and MatchFeatures only read tracker state and may be called concurrently.
// Track, Reset and SetRegion mutate region state; they are serialized internally, but interleaving
// Track calls from several goroutines on one tracker makes little sense: use one tracker per object per stream.
type Tracker struct {
	id      uuid.UUID
	model   []Feature
	index   FeatureIndex
	matcher *Matcher
	options trackerOptions
	logger  golog.Logger

	mu     sync.Mutex
	region *RegionTracker
	motion *MotionPrior
}

// NewTracker builds feature index over model features and creates tracker with unknown region
func NewTracker(model []Feature, opts ...Option) (*Tracker, error) {
	options := defaultTrackerOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = zap.NewNop().Sugar()
	}
	if len(model) == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "model feature set is empty")
	}
	if options.k < 1 {
		return nil, errors.Wrapf(ErrInvalidArgument, "k must be at least 1, got %d", options.k)
	}

	modelCopy := make([]Feature, len(model))
	copy(modelCopy, model)
	descriptors, err := descriptorsOf(modelCopy)
	if err != nil {
		return nil, errors.Wrap(err, "can't collect model descriptors")
	}
	index, err := NewFeatureIndex(options.indexKind, descriptors, options.spill)
	if err != nil {
		return nil, errors.Wrap(err, "can't build feature index")
	}
	matcher, err := NewMatcher(index, modelCopy, options.laplacianPruning)
	if err != nil {
		return nil, errors.Wrap(err, "can't create matcher")
	}

	tracker := &Tracker{
		id:      uuid.New(),
		model:   modelCopy,
		index:   index,
		matcher: matcher,
		options: options,
		logger:  options.logger,
		region:  NewRegionTracker(options.meanShiftIter, options.meanShiftEps),
		motion:  NewMotionPrior(),
	}
	tracker.logger.Debugf("tracker %s: built %s index over %d model features", tracker.id, index.Kind(), len(modelCopy))
	return tracker, nil
}

// ID returns tracker's identifier
func (t *Tracker) ID() uuid.UUID {
	return t.id
}

// Model returns tracker's model features. Be careful: this is not copy, but reference to them
func (t *Tracker) Model() []Feature {
	return t.model
}

// Index returns nearest neighbor search structure built over model descriptors
func (t *Tracker) Index() FeatureIndex {
	return t.index
}

// MatchFeatures returns raw correspondences: up to k candidates per observed feature, ascending by distance
func (t *Tracker) MatchFeatures(observed []Feature, k, searchEffort int) ([]Correspondence, error) {
	return t.matcher.Match(observed, k, searchEffort)
}

func (t *Tracker) estimateOptions() []EstimateOption {
	return []EstimateOption{
		WithEstimateRand(rand.New(rand.NewSource(t.options.seed))),
		WithReprojThreshold(t.options.reprojThreshold),
		WithRansacIterations(t.options.ransacIterations),
		WithMaxScaleChange(t.options.maxScaleChange),
	}
}

// estimate treats estimation failure as "no match" and returns nil homography for it
func (t *Tracker) estimate(corrs []Correspondence) (*Homography, error) {
	if len(corrs) < 4 {
		t.logger.Debugf("tracker %s: %d correspondences are not enough for homography", t.id, len(corrs))
		return nil, nil
	}
	h, err := EstimateHomography(corrs, t.estimateOptions()...)
	if err != nil {
		if errors.Is(err, ErrEstimationFailure) {
			t.logger.Debugf("tracker %s: %v", t.id, err)
			return nil, nil
		}
		return nil, errors.Wrap(err, "can't estimate homography")
	}
	return h, nil
}

// Detect locates model in observed features. Returns nil homography (and nil error) when the model is not found.
func (t *Tracker) Detect(observed []Feature, uniqueness float64) (*Homography, error) {
	corrs, err := t.matcher.Match(observed, maxInt(t.options.k, 2), t.options.searchEffort)
	if err != nil {
		return nil, errors.Wrap(err, "can't match features")
	}
	unique := FilterByUniqueness(corrs, uniqueness)
	consistent := FilterByPoseConsistency(unique, t.options.scaleIncrement, t.options.rotationBins, WithVoteKeepFraction(t.options.keepFraction))
	if t.options.oneToOne {
		consistent = AssignOneToOne(consistent)
	}
	t.logger.Debugf("tracker %s: detect %d observed, %d unique, %d pose consistent", t.id, len(corrs), len(unique), len(consistent))
	return t.estimate(consistent)
}

// Track matches observed features, relocates tracked region and re-estimates homography from matches inside it.
//
// prior, when not nil, replaces tracker's current region. priorMask multiplies the match mask; when nil,
// either Kalman motion prior (WithMotionPrior) or uniform prior of WithImageSize is used.
// Failed matching or a missing mask source leave tracker state as it was.
func (t *Tracker) Track(observed []Feature, prior *OrientedRect, priorMask *ProbabilityMask) (*TrackResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if priorMask == nil && (t.options.imageWidth <= 0 || t.options.imageHeight <= 0) {
		return nil, errors.Wrap(ErrInvalidArgument, "no prior mask given and image size is unknown")
	}
	corrs, err := t.matcher.Match(observed, t.options.k, t.options.searchEffort)
	if err != nil {
		return nil, errors.Wrap(err, "can't match features")
	}
	unique := FilterByUniqueness(corrs, t.options.uniqueness)

	mask, err := t.priorMask(priorMask)
	if err != nil {
		return nil, err
	}
	previous, known := t.region.Region()
	if prior != nil {
		t.region.SetRegion(*prior)
	}
	step, err := t.region.Track(unique, mask)
	if err != nil {
		if known {
			t.region.SetRegion(previous)
		} else {
			t.region.Reset()
		}
		return nil, errors.Wrap(err, "can't track region")
	}
	result := &TrackResult{
		Region:          step.Region,
		Lost:            step.Lost,
		Correspondences: step.Inside,
	}
	if step.Lost {
		t.logger.Infof("tracker %s: track lost (%d unique matches)", t.id, len(unique))
		return result, nil
	}
	if t.options.motionPrior {
		if err := t.motion.Observe(step.Region); err != nil {
			return nil, err
		}
	}
	result.Homography, err = t.estimate(step.Inside)
	if err != nil {
		return nil, err
	}
	t.logger.Debugf("tracker %s: region %.1fx%.1f at (%.1f, %.1f), %d of %d matches inside", t.id, step.Region.Width, step.Region.Height, step.Region.Center.X, step.Region.Center.Y, len(step.Inside), len(unique))
	return result, nil
}

// priorMask advances motion prior (when enabled) once per frame and picks the mask the step runs on.
// Image size must be checked by caller when priorMask is nil.
func (t *Tracker) priorMask(priorMask *ProbabilityMask) (*ProbabilityMask, error) {
	if t.options.motionPrior {
		t.motion.Predict()
	}
	if priorMask != nil {
		return priorMask, nil
	}
	if t.options.motionPrior {
		return t.motion.Mask(t.options.imageWidth, t.options.imageHeight)
	}
	return NewUniformMask(t.options.imageWidth, t.options.imageHeight)
}

// Region returns tracked region and whether it is known
func (t *Tracker) Region() (OrientedRect, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.region.Region()
}

// SetRegion seeds tracked region
func (t *Tracker) SetRegion(region OrientedRect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.region.SetRegion(region)
}

// Reset forgets tracked region and motion history
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.region.Reset()
	t.motion.Reset()
}
