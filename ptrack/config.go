package ptrack

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// IndexConfig selects nearest neighbor search structure. Branching, Rho and Tau are used by spill tree only.
type IndexConfig struct {
	Kind      string  `yaml:"kind" validate:"omitempty,oneof=kdtree spilltree"`
	Branching int     `yaml:"branching" validate:"gte=1"`
	Rho       float64 `yaml:"rho" validate:"gt=0,lte=0.8"`
	Tau       float64 `yaml:"tau" validate:"gte=0,lt=1"`
}

// MatchingConfig tunes candidate search and filtering
type MatchingConfig struct {
	K                int     `yaml:"k" validate:"gte=1"`
	SearchEffort     int     `yaml:"searchEffort" validate:"gte=0"`
	Uniqueness       float64 `yaml:"uniqueness" validate:"gt=0"`
	LaplacianPruning bool    `yaml:"laplacianPruning"`
	OneToOne         bool    `yaml:"oneToOne"`
}

// VotingConfig tunes pose consistency histogram
type VotingConfig struct {
	ScaleIncrement float64 `yaml:"scaleIncrement" validate:"gt=1"`
	RotationBins   int     `yaml:"rotationBins" validate:"gte=1"`
	KeepFraction   float64 `yaml:"keepFraction" validate:"gt=0,lte=1"`
}

// HomographyConfig tunes RANSAC and validation of estimated homography
type HomographyConfig struct {
	ReprojThreshold  float64 `yaml:"reprojThreshold" validate:"gt=0"`
	RansacIterations int     `yaml:"ransacIterations" validate:"gte=1"`
	MaxScaleChange   float64 `yaml:"maxScaleChange" validate:"gt=1"`
	Seed             int64   `yaml:"seed"`
}

// TrackingConfig tunes mean-shift and prior mask of Track. Zero image size means caller always passes prior mask.
type TrackingConfig struct {
	MaxIterations int     `yaml:"maxIterations" validate:"gte=1"`
	Epsilon       float64 `yaml:"epsilon" validate:"gte=0"`
	ImageWidth    int     `yaml:"imageWidth" validate:"gte=0"`
	ImageHeight   int     `yaml:"imageHeight" validate:"gte=0"`
	MotionPrior   bool    `yaml:"motionPrior"`
}

// Config is file representation of tracker options
type Config struct {
	Index      IndexConfig      `yaml:"index"`
	Matching   MatchingConfig   `yaml:"matching"`
	Voting     VotingConfig     `yaml:"voting"`
	Homography HomographyConfig `yaml:"homography"`
	Tracking   TrackingConfig   `yaml:"tracking"`
}

// DefaultConfig returns config holding the same values NewTracker uses without options
func DefaultConfig() *Config {
	spill := DefaultSpillTreeParams()
	return &Config{
		Index: IndexConfig{
			Kind:      IndexKDTree.String(),
			Branching: spill.Branching,
			Rho:       spill.Rho,
			Tau:       spill.Tau,
		},
		Matching: MatchingConfig{
			K:            DefaultK,
			SearchEffort: DefaultSearchEffort,
			Uniqueness:   DefaultUniquenessRatio,
		},
		Voting: VotingConfig{
			ScaleIncrement: DefaultScaleIncrement,
			RotationBins:   DefaultRotationBins,
			KeepFraction:   DefaultVoteKeepFraction,
		},
		Homography: HomographyConfig{
			ReprojThreshold:  DefaultReprojThreshold,
			RansacIterations: DefaultRansacIterations,
			MaxScaleChange:   DefaultMaxScaleChange,
			Seed:             DefaultSeed,
		},
		Tracking: TrackingConfig{
			MaxIterations: DefaultMeanShiftIterations,
			Epsilon:       DefaultMeanShiftEpsilon,
		},
	}
}

// LoadConfig reads YAML config. Fields missing in the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read config file %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config on top of DefaultConfig and validates it
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "can't parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (cfg *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// Options converts config into tracker options
func (cfg *Config) Options() ([]Option, error) {
	kind, err := ParseIndexKind(cfg.Index.Kind)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithIndex(kind),
		WithK(cfg.Matching.K),
		WithSearchEffort(cfg.Matching.SearchEffort),
		WithUniqueness(cfg.Matching.Uniqueness),
		WithLaplacianPruning(cfg.Matching.LaplacianPruning),
		WithOneToOne(cfg.Matching.OneToOne),
		WithScaleIncrement(cfg.Voting.ScaleIncrement),
		WithRotationBins(cfg.Voting.RotationBins),
		WithKeepFraction(cfg.Voting.KeepFraction),
		WithRansac(cfg.Homography.ReprojThreshold, cfg.Homography.RansacIterations),
		WithHomographyScaleLimit(cfg.Homography.MaxScaleChange),
		WithSeed(cfg.Homography.Seed),
		WithMeanShift(cfg.Tracking.MaxIterations, cfg.Tracking.Epsilon),
		WithImageSize(cfg.Tracking.ImageWidth, cfg.Tracking.ImageHeight),
		WithMotionPrior(cfg.Tracking.MotionPrior),
	}
	if kind == IndexSpillTree {
		opts = append(opts, WithSpillTree(cfg.Index.Branching, cfg.Index.Rho, cfg.Index.Tau))
	}
	return opts, nil
}

// NewTrackerFromConfig creates tracker configured by cfg. Extra options are applied after config ones.
func NewTrackerFromConfig(model []Feature, cfg *Config, extra ...Option) (*Tracker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return NewTracker(model, append(opts, extra...)...)
}
