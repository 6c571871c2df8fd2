package ptrack

import "github.com/pkg/errors"

var (
	// ErrInvalidArgument is returned for malformed input: empty model set, bad k, too few correspondences etc.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEstimationFailure is returned when no valid homography could be recovered from correspondences
	ErrEstimationFailure = errors.New("homography estimation failed")
	// ErrTrackLost marks a tracking step whose region collapsed to zero area
	ErrTrackLost = errors.New("track lost")
)
