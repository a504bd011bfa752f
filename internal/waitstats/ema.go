package waitstats

import (
	"errors"
	"math"
	"time"
)

const (
	// Alpha weights the newest sample; 0.2 gives most of the mass to
	// the last ~5 samples.
	Alpha = 0.2

	// Samples outside this window are clamped to kill walk-out noise
	// and forgotten-ticket outliers.
	ClampMinMinutes = 3
	ClampMaxMinutes = 90
)

var ErrInvalidSample = errors.New("invalid wait sample")

// SampleMinutes computes a clamped wait sample from registration to
// seating. Non-positive and non-finite waits are rejected.
func SampleMinutes(createdAt, seatedAt time.Time) (float64, error) {
	if createdAt.IsZero() || seatedAt.IsZero() || !seatedAt.After(createdAt) {
		return 0, ErrInvalidSample
	}
	waitMin := seatedAt.Sub(createdAt).Minutes()
	if math.IsNaN(waitMin) || math.IsInf(waitMin, 0) {
		return 0, ErrInvalidSample
	}
	if waitMin < ClampMinMinutes {
		waitMin = ClampMinMinutes
	}
	if waitMin > ClampMaxMinutes {
		waitMin = ClampMaxMinutes
	}
	return waitMin, nil
}

// NextEMA folds one sample into an existing average. The first sample
// seeds the average directly.
func NextEMA(prevEMA float64, sampleCount int, sample float64) float64 {
	if sampleCount <= 0 {
		return sample
	}
	return Alpha*sample + (1-Alpha)*prevEMA
}
