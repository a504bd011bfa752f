package waitstats

import (
	"context"
	"math"
	"time"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/models"
)

const (
	// MinBucketSamples gates per-ticket estimates on bucket maturity;
	// below it the per-group fallback applies.
	MinBucketSamples = 10

	// DefaultLiveMinSamples and DefaultAvgWaitMin cover the live
	// board estimate when a bucket is still thin.
	DefaultLiveMinSamples = 5
	DefaultAvgWaitMin     = 15
)

// groupFallbackMinutes are the per-ticket estimates used before a
// bucket has accumulated enough seatings.
var groupFallbackMinutes = map[string]float64{
	models.GroupPriority: 10,
	models.GroupSmall:    15,
	models.GroupMedium:   20,
	models.GroupLarge:    25,
}

type StatSource interface {
	GetWaitStat(ctx context.Context, branchID, group, bucket string) (models.WaitStat, bool, error)
}

type Estimator struct {
	source         StatSource
	liveMinSamples int
	liveDefaultMin float64
}

func NewEstimator(source StatSource, liveMinSamples int, liveDefaultMin float64) *Estimator {
	if liveMinSamples <= 0 {
		liveMinSamples = DefaultLiveMinSamples
	}
	if liveDefaultMin <= 0 {
		liveDefaultMin = DefaultAvgWaitMin
	}
	return &Estimator{
		source:         source,
		liveMinSamples: liveMinSamples,
		liveDefaultMin: liveDefaultMin,
	}
}

// PerTicketMinutes estimates the wait contributed by one ticket ahead
// in the queue, for a registration at the given time.
func (e *Estimator) PerTicketMinutes(ctx context.Context, branch models.Branch, group string, at time.Time) (float64, error) {
	bucket := BucketFor(at, branch.Location())
	stat, found, err := e.source.GetWaitStat(ctx, branch.BranchID, group, bucket)
	if err != nil {
		return 0, err
	}
	if found && stat.SampleCount >= MinBucketSamples && stat.EMAWaitMin > 0 {
		return stat.EMAWaitMin, nil
	}
	return FallbackMinutes(group), nil
}

// LiveAverageMinutes is the softer estimate shown on boards; it trusts
// thinner buckets than the per-ticket path does.
func (e *Estimator) LiveAverageMinutes(ctx context.Context, branch models.Branch, group string, at time.Time) (float64, error) {
	bucket := BucketFor(at, branch.Location())
	stat, found, err := e.source.GetWaitStat(ctx, branch.BranchID, group, bucket)
	if err != nil {
		return 0, err
	}
	if found && stat.SampleCount >= e.liveMinSamples && stat.EMAWaitMin > 0 {
		return stat.EMAWaitMin, nil
	}
	return e.liveDefaultMin, nil
}

// ETAMinutes turns a per-ticket estimate and a queue position into a
// whole-minute ETA. Position is floored at one so the head of the
// queue still gets a nonzero wait.
func ETAMinutes(perTicketMin float64, position int) int {
	if position < 1 {
		position = 1
	}
	return int(math.Round(perTicketMin * float64(position)))
}

func FallbackMinutes(group string) float64 {
	if minutes, ok := groupFallbackMinutes[group]; ok {
		return minutes
	}
	return groupFallbackMinutes[models.GroupSmall]
}
