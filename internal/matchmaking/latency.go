package matchmaking

import (
	"fmt"
	"slices"
)

// DefaultLatencyThresholds are the upper bounds in milliseconds of levels 1 to 4.
// Anything slower falls into level 5.
var DefaultLatencyThresholds = []int{50, 100, 150, 250}

// LatencyBuckets maps measured latency onto latency levels.
type LatencyBuckets struct {
	thresholds []int
}

// NewLatencyBuckets validates thresholds and builds the bucket mapping.
//
// Precondition: thresholds must hold MaxLatencyLevel-1 strictly ascending,
// non-negative values.
func NewLatencyBuckets(thresholds []int) (LatencyBuckets, error) {
	want := int(MaxLatencyLevel - MinLatencyLevel)
	if len(thresholds) != want {
		return LatencyBuckets{}, fmt.Errorf("expected %d latency thresholds, got %d: %w",
			want, len(thresholds), ErrInvalidArgument)
	}
	for i, t := range thresholds {
		if t < 0 || (i > 0 && t <= thresholds[i-1]) {
			return LatencyBuckets{}, fmt.Errorf("latency thresholds must be ascending and non-negative, got %v: %w",
				thresholds, ErrInvalidArgument)
		}
	}
	return LatencyBuckets{thresholds: slices.Clone(thresholds)}, nil
}

// Level returns the latency level for a round-trip time of ms milliseconds.
func (b LatencyBuckets) Level(ms int) (LatencyLevel, error) {
	if ms < 0 {
		return 0, fmt.Errorf("latency must not be negative, got %d: %w", ms, ErrInvalidArgument)
	}
	for i, t := range b.thresholds {
		if ms <= t {
			return MinLatencyLevel + LatencyLevel(i), nil
		}
	}
	return MaxLatencyLevel, nil
}
