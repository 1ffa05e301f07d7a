package analyzer

import (
	"errors"
	"math"
	"sort"
)

// ErrNoSamples is returned when a VM series is empty, e.g. a PID that
// one tool never reported
var ErrNoSamples = errors.New("no samples in series")

// Pattern types of a usage series
const (
	PatternUnknown        = "unknown"
	PatternSteady         = "steady"
	PatternModerate       = "moderate"
	PatternSpiky          = "spiky"
	PatternHighlyVariable = "highly-variable"
)

// patternMinSamples is the shortest series worth a pattern; a default
// session of 10 ticks just qualifies
const patternMinSamples = 10

// Upper spread bounds of each pattern and the confidence reported with it
var patternBands = []struct {
	maxSpread  float64
	pattern    string
	confidence float64
}{
	{0.15, PatternSteady, 0.95},
	{0.35, PatternModerate, 0.85},
	{0.70, PatternSpiky, 0.80},
	{math.Inf(1), PatternHighlyVariable, 0.75},
}

// Summarize computes the distribution of one VM series without
// reordering it
func Summarize(series []float64) (*Percentiles, error) {
	if len(series) == 0 {
		return nil, ErrNoSamples
	}

	sorted := append([]float64(nil), series...)
	sort.Float64s(sorted)

	return &Percentiles{
		Average: mean(sorted),
		P50:     percentileAt(sorted, 50),
		P90:     percentileAt(sorted, 90),
		P95:     percentileAt(sorted, 95),
		P99:     percentileAt(sorted, 99),
		Peak:    sorted[len(sorted)-1],
		Min:     sorted[0],
	}, nil
}

// percentileAt interpolates linearly between the closest ranks of sorted
func percentileAt(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	whole, frac := math.Modf(p / 100 * float64(len(sorted)-1))
	lo := int(whole)
	if frac == 0 || lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

// mean is the VM average of a metric; an empty series averages to 0
func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}

	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// RelativeSpread is the population standard deviation over the mean. It
// is 0 for series shorter than two samples and for idle series averaging 0.
func RelativeSpread(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	m := mean(series)
	if m == 0 {
		return 0
	}

	var sq float64
	for _, v := range series {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq/float64(len(series))) / m
}

// PatternOf tells a steady VM from a bursty one on a single metric
func PatternOf(series []float64) UsagePattern {
	if len(series) < patternMinSamples {
		return UsagePattern{Type: PatternUnknown}
	}

	spread := RelativeSpread(series)
	for _, band := range patternBands {
		if spread < band.maxSpread {
			return UsagePattern{Type: band.pattern, Variation: spread, Confidence: band.confidence}
		}
	}
	// NaN spread from NaN samples
	return UsagePattern{Type: PatternUnknown, Variation: 0}
}
