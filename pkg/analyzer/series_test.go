package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	// cpu samples of ten ticks, newest first so sorting matters
	series := []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}

	p, err := Summarize(series)
	require.NoError(t, err)

	assert.Equal(t, 5.5, p.Average)
	assert.Equal(t, 1.0, p.Min)
	assert.Equal(t, 10.0, p.Peak)
	assert.InDelta(t, 5.5, p.P50, 0.01)
	assert.InDelta(t, 9.55, p.P95, 0.01)
	assert.InDelta(t, 9.91, p.P99, 0.01)

	// tick order is preserved
	assert.Equal(t, 10.0, series[0])
}

func TestSummarizeSingleTick(t *testing.T) {
	p, err := Summarize([]float64{42})
	require.NoError(t, err)
	assert.Equal(t, 42.0, p.P50)
	assert.Equal(t, 42.0, p.P99)
}

func TestSummarizeEmptySeries(t *testing.T) {
	_, err := Summarize(nil)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestMeanEmptySeries(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
}

func TestRelativeSpread(t *testing.T) {
	assert.Zero(t, RelativeSpread([]float64{5}))
	assert.Zero(t, RelativeSpread([]float64{0, 0, 0}), "idle disk series")
	assert.Zero(t, RelativeSpread([]float64{3, 3, 3}))
	assert.InDelta(t, 0.5, RelativeSpread([]float64{1, 3}), 1e-9)
}

func TestPatternOf(t *testing.T) {
	steady := make([]float64, 100)
	for i := range steady {
		steady[i] = 100.0 + float64(i%5)
	}
	assert.Equal(t, PatternSteady, PatternOf(steady).Type)

	bursty := make([]float64, 100)
	for i := range bursty {
		bursty[i] = 100.0
		if i%10 == 0 {
			bursty[i] = 500.0
		}
	}
	pattern := PatternOf(bursty)
	assert.NotEqual(t, PatternSteady, pattern.Type)
	assert.Greater(t, pattern.Variation, 0.35)
}

func TestPatternOfShortSeries(t *testing.T) {
	pattern := PatternOf([]float64{1, 2, 3})
	assert.Equal(t, PatternUnknown, pattern.Type)
	assert.Zero(t, pattern.Confidence)
}
