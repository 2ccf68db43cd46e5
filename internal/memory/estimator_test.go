package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTuning() Tuning {
	return Tuning{MaxContextTokens: 1000, Alpha: 0.5, KMin: 2, KMax: 10}
}

func TestAdvanceFirstSample(t *testing.T) {
	s, k := Advance(SmoothingState{}, 100, testTuning())
	require.True(t, s.Initialized)
	assert.Equal(t, 100.0, s.SmoothedAvgTokens)
	assert.Equal(t, 10, k) // 1000/100 = 10, clamped at KMax
}

func TestAdvanceSmoothing(t *testing.T) {
	// alpha=0.5: 100 then 300 tokens settles at 200.
	tn := testTuning()
	s, _ := Advance(SmoothingState{}, 100, tn)
	s, k := Advance(s, 300, tn)
	assert.Equal(t, 200.0, s.SmoothedAvgTokens)
	assert.Equal(t, 5, k) // clamp(1000/200, 2, 10)
}

func TestAdvanceClampsToBounds(t *testing.T) {
	tn := testTuning()

	// Very dense turns push dynamicK to the floor.
	s := SmoothingState{}
	var k int
	for i := 0; i < 5; i++ {
		s, k = Advance(s, 5000, tn)
	}
	assert.Equal(t, tn.KMin, k)

	// Very sparse turns push it to the ceiling.
	s = SmoothingState{}
	for i := 0; i < 5; i++ {
		s, k = Advance(s, 5, tn)
	}
	assert.Equal(t, tn.KMax, k)
}

func TestAdvanceZeroTokensNeverDividesByZero(t *testing.T) {
	tn := testTuning()
	s, k := Advance(SmoothingState{}, 0, tn)
	assert.Equal(t, 0.0, s.SmoothedAvgTokens)
	assert.Equal(t, tn.KMax, k) // divisor floored at 1 token
}

func TestDynamicKMonotoneInSmoothedAverage(t *testing.T) {
	// dynamicK must be non-increasing as the smoothed average grows, and
	// always within [KMin, KMax]. alpha=1 makes the smoothed average equal
	// the sample, giving a direct sweep.
	tn := Tuning{MaxContextTokens: 1000, Alpha: 1, KMin: 2, KMax: 10}
	prevK := tn.KMax + 1
	for tokens := 1; tokens <= 2000; tokens += 7 {
		_, k := Advance(SmoothingState{}, tokens, tn)
		assert.GreaterOrEqual(t, k, tn.KMin)
		assert.LessOrEqual(t, k, tn.KMax)
		assert.LessOrEqual(t, k, prevK, "dynamicK increased as density grew (tokens=%d)", tokens)
		prevK = k
	}
}
