package rubric

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeat(score, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = score
	}
	return out
}

func TestPointsFor(t *testing.T) {
	want := map[int]int{0: 0, 1: 2, 2: 5, 3: 8, 4: 10}
	for score, points := range want {
		got, err := PointsFor(score)
		require.NoError(t, err)
		assert.Equal(t, points, got, "score %d", score)
	}
}

func TestPointsFor_OutOfRange(t *testing.T) {
	for _, score := range []int{-1, 5, 100} {
		_, err := PointsFor(score)
		assert.True(t, errors.Is(err, ErrInvalidScore), "score %d", score)
	}
}

func TestTotalFor_Extremes(t *testing.T) {
	total, err := TotalFor(repeat(4, 10))
	require.NoError(t, err)
	assert.Equal(t, 100, total)

	total, err = TotalFor(repeat(0, 10))
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestTotalFor_WrongCount(t *testing.T) {
	for _, n := range []int{0, 9, 11} {
		_, err := TotalFor(repeat(2, n))
		assert.True(t, errors.Is(err, ErrInvalidQuestionCount), "n=%d", n)
	}
}

func TestTotalFor_InvalidScoreInside(t *testing.T) {
	scores := repeat(3, 10)
	scores[7] = 5
	_, err := TotalFor(scores)
	assert.True(t, errors.Is(err, ErrInvalidScore))
}

func TestTotalFor_PermutationInvariantAndBounded(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		scores := make([]int, 10)
		for j := range scores {
			scores[j] = r.IntN(5)
		}
		total, err := TotalFor(scores)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, total, 0)
		assert.LessOrEqual(t, total, 100)

		shuffled := append([]int(nil), scores...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		again, err := TotalFor(shuffled)
		require.NoError(t, err)
		assert.Equal(t, total, again)
	}
}

func TestBandForOverride(t *testing.T) {
	tests := []struct {
		percent   float64
		wantScore int
		wantPts   int
	}{
		{100, 4, 10},
		{90, 4, 10},
		{89.9, 3, 8},
		{82, 3, 8},
		{80, 3, 8},
		{79, 2, 5},
		{60, 2, 5},
		{59, 1, 2},
		{30, 1, 2},
		{29.99, 0, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		l, err := BandForOverride(tt.percent)
		require.NoError(t, err)
		assert.Equal(t, tt.wantScore, l.Score, "percent %.2f", tt.percent)
		assert.Equal(t, tt.wantPts, l.Points, "percent %.2f", tt.percent)
	}
}

func TestBandForOverride_Invalid(t *testing.T) {
	for _, p := range []float64{-0.1, 100.5} {
		_, err := BandForOverride(p)
		assert.True(t, errors.Is(err, ErrInvalidOverride))
	}
}

func TestCapOverall(t *testing.T) {
	got, err := CapOverall(120)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)

	got, err = CapOverall(64.5)
	require.NoError(t, err)
	assert.Equal(t, 64.5, got)

	_, err = CapOverall(-3)
	assert.Error(t, err)
}

func TestPassed(t *testing.T) {
	assert.True(t, Passed(70))
	assert.False(t, Passed(69.99))
}
