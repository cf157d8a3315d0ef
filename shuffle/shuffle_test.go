package shuffle

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTest(t *testing.T, count int, opts ...Option) *Shuffler {
	t.Helper()
	opts = append(opts, WithRand(rand.New(rand.NewSource(42))))
	s, err := New(count, opts...)
	require.NoError(t, err)
	return s
}

func TestNewRejectsEmptyCollection(t *testing.T) {
	t.Parallel()

	_, err := New(0)
	require.Error(t, err)

	_, err = New(-3)
	require.Error(t, err)
}

func TestNextStaysInRange(t *testing.T) {
	t.Parallel()

	s := newTest(t, 5)
	for i := 0; i < 1000; i++ {
		idx := s.Next()
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 5)
	}
}

func TestWeightsNeverNegative(t *testing.T) {
	t.Parallel()

	s := newTest(t, 4)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Decrease(i, 100))
	}
	for i := 0; i < 4; i++ {
		assert.GreaterOrEqual(t, s.Weight(i), 0.0)
	}
}

func TestNextSucceedsAfterAllWeightsExhausted(t *testing.T) {
	t.Parallel()

	s := newTest(t, 3, WithHistorySize(0))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Decrease(i, 10))
	}

	// All weights are zero; the next draw must internally reset rather
	// than fail or spin.
	idx := s.Next()
	assert.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, 3)
}

func TestDecreaseBiasesSelection(t *testing.T) {
	t.Parallel()

	s := newTest(t, 3, WithHistorySize(0), WithInitialWeight(10))
	require.NoError(t, s.Decrease(0, 9))

	counts := make([]int, 3)
	for i := 0; i < 1000; i++ {
		counts[s.Next()]++
	}

	assert.Less(t, counts[0], counts[1])
	assert.Less(t, counts[0], counts[2])
}

func TestPeekNextMatchesSubsequentDraws(t *testing.T) {
	t.Parallel()

	s := newTest(t, 6)
	preview := s.PeekNext(10)
	require.Len(t, preview, 10)

	for i, want := range preview {
		assert.Equal(t, want, s.Next(), "draw %d diverged from preview", i)
	}
}

func TestPeekNextIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTest(t, 6)
	first := s.PeekNext(4)
	second := s.PeekNext(4)
	assert.Equal(t, first, second)
}

func TestWeightChangeInvalidatesPreview(t *testing.T) {
	t.Parallel()

	s := newTest(t, 4)
	s.PeekNext(4)
	require.NoError(t, s.Increase(2, 1000))

	// After the external weight change the bag is rebuilt; heavy item 2
	// should now dominate early picks.
	preview := s.PeekNext(1)
	assert.Equal(t, 2, preview[0])
}

func TestHistoryRestoresAgedOutWeights(t *testing.T) {
	t.Parallel()

	s := newTest(t, 10, WithHistorySize(2), WithInitialWeight(1))
	a := s.Next()
	assert.Equal(t, 0.0, s.Weight(a))

	// Two more picks age the first selection out of the history and
	// restore its weight.
	s.Next()
	s.Next()
	assert.Equal(t, 1.0, s.Weight(a))
	assert.Len(t, s.History(), 2)
}

func TestResetRestoresInitialState(t *testing.T) {
	t.Parallel()

	s := newTest(t, 4, WithInitialWeight(3))
	s.Next()
	s.Next()
	require.NoError(t, s.Decrease(1, 2))

	s.Reset()
	for i := 0; i < 4; i++ {
		assert.Equal(t, 3.0, s.Weight(i))
	}
	assert.Empty(t, s.History())
}

func TestIncreaseDecreaseValidateIndex(t *testing.T) {
	t.Parallel()

	s := newTest(t, 3)
	assert.Error(t, s.Increase(-1, 1))
	assert.Error(t, s.Increase(3, 1))
	assert.Error(t, s.Decrease(-1, 1))
	assert.Error(t, s.Decrease(3, 1))
	assert.Error(t, s.MarkShown(-1))
	assert.Error(t, s.MarkShown(3))
	assert.Error(t, s.Replenish(-1))
	assert.Error(t, s.Replenish(3))
}

func TestMarkShownPreservesPreview(t *testing.T) {
	t.Parallel()

	s := newTest(t, 6, WithHistorySize(0))
	preview := s.PeekNext(6)

	// Penalizing each realized pick must not discard the rest of the
	// preview, unlike Decrease.
	got := make([]int, 0, len(preview))
	for range preview {
		idx := s.Next()
		require.NoError(t, s.MarkShown(idx))
		got = append(got, idx)
	}
	assert.Equal(t, preview, got)

	for _, idx := range preview {
		assert.Equal(t, 0.0, s.Weight(idx))
	}
}

func TestReplenishPreservesPreview(t *testing.T) {
	t.Parallel()

	s := newTest(t, 5, WithHistorySize(0))
	first := s.Next()
	require.NoError(t, s.MarkShown(first))

	preview := s.PeekNext(3)
	require.NoError(t, s.Replenish(first))
	assert.Equal(t, 1.0, s.Weight(first))

	for _, want := range preview {
		assert.Equal(t, want, s.Next())
	}
}

func BenchmarkNext(b *testing.B) {
	s, err := New(256)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Next()
	}
}
