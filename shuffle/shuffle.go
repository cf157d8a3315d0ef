// Package shuffle implements weighted random selection over a fixed-size
// collection with soft avoidance of recent repeats.
//
// Each item carries a non-negative weight, 1.0 by default. Selecting an
// item lowers its weight; when a selection falls out of the bounded
// recency history its weight is restored. If every weight reaches zero
// the weights reset to their initial value before the next draw, so
// selection never starves.
//
// A shuffle bag provides an exact preview of upcoming picks: PeekNext
// reads from a precomputed weighted permutation that Next then consumes,
// so previewed indices are realized in order. Increase and Decrease
// rebuild the bag; the MarkShown/Replenish feedback pair preserves it.
package shuffle

import (
	"fmt"
	"math/rand"
	"time"
)

// Shuffler selects indices in [0, Count()) using weighted random draws.
// It is not safe for concurrent use; callers serialize access.
type Shuffler struct {
	count   int
	initial float64
	histCap int
	rng     *rand.Rand

	weights []float64
	total   float64
	history []int
	bag     []int
}

// Option configures a Shuffler.
type Option func(*Shuffler)

// WithInitialWeight sets the starting weight for every item. Defaults to 1.0.
func WithInitialWeight(w float64) Option {
	return func(s *Shuffler) {
		s.initial = w
	}
}

// WithHistorySize sets how many recent internal selections are tracked
// before the oldest selection's weight is restored. Zero disables the
// internal history; callers then drive Increase/Decrease themselves.
// Defaults to 8.
func WithHistorySize(n int) Option {
	return func(s *Shuffler) {
		s.histCap = n
	}
}

// WithRand sets the random source, primarily for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(s *Shuffler) {
		s.rng = r
	}
}

// New creates a Shuffler over count items.
func New(count int, opts ...Option) (*Shuffler, error) {
	if count <= 0 {
		return nil, fmt.Errorf("shuffle: item count must be positive, got %d", count)
	}
	s := &Shuffler{
		count:   count,
		initial: 1.0,
		histCap: 8,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.initial < 0 {
		return nil, fmt.Errorf("shuffle: initial weight must be non-negative, got %v", s.initial)
	}
	if s.histCap < 0 {
		return nil, fmt.Errorf("shuffle: history size must be non-negative, got %d", s.histCap)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s.weights = make([]float64, count)
	for i := range s.weights {
		s.weights[i] = s.initial
	}
	s.total = s.initial * float64(count)
	return s, nil
}

// Count returns the collection size.
func (s *Shuffler) Count() int { return s.count }

// Weight returns the current weight of item i.
func (s *Shuffler) Weight(i int) float64 { return s.weights[i] }

// History returns a copy of the internal selection history, oldest first.
func (s *Shuffler) History() []int {
	out := make([]int, len(s.history))
	copy(out, s.history)
	return out
}

// Next selects the next index. When a preview bag is populated, the bag's
// head is consumed so PeekNext results are realized exactly.
func (s *Shuffler) Next() int {
	var idx int
	if len(s.bag) > 0 {
		idx = s.bag[0]
		s.bag = s.bag[1:]
	} else {
		idx = s.draw()
	}
	s.track(idx)
	return idx
}

// PeekNext returns the next n indices Next would yield, without consuming
// them. The preview is exact: absent intervening weight changes, the next
// n calls to Next return the same indices in the same order.
func (s *Shuffler) PeekNext(n int) []int {
	if n <= 0 {
		return nil
	}
	for len(s.bag) < n {
		s.bag = append(s.bag, s.permute()...)
	}
	out := make([]int, n)
	copy(out, s.bag[:n])
	return out
}

// Increase raises the weight of item i by amount.
func (s *Shuffler) Increase(i int, amount float64) error {
	if i < 0 || i >= s.count {
		return fmt.Errorf("shuffle: index %d out of range [0, %d)", i, s.count)
	}
	if amount < 0 {
		return fmt.Errorf("shuffle: amount must be non-negative, got %v", amount)
	}
	s.weights[i] += amount
	s.total += amount
	s.bag = nil
	return nil
}

// Decrease lowers the weight of item i by amount, clamping at zero.
func (s *Shuffler) Decrease(i int, amount float64) error {
	if i < 0 || i >= s.count {
		return fmt.Errorf("shuffle: index %d out of range [0, %d)", i, s.count)
	}
	if amount < 0 {
		return fmt.Errorf("shuffle: amount must be non-negative, got %v", amount)
	}
	if amount > s.weights[i] {
		amount = s.weights[i]
	}
	s.weights[i] -= amount
	s.total -= amount
	s.bag = nil
	return nil
}

// MarkShown applies the standard selection penalty to item i, for
// callers that manage their own recency window (WithHistorySize(0)).
// Unlike Decrease it preserves the preview bag, so indices returned by
// PeekNext are still realized in order.
func (s *Shuffler) MarkShown(i int) error {
	if i < 0 || i >= s.count {
		return fmt.Errorf("shuffle: index %d out of range [0, %d)", i, s.count)
	}
	s.adjust(i, -1.0)
	return nil
}

// Replenish restores one unit of weight to item i as it leaves the
// caller's recency window. Like MarkShown it preserves the preview bag.
func (s *Shuffler) Replenish(i int) error {
	if i < 0 || i >= s.count {
		return fmt.Errorf("shuffle: index %d out of range [0, %d)", i, s.count)
	}
	s.adjust(i, 1.0)
	return nil
}

// Reset restores every weight to the initial value and clears the
// history and preview bag.
func (s *Shuffler) Reset() {
	for i := range s.weights {
		s.weights[i] = s.initial
	}
	s.total = s.initial * float64(s.count)
	s.history = s.history[:0]
	s.bag = nil
}

// track records an internal selection: lower the pick's weight, and when
// the history overflows restore the weight of the aged-out pick. The
// preview bag survives these adjustments so previews stay exact.
func (s *Shuffler) track(idx int) {
	if s.histCap == 0 {
		return
	}
	s.history = append(s.history, idx)
	s.adjust(idx, -1.0)
	if len(s.history) > s.histCap {
		oldest := s.history[0]
		s.history = s.history[1:]
		s.adjust(oldest, 1.0)
	}
}

// adjust changes a weight without invalidating the preview bag.
func (s *Shuffler) adjust(i int, delta float64) {
	w := s.weights[i] + delta
	if w < 0 {
		w = 0
	}
	s.total += w - s.weights[i]
	s.weights[i] = w
}

// draw performs one weighted random selection under the current weights,
// resetting all weights first if they have collectively hit zero.
func (s *Shuffler) draw() int {
	if s.total <= 0 {
		s.resetWeights()
	}
	r := s.rng.Float64() * s.total
	for i, w := range s.weights {
		if w <= 0 {
			continue
		}
		if r < w {
			return i
		}
		r -= w
	}
	// Float accumulation can leave r a hair past the last positive weight.
	for i := s.count - 1; i >= 0; i-- {
		if s.weights[i] > 0 {
			return i
		}
	}
	return 0
}

func (s *Shuffler) resetWeights() {
	w := s.initial
	if w <= 0 {
		w = 1.0
	}
	for i := range s.weights {
		s.weights[i] = w
	}
	s.total = w * float64(s.count)
}

// permute builds one full weighted-random permutation of all indices
// under the current weights. Zero-weight items land at the end in
// uniformly shuffled order.
func (s *Shuffler) permute() []int {
	remaining := make([]int, s.count)
	weights := make([]float64, s.count)
	total := 0.0
	for i := range remaining {
		remaining[i] = i
		weights[i] = s.weights[i]
		total += weights[i]
	}

	out := make([]int, 0, s.count)
	for len(remaining) > 0 {
		var pick int
		if total <= 0 {
			pick = s.rng.Intn(len(remaining))
		} else {
			r := s.rng.Float64() * total
			pick = len(remaining) - 1
			for j, idx := range remaining {
				w := weights[idx]
				if w <= 0 {
					continue
				}
				if r < w {
					pick = j
					break
				}
				r -= w
			}
		}
		idx := remaining[pick]
		out = append(out, idx)
		total -= weights[idx]
		remaining = append(remaining[:pick], remaining[pick+1:]...)
	}
	return out
}
