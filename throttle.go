package mediabank

import (
	"sync"
	"time"
)

// ThrottleConfig holds the tunables for lookahead prefetch and the
// loader pipeline. Every field is independently overridable at runtime
// through ApplyThrottleConfig; zero values fall back to the defaults.
type ThrottleConfig struct {
	// PreloadAggressively decodes up to a full cache of images per
	// theme synchronously at construction instead of letting the
	// caches fill in the background.
	PreloadAggressively bool

	// LookaheadCount is how many upcoming picks a prefetch pass
	// previews.
	LookaheadCount int

	// LookaheadBatchSize is the baseline number of decodes allowed
	// per pass; the controller adapts downward from here.
	LookaheadBatchSize int

	// LookaheadSleep is the baseline pause between decodes in a pass.
	LookaheadSleep time.Duration

	// MaxPreload bounds the wall-clock duration of one pass.
	MaxPreload time.Duration

	// LoaderQueueSize sizes each cache's decode request queue.
	// Applied at construction; runtime changes affect new caches only.
	LoaderQueueSize int

	// SyncWarning is the threshold above which a synchronous
	// cache-miss decode is logged as slow.
	SyncWarning time.Duration

	// BackgroundWarning is the pass duration above which the
	// controller treats a lookahead pass as slow.
	BackgroundWarning time.Duration
}

// DefaultThrottleConfig returns the baseline tuning.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		LookaheadCount:     8,
		LookaheadBatchSize: 4,
		LookaheadSleep:     5 * time.Millisecond,
		MaxPreload:         50 * time.Millisecond,
		LoaderQueueSize:    4,
		SyncWarning:        15 * time.Millisecond,
		BackgroundWarning:  50 * time.Millisecond,
	}
}

func (c ThrottleConfig) withDefaults() ThrottleConfig {
	d := DefaultThrottleConfig()
	if c.LookaheadCount <= 0 {
		c.LookaheadCount = d.LookaheadCount
	}
	if c.LookaheadBatchSize <= 0 {
		c.LookaheadBatchSize = d.LookaheadBatchSize
	}
	if c.LookaheadSleep <= 0 {
		c.LookaheadSleep = d.LookaheadSleep
	}
	if c.MaxPreload <= 0 {
		c.MaxPreload = d.MaxPreload
	}
	if c.LoaderQueueSize <= 0 {
		c.LoaderQueueSize = d.LoaderQueueSize
	}
	if c.SyncWarning <= 0 {
		c.SyncWarning = d.SyncWarning
	}
	if c.BackgroundWarning <= 0 {
		c.BackgroundWarning = d.BackgroundWarning
	}
	return c
}

// maxThrottleSleep caps how far the controller backs off.
const maxThrottleSleep = 250 * time.Millisecond

// throttle is a feedback controller trading prefetch aggressiveness
// for foreground responsiveness. A slow pass halves the per-pass batch
// (floor 1) and doubles the inter-item sleep; a comfortably fast pass
// relaxes both back toward the configured baseline.
type throttle struct {
	mu        sync.Mutex
	baseBatch int
	baseSleep time.Duration
	slowAfter time.Duration

	batch int
	sleep time.Duration
}

func newThrottle(batch int, sleep, slowAfter time.Duration) *throttle {
	return &throttle{
		baseBatch: batch,
		baseSleep: sleep,
		slowAfter: slowAfter,
		batch:     batch,
		sleep:     sleep,
	}
}

// limits returns the current per-pass batch cap and inter-item sleep.
func (t *throttle) limits() (int, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batch, t.sleep
}

// observe feeds one finished pass back into the controller.
func (t *throttle) observe(passDuration time.Duration, items int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if passDuration > t.slowAfter {
		if t.batch > 1 {
			t.batch /= 2
		}
		t.sleep *= 2
		if t.sleep > maxThrottleSleep {
			t.sleep = maxThrottleSleep
		}
		return
	}

	// Only relax on passes that did real work; an empty pass is fast
	// no matter how loaded the system is.
	if items == 0 || passDuration > t.slowAfter/2 {
		return
	}
	if t.batch < t.baseBatch {
		t.batch++
	}
	if t.sleep > t.baseSleep {
		t.sleep /= 2
		if t.sleep < t.baseSleep {
			t.sleep = t.baseSleep
		}
	}
}

// rebase swaps in new baselines, resetting the controller to them.
func (t *throttle) rebase(batch int, sleep, slowAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseBatch = batch
	t.baseSleep = sleep
	t.slowAfter = slowAfter
	t.batch = batch
	t.sleep = sleep
}
