package mediabank

import (
	"log/slog"
	"math/rand"

	"github.com/driftglass/mediabank/media"
)

// Option configures a ThemeBank.
type Option func(*ThemeBank)

// WithCacheSize sets the total number of decoded images cached across
// all themes; the budget is split among up to three active themes.
// The default is 64.
func WithCacheSize(total int) Option {
	return func(b *ThemeBank) {
		if total > 0 {
			b.cacheSize = total
		}
	}
}

// WithCooldown sets how many update ticks must pass between theme
// switches. The default is 500.
func WithCooldown(ticks int) Option {
	return func(b *ThemeBank) {
		if ticks > 0 {
			b.cooldown = ticks
		}
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(log *slog.Logger) Option {
	return func(b *ThemeBank) {
		if log != nil {
			b.log = log
		}
	}
}

// WithThrottle sets the initial prefetch and loader tuning.
func WithThrottle(cfg ThrottleConfig) Option {
	return func(b *ThemeBank) {
		b.cfg = cfg.withDefaults()
	}
}

// WithRand sets the random source used for selection and theme
// switching; handy for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(b *ThemeBank) {
		if r != nil {
			b.rng = r
		}
	}
}

// WithEvictFunc installs a callback invoked for every image evicted
// from any theme cache, typically to free an uploaded texture. Called
// without internal locks held.
func WithEvictFunc(fn func(*media.Image)) Option {
	return func(b *ThemeBank) {
		b.evict = fn
	}
}

// WithImageDecoder replaces the image decode primitive for every theme
// cache and the synchronous miss path. The default is
// media.DecodeImage.
func WithImageDecoder(fn media.ImageDecodeFunc) Option {
	return func(b *ThemeBank) {
		if fn != nil {
			b.decode = fn
		}
	}
}

// WithSpillSize enables each theme cache's compressed spill tier with
// the given entry bound.
func WithSpillSize(n int) Option {
	return func(b *ThemeBank) {
		b.spillSize = n
	}
}
