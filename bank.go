package mediabank

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/driftglass/mediabank/imagecache"
	"github.com/driftglass/mediabank/media"
	"github.com/driftglass/mediabank/shuffle"
)

const (
	defaultCacheSize = 64
	defaultCooldown  = 500

	// Bounded recency windows for repeat avoidance across themes.
	imageHistorySize = 100
	videoHistorySize = 40

	// A lookahead pass is considered every this many image requests.
	lookaheadKickInterval = 4

	// Completed decodes drained per cache per update.
	maxDrainPerTick = 8
)

type histEntry struct {
	theme int
	item  int
}

// themeState bundles the per-theme machinery: one image cache and one
// shuffler per media kind. Themes without a media kind leave the
// corresponding fields nil.
type themeState struct {
	idx      int
	cfg      ThemeConfig
	cacheCap int
	images   *imagecache.Cache
	imgShuf  *shuffle.Shuffler
	vidShuf  *shuffle.Shuffler

	// round-robin cursor for background cache top-up
	preloadCursor int
}

// ThemeBank orchestrates media selection across a set of themes: it
// owns a cache and shufflers per theme, two active display slots
// (primary and alternate), cross-theme repeat avoidance, adaptive
// lookahead prefetch, and cooldown-gated theme rotation.
//
// All exported methods are safe for concurrent use, but the intended
// shape is one foreground caller ticking AsyncUpdate and requesting
// media while background workers fill the caches.
type ThemeBank struct {
	root      string
	log       *slog.Logger
	evict     func(*media.Image)
	decode    media.ImageDecodeFunc
	cacheSize int
	cooldown  int
	spillSize int

	mu     sync.Mutex
	themes []ThemeConfig // enabled themes, declaration order
	states map[int]*themeState
	slots  [2]int // primary, alternate; -1 = unassigned
	rng    *rand.Rand

	imgHistory     []histEntry
	vidHistory     []histEntry
	tick           int
	lastSwitch     int
	lookaheadCalls int
	lastImagePath  string

	cfg      ThrottleConfig
	throttle *throttle

	lookaheadBusy atomic.Bool
	flight        singleflight.Group

	closed    bool
	closeOnce sync.Once
}

// New builds a bank from the enabled themes in set. At least one
// enabled theme must supply media.
func New(set ThemeSet, opts ...Option) (*ThemeBank, error) {
	if len(set.Themes) == 0 {
		return nil, ErrEmptyCollection
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("mediabank: %w", err)
	}

	b := &ThemeBank{
		root:      set.Root,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		decode:    media.DecodeImage,
		cacheSize: defaultCacheSize,
		cooldown:  defaultCooldown,
		states:    make(map[int]*themeState),
		slots:     [2]int{-1, -1},
		cfg:       DefaultThrottleConfig(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	b.throttle = newThrottle(b.cfg.LookaheadBatchSize, b.cfg.LookaheadSleep, b.cfg.BackgroundWarning)

	b.themes = set.Enabled()
	withMedia := 0
	for _, t := range b.themes {
		if t.HasMedia() {
			withMedia++
		}
	}
	if withMedia == 0 {
		return nil, ErrNoThemes
	}

	perTheme := b.cacheSize / min(3, withMedia)
	if perTheme < 1 {
		perTheme = 1
	}
	for i, t := range b.themes {
		st, err := b.newThemeState(i, t, perTheme)
		if err != nil {
			b.closeStates()
			return nil, err
		}
		b.states[i] = st
	}

	b.log.Info("theme bank ready",
		"themes", len(b.themes), "with_media", withMedia, "cache_per_theme", perTheme)
	return b, nil
}

func (b *ThemeBank) newThemeState(idx int, t ThemeConfig, cacheCap int) (*themeState, error) {
	st := &themeState{idx: idx, cfg: t, cacheCap: cacheCap}

	if n := len(t.ImagePaths); n > 0 {
		shuf, err := shuffle.New(n, shuffle.WithHistorySize(0), shuffle.WithRand(b.rng))
		if err != nil {
			return nil, fmt.Errorf("mediabank: theme %q: %w", t.Name, err)
		}
		st.imgShuf = shuf

		cacheOpts := []imagecache.Option{
			imagecache.WithQueueSize(b.cfg.LoaderQueueSize),
			imagecache.WithDecoder(b.decode),
			imagecache.WithLogger(b.log.With("theme", t.Name)),
		}
		if b.evict != nil {
			cacheOpts = append(cacheOpts, imagecache.WithEvictFunc(b.evict))
		}
		if b.spillSize > 0 {
			cacheOpts = append(cacheOpts, imagecache.WithSpill(b.spillSize))
		}
		st.images = imagecache.New(cacheCap, cacheOpts...)

		if b.cfg.PreloadAggressively {
			paths := make([]string, 0, len(t.ImagePaths))
			for _, p := range t.ImagePaths {
				paths = append(paths, resolveMediaPath(b.root, p))
			}
			st.images.PreloadImages(paths, cacheCap)
		}
	}

	if n := len(t.VideoPaths); n > 0 {
		shuf, err := shuffle.New(n, shuffle.WithHistorySize(0), shuffle.WithRand(b.rng))
		if err != nil {
			return nil, fmt.Errorf("mediabank: theme %q: %w", t.Name, err)
		}
		st.vidShuf = shuf
	}
	return st, nil
}

// SetActiveThemes assigns the display slots. Indices are 1-based into
// the enabled theme list; alternate may be 0 to leave that slot empty.
func (b *ThemeBank) SetActiveThemes(primary, alternate int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStopped
	}

	if primary < 1 || primary > len(b.themes) {
		return fmt.Errorf("%w: primary %d of %d", ErrBadThemeIndex, primary, len(b.themes))
	}
	if alternate != 0 && (alternate < 1 || alternate > len(b.themes)) {
		return fmt.Errorf("%w: alternate %d of %d", ErrBadThemeIndex, alternate, len(b.themes))
	}

	b.slots[0] = primary - 1
	b.slots[1] = alternate - 1 // -1 when unset
	b.log.Info("active themes set",
		"primary", b.themes[b.slots[0]].Name, "alternate", b.slotName(1))
	return nil
}

// GetImage returns the next image for the requested display slot. On a
// cache miss the image is decoded inline, so a reachable file always
// yields pixels at the cost of an occasional slow call.
func (b *ThemeBank) GetImage(alternate bool) (*media.Image, bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, false
	}
	st := b.activeStateLocked(alternate)
	if st == nil || st.images == nil {
		b.log.Debug("no image source for slot", "alternate", alternate)
		b.mu.Unlock()
		return nil, false
	}

	st.images.ProcessLoaded(maxDrainPerTick)
	idx := st.imgShuf.Next()
	path := resolveMediaPath(b.root, st.cfg.ImagePaths[idx])

	if img, ok := st.images.GetImage(path); ok {
		b.recordImageLocked(st, idx, path)
		b.kickLookaheadLocked(st)
		b.mu.Unlock()
		return img, true
	}
	b.mu.Unlock()

	// Concurrent misses on the same path share one decode.
	v, err, _ := b.flight.Do(path, func() (any, error) {
		return b.syncDecode(st, path)
	})
	if err != nil {
		b.log.Warn("image decode failed", "path", path, "error", err)
		return nil, false
	}
	img := v.(*media.Image)

	b.mu.Lock()
	if !b.closed {
		b.recordImageLocked(st, idx, path)
		b.kickLookaheadLocked(st)
	}
	b.mu.Unlock()
	return img, true
}

func (b *ThemeBank) syncDecode(st *themeState, path string) (*media.Image, error) {
	start := time.Now()
	img, err := b.decode(path)
	if err != nil {
		return nil, err
	}
	st.images.AddPreloaded(path, img)

	elapsed := time.Since(start)
	if elapsed > b.throttleCfg().SyncWarning {
		b.log.Warn("slow synchronous image decode", "path", path, "elapsed", elapsed)
	} else {
		b.log.Debug("synchronous image decode", "path", path, "elapsed", elapsed)
	}
	return img, nil
}

// recordImageLocked feeds a realized pick into the cross-theme recency
// window: the pick's weight drops, and the entry aging out of the
// window gets its weight restored.
func (b *ThemeBank) recordImageLocked(st *themeState, idx int, path string) {
	_ = st.imgShuf.MarkShown(idx)
	b.imgHistory = append(b.imgHistory, histEntry{theme: st.idx, item: idx})
	if len(b.imgHistory) > imageHistorySize {
		old := b.imgHistory[0]
		b.imgHistory = b.imgHistory[1:]
		if os := b.states[old.theme]; os != nil && os.imgShuf != nil {
			_ = os.imgShuf.Replenish(old.item)
		}
	}
	b.lastImagePath = path
}

func (b *ThemeBank) recordVideoLocked(st *themeState, idx int) {
	_ = st.vidShuf.MarkShown(idx)
	b.vidHistory = append(b.vidHistory, histEntry{theme: st.idx, item: idx})
	if len(b.vidHistory) > videoHistorySize {
		old := b.vidHistory[0]
		b.vidHistory = b.vidHistory[1:]
		if os := b.states[old.theme]; os != nil && os.vidShuf != nil {
			_ = os.vidShuf.Replenish(old.item)
		}
	}
}

type videoCandidate struct {
	theme int
	stage string
}

// GetVideo returns the next video path for the requested display slot,
// falling back through the other slot and then every theme in order
// until one can supply a video.
func (b *ThemeBank) GetVideo(alternate bool) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", false
	}

	for _, cand := range b.videoCandidatesLocked(alternate) {
		st := b.states[cand.theme]
		if st == nil || st.vidShuf == nil {
			continue
		}
		idx := st.vidShuf.Next()
		path := resolveMediaPath(b.root, st.cfg.VideoPaths[idx])
		b.recordVideoLocked(st, idx)

		if cand.stage == "preferred" {
			b.log.Debug("video selected", "theme", st.cfg.Name, "path", path)
		} else {
			b.log.Info("video fallback", "stage", cand.stage, "theme", st.cfg.Name, "path", path)
		}
		return path, true
	}
	b.log.Debug("no theme can supply video", "alternate", alternate)
	return "", false
}

func (b *ThemeBank) videoCandidatesLocked(alternate bool) []videoCandidate {
	out := make([]videoCandidate, 0, len(b.themes)+2)
	seen := make(map[int]bool, len(b.themes))
	add := func(theme int, stage string) {
		if theme >= 0 && !seen[theme] {
			seen[theme] = true
			out = append(out, videoCandidate{theme: theme, stage: stage})
		}
	}

	preferred, other := b.slots[0], b.slots[1]
	if alternate {
		preferred, other = other, preferred
	}
	add(preferred, "preferred")
	add(other, "other-slot")
	for i := range b.themes {
		add(i, "any-theme")
	}
	return out
}

// GetTextLine returns a random text line from the slot's theme.
func (b *ThemeBank) GetTextLine(alternate bool) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", false
	}
	st := b.activeStateLocked(alternate)
	if st == nil || len(st.cfg.TextLines) == 0 {
		return "", false
	}
	return st.cfg.TextLines[b.rng.Intn(len(st.cfg.TextLines))], true
}

// TextLines returns every text line across the enabled themes.
func (b *ThemeBank) TextLines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, t := range b.themes {
		out = append(out, t.TextLines...)
	}
	return out
}

// AsyncUpdate advances the logical tick: it drains completed decodes
// into every theme cache and keeps the active slots' caches topped up,
// one background request per slot per tick. Call it once per frame.
func (b *ThemeBank) AsyncUpdate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.tick++

	for _, st := range b.states {
		if st.images != nil {
			st.images.ProcessLoaded(maxDrainPerTick)
		}
	}
	for _, slot := range b.slots {
		if slot >= 0 {
			b.topUpLocked(b.states[slot])
		}
	}
}

// topUpLocked requests one uncached image for a below-capacity cache.
func (b *ThemeBank) topUpLocked(st *themeState) {
	if st == nil || st.images == nil || st.images.Len() >= st.cacheCap {
		return
	}
	n := len(st.cfg.ImagePaths)
	for tries := 0; tries < n; tries++ {
		p := st.cfg.ImagePaths[st.preloadCursor%n]
		st.preloadCursor++
		path := resolveMediaPath(b.root, p)
		if _, ok := st.images.PeekCached(path); ok {
			continue
		}
		st.images.RequestLoad(path)
		return
	}
}

// CanSwitchThemes reports whether the rotation cooldown has elapsed.
func (b *ThemeBank) CanSwitchThemes() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed && b.tick-b.lastSwitch >= b.cooldown
}

// SwitchThemes rotates the display slots to randomly chosen themes,
// provided the cooldown has elapsed. It reports whether a switch
// happened.
func (b *ThemeBank) SwitchThemes() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.tick-b.lastSwitch < b.cooldown {
		return false
	}

	switch n := len(b.themes); {
	case n >= 2:
		order := b.rng.Perm(n)
		b.slots[0] = order[0]
		b.slots[1] = order[1]
	case n == 1:
		b.slots[0] = 0
		b.slots[1] = -1
	}
	b.lastSwitch = b.tick
	b.log.Info("themes switched",
		"primary", b.slotName(0), "alternate", b.slotName(1), "tick", b.tick)
	return true
}

// ActiveThemeNames returns the names of the primary and alternate
// themes; an empty string marks an unassigned slot.
func (b *ThemeBank) ActiveThemeNames() (string, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slotName(0), b.slotName(1)
}

// ThemeCount returns the number of enabled themes.
func (b *ThemeBank) ThemeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.themes)
}

// ApplyThrottleConfig swaps in new prefetch tuning at runtime. Loader
// queue sizes apply only to caches built after the change.
func (b *ThemeBank) ApplyThrottleConfig(cfg ThrottleConfig) {
	cfg = cfg.withDefaults()
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
	b.throttle.rebase(cfg.LookaheadBatchSize, cfg.LookaheadSleep, cfg.BackgroundWarning)
	b.log.Debug("throttle config applied",
		"lookahead", cfg.LookaheadCount, "batch", cfg.LookaheadBatchSize,
		"sleep", cfg.LookaheadSleep, "max_preload", cfg.MaxPreload)
}

// Close shuts down every theme cache. Idempotent.
func (b *ThemeBank) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		caches := make([]*imagecache.Cache, 0, len(b.states))
		for _, st := range b.states {
			if st.images != nil {
				caches = append(caches, st.images)
			}
		}
		b.mu.Unlock()

		for _, c := range caches {
			c.Close()
		}
		b.log.Debug("theme bank closed")
	})
}

func (b *ThemeBank) closeStates() {
	for _, st := range b.states {
		if st.images != nil {
			st.images.Close()
		}
	}
}

func (b *ThemeBank) activeStateLocked(alternate bool) *themeState {
	slot := 0
	if alternate {
		slot = 1
	}
	idx := b.slots[slot]
	if idx < 0 {
		return nil
	}
	return b.states[idx]
}

func (b *ThemeBank) slotName(slot int) string {
	if b.slots[slot] < 0 {
		return ""
	}
	return b.themes[b.slots[slot]].Name
}

func (b *ThemeBank) throttleCfg() ThrottleConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}
