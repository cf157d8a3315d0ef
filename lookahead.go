package mediabank

import (
	"time"
)

// kickLookaheadLocked counts image requests and launches a prefetch
// pass for the requesting theme once enough have accumulated, unless a
// pass is already in flight.
func (b *ThemeBank) kickLookaheadLocked(st *themeState) {
	b.lookaheadCalls++
	if b.lookaheadCalls < lookaheadKickInterval {
		return
	}
	b.lookaheadCalls = 0
	if b.lookaheadBusy.CompareAndSwap(false, true) {
		go b.lookaheadPass(st)
	}
}

// lookaheadPass decodes upcoming picks for one theme ahead of need.
// The pass previews the shuffler's exact upcoming order, skips what is
// already cached, and stops at the batch cap or the pass time budget,
// whichever comes first. Pass timing feeds the throttle controller.
func (b *ThemeBank) lookaheadPass(st *themeState) {
	defer b.lookaheadBusy.Store(false)

	cfg := b.throttleCfg()
	batch, sleep := b.throttle.limits()
	start := time.Now()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	picks := st.imgShuf.PeekNext(cfg.LookaheadCount)
	b.mu.Unlock()

	loaded := 0
	for _, idx := range picks {
		if loaded >= batch || time.Since(start) >= cfg.MaxPreload {
			break
		}
		path := resolveMediaPath(b.root, st.cfg.ImagePaths[idx])
		if _, ok := st.images.PeekCached(path); ok {
			continue
		}
		img, err := b.decode(path)
		if err != nil {
			b.log.Warn("lookahead decode failed", "path", path, "error", err)
			continue
		}
		st.images.AddPreloaded(path, img)
		loaded++
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}

	elapsed := time.Since(start)
	b.throttle.observe(elapsed, loaded)
	if elapsed > cfg.BackgroundWarning {
		b.log.Warn("slow lookahead pass",
			"theme", st.cfg.Name, "loaded", loaded, "elapsed", elapsed)
	} else {
		b.log.Debug("lookahead pass",
			"theme", st.cfg.Name, "loaded", loaded, "elapsed", elapsed)
	}
}
