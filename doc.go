// Package mediabank is a real-time media supply engine for a
// continuously cycling visual display: it decodes images and video
// frames from disk, caches them in memory under strict capacity
// bounds, prefetches upcoming items ahead of need, and streams video
// with smooth looping, all without blocking the caller asking for the
// current frame.
//
// This package provides the high-level [ThemeBank] orchestrator, which
// composes one image cache and one shuffler per theme, adaptive
// lookahead prefetch, and cooldown-gated theme rotation. The building
// blocks live in subpackages: weighted anti-repeat selection in
// shuffle, the capacity-bounded decode cache in imagecache,
// double-buffered video playback in videostream, and the pixel types
// plus built-in decoders in media.
//
// # Quick Start
//
// Scan a directory tree into themes and start supplying images:
//
//	set, err := mediabank.ScanThemeSet("/media/themes")
//	if err != nil {
//	    return err
//	}
//	bank, err := mediabank.New(set, mediabank.WithCacheSize(64))
//	if err != nil {
//	    return err
//	}
//	defer bank.Close()
//
//	if err := bank.SetActiveThemes(1, 2); err != nil {
//	    return err
//	}
//	if _, err := bank.EnsureReady(false, 2*time.Second); err != nil {
//	    return err
//	}
//
//	// once per frame:
//	bank.AsyncUpdate()
//	if img, ok := bank.GetImage(false); ok {
//	    render(img)
//	}
//
// Video paths selected by the bank feed a videostream.Streamer, which
// double-buffers decoded frames so playback can continue while the
// next clip loads:
//
//	s := videostream.New(48, videostream.WithPool(4))
//	defer s.Stop()
//	if path, ok := bank.GetVideo(false); ok {
//	    s.LoadVideo(path, false, 12)
//	}
//
// # Tuning
//
// Prefetch aggressiveness adapts at runtime: slow lookahead passes
// shrink the per-pass batch and stretch the inter-item sleep, fast
// passes relax both back toward the configured baseline. The knobs are
// exposed through [ThrottleConfig] and may be replaced live with
// [ThemeBank.ApplyThrottleConfig].
package mediabank
