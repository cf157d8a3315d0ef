package mediabank

import (
	"fmt"
	"os"
	"time"
)

// Status is a point-in-time readiness snapshot of the bank.
type Status struct {
	Ready  bool
	Reason string

	ThemesTotal      int
	PrimaryTheme     string
	AlternateTheme   string
	TotalImages      int
	TotalVideos      int
	CachedImages     int
	PendingLoads     int
	AccessibleSample int // themes whose first image file could be stat'd
	LastImagePath    string
}

// Status reports theme and media counts, cache fill, and whether the
// bank can supply images right now.
func (b *ThemeBank) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Status{
		ThemesTotal:    len(b.themes),
		PrimaryTheme:   b.slotName(0),
		AlternateTheme: b.slotName(1),
		LastImagePath:  b.lastImagePath,
	}
	if b.closed {
		s.Reason = "bank closed"
		return s
	}

	for _, t := range b.themes {
		s.TotalImages += len(t.ImagePaths)
		s.TotalVideos += len(t.VideoPaths)
	}
	for _, st := range b.states {
		if st.images != nil {
			s.CachedImages += st.images.Len()
			s.PendingLoads += st.images.Pending()
		}
		if len(st.cfg.ImagePaths) > 0 {
			first := resolveMediaPath(b.root, st.cfg.ImagePaths[0])
			if _, err := os.Stat(first); err == nil {
				s.AccessibleSample++
			}
		}
	}

	switch {
	case b.slots[0] < 0:
		s.Reason = "no active theme assigned"
	case s.TotalImages == 0 && s.TotalVideos == 0:
		s.Reason = "themes contain no media"
	case s.TotalImages > 0 && s.CachedImages == 0:
		s.Reason = "no images decoded yet"
	default:
		s.Ready = true
	}
	return s
}

// EnsureReady ticks AsyncUpdate while polling Status until the bank is
// ready (and, when requireVideos is set, at least one theme supplies a
// video) or the timeout elapses. Media may live on large or slow
// directories; playback should not start against an empty bank.
func (b *ThemeBank) EnsureReady(requireVideos bool, timeout time.Duration) (Status, error) {
	deadline := time.Now().Add(timeout)
	for {
		b.AsyncUpdate()
		s := b.Status()
		if s.Reason == "bank closed" {
			return s, ErrStopped
		}
		if s.Ready && (!requireVideos || s.TotalVideos > 0) {
			return s, nil
		}
		if time.Now().After(deadline) {
			reason := s.Reason
			if reason == "" && requireVideos {
				reason = "no videos available"
			}
			return s, fmt.Errorf("%w: %s", ErrNotReady, reason)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
