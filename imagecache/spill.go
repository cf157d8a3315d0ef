package imagecache

import (
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/driftglass/mediabank/media"
)

// spillTier holds recently evicted images as zstd-compressed pixel data.
// RGBA pixel buffers compress well enough that a bounded spill costs a
// fraction of the hot tier's memory while turning a re-decode (disk read
// plus format decode) into a decompress.
//
// Spilled entries never carry texture handles; the eviction callback has
// already released those before the pixels arrive here.
type spillTier struct {
	mu      sync.Mutex
	max     int
	order   []string // FIFO eviction order
	entries map[string]spillEntry
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

type spillEntry struct {
	comp []byte
	w, h int
}

func newSpillTier(max int) *spillTier {
	enc, _ := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
	)
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return &spillTier{
		max:     max,
		entries: make(map[string]spillEntry),
		enc:     enc,
		dec:     dec,
	}
}

// put compresses and stores an evicted image, displacing the oldest
// spilled entry when full.
func (t *spillTier) put(img *media.Image) {
	comp := t.enc.EncodeAll(img.Pix, nil)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[img.Path]; ok {
		return
	}
	for len(t.entries) >= t.max && len(t.order) > 0 {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.entries, oldest)
	}
	t.entries[img.Path] = spillEntry{comp: comp, w: img.Width, h: img.Height}
	t.order = append(t.order, img.Path)
}

// take removes and decompresses the spilled entry for path, if present.
func (t *spillTier) take(path string) (*media.Image, bool) {
	t.mu.Lock()
	e, ok := t.entries[path]
	if ok {
		delete(t.entries, path)
		for i, p := range t.order {
			if p == path {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
	t.mu.Unlock()
	if !ok {
		return nil, false
	}

	pix, err := t.dec.DecodeAll(e.comp, nil)
	if err != nil {
		return nil, false
	}
	return &media.Image{Pix: pix, Width: e.w, Height: e.h, Path: path}, true
}

func (t *spillTier) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]spillEntry)
	t.order = nil
}

func (t *spillTier) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
