package videostream

import "github.com/driftglass/mediabank/media"

// animationBuffer holds one video's decoded frames plus its decoder.
// Two of these exist per Streamer ("current" and "next"); decoder
// ownership moves from next to current when the streamer swaps.
type animationBuffer struct {
	decoder media.VideoDecoder
	frames  []*media.Frame
	end     bool // decoder reported end of stream
	failed  bool // decoder reported a non-EOF error
}

func (b *animationBuffer) size() int { return len(b.frames) }

// ready reports whether the buffer can be swapped in: either the whole
// stream is buffered or the buffer is full.
func (b *animationBuffer) ready(capacity int) bool {
	return b.end || len(b.frames) >= capacity
}

func (b *animationBuffer) path() string {
	if b.decoder == nil {
		return ""
	}
	return b.decoder.Path()
}
