package videostream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftglass/mediabank/internal/mediatest"
	"github.com/driftglass/mediabank/media"
)

func newTestPool(t *testing.T, capacity int, sources map[string][]*media.Frame) *DecoderPool {
	t.Helper()
	p := NewDecoderPool(capacity, mediatest.Opener(sources), nil)
	t.Cleanup(p.Close)
	return p
}

func TestPoolAcquireMiss(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2, nil)
	_, ok := p.Acquire("nope")
	assert.False(t, ok)
}

func TestPoolReleaseThenAcquire(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2, nil)
	d := mediatest.NewFakeVideo("clip", mediatest.NewFrames(3, 4, 4))
	d.Seek(2)

	p.Release(d)
	assert.True(t, p.Contains("clip"))
	assert.Equal(t, 1, p.Len())

	got, ok := p.Acquire("clip")
	require.True(t, ok)
	assert.Same(t, d, got)
	assert.False(t, p.Contains("clip"))

	// Release rewinds, so the next frame is the first one.
	fr, err := got.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, byte(0), fr.Pix[0])
}

func TestPoolKeysAreCleanedPaths(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2, nil)
	p.Release(mediatest.NewFakeVideo("videos//clip.gif", mediatest.NewFrames(1, 4, 4)))

	_, ok := p.Acquire("videos/clip.gif")
	assert.True(t, ok)
}

func TestPoolEvictsLeastRecentlyReleased(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2, nil)
	a := mediatest.NewFakeVideo("a", mediatest.NewFrames(1, 4, 4))
	b := mediatest.NewFakeVideo("b", mediatest.NewFrames(1, 4, 4))
	c := mediatest.NewFakeVideo("c", mediatest.NewFrames(1, 4, 4))

	p.Release(a)
	p.Release(b)
	p.Release(c)

	assert.True(t, a.IsClosed())
	assert.False(t, p.Contains("a"))
	assert.True(t, p.Contains("b"))
	assert.True(t, p.Contains("c"))
}

func TestPoolDuplicateReleaseCloses(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2, nil)
	first := mediatest.NewFakeVideo("a", mediatest.NewFrames(1, 4, 4))
	second := mediatest.NewFakeVideo("a", mediatest.NewFrames(1, 4, 4))

	p.Release(first)
	p.Release(second)

	assert.True(t, second.IsClosed())
	assert.False(t, first.IsClosed())
	assert.Equal(t, 1, p.Len())
}

func TestPoolWarmOpensInBackground(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2, map[string][]*media.Frame{
		"a": mediatest.NewFrames(2, 4, 4),
	})

	p.Warm("a", false)
	require.Eventually(t, func() bool {
		return p.Contains("a")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPoolWarmUnknownPath(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2, nil)
	p.Warm("missing", true)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, p.Len())
}

func TestPoolCloseClosesDecoders(t *testing.T) {
	t.Parallel()

	p := NewDecoderPool(2, mediatest.Opener(nil), nil)
	a := mediatest.NewFakeVideo("a", mediatest.NewFrames(1, 4, 4))
	p.Release(a)

	p.Close()
	p.Close() // idempotent

	assert.True(t, a.IsClosed())
	assert.Equal(t, 0, p.Len())
}
