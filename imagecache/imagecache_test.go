package imagecache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftglass/mediabank/internal/mediatest"
	"github.com/driftglass/mediabank/media"
)

// fakeDecode serves deterministic in-memory images for any path.
func fakeDecode(path string) (*media.Image, error) {
	return mediatest.NewImage(path, 4, 4, 1), nil
}

func TestCapacityInvariant(t *testing.T) {
	t.Parallel()

	var evicted []string
	var mu sync.Mutex
	c := New(2,
		WithDecoder(fakeDecode),
		WithEvictFunc(func(img *media.Image) {
			mu.Lock()
			evicted = append(evicted, img.Path)
			mu.Unlock()
		}),
	)
	defer c.Close()

	c.AddPreloaded("a", mediatest.NewImage("a", 4, 4, 1))
	c.AddPreloaded("b", mediatest.NewImage("b", 4, 4, 2))
	c.AddPreloaded("c", mediatest.NewImage("c", 4, 4, 3))

	assert.Equal(t, 2, c.Len())
	_, ok := c.PeekCached("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.PeekCached("b")
	assert.True(t, ok)
	_, ok = c.PeekCached("c")
	assert.True(t, ok)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a"}, evicted)
}

func TestGetImagePromotesToMRU(t *testing.T) {
	t.Parallel()

	c := New(2, WithDecoder(fakeDecode))
	defer c.Close()

	c.AddPreloaded("a", mediatest.NewImage("a", 4, 4, 1))
	c.AddPreloaded("b", mediatest.NewImage("b", 4, 4, 2))

	// Touch a so b becomes the LRU entry.
	_, ok := c.GetImage("a")
	require.True(t, ok)

	c.AddPreloaded("c", mediatest.NewImage("c", 4, 4, 3))

	_, ok = c.PeekCached("a")
	assert.True(t, ok, "recently used entry must survive")
	_, ok = c.PeekCached("b")
	assert.False(t, ok, "LRU entry must be the one evicted")
}

func TestRequestLoadRejectsWhenQueueFull(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 8)
	block := make(chan struct{})
	c := New(8,
		WithQueueSize(4),
		WithDecoder(func(path string) (*media.Image, error) {
			started <- struct{}{}
			<-block
			return fakeDecode(path)
		}),
	)
	defer c.Close()
	defer close(block)

	// Occupy the worker so queued requests stay queued.
	require.True(t, c.RequestLoad("warm"))
	<-started

	for i := 0; i < 4; i++ {
		assert.True(t, c.RequestLoad(fmt.Sprintf("img-%d", i)))
	}
	assert.False(t, c.RequestLoad("img-overflow"), "fifth request must be rejected")
	assert.Equal(t, int64(1), c.Stats().QueueFullDrops)
}

func TestAsyncLoadRoundTrip(t *testing.T) {
	t.Parallel()

	c := New(4, WithDecoder(fakeDecode))
	defer c.Close()

	img, ok := c.GetImage("x")
	assert.Nil(t, img)
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		return c.ProcessLoaded(8) > 0
	}, time.Second, 5*time.Millisecond)

	img, ok = c.GetImage("x")
	require.True(t, ok)
	assert.Equal(t, "x", img.Path)
	assert.Equal(t, 4, img.Width)
}

func TestDecodeFailureInsertsNothing(t *testing.T) {
	t.Parallel()

	c := New(4, WithDecoder(func(path string) (*media.Image, error) {
		return nil, fmt.Errorf("corrupt file")
	}))
	defer c.Close()

	require.True(t, c.RequestLoad("bad"))

	require.Eventually(t, func() bool {
		return c.Stats().DecodeFailures == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, c.ProcessLoaded(8))
	assert.Equal(t, 0, c.Len())
}

func TestResultQueueDropsOldest(t *testing.T) {
	t.Parallel()

	// Queue size 1 gives a result queue of capacity 2, so a third
	// undrained result displaces the first.
	c := New(8, WithQueueSize(1), WithDecoder(fakeDecode))
	defer c.Close()

	for _, path := range []string{"a", "b", "c"} {
		require.Eventually(t, func() bool {
			return c.RequestLoad(path)
		}, time.Second, time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return c.Stats().ResultDrops == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, c.ProcessLoaded(8))
	_, ok := c.PeekCached("a")
	assert.False(t, ok, "oldest result should have been dropped")
	_, ok = c.PeekCached("b")
	assert.True(t, ok)
	_, ok = c.PeekCached("c")
	assert.True(t, ok)
}

func TestSpillTierRestoresEvictedPixels(t *testing.T) {
	t.Parallel()

	c := New(1, WithDecoder(fakeDecode), WithSpill(4))
	defer c.Close()

	orig := mediatest.NewImage("a", 8, 8, 7)
	c.AddPreloaded("a", orig)
	c.AddPreloaded("b", mediatest.NewImage("b", 8, 8, 9))

	// a was evicted into the spill tier; requesting it again must
	// restore identical pixels without a decode.
	img, ok := c.GetImage("a")
	require.True(t, ok)
	assert.Equal(t, orig.Pix, img.Pix)
	assert.Equal(t, orig.Width, img.Width)
	assert.Equal(t, int64(1), c.Stats().SpillHits)

	// The restore reinserted a, which pushed b out in turn.
	_, ok = c.PeekCached("a")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestSpillTierBounded(t *testing.T) {
	t.Parallel()

	tier := newSpillTier(2)
	for i := 0; i < 5; i++ {
		tier.put(mediatest.NewImage(fmt.Sprintf("img-%d", i), 4, 4, byte(i)))
	}
	assert.Equal(t, 2, tier.len())

	_, ok := tier.take("img-0")
	assert.False(t, ok)
	_, ok = tier.take("img-4")
	assert.True(t, ok)
}

func TestPreloadImagesHonorsLimit(t *testing.T) {
	t.Parallel()

	c := New(8, WithDecoder(fakeDecode))
	defer c.Close()

	paths := []string{"a", "b", "c", "d", "e"}
	n := c.PreloadImages(paths, 3)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, c.Len())
}

func TestClearInvokesEvictCallback(t *testing.T) {
	t.Parallel()

	var released int
	var mu sync.Mutex
	c := New(4,
		WithDecoder(fakeDecode),
		WithEvictFunc(func(*media.Image) {
			mu.Lock()
			released++
			mu.Unlock()
		}),
	)
	defer c.Close()

	c.AddPreloaded("a", mediatest.NewImage("a", 4, 4, 1))
	c.AddPreloaded("b", mediatest.NewImage("b", 4, 4, 2))
	c.Clear()

	assert.Equal(t, 0, c.Len())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, released)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	c := New(4, WithDecoder(fakeDecode))
	c.Close()
	c.Close()
	assert.False(t, c.RequestLoad("x"))
}

func BenchmarkGetImageHit(b *testing.B) {
	c := New(16, WithDecoder(fakeDecode))
	defer c.Close()
	c.AddPreloaded("hot", mediatest.NewImage("hot", 64, 64, 1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := c.GetImage("hot"); !ok {
			b.Fatal("unexpected miss")
		}
	}
}
