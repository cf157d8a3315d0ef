// Package imagecache provides a capacity-bounded, LRU-evicting cache of
// decoded images fed by a single background decode worker.
//
// The worker never touches cache state: it communicates exclusively over
// two bounded queues (load requests in, decode results out), and only the
// owning goroutine mutates the map and recency order via ProcessLoaded.
// Backpressure is deliberate and silent: a full request queue rejects new
// work, and a full result queue drops the oldest unconsumed result.
//
// An optional spill tier keeps recently evicted pixel data zstd-compressed
// in memory so a re-request decompresses instead of re-decoding.
package imagecache

import (
	"container/list"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftglass/mediabank/media"
)

// entry is the single cache-entry shape used by both the async-insert and
// preloaded-insert paths.
type entry struct {
	img      *media.Image
	lastUsed time.Time
	elem     *list.Element // position in the MRU list; value is the path
}

type result struct {
	path string
	img  *media.Image // nil when the decode failed
}

// Stats is a snapshot of the cache's operational counters.
type Stats struct {
	Hits           int64
	SpillHits      int64
	Misses         int64
	QueueFullDrops int64
	ResultDrops    int64
	DecodeFailures int64
}

// Cache is a bounded cache of decoded images keyed by source path.
//
// All methods are safe for concurrent use, but the intended shape is a
// single owner goroutine calling GetImage/ProcessLoaded while the decode
// worker runs in the background.
type Cache struct {
	capacity  int
	queueSize int
	decode    media.ImageDecodeFunc
	evict     func(*media.Image)
	log       *slog.Logger

	mu    sync.Mutex
	items map[string]*entry
	mru   *list.List // front = most recently used
	spill *spillTier

	requests  chan string
	results   chan result
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	hits           atomic.Int64
	spillHits      atomic.Int64
	misses         atomic.Int64
	queueFullDrops atomic.Int64
	resultDrops    atomic.Int64
	decodeFailures atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithQueueSize sets the load-request queue capacity. Defaults to 4.
// The result queue holds twice as many completed decodes.
func WithQueueSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithDecoder substitutes the image decode function. Defaults to
// media.DecodeImage.
func WithDecoder(fn media.ImageDecodeFunc) Option {
	return func(c *Cache) {
		if fn != nil {
			c.decode = fn
		}
	}
}

// WithEvictFunc sets a callback invoked for every entry leaving the cache
// (eviction, Clear, Close). Callers typically release GPU textures here.
// The callback runs with the cache mutex released.
func WithEvictFunc(fn func(*media.Image)) Option {
	return func(c *Cache) {
		c.evict = fn
	}
}

// WithSpill enables the compressed spill tier, holding up to maxEntries
// evicted images as zstd-compressed pixel data.
func WithSpill(maxEntries int) Option {
	return func(c *Cache) {
		if maxEntries > 0 {
			c.spill = newSpillTier(maxEntries)
		}
	}
}

// WithLogger sets the cache's logger. Defaults to a discard logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a Cache holding up to capacity decoded images and starts
// its decode worker. Call Close to stop the worker.
func New(capacity int, opts ...Option) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	c := &Cache{
		capacity:  capacity,
		queueSize: 4,
		decode:    media.DecodeImage,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		items:     make(map[string]*entry),
		mru:       list.New(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.requests = make(chan string, c.queueSize)
	c.results = make(chan result, c.queueSize*2)
	go c.worker()
	return c
}

// RequestLoad enqueues an asynchronous decode of path. It never blocks:
// if the request queue is full it returns false and the caller is
// expected to re-request on a later cycle.
func (c *Cache) RequestLoad(path string) bool {
	select {
	case <-c.stop:
		return false
	default:
	}
	select {
	case c.requests <- path:
		return true
	default:
		c.queueFullDrops.Add(1)
		c.log.Debug("load request dropped, queue full", "path", path)
		return false
	}
}

// GetImage returns the cached image for path, promoting it to most
// recently used. On a miss it requests an async load (or restores from
// the spill tier when enabled) and reports false when no pixels are
// available yet.
func (c *Cache) GetImage(path string) (*media.Image, bool) {
	c.mu.Lock()
	if e, ok := c.items[path]; ok {
		e.lastUsed = time.Now()
		c.mru.MoveToFront(e.elem)
		c.mu.Unlock()
		c.hits.Add(1)
		return e.img, true
	}
	c.mu.Unlock()

	if c.spill != nil {
		if img, ok := c.spill.take(path); ok {
			c.spillHits.Add(1)
			c.log.Debug("restored image from spill tier", "path", path)
			c.AddPreloaded(path, img)
			return img, true
		}
	}

	c.misses.Add(1)
	c.RequestLoad(path)
	return nil, false
}

// PeekCached returns the cached image for path without promoting it.
func (c *Cache) PeekCached(path string) (*media.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[path]; ok {
		return e.img, true
	}
	return nil, false
}

// ProcessLoaded drains up to max completed decodes from the result queue
// into the cache, evicting least recently used entries as needed, and
// returns the number of images inserted.
func (c *Cache) ProcessLoaded(max int) int {
	count := 0
	for max <= 0 || count < max {
		select {
		case res := <-c.results:
			if res.img == nil {
				continue
			}
			c.insert(res.path, res.img)
			count++
		default:
			return count
		}
	}
	return count
}

// AddPreloaded inserts an already decoded image, bypassing the async
// queues. It follows the same eviction discipline as the async path.
func (c *Cache) AddPreloaded(path string, img *media.Image) {
	if img == nil {
		return
	}
	c.insert(path, img)
}

// PreloadImages decodes up to max of the given paths concurrently and
// inserts them directly, skipping paths already cached. It returns the
// number of images inserted; decode failures are skipped.
func (c *Cache) PreloadImages(paths []string, max int) int {
	if max <= 0 || max > len(paths) {
		max = len(paths)
	}

	var g errgroup.Group
	g.SetLimit(4)
	var inserted atomic.Int64
	n := 0
	for _, path := range paths {
		if n >= max {
			break
		}
		if _, ok := c.PeekCached(path); ok {
			continue
		}
		n++
		path := path
		g.Go(func() error {
			img, err := c.decode(path)
			if err != nil {
				c.decodeFailures.Add(1)
				c.log.Warn("preload decode failed", "path", path, "error", err)
				return nil
			}
			c.insert(path, img)
			inserted.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(inserted.Load())
}

// insert adds an image as the most recently used entry, evicting from
// the LRU end until the capacity bound holds. Eviction callbacks and
// spill compression run with the mutex released.
func (c *Cache) insert(path string, img *media.Image) {
	var evicted []*media.Image

	c.mu.Lock()
	if e, ok := c.items[path]; ok {
		// Latest decode wins; promote in place.
		e.img = img
		e.lastUsed = time.Now()
		c.mru.MoveToFront(e.elem)
		c.mu.Unlock()
		return
	}
	for len(c.items) >= c.capacity {
		back := c.mru.Back()
		if back == nil {
			break
		}
		oldPath := back.Value.(string)
		evicted = append(evicted, c.items[oldPath].img)
		delete(c.items, oldPath)
		c.mru.Remove(back)
	}
	e := &entry{img: img, lastUsed: time.Now()}
	e.elem = c.mru.PushFront(path)
	c.items[path] = e
	c.mu.Unlock()

	c.releaseEvicted(evicted)
}

// releaseEvicted runs the eviction callback and spills pixel data for
// entries that just left the hot tier. Must be called without the mutex.
func (c *Cache) releaseEvicted(evicted []*media.Image) {
	for _, img := range evicted {
		if c.evict != nil {
			c.evict(img)
		}
		if c.spill != nil {
			c.spill.put(img)
		}
	}
}

// Clear evicts every entry, invoking the eviction callback for each, and
// empties the spill tier.
func (c *Cache) Clear() {
	c.mu.Lock()
	var evicted []*media.Image
	for _, e := range c.items {
		evicted = append(evicted, e.img)
	}
	c.items = make(map[string]*entry)
	c.mru.Init()
	c.mu.Unlock()

	if c.evict != nil {
		for _, img := range evicted {
			c.evict(img)
		}
	}
	if c.spill != nil {
		c.spill.clear()
	}
}

// Len returns the number of cached images in the hot tier.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Pending returns the number of queued load requests not yet decoded.
func (c *Cache) Pending() int {
	return len(c.requests)
}

// Stats returns a snapshot of the operational counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:           c.hits.Load(),
		SpillHits:      c.spillHits.Load(),
		Misses:         c.misses.Load(),
		QueueFullDrops: c.queueFullDrops.Load(),
		ResultDrops:    c.resultDrops.Load(),
		DecodeFailures: c.decodeFailures.Load(),
	}
}

// Close stops the decode worker, waits for it to exit, and clears the
// cache. It is safe to call multiple times.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
		c.Clear()
	})
}
