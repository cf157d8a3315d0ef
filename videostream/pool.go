package videostream

import (
	"container/list"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/driftglass/mediabank/media"
)

// DecoderPool keeps recently used video decoders open so switching back
// to a clip skips the open cost. Decoders are keyed by cleaned path and
// evicted least-recently-used once the pool is over capacity.
//
// A background worker opens decoders for paths handed to Warm, so a
// later Acquire for the same path can hit without blocking.
type DecoderPool struct {
	capacity int
	open     media.VideoOpenFunc
	log      *slog.Logger

	mu    sync.Mutex
	items map[string]media.VideoDecoder
	order *list.List // front = most recently released, values are keys

	warm     chan string
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewDecoderPool returns a pool holding up to capacity idle decoders.
// open is used by the warmup worker; it must not be nil.
func NewDecoderPool(capacity int, open media.VideoOpenFunc, log *slog.Logger) *DecoderPool {
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &DecoderPool{
		capacity: capacity,
		open:     open,
		log:      log,
		items:    make(map[string]media.VideoDecoder),
		order:    list.New(),
		warm:     make(chan string, 8),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.warmLoop()
	return p
}

func poolKey(path string) string { return filepath.Clean(path) }

// Acquire removes and returns the pooled decoder for path, if any.
// The caller owns the returned decoder until it is Released.
func (p *DecoderPool) Acquire(path string) (media.VideoDecoder, bool) {
	key := poolKey(path)

	p.mu.Lock()
	defer p.mu.Unlock()

	d, ok := p.items[key]
	if !ok {
		return nil, false
	}
	delete(p.items, key)
	p.removeKey(key)
	return d, true
}

// Release returns a decoder to the pool, rewound to its first frame.
// If a decoder for the same path is already pooled, or the pool is over
// capacity, the loser is closed.
func (p *DecoderPool) Release(d media.VideoDecoder) {
	if d == nil {
		return
	}
	key := poolKey(d.Path())
	d.Reset()

	p.mu.Lock()
	if _, exists := p.items[key]; exists {
		p.mu.Unlock()
		d.Close()
		return
	}
	p.items[key] = d
	p.order.PushFront(key)

	var evicted []media.VideoDecoder
	for len(p.items) > p.capacity {
		back := p.order.Back()
		if back == nil {
			break
		}
		old := back.Value.(string)
		p.order.Remove(back)
		if victim, ok := p.items[old]; ok {
			delete(p.items, old)
			evicted = append(evicted, victim)
		}
	}
	p.mu.Unlock()

	for _, victim := range evicted {
		p.log.Debug("decoder evicted from pool", "path", victim.Path())
		victim.Close()
	}
}

// Warm schedules path for background opening. With priority set, any
// queued warmups are discarded first so the requested path opens next.
// Paths already pooled or already queued past capacity are dropped.
func (p *DecoderPool) Warm(path string, priority bool) {
	if priority {
	drain:
		for {
			select {
			case <-p.warm:
			default:
				break drain
			}
		}
	}
	select {
	case p.warm <- path:
	default:
	}
}

// Contains reports whether a decoder for path is currently pooled.
func (p *DecoderPool) Contains(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.items[poolKey(path)]
	return ok
}

// Len returns the number of idle decoders held by the pool.
func (p *DecoderPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Close stops the warmup worker and closes every pooled decoder.
func (p *DecoderPool) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done

		p.mu.Lock()
		items := p.items
		p.items = make(map[string]media.VideoDecoder)
		p.order.Init()
		p.mu.Unlock()

		for _, d := range items {
			d.Close()
		}
	})
}

func (p *DecoderPool) warmLoop() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case path := <-p.warm:
			if p.Contains(path) {
				continue
			}
			d, err := p.open(path)
			if err != nil {
				p.log.Warn("warmup open failed", "path", path, "error", err)
				continue
			}
			p.Release(d)
		}
	}
}

// removeKey drops the order entry for key; callers hold p.mu.
func (p *DecoderPool) removeKey(key string) {
	for e := p.order.Front(); e != nil; e = e.Next() {
		if e.Value.(string) == key {
			p.order.Remove(e)
			return
		}
	}
}
