// Package videostream plays videos through a pair of frame buffers so a
// caller can render the current clip while the following clip decodes
// in the background. Playback ping-pongs between the first and last
// buffered frame, and the streamer switches to the preloaded clip only
// when the caller allows it and the next buffer is ready.
package videostream

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/driftglass/mediabank/media"
)

const (
	// defaultReferenceRate is the tick rate frame advancement is
	// normalized against: a caller ticking at the reference rate
	// advances at the base speed.
	defaultReferenceRate = 120.0

	// defaultAdvanceDivisor slows playback relative to the caller's
	// tick rate; at the reference rate one frame step accumulates
	// every defaultAdvanceDivisor ticks.
	defaultAdvanceDivisor = 8.0

	// defaultPrefillBudget bounds how long a synchronous LoadVideo may
	// spend decoding before handing the rest to the fill worker.
	defaultPrefillBudget = 12 * time.Millisecond

	fillInterval = time.Millisecond
)

// Info is a point-in-time snapshot of streamer state, for diagnostics.
type Info struct {
	CurrentPath   string
	NextPath      string
	CurrentFrames int
	NextFrames    int
	Index         int
	Backwards     bool
	ReachedEnd    bool
	PendingClean  int
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithOpener sets the function used to open video decoders. The
// default is media.OpenVideo.
func WithOpener(open media.VideoOpenFunc) Option {
	return func(s *Streamer) {
		s.open = open
	}
}

// WithPool attaches a decoder pool of the given capacity. Displaced
// decoders are parked in the pool instead of closed, and LoadVideo
// checks the pool before opening.
func WithPool(capacity int) Option {
	return func(s *Streamer) {
		s.poolCap = capacity
	}
}

// WithAsyncOpen makes LoadVideo decline a pool miss instead of opening
// synchronously: the path is handed to the pool's warmup worker with
// priority and LoadVideo returns false. Requires WithPool.
func WithAsyncOpen() Option {
	return func(s *Streamer) {
		s.asyncOpen = true
	}
}

// WithReferenceRate sets the caller tick rate that maps to base
// playback speed.
func WithReferenceRate(rate float64) Option {
	return func(s *Streamer) {
		if rate > 0 {
			s.refRate = rate
		}
	}
}

// WithAdvanceDivisor sets how many reference-rate ticks accumulate one
// frame step.
func WithAdvanceDivisor(div float64) Option {
	return func(s *Streamer) {
		if div > 0 {
			s.divisor = div
		}
	}
}

// WithPrefillBudget caps the wall-clock time LoadVideo spends decoding
// before returning. Zero disables the cap.
func WithPrefillBudget(d time.Duration) Option {
	return func(s *Streamer) {
		s.prefillBudget = d
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(log *slog.Logger) Option {
	return func(s *Streamer) {
		if log != nil {
			s.log = log
		}
	}
}

// Streamer double-buffers video playback. All exported methods are safe
// for concurrent use.
type Streamer struct {
	bufferSize    int
	open          media.VideoOpenFunc
	log           *slog.Logger
	refRate       float64
	divisor       float64
	prefillBudget time.Duration
	poolCap       int
	asyncOpen     bool
	pool          *DecoderPool

	mu         sync.Mutex
	current    *animationBuffer
	next       *animationBuffer
	index      int
	backwards  bool
	reachedEnd bool
	accum      float64
	stopped    bool
	inflight   map[media.VideoDecoder]bool // decoders with a NextFrame call outside the lock

	// displaced videos, disposed of one piece per fill tick
	oldDecoders []media.VideoDecoder
	oldFrames   []*media.Frame

	stop     chan struct{}
	fillDone chan struct{}
	stopOnce sync.Once
}

// New returns a streamer whose buffers hold up to bufferSize frames.
func New(bufferSize int, opts ...Option) *Streamer {
	if bufferSize < 1 {
		bufferSize = 1
	}
	s := &Streamer{
		bufferSize:    bufferSize,
		open:          media.OpenVideo,
		log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		refRate:       defaultReferenceRate,
		divisor:       defaultAdvanceDivisor,
		prefillBudget: defaultPrefillBudget,
		current:       &animationBuffer{},
		next:          &animationBuffer{},
		inflight:      make(map[media.VideoDecoder]bool),
		stop:          make(chan struct{}),
		fillDone:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.poolCap > 0 {
		s.pool = NewDecoderPool(s.poolCap, s.open, s.log)
	}
	go s.fillLoop()
	return s
}

// LoadVideo opens path and installs it into a buffer: the visible one
// when preload is false, the standby one when preload is true. Up to
// prefillFrames frames (bounded by the buffer size and the prefill
// budget) are decoded before returning; the fill worker tops up the
// rest. It reports whether a decoder was installed.
func (s *Streamer) LoadVideo(path string, preload bool, prefillFrames int) bool {
	dec := s.acquireDecoder(path)
	if dec == nil {
		return false
	}
	if prefillFrames <= 0 || prefillFrames > s.bufferSize {
		prefillFrames = s.bufferSize
	}

	s.mu.Lock()
	target := s.current
	if preload {
		target = s.next
	}
	if target.decoder != nil {
		s.retireLocked(target.decoder)
		s.oldFrames = append(s.oldFrames, target.frames...)
	}
	target.decoder = dec
	target.frames = nil
	target.end = false
	target.failed = false
	if !preload {
		s.index = 0
		s.backwards = false
		s.reachedEnd = false
		s.accum = 0
	}
	s.inflight[dec] = true
	s.mu.Unlock()

	// Decode the initial batch outside the lock so a slow decoder
	// cannot stall concurrent frame reads.
	start := time.Now()
	var frames []*media.Frame
	var end, failed bool
	for len(frames) < prefillFrames {
		s.mu.Lock()
		displaced := target.decoder != dec
		s.mu.Unlock()
		if displaced {
			break
		}
		fr, err := dec.NextFrame()
		if err != nil {
			end = true
			if !errors.Is(err, io.EOF) {
				failed = true
				s.log.Warn("video decode failed", "path", path, "error", err)
			}
			break
		}
		frames = append(frames, fr)
		if s.prefillBudget > 0 && time.Since(start) >= s.prefillBudget {
			s.log.Debug("prefill budget exhausted",
				"path", path, "frames", len(frames), "wanted", prefillFrames)
			break
		}
	}

	s.mu.Lock()
	delete(s.inflight, dec)
	var closeNow media.VideoDecoder
	switch {
	case target.decoder == dec: // not displaced by a concurrent load
		target.frames = append(target.frames, frames...)
		target.end = end
		target.failed = failed
	case s.stopped:
		closeNow = dec
	default:
		// Displaced mid-prefill; this goroutine owns the retired
		// decoder, since LoadVideo skips in-flight decoders.
		s.oldDecoders = append(s.oldDecoders, dec)
		s.oldFrames = append(s.oldFrames, frames...)
	}
	s.mu.Unlock()
	if closeNow != nil {
		closeNow.Close()
	}

	s.log.Debug("video loaded",
		"path", path, "preload", preload, "frames", len(frames), "complete", end)
	return true
}

func (s *Streamer) acquireDecoder(path string) media.VideoDecoder {
	if s.pool != nil {
		if d, ok := s.pool.Acquire(path); ok {
			d.Reset()
			return d
		}
		if s.asyncOpen {
			s.pool.Warm(path, true)
			return nil
		}
	}
	d, err := s.open(path)
	if err != nil {
		s.log.Warn("video open failed", "path", path, "error", err)
		return nil
	}
	return d
}

// AdvanceFrame moves playback forward by an amount scaled to the
// caller's tick rate, then bounces the play head between the ends of
// the buffered range. maybeSwitch permits swapping to the preloaded
// clip once the current one has played to its end; forceSwitch permits
// the swap without waiting for the end. A failed or empty current
// buffer is always eligible for swapping.
func (s *Streamer) AdvanceFrame(callerFPS float64, maybeSwitch, forceSwitch bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSwapLocked(maybeSwitch, forceSwitch)

	if callerFPS <= 0 {
		callerFPS = s.refRate
	}
	s.accum += (s.refRate / callerFPS) / s.divisor

	cur := s.current
	for s.accum >= 1.0 {
		s.accum -= 1.0
		if cur.size() == 0 {
			break
		}
		s.stepLocked(cur.size() - 1)
		// sticky until the next load or swap
		if cur.end && s.index == cur.size()-1 {
			s.reachedEnd = true
		}
	}
}

// stepLocked moves the play head one position, reversing direction at
// either end of the buffered range.
func (s *Streamer) stepLocked(last int) {
	if s.backwards {
		if s.index > 0 {
			s.index--
			return
		}
		s.backwards = false
		if s.index < last {
			s.index++
		}
		return
	}
	if s.index < last {
		s.index++
		return
	}
	s.backwards = true
	if s.index > 0 {
		s.index--
	}
}

func (s *Streamer) maybeSwapLocked(maybeSwitch, forceSwitch bool) {
	cur, nxt := s.current, s.next
	if cur.decoder == nil || nxt.decoder == nil || len(s.oldDecoders) > 0 {
		return
	}
	eligible := cur.failed || cur.size() == 0 ||
		(maybeSwitch && (s.reachedEnd || forceSwitch) && nxt.ready(s.bufferSize))
	if !eligible {
		return
	}

	s.current, s.next = s.next, s.current
	old := s.next
	s.retireLocked(old.decoder)
	s.oldFrames = append(s.oldFrames, old.frames...)
	old.decoder = nil
	old.frames = nil
	old.end = false
	old.failed = false

	s.index = 0
	s.backwards = false
	s.reachedEnd = false
	s.accum = 0
	s.log.Debug("switched video", "path", s.current.path())
}

// GetCurrentFrame returns the frame at the play head, or nil when
// nothing is buffered. The returned frame must not be mutated.
func (s *Streamer) GetCurrentFrame() *media.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.current.size()
	if size == 0 {
		return nil
	}
	idx := s.index
	if idx >= size {
		idx = size - 1
	}
	return s.current.frames[idx]
}

// ReachedEnd reports whether the current clip has played to its final
// buffered frame at least once since it was loaded.
func (s *Streamer) ReachedEnd() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reachedEnd
}

// NextReady reports whether the standby buffer could be swapped in.
func (s *Streamer) NextReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.decoder != nil && s.next.ready(s.bufferSize)
}

// Pool returns the attached decoder pool, or nil.
func (s *Streamer) Pool() *DecoderPool { return s.pool }

// GetInfo returns a snapshot of streamer state.
func (s *Streamer) GetInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		CurrentPath:   s.current.path(),
		NextPath:      s.next.path(),
		CurrentFrames: s.current.size(),
		NextFrames:    s.next.size(),
		Index:         s.index,
		Backwards:     s.backwards,
		ReachedEnd:    s.reachedEnd,
		PendingClean:  len(s.oldDecoders) + len(s.oldFrames),
	}
}

// Stop shuts down the fill worker, disposes every decoder, and closes
// the decoder pool. It is idempotent; the streamer is unusable after.
func (s *Streamer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.fillDone

		s.mu.Lock()
		s.stopped = true
		decoders := s.oldDecoders
		for _, b := range []*animationBuffer{s.current, s.next} {
			// In-flight decoders belong to their goroutine, which
			// closes them once the decode returns.
			if b.decoder != nil && !s.inflight[b.decoder] {
				decoders = append(decoders, b.decoder)
			}
			b.decoder = nil
			b.frames = nil
		}
		s.oldDecoders = nil
		s.oldFrames = nil
		s.mu.Unlock()

		for _, d := range decoders {
			d.Close()
		}
		if s.pool != nil {
			s.pool.Close()
		}
	})
}

// fillLoop tops up whichever buffer is below capacity, one frame per
// tick, and retires displaced videos a piece at a time so big frees
// never land in one tick.
func (s *Streamer) fillLoop() {
	defer close(s.fillDone)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.cleanupTick()
		s.fillTick()

		select {
		case <-s.stop:
			return
		case <-time.After(fillInterval):
		}
	}
}

func (s *Streamer) cleanupTick() {
	s.mu.Lock()
	var old media.VideoDecoder
	if len(s.oldDecoders) > 0 {
		old = s.oldDecoders[0]
		s.oldDecoders = s.oldDecoders[1:]
	}
	if len(s.oldFrames) > 0 {
		s.oldFrames[0] = nil
		s.oldFrames = s.oldFrames[1:]
	}
	s.mu.Unlock()

	if old != nil {
		s.releaseDecoder(old)
	}
}

func (s *Streamer) fillTick() {
	s.mu.Lock()
	var target *animationBuffer
	for _, b := range []*animationBuffer{s.current, s.next} {
		if b.decoder != nil && !b.end && !b.failed && !s.inflight[b.decoder] && b.size() < s.bufferSize {
			target = b
			break
		}
	}
	var dec media.VideoDecoder
	if target != nil {
		dec = target.decoder
		s.inflight[dec] = true
	}
	s.mu.Unlock()

	if dec == nil {
		return
	}

	fr, err := dec.NextFrame()

	s.mu.Lock()
	delete(s.inflight, dec)
	if target.decoder != dec {
		// Displaced mid-decode; retire the decoder here since the
		// displacing load left it to this goroutine.
		s.oldDecoders = append(s.oldDecoders, dec)
		s.mu.Unlock()
		return
	}
	switch {
	case err == nil:
		if target.size() < s.bufferSize {
			target.frames = append(target.frames, fr)
		}
	case errors.Is(err, io.EOF):
		target.end = true
	default:
		target.failed = true
		target.end = true
		s.log.Warn("video decode failed", "path", dec.Path(), "error", err)
	}
	s.mu.Unlock()
}

// releaseDecoder parks a displaced decoder in the pool, or closes it
// when no pool is attached.
func (s *Streamer) releaseDecoder(d media.VideoDecoder) {
	if s.pool != nil {
		s.pool.Release(d)
		return
	}
	d.Close()
}

// retireLocked queues a displaced decoder for the cleanup tick. A
// decoder with a decode in flight is left alone: closing it here would
// race the NextFrame call running outside the lock, so the in-flight
// goroutine retires it when it observes the displacement.
func (s *Streamer) retireLocked(d media.VideoDecoder) {
	if !s.inflight[d] {
		s.oldDecoders = append(s.oldDecoders, d)
	}
}
