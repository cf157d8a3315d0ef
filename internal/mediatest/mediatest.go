// Package mediatest provides fixtures for testing the media engine:
// synthetic images on disk, in-memory decoded images, and scripted
// video decoders.
package mediatest

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/driftglass/mediabank/media"
)

// NewImage returns a decoded image with deterministic pixel content
// derived from seed.
func NewImage(path string, w, h int, seed byte) *media.Image {
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = seed + byte(i)
	}
	return &media.Image{Pix: pix, Width: w, Height: h, Path: path}
}

// NewFrames returns n video frames with deterministic pixel content.
func NewFrames(n, w, h int) []*media.Frame {
	frames := make([]*media.Frame, n)
	for i := range frames {
		pix := make([]byte, w*h*3)
		for j := range pix {
			pix[j] = byte(i)
		}
		frames[i] = &media.Frame{
			Pix:       pix,
			Width:     w,
			Height:    h,
			Timestamp: time.Duration(i) * time.Second / 30,
		}
	}
	return frames
}

// WritePNG writes a solid-color PNG to dir/name and returns its path.
func WritePNG(tb testing.TB, dir, name string, w, h int) string {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0x20
		img.Pix[i+1] = 0x40
		img.Pix[i+2] = 0x80
		img.Pix[i+3] = 0xff
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		tb.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		tb.Fatal(err)
	}
	return path
}

// WriteGIF writes an animated GIF with the given frame count to dir/name
// and returns its path.
func WriteGIF(tb testing.TB, dir, name string, frames, w, h int) string {
	tb.Helper()
	g := &gif.GIF{}
	for i := 0; i < frames; i++ {
		pal := color.Palette{
			color.RGBA{byte(i * 16), 0, 0, 0xff},
			color.RGBA{0, byte(i * 16), 0, 0xff},
		}
		fr := image.NewPaletted(image.Rect(0, 0, w, h), pal)
		g.Image = append(g.Image, fr)
		g.Delay = append(g.Delay, 5)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		tb.Fatal(err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, g); err != nil {
		tb.Fatal(err)
	}
	return path
}

// FakeVideo is a scripted media.VideoDecoder serving a fixed frame list.
type FakeVideo struct {
	mu       sync.Mutex
	path     string
	frames   []*media.Frame
	idx      int
	fps      float64
	Loop     bool  // wrap instead of reporting io.EOF
	FailAt   int   // NextFrame returns an error at this index; -1 disables
	Closed   bool
	NextWait time.Duration // artificial decode latency
}

var _ media.VideoDecoder = (*FakeVideo)(nil)

// NewFakeVideo returns a decoder serving the given frames once, then io.EOF.
func NewFakeVideo(path string, frames []*media.Frame) *FakeVideo {
	return &FakeVideo{path: path, frames: frames, fps: 30, FailAt: -1}
}

func (v *FakeVideo) NextFrame() (*media.Frame, error) {
	if v.NextWait > 0 {
		time.Sleep(v.NextWait)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.FailAt >= 0 && v.idx == v.FailAt {
		return nil, fmt.Errorf("scripted decode failure at frame %d", v.idx)
	}
	if v.idx >= len(v.frames) {
		if !v.Loop {
			return nil, io.EOF
		}
		v.idx = 0
	}
	fr := v.frames[v.idx]
	v.idx++
	return fr, nil
}

func (v *FakeVideo) Seek(frame int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if frame < 0 || frame >= len(v.frames) {
		return false
	}
	v.idx = frame
	return true
}

func (v *FakeVideo) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.idx = 0
}

func (v *FakeVideo) Size() (int, int) {
	if len(v.frames) == 0 {
		return 0, 0
	}
	return v.frames[0].Width, v.frames[0].Height
}

func (v *FakeVideo) FPS() float64 { return v.fps }
func (v *FakeVideo) Len() int     { return len(v.frames) }
func (v *FakeVideo) Path() string { return v.path }

func (v *FakeVideo) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Closed = true
	return nil
}

// IsClosed reports whether Close has been called. Safe to poll while
// another goroutine owns the decoder.
func (v *FakeVideo) IsClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Closed
}

// Opener returns a media.VideoOpenFunc serving fresh FakeVideo decoders
// for the registered paths and an error for everything else.
func Opener(sources map[string][]*media.Frame) media.VideoOpenFunc {
	return func(path string) (media.VideoDecoder, error) {
		frames, ok := sources[path]
		if !ok {
			return nil, fmt.Errorf("no scripted video for %s", path)
		}
		return NewFakeVideo(path, frames), nil
	}
}
