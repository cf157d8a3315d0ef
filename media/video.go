package media

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrUnsupportedVideo is returned when no built-in decoder handles the
// file's format.
var ErrUnsupportedVideo = errors.New("media: unsupported video format")

const nominalFPS = 30.0

// OpenVideo opens a video source using the built-in decoders.
//
// Animated GIFs are decoded fully into memory and loop forever. A
// directory is treated as an image sequence: its image files, sorted by
// name, are decoded lazily one frame at a time and report io.EOF after
// the last frame. Any other input returns ErrUnsupportedVideo; callers
// needing codec-backed formats plug their own VideoOpenFunc.
func OpenVideo(path string) (VideoDecoder, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	if fi.IsDir() {
		return newSeqDecoder(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gif":
		return newGIFDecoder(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVideo, filepath.Ext(path))
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// gifDecoder holds every frame of an animated GIF in memory and wraps at
// the end instead of reporting io.EOF.
type gifDecoder struct {
	path   string
	frames []*Frame
	fps    float64
	idx    int
	w, h   int
}

func newGIFDecoder(path string) (*gifDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gif: %w", err)
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("decode gif %s: %w", path, err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("decode gif %s: no frames", path)
	}

	w := g.Config.Width
	h := g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}

	d := &gifDecoder{path: path, w: w, h: h}

	// Compose frames over a shared canvas so partial-frame GIFs render
	// correctly, then snapshot each composed state as an RGB frame.
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	elapsed := 0.0
	totalDelay := 0
	for i, src := range g.Image {
		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)
		d.frames = append(d.frames, frameFromGoImage(canvas, elapsed))
		delay := g.Delay[i]
		if delay <= 0 {
			delay = 10 // GIF delay unit is 1/100s; treat 0 as 100ms
		}
		totalDelay += delay
		elapsed += float64(delay) / 100.0
	}

	d.fps = float64(len(g.Image)) * 100.0 / float64(totalDelay)
	if d.fps <= 0 {
		d.fps = nominalFPS
	}
	return d, nil
}

func (d *gifDecoder) NextFrame() (*Frame, error) {
	fr := d.frames[d.idx]
	d.idx = (d.idx + 1) % len(d.frames)
	return fr, nil
}

func (d *gifDecoder) Seek(frame int) bool {
	if frame < 0 || frame >= len(d.frames) {
		return false
	}
	d.idx = frame
	return true
}

func (d *gifDecoder) Reset()              { d.idx = 0 }
func (d *gifDecoder) Size() (int, int)    { return d.w, d.h }
func (d *gifDecoder) FPS() float64        { return d.fps }
func (d *gifDecoder) Len() int            { return len(d.frames) }
func (d *gifDecoder) Path() string        { return d.path }
func (d *gifDecoder) Close() error {
	d.frames = nil
	return nil
}

// seqDecoder streams a directory of image files as a video, decoding one
// file per NextFrame call.
type seqDecoder struct {
	path  string
	files []string
	idx   int
	w, h  int
}

func newSeqDecoder(dir string) (*seqDecoder, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("open sequence: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if IsImagePath(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("open sequence %s: no image files", dir)
	}
	sort.Strings(files)

	d := &seqDecoder{path: dir, files: files}

	// Probe the first frame for dimensions, then rewind.
	first, err := DecodeImage(files[0])
	if err != nil {
		return nil, fmt.Errorf("open sequence %s: %w", dir, err)
	}
	d.w, d.h = first.Width, first.Height
	return d, nil
}

func (d *seqDecoder) NextFrame() (*Frame, error) {
	for d.idx < len(d.files) {
		i := d.idx
		d.idx++
		img, err := DecodeImage(d.files[i])
		if err != nil {
			// Skip unreadable frames rather than ending the stream.
			continue
		}
		return &Frame{
			Pix:       rgbaToRGB(img.Pix),
			Width:     img.Width,
			Height:    img.Height,
			Timestamp: secondsToDuration(float64(i) / nominalFPS),
		}, nil
	}
	return nil, io.EOF
}

func (d *seqDecoder) Seek(frame int) bool {
	if frame < 0 || frame >= len(d.files) {
		return false
	}
	d.idx = frame
	return true
}

func (d *seqDecoder) Reset()           { d.idx = 0 }
func (d *seqDecoder) Size() (int, int) { return d.w, d.h }
func (d *seqDecoder) FPS() float64     { return nominalFPS }
func (d *seqDecoder) Len() int         { return len(d.files) }
func (d *seqDecoder) Path() string     { return d.path }
func (d *seqDecoder) Close() error     { return nil }

func rgbaToRGB(rgba []byte) []byte {
	rgb := make([]byte, len(rgba)/4*3)
	for i, j := 0, 0; i+3 < len(rgba); i, j = i+4, j+3 {
		rgb[j] = rgba[i]
		rgb[j+1] = rgba[i+1]
		rgb[j+2] = rgba[i+2]
	}
	return rgb
}

// Supported media file extensions, matched case-insensitively.
var (
	imageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true,
		".gif": true, ".bmp": true, ".webp": true,
	}
	videoExtensions = map[string]bool{
		".gif": true, ".mp4": true, ".webm": true, ".mkv": true, ".avi": true,
	}
)

// IsImagePath reports whether the file name has a supported image extension.
func IsImagePath(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsVideoPath reports whether the file name has a supported video extension.
func IsVideoPath(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}
