// Package media defines the decoded media types shared by the engine's
// caches and streamers, plus the built-in decode primitives they are
// wired to by default.
//
// Image decoding is backed by the standard image registry (png, jpeg, gif)
// extended with bmp and webp support. Video decoding is pluggable: the
// built-in openers cover animated GIFs (fully decoded into memory) and
// image-sequence directories (decoded lazily, one frame per call); codec
// backed decoders can be substituted via the streamer's opener option.
package media

import "time"

// Image is a fully decoded image: RGBA8 pixel data plus its source path.
//
// Images are immutable after decode. Exactly one cache entry owns a given
// Image at a time; consumers must not mutate Pix.
type Image struct {
	// Pix holds pixel data in RGBA order, 4 bytes per pixel, row-major,
	// with no padding between rows.
	Pix    []byte
	Width  int
	Height int
	Path   string
}

// Bytes returns the size of the pixel buffer in bytes.
func (im *Image) Bytes() int { return len(im.Pix) }

// Frame is a single decoded video frame.
type Frame struct {
	// Pix holds pixel data in RGB order, 3 bytes per pixel, row-major.
	Pix       []byte
	Width     int
	Height    int
	Timestamp time.Duration
}

// ImageDecodeFunc decodes the file at path into an Image. Implementations
// must be safe for concurrent use; decode failures are reported as errors,
// never panics.
type ImageDecodeFunc func(path string) (*Image, error)

// VideoOpenFunc opens the file at path for sequential frame decoding.
type VideoOpenFunc func(path string) (VideoDecoder, error)

// VideoDecoder yields frames from a single video source.
//
// NextFrame returns io.EOF when the stream is exhausted. Decoders whose
// sources loop inherently (animated GIFs) never return io.EOF. Decoders
// are not safe for concurrent use; the caller serializes access.
type VideoDecoder interface {
	// NextFrame decodes and returns the next frame, or io.EOF at the end
	// of the stream.
	NextFrame() (*Frame, error)

	// Seek positions the decoder at the given frame index. Returns false
	// if the index is out of range or the source is not seekable.
	Seek(frame int) bool

	// Reset rewinds the decoder to the first frame.
	Reset()

	// Size returns the frame dimensions in pixels.
	Size() (w, h int)

	// FPS returns the source frame rate, or a nominal rate if the source
	// does not carry one.
	FPS() float64

	// Len returns the total frame count, or 0 if unknown.
	Len() int

	// Path returns the source path the decoder was opened with.
	Path() string

	// Close releases decoder resources. The decoder is unusable afterward.
	Close() error
}
