package media

import (
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writeGIF(t *testing.T, path string, frames, w, h int) {
	t.Helper()
	g := &gif.GIF{}
	for i := 0; i < frames; i++ {
		pal := color.Palette{color.RGBA{byte(i * 10), 0, 0, 0xff}}
		g.Image = append(g.Image, image.NewPaletted(image.Rect(0, 0, w, h), pal))
		g.Delay = append(g.Delay, 4)
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, gif.EncodeAll(f, g))
}

func TestDecodeImagePNG(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "solid.png")
	writePNG(t, path, 3, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	img, err := DecodeImage(path)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Equal(t, path, img.Path)
	require.Len(t, img.Pix, 3*2*4)
	assert.Equal(t, []byte{10, 20, 30, 255}, img.Pix[:4])
}

func TestDecodeImageMissingFile(t *testing.T) {
	t.Parallel()

	_, err := DecodeImage(filepath.Join(t.TempDir(), "absent.png"))
	assert.Error(t, err)
}

func TestDecodeImageGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "noise.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := DecodeImage(path)
	assert.Error(t, err)
}

func TestOpenVideoGIFLoopsForever(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "anim.gif")
	writeGIF(t, path, 3, 4, 4)

	d, err := OpenVideo(path)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 3, d.Len())
	w, h := d.Size()
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)
	// Delay of 4/100s per frame is 25 frames per second.
	assert.InDelta(t, 25.0, d.FPS(), 0.01)

	var reds []byte
	for i := 0; i < 7; i++ {
		fr, err := d.NextFrame()
		require.NoError(t, err)
		reds = append(reds, fr.Pix[0])
	}
	assert.Equal(t, []byte{0, 10, 20, 0, 10, 20, 0}, reds)
}

func TestOpenVideoGIFSeekAndReset(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "anim.gif")
	writeGIF(t, path, 3, 4, 4)

	d, err := OpenVideo(path)
	require.NoError(t, err)
	defer d.Close()

	require.True(t, d.Seek(2))
	fr, err := d.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, byte(20), fr.Pix[0])

	assert.False(t, d.Seek(3))
	assert.False(t, d.Seek(-1))

	d.Reset()
	fr, err = d.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, byte(0), fr.Pix[0])
}

func TestOpenVideoImageSequence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Written out of order; playback follows name order.
	writePNG(t, filepath.Join(dir, "frame_002.png"), 4, 4, color.RGBA{R: 2, A: 255})
	writePNG(t, filepath.Join(dir, "frame_000.png"), 4, 4, color.RGBA{R: 0, A: 255})
	writePNG(t, filepath.Join(dir, "frame_001.png"), 4, 4, color.RGBA{R: 1, A: 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	d, err := OpenVideo(dir)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 3, d.Len())
	for want := 0; want < 3; want++ {
		fr, err := d.NextFrame()
		require.NoError(t, err)
		assert.Equal(t, byte(want), fr.Pix[0])
		require.Len(t, fr.Pix, 4*4*3)
	}

	_, err = d.NextFrame()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestOpenVideoSequenceSkipsUnreadableFrames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 4, 4, color.RGBA{R: 7, A: 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("corrupt"), 0o644))
	writePNG(t, filepath.Join(dir, "c.png"), 4, 4, color.RGBA{R: 9, A: 255})

	d, err := OpenVideo(dir)
	require.NoError(t, err)
	defer d.Close()

	fr, err := d.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, byte(7), fr.Pix[0])

	fr, err = d.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, byte(9), fr.Pix[0])

	_, err = d.NextFrame()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestOpenVideoUnsupported(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("stub"), 0o644))

	_, err := OpenVideo(path)
	assert.True(t, errors.Is(err, ErrUnsupportedVideo))
}

func TestPathClassification(t *testing.T) {
	t.Parallel()

	assert.True(t, IsImagePath("photo.JPG"))
	assert.True(t, IsImagePath("photo.webp"))
	assert.False(t, IsImagePath("clip.mp4"))

	assert.True(t, IsVideoPath("clip.mp4"))
	assert.True(t, IsVideoPath("anim.gif"))
	assert.False(t, IsVideoPath("photo.png"))
}

func TestImageBytes(t *testing.T) {
	t.Parallel()

	img := &Image{Pix: []byte{1, 2, 3, 4}, Width: 1, Height: 1}
	assert.Equal(t, 4, img.Bytes())
}
