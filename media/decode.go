package media

import (
	"fmt"
	"image"
	"image/draw"
	"os"

	// Register the supported still-image formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DecodeImage decodes the image file at path into RGBA8 pixel data.
//
// All registered formats are supported (png, jpeg, gif, bmp, webp).
// Non-RGBA sources are converted. The first frame of an animated GIF is
// returned; use OpenVideo for animation playback.
func DecodeImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}

	return fromGoImage(src, path), nil
}

// fromGoImage converts any image.Image into a tightly packed RGBA Image.
func fromGoImage(src image.Image, path string) *Image {
	b := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != 4*b.Dx() || !b.Min.Eq(image.Point{}) {
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		rgba = dst
	}
	return &Image{
		Pix:    rgba.Pix,
		Width:  b.Dx(),
		Height: b.Dy(),
		Path:   path,
	}
}

// frameFromGoImage converts an image.Image into an RGB Frame.
func frameFromGoImage(src image.Image, ts float64) *Frame {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, w*h*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			pix[i] = byte(r >> 8)
			pix[i+1] = byte(g >> 8)
			pix[i+2] = byte(bl >> 8)
			i += 3
		}
	}
	return &Frame{
		Pix:       pix,
		Width:     w,
		Height:    h,
		Timestamp: secondsToDuration(ts),
	}
}
