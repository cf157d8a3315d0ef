package main

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
)

// synthesizeThemes writes a disposable theme tree under root: one
// directory per theme, each with PNG stills, one animated GIF, and a
// text file. Useful for profiling without real media on hand.
func synthesizeThemes(root string, themes, images, frames int) error {
	for t := 0; t < themes; t++ {
		dir := filepath.Join(root, fmt.Sprintf("theme-%02d", t))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		for i := 0; i < images; i++ {
			path := filepath.Join(dir, fmt.Sprintf("img-%03d.png", i))
			if err := writeSynthPNG(path, 256, 256, byte(t*31+i)); err != nil {
				return err
			}
		}
		if frames > 0 {
			if err := writeSynthGIF(filepath.Join(dir, "loop.gif"), 64, 64, frames); err != nil {
				return err
			}
		}
		lines := fmt.Sprintf("theme %d line one\ntheme %d line two\n", t, t)
		if err := os.WriteFile(filepath.Join(dir, "lines.txt"), []byte(lines), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func writeSynthPNG(path string, w, h int, seed byte) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = seed + byte(i)
		img.Pix[i+1] = seed ^ byte(i>>8)
		img.Pix[i+2] = seed
		img.Pix[i+3] = 0xff
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func writeSynthGIF(path string, w, h, frames int) error {
	g := &gif.GIF{}
	for i := 0; i < frames; i++ {
		pal := color.Palette{
			color.RGBA{byte(i * 255 / frames), 0, 0, 0xff},
			color.RGBA{0, 0, byte(255 - i*255/frames), 0xff},
		}
		g.Image = append(g.Image, image.NewPaletted(image.Rect(0, 0, w, h), pal))
		g.Delay = append(g.Delay, 4)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gif.EncodeAll(f, g)
}
