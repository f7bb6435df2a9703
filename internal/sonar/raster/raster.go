// Package raster provides the grayscale display buffer sonar frames are
// painted into, with PNG encoding for export and HTTP serving.
package raster

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// ErrSizeMismatch is returned when two rasters of different bounds are
// compared.
var ErrSizeMismatch = errors.New("raster: size mismatch")

// Image is an opaque RGBA raster whose channels are kept equal so that it
// reads as grayscale. New images are black.
type Image struct {
	rgba *image.RGBA
}

// New allocates a black width x height raster.
func New(width, height int) *Image {
	img := &Image{rgba: image.NewRGBA(image.Rect(0, 0, width, height))}
	for i := 3; i < len(img.rgba.Pix); i += 4 {
		img.rgba.Pix[i] = 0xff
	}
	return img
}

// FromImage copies any image into a grayscale raster.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	img := New(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := color.GrayModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			img.SetLevel(x, y, g.Y)
		}
	}
	return img
}

// Width returns the raster width.
func (m *Image) Width() int { return m.rgba.Rect.Dx() }

// Height returns the raster height.
func (m *Image) Height() int { return m.rgba.Rect.Dy() }

// Bounds returns the raster rectangle.
func (m *Image) Bounds() image.Rectangle { return m.rgba.Rect }

// RGBA exposes the underlying buffer.
func (m *Image) RGBA() *image.RGBA { return m.rgba }

// Level returns the gray level at (x, y); out of bounds pixels read 0.
func (m *Image) Level(x, y int) uint8 {
	if !image.Pt(x, y).In(m.rgba.Rect) {
		return 0
	}
	return m.rgba.Pix[m.rgba.PixOffset(x, y)]
}

// SetLevel writes v to the three colour channels at (x, y). Out of bounds
// writes are ignored.
func (m *Image) SetLevel(x, y int, v uint8) {
	if !image.Pt(x, y).In(m.rgba.Rect) {
		return
	}
	i := m.rgba.PixOffset(x, y)
	m.rgba.Pix[i+0] = v
	m.rgba.Pix[i+1] = v
	m.rgba.Pix[i+2] = v
}

// Clear resets every pixel to black.
func (m *Image) Clear() {
	for i := 0; i < len(m.rgba.Pix); i += 4 {
		m.rgba.Pix[i+0] = 0
		m.rgba.Pix[i+1] = 0
		m.rgba.Pix[i+2] = 0
		m.rgba.Pix[i+3] = 0xff
	}
}

// Gray returns a single-channel copy of the raster.
func (m *Image) Gray() *image.Gray {
	g := image.NewGray(m.rgba.Rect)
	for y := 0; y < m.Height(); y++ {
		for x := 0; x < m.Width(); x++ {
			g.Pix[g.PixOffset(x, y)] = m.Level(x, y)
		}
	}
	return g
}

// Lit returns the number of pixels with a non-zero level.
func (m *Image) Lit() int {
	n := 0
	for i := 0; i < len(m.rgba.Pix); i += 4 {
		if m.rgba.Pix[i] != 0 {
			n++
		}
	}
	return n
}

// Scale returns a copy enlarged (or reduced) by factor using nearest
// neighbour sampling so that cell edges stay sharp.
func (m *Image) Scale(factor float64) *Image {
	w := int(float64(m.Width()) * factor)
	h := int(float64(m.Height()) * factor)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), m.rgba, m.rgba.Bounds(), draw.Src, nil)
	return &Image{rgba: dst}
}

// Diff returns the number of pixels whose levels differ between a and b.
func Diff(a, b *Image) (int, error) {
	if a.Bounds() != b.Bounds() {
		return 0, fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, a.Bounds(), b.Bounds())
	}
	n := 0
	for y := 0; y < a.Height(); y++ {
		for x := 0; x < a.Width(); x++ {
			if a.Level(x, y) != b.Level(x, y) {
				n++
			}
		}
	}
	return n, nil
}

// EncodePNG writes the raster as an 8-bit grayscale PNG.
func (m *Image) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, m.Gray()); err != nil {
		return fmt.Errorf("raster: encode png: %w", err)
	}
	return nil
}

// WritePNG writes the raster to path, creating parent directories.
func (m *Image) WritePNG(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("raster: create dir: %w", err)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("raster: create file: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := m.EncodePNG(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("raster: flush: %w", err)
	}
	return f.Close()
}

// ReadPNG loads a PNG file as a grayscale raster.
func ReadPNG(path string) (*Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("raster: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	src, err := png.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("raster: decode png: %w", err)
	}
	return FromImage(src), nil
}
