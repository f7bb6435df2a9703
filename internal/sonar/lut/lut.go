// Package lut stores the pixel-to-cell assignment of a sonar fan in a
// compressed-sparse-row layout and paints rasters from per-cell intensities.
//
// A LUT is immutable once built. Callers keep it across frames while
// Matches reports true and build a new one when the configuration changes.
package lut

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/tidewise/drivers-sonar-base/internal/sonar"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/geometry"
)

// ErrFrameSize is returned when an intensity frame does not hold one value
// per cell.
var ErrFrameSize = errors.New("intensity frame size mismatch")

// Canvas is the raster a LUT paints into. Levels are 8-bit grayscale.
type Canvas interface {
	Level(x, y int) uint8
	SetLevel(x, y int, v uint8)
}

// LUT maps every (beam, bin) cell to the raster pixels it illuminates.
type LUT struct {
	cfg        sonar.Config
	windowSize int
	width      int
	height     int

	// pixels is ordered by ascending cell index; the pixels of cell i are
	// pixels[offsets[i]:offsets[i+1]].
	pixels  []image.Point
	offsets []int
}

// New resolves cfg for windowSize and linearizes the result.
func New(cfg sonar.Config, windowSize int) (*LUT, error) {
	layout, err := geometry.Build(cfg, windowSize)
	if err != nil {
		return nil, err
	}
	pixels, offsets := Linearize(layout.Table)
	return &LUT{
		cfg:        cfg.Clone(),
		windowSize: windowSize,
		width:      layout.Width,
		height:     layout.Height,
		pixels:     pixels,
		offsets:    offsets,
	}, nil
}

// Linearize concatenates the per-cell pixel lists of table in ascending
// cell order and records where each cell starts. The returned offsets have
// len(table)+1 entries; the last one equals len(pixels).
func Linearize(table geometry.RawTable) (pixels []image.Point, offsets []int) {
	total := 0
	for _, cell := range table {
		total += len(cell)
	}
	pixels = make([]image.Point, 0, total)
	offsets = make([]int, len(table)+1)
	for idx, cell := range table {
		offsets[idx] = len(pixels)
		pixels = append(pixels, cell...)
	}
	offsets[len(table)] = len(pixels)
	return pixels, offsets
}

// Width returns the raster width the LUT was built for.
func (l *LUT) Width() int { return l.width }

// Height returns the raster height the LUT was built for.
func (l *LUT) Height() int { return l.height }

// WindowSize returns the window size the LUT was built for.
func (l *LUT) WindowSize() int { return l.windowSize }

// Config returns a copy of the configuration the LUT was built for.
func (l *LUT) Config() sonar.Config { return l.cfg.Clone() }

// PixelCount returns the number of (pixel, cell) assignments.
func (l *LUT) PixelCount() int { return len(l.pixels) }

// CellCount returns the number of cells.
func (l *LUT) CellCount() int { return len(l.offsets) - 1 }

// Bounds returns the raster rectangle.
func (l *LUT) Bounds() image.Rectangle { return image.Rect(0, 0, l.width, l.height) }

// CellPixels returns the pixels of the (beam, bin) cell. The returned slice
// aliases the LUT and must not be modified. Cells outside the grid have no
// pixels.
func (l *LUT) CellPixels(beam, bin int) []image.Point {
	if beam < 0 || beam >= l.cfg.BeamCount || bin < 0 || bin >= l.cfg.BinCount {
		return nil
	}
	idx := l.cfg.CellIndex(beam, bin)
	return l.pixels[l.offsets[idx]:l.offsets[idx+1]:l.offsets[idx+1]]
}

// Matches reports whether the LUT is still valid for cfg and windowSize.
// Every scalar field, the window size and every bearing must be exactly
// equal.
func (l *LUT) Matches(cfg sonar.Config, windowSize int) bool {
	return windowSize == l.windowSize && l.cfg.Equal(cfg)
}

// Paint raises every pixel of the (beam, bin) cell to value. Pixels already
// brighter are left alone, so painting order does not matter. Negative
// values paint nothing and values above 255 saturate.
func (l *LUT) Paint(dst Canvas, beam, bin int, value int) {
	if value < 0 {
		value = 0
	}
	if value > math.MaxUint8 {
		value = math.MaxUint8
	}
	v := uint8(value)
	for _, p := range l.CellPixels(beam, bin) {
		if dst.Level(p.X, p.Y) < v {
			dst.SetLevel(p.X, p.Y, v)
		}
	}
}

// PaintFrame paints every cell of frame, scaling each intensity by gain.
func (l *LUT) PaintFrame(dst Canvas, frame []float32, gain float64) error {
	if len(frame) != l.CellCount() {
		return fmt.Errorf("%w: got %d values, want %d", ErrFrameSize, len(frame), l.CellCount())
	}
	for beam := 0; beam < l.cfg.BeamCount; beam++ {
		for bin := 0; bin < l.cfg.BinCount; bin++ {
			v := float64(frame[l.cfg.CellIndex(beam, bin)]) * gain
			if math.IsNaN(v) || v <= 0 {
				continue
			}
			l.Paint(dst, beam, bin, int(math.Round(math.Min(v, math.MaxUint8))))
		}
	}
	return nil
}
