package lut

import (
	"errors"
	"fmt"
	"image"

	"github.com/tidewise/drivers-sonar-base/internal/sonar"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/geometry"
)

// ErrCorruptSnapshot is returned when a snapshot violates the CSR
// invariants or does not fit its configuration.
var ErrCorruptSnapshot = errors.New("corrupt LUT snapshot")

// Snapshot is the serialisable form of a LUT's arrays. The configuration
// and window size travel separately.
type Snapshot struct {
	Width   int
	Height  int
	Pixels  []image.Point
	Offsets []int
}

// Snapshot copies the LUT arrays.
func (l *LUT) Snapshot() Snapshot {
	return Snapshot{
		Width:   l.width,
		Height:  l.height,
		Pixels:  append([]image.Point(nil), l.pixels...),
		Offsets: append([]int(nil), l.offsets...),
	}
}

// FromSnapshot rebuilds a LUT for cfg and windowSize from previously
// exported arrays without running the geometry resolver. Only the raster
// size is recomputed; it must match the one cfg and windowSize resolve to.
func FromSnapshot(cfg sonar.Config, windowSize int, snap Snapshot) (*LUT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if windowSize < 1 {
		return nil, fmt.Errorf("%w: window size must be at least 1, got %d", sonar.ErrInvalidConfiguration, windowSize)
	}
	if snap.Width < 1 || snap.Height < 1 {
		return nil, fmt.Errorf("%w: %dx%d raster", ErrCorruptSnapshot, snap.Width, snap.Height)
	}
	rangeMeters := cfg.Range()
	width, height, _ := geometry.WindowSize(rangeMeters, geometry.Chord(rangeMeters, cfg), windowSize)
	if snap.Width != width || snap.Height != height {
		return nil, fmt.Errorf("%w: %dx%d raster, configuration gives %dx%d",
			ErrCorruptSnapshot, snap.Width, snap.Height, width, height)
	}
	if len(snap.Offsets) != cfg.CellCount()+1 {
		return nil, fmt.Errorf("%w: %d offsets for %d cells", ErrCorruptSnapshot, len(snap.Offsets), cfg.CellCount())
	}
	if snap.Offsets[0] != 0 {
		return nil, fmt.Errorf("%w: first offset is %d", ErrCorruptSnapshot, snap.Offsets[0])
	}
	for i := 1; i < len(snap.Offsets); i++ {
		if snap.Offsets[i] < snap.Offsets[i-1] {
			return nil, fmt.Errorf("%w: offsets decrease at cell %d", ErrCorruptSnapshot, i)
		}
	}
	if last := snap.Offsets[len(snap.Offsets)-1]; last != len(snap.Pixels) {
		return nil, fmt.Errorf("%w: last offset %d, %d pixels", ErrCorruptSnapshot, last, len(snap.Pixels))
	}
	bounds := image.Rect(0, 0, snap.Width, snap.Height)
	for _, p := range snap.Pixels {
		if !p.In(bounds) {
			return nil, fmt.Errorf("%w: pixel %v outside %v", ErrCorruptSnapshot, p, bounds)
		}
	}

	return &LUT{
		cfg:        cfg.Clone(),
		windowSize: windowSize,
		width:      snap.Width,
		height:     snap.Height,
		pixels:     append([]image.Point(nil), snap.Pixels...),
		offsets:    append([]int(nil), snap.Offsets...),
	}, nil
}
