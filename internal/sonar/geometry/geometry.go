// Package geometry resolves the raster window of a sonar fan and assigns
// every raster pixel to the polar (beam, bin) cells that cover it.
//
// The raster origin sits at the bottom centre of the window (the sonar
// head) and beams fan upward. Pixels outside the covered range, or lying
// in a gap between two beams, are not assigned to any cell.
package geometry

import (
	"fmt"
	"image"
	"math"

	"github.com/tidewise/drivers-sonar-base/internal/sonar"
)

// RawTable holds, for each flattened cell index beam*BinCount+bin, the
// pixels assigned to that cell. It is an intermediate build artifact.
type RawTable [][]image.Point

// Layout is the result of resolving a configuration for a window size.
type Layout struct {
	Width            int
	Height           int
	Origin           image.Point
	Range            float64
	Chord            float64
	BinLength        float64
	StepAngle        float64
	DistancePerPixel float64
	Table            RawTable
}

// resolver carries the per-build constants shared by every pixel.
type resolver struct {
	bearings         []sonar.Angle
	halfBeamWidth    float64
	stepAngle        float64
	binLength        float64
	distancePerPixel float64
	binCount         int
	beamCount        int
}

// Chord returns the straight-line width of the angular span of cfg at the
// given range.
func Chord(rangeMeters float64, cfg sonar.Config) float64 {
	front := cfg.Bearings[0]
	back := cfg.Bearings[len(cfg.Bearings)-1]
	fov := front.Sub(back).Add(cfg.BeamWidth.Abs())
	return math.Abs(2 * rangeMeters * math.Sin(fov.Rad()/2))
}

// StepAngle returns the angular distance between adjacent beams, assuming
// evenly spaced bearings.
func StepAngle(cfg sonar.Config) float64 {
	front := cfg.Bearings[0]
	back := cfg.Bearings[len(cfg.Bearings)-1]
	return back.Sub(front).Rad() / float64(cfg.BeamCount-1)
}

// WindowSize picks the raster dimensions so that the larger of range and
// chord spans windowSize pixels, preserving the true aspect ratio.
func WindowSize(rangeMeters, chord float64, windowSize int) (width, height int, distancePerPixel float64) {
	if rangeMeters >= chord {
		distancePerPixel = rangeMeters / float64(windowSize)
		return int(math.Round(chord / distancePerPixel)), windowSize, distancePerPixel
	}
	distancePerPixel = chord / float64(windowSize)
	return windowSize, int(math.Round(rangeMeters / distancePerPixel)), distancePerPixel
}

// Build computes the raster size for cfg and windowSize and assigns every
// pixel of that raster to its cells.
func Build(cfg sonar.Config, windowSize int) (*Layout, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if windowSize < 1 {
		return nil, fmt.Errorf("%w: window size must be at least 1, got %d", sonar.ErrInvalidConfiguration, windowSize)
	}

	rangeMeters := cfg.Range()
	chord := Chord(rangeMeters, cfg)
	width, height, dpp := WindowSize(rangeMeters, chord, windowSize)
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: degenerate %dx%d raster (range=%g chord=%g)",
			sonar.ErrInvalidConfiguration, width, height, rangeMeters, chord)
	}

	r := resolver{
		bearings:         cfg.Bearings,
		halfBeamWidth:    cfg.BeamWidth.Rad() / 2,
		stepAngle:        StepAngle(cfg),
		binLength:        rangeMeters / float64(cfg.BinCount),
		distancePerPixel: dpp,
		binCount:         cfg.BinCount,
		beamCount:        cfg.BeamCount,
	}

	layout := &Layout{
		Width:            width,
		Height:           height,
		Origin:           image.Pt(width/2, height),
		Range:            rangeMeters,
		Chord:            chord,
		BinLength:        r.binLength,
		StepAngle:        r.stepAngle,
		DistancePerPixel: dpp,
		Table:            make(RawTable, cfg.CellCount()),
	}

	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			r.assign(layout.Table, image.Pt(x, y), layout.Origin)
		}
	}
	return layout, nil
}

// assign appends p to every cell covering it.
func (r *resolver) assign(table RawTable, p, origin image.Point) {
	v := p.Sub(origin)

	bin, ok := BinIndex(v, r.distancePerPixel, r.binLength, r.binCount)
	if !ok {
		return
	}
	minIdx, maxIdx, ok := BeamIndexRange(PixelBearing(v), r.bearings, r.halfBeamWidth, r.stepAngle)
	if !ok {
		return
	}
	for beam := minIdx; beam <= maxIdx; beam++ {
		idx := beam*r.binCount + bin
		if idx < 0 || idx >= r.beamCount*r.binCount {
			continue
		}
		table[idx] = append(table[idx], p)
	}
}

// PixelBearing returns the bearing of the raster vector v (pixel minus
// origin). Raster axes are rotated into a forward/left frame, x' = -dy and
// y' = -dx, so that straight up the raster is bearing zero.
func PixelBearing(v image.Point) sonar.Angle {
	forward := float64(-v.Y)
	left := float64(-v.X)
	return sonar.FromRad(math.Atan2(left, forward))
}

// BinIndex returns the range bin of the raster vector v. ok is false when
// the pixel lies beyond the last bin.
func BinIndex(v image.Point, distancePerPixel, binLength float64, binCount int) (bin int, ok bool) {
	distance := math.Hypot(float64(v.X), float64(v.Y)) * distancePerPixel
	bin = int(math.Round(distance / binLength))
	if bin >= binCount {
		return 0, false
	}
	return bin, true
}

// ClosestBeamIndex returns the beam index nearest to theta assuming beams
// spaced by stepAngle from initial.
func ClosestBeamIndex(theta, initial sonar.Angle, stepAngle float64) int {
	return int(math.Round(math.Abs(theta.Sub(initial).Rad()) / stepAngle))
}

func insideBeam(idx int, theta sonar.Angle, bearings []sonar.Angle, halfBeamWidth float64) bool {
	if idx < 0 || idx >= len(bearings) {
		return false
	}
	beam := sonar.NewAngleSegment(bearings[idx].Sub(sonar.FromRad(halfBeamWidth)), 2*halfBeamWidth)
	return beam.IsInside(theta)
}

// BeamIndexRange returns the inclusive range of beams whose angular window
// contains theta. ok is false when theta falls between beams or outside
// the fan. Bearings are assumed monotonic; other orders are not repaired.
func BeamIndexRange(theta sonar.Angle, bearings []sonar.Angle, halfBeamWidth, stepAngle float64) (minIdx, maxIdx int, ok bool) {
	closest := ClosestBeamIndex(theta, bearings[0], stepAngle)
	if !insideBeam(closest, theta, bearings, halfBeamWidth) {
		return 0, 0, false
	}

	minIdx, maxIdx = closest, closest
	for insideBeam(minIdx-1, theta, bearings, halfBeamWidth) {
		minIdx--
	}
	for insideBeam(maxIdx+1, theta, bearings, halfBeamWidth) {
		maxIdx++
	}
	if minIdx > maxIdx {
		minIdx, maxIdx = maxIdx, minIdx
	}
	return minIdx, maxIdx, true
}
