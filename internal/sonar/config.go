package sonar

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfiguration is returned when a sonar configuration or window
// size cannot describe a non-empty raster.
var ErrInvalidConfiguration = errors.New("invalid sonar configuration")

// Config is the geometric description of a sonar head needed to map its
// polar grid onto a raster. BinDuration is in seconds.
type Config struct {
	BinCount     int     `json:"bin_count"`
	BeamCount    int     `json:"beam_count"`
	BeamWidth    Angle   `json:"beam_width"`
	BinDuration  float64 `json:"bin_duration_s"`
	SpeedOfSound float64 `json:"speed_of_sound"`
	Bearings     []Angle `json:"bearings"`
}

// Validate checks the preconditions of the geometry resolver.
func (c Config) Validate() error {
	if c.BeamCount < 2 {
		return fmt.Errorf("%w: beam_count must be at least 2, got %d", ErrInvalidConfiguration, c.BeamCount)
	}
	if c.BinCount < 1 {
		return fmt.Errorf("%w: bin_count must be at least 1, got %d", ErrInvalidConfiguration, c.BinCount)
	}
	if len(c.Bearings) != c.BeamCount {
		return fmt.Errorf("%w: beam_count %d does not match %d bearings", ErrInvalidConfiguration, c.BeamCount, len(c.Bearings))
	}
	if c.Bearings[0].Equal(c.Bearings[len(c.Bearings)-1]) {
		return fmt.Errorf("%w: first and last bearings are both %s", ErrInvalidConfiguration, c.Bearings[0])
	}
	if !(c.BinDuration > 0) || math.IsInf(c.BinDuration, 0) {
		return fmt.Errorf("%w: bin_duration must be positive, got %g", ErrInvalidConfiguration, c.BinDuration)
	}
	if !(c.SpeedOfSound > 0) || math.IsInf(c.SpeedOfSound, 0) {
		return fmt.Errorf("%w: speed_of_sound must be positive, got %g", ErrInvalidConfiguration, c.SpeedOfSound)
	}
	return nil
}

// Range returns the distance covered by the last bin.
func (c Config) Range() float64 {
	return c.BinDuration * float64(c.BinCount) * c.SpeedOfSound
}

// CellCount returns the number of (beam, bin) cells.
func (c Config) CellCount() int {
	return c.BeamCount * c.BinCount
}

// CellIndex flattens a (beam, bin) pair.
func (c Config) CellIndex(beam, bin int) int {
	return beam*c.BinCount + bin
}

// Equal reports exact field-by-field and bearing-by-bearing equality.
func (c Config) Equal(other Config) bool {
	if c.BinCount != other.BinCount ||
		c.BeamCount != other.BeamCount ||
		!c.BeamWidth.Equal(other.BeamWidth) ||
		c.BinDuration != other.BinDuration ||
		c.SpeedOfSound != other.SpeedOfSound {
		return false
	}
	return BearingsEqual(c.Bearings, other.Bearings)
}

// Clone returns a copy that does not share the bearing slice.
func (c Config) Clone() Config {
	out := c
	out.Bearings = append([]Angle(nil), c.Bearings...)
	return out
}

// BearingsEqual compares two bearing sequences element-wise.
func BearingsEqual(a, b []Angle) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
