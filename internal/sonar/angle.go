package sonar

import (
	"encoding/json"
	"fmt"
	"math"
)

// Angle is a bearing stored in radians, canonicalised to (-π, π].
// Two angles are equal only when their canonical values are identical.
type Angle struct {
	rad float64
}

// FromRad builds an Angle from radians.
func FromRad(rad float64) Angle {
	return Angle{rad: canonicalRad(rad)}
}

// FromDeg builds an Angle from degrees.
func FromDeg(deg float64) Angle {
	return FromRad(deg * math.Pi / 180)
}

// canonicalRad wraps rad into (-π, π]. Values already in range are
// returned untouched so that canonicalisation is idempotent.
func canonicalRad(rad float64) float64 {
	if rad > math.Pi || rad <= -math.Pi {
		r := math.Mod(rad+math.Pi, 2*math.Pi)
		if r <= 0 {
			r += 2 * math.Pi
		}
		return r - math.Pi
	}
	return rad
}

// Rad returns the angle in radians.
func (a Angle) Rad() float64 { return a.rad }

// Deg returns the angle in degrees.
func (a Angle) Deg() float64 { return a.rad * 180 / math.Pi }

// Sub returns a-b wrapped into (-π, π].
func (a Angle) Sub(b Angle) Angle { return FromRad(a.rad - b.rad) }

// Add returns a+b wrapped into (-π, π].
func (a Angle) Add(b Angle) Angle { return FromRad(a.rad + b.rad) }

// Abs returns the absolute value of the angle.
func (a Angle) Abs() Angle { return Angle{rad: math.Abs(a.rad)} }

// Equal reports exact equality of the canonical values.
func (a Angle) Equal(b Angle) bool { return a.rad == b.rad }

func (a Angle) String() string {
	return fmt.Sprintf("%.4f°", a.Deg())
}

// MarshalJSON encodes the angle as radians.
func (a Angle) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.rad)
}

// UnmarshalJSON decodes radians.
func (a *Angle) UnmarshalJSON(data []byte) error {
	var rad float64
	if err := json.Unmarshal(data, &rad); err != nil {
		return fmt.Errorf("angle: %w", err)
	}
	*a = FromRad(rad)
	return nil
}

// AngleSegment is the arc starting at Start and sweeping Width radians
// counter-clockwise.
type AngleSegment struct {
	Start Angle
	Width float64
}

// NewAngleSegment returns the segment [start, start+width].
func NewAngleSegment(start Angle, width float64) AngleSegment {
	return AngleSegment{Start: start, Width: width}
}

// IsInside reports whether a lies on the segment, both ends included.
// A negative width yields an empty segment.
func (s AngleSegment) IsInside(a Angle) bool {
	if s.Width < 0 {
		return false
	}
	start := s.Start.Rad()
	rad := a.Rad()
	if rad < start {
		rad += 2 * math.Pi
	}
	return rad <= start+s.Width
}
