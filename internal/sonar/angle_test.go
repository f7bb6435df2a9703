package sonar

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAngle_Canonical(t *testing.T) {
	tests := []struct {
		name string
		deg  float64
		want float64
	}{
		{"zero", 0, 0},
		{"positive in range", 45, 45},
		{"above pi", 190, -170},
		{"below minus pi", -190, 170},
		{"full turn", 360, 0},
		{"several turns", 725, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, FromDeg(tc.deg).Deg(), 1e-9)
		})
	}
}

func TestAngle_PiBoundary(t *testing.T) {
	assert.Equal(t, math.Pi, FromRad(math.Pi).Rad(), "pi is inside (-pi, pi]")
	assert.Equal(t, math.Pi, FromRad(-math.Pi).Rad(), "-pi maps to pi")
	assert.True(t, FromRad(math.Pi).Equal(FromRad(-math.Pi)))
}

func TestAngle_CanonicalisationIsIdempotent(t *testing.T) {
	for _, rad := range []float64{0, 0.1, -0.1, 3, -3, 4, -4, 10, -10, 100.5, math.Pi, -math.Pi} {
		a := FromRad(rad)
		b := FromRad(a.Rad())
		assert.True(t, a.Equal(b), "FromRad(%v) not idempotent: %v vs %v", rad, a.Rad(), b.Rad())
		assert.LessOrEqual(t, a.Rad(), math.Pi)
		assert.Greater(t, a.Rad(), -math.Pi)
	}
}

func TestAngle_Arithmetic(t *testing.T) {
	assert.InDelta(t, -20, FromDeg(170).Sub(FromDeg(-170)).Deg(), 1e-9)
	assert.InDelta(t, 20, FromDeg(-170).Sub(FromDeg(170)).Deg(), 1e-9)
	assert.InDelta(t, -160, FromDeg(170).Add(FromDeg(30)).Deg(), 1e-9)
	assert.InDelta(t, 30, FromDeg(-30).Abs().Deg(), 1e-12)
}

func TestAngle_Equal(t *testing.T) {
	assert.True(t, FromDeg(10).Equal(FromDeg(10)))
	assert.False(t, FromRad(0.1).Equal(FromRad(math.Nextafter(0.1, 1))), "equality is exact")
}

func TestAngle_JSON(t *testing.T) {
	a := FromDeg(-12.5)
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var got Angle
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, a.Equal(got))

	require.NoError(t, json.Unmarshal([]byte("4"), &got))
	assert.InDelta(t, 4-2*math.Pi, got.Rad(), 1e-12, "decoded radians are canonicalised")

	assert.Error(t, json.Unmarshal([]byte(`"north"`), &got))
}

func TestAngle_String(t *testing.T) {
	assert.Equal(t, "90.0000°", FromDeg(90).String())
}

func TestAngleSegment_IsInside(t *testing.T) {
	seg := NewAngleSegment(FromRad(0), 0.5)
	assert.True(t, seg.IsInside(FromRad(0)), "start is inclusive")
	assert.True(t, seg.IsInside(FromRad(0.25)))
	assert.True(t, seg.IsInside(FromRad(0.5)), "end is inclusive")
	assert.False(t, seg.IsInside(FromRad(0.51)))
	assert.False(t, seg.IsInside(FromRad(-0.01)))

	wrap := NewAngleSegment(FromDeg(170), 20*math.Pi/180)
	assert.True(t, wrap.IsInside(FromDeg(179)))
	assert.True(t, wrap.IsInside(FromDeg(-175)), "segment wraps through pi")
	assert.False(t, wrap.IsInside(FromDeg(-165)))
	assert.False(t, wrap.IsInside(FromDeg(0)))

	assert.False(t, NewAngleSegment(FromRad(0), -0.1).IsInside(FromRad(0)), "negative width is empty")
	assert.True(t, NewAngleSegment(FromRad(0.3), 0).IsInside(FromRad(0.3)), "zero width keeps its start")
}
