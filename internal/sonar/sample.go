package sonar

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sample is one sonar telemetry record: the acquisition geometry plus
// one intensity per (beam, bin) cell laid out as beam*BinCount+bin.
type Sample struct {
	Time             time.Time `json:"time"`
	BinDurationNanos int64     `json:"bin_duration_nanos"`
	BeamWidth        Angle     `json:"beam_width"`
	BeamHeight       Angle     `json:"beam_height"`
	SpeedOfSound     float64   `json:"speed_of_sound"`
	BinCount         int       `json:"bin_count"`
	BeamCount        int       `json:"beam_count"`
	Bearings         []Angle   `json:"bearings"`
	Bins             []float32 `json:"bins"`
}

// BinDuration returns the time spanned by one range bin.
func (s *Sample) BinDuration() time.Duration {
	return time.Duration(s.BinDurationNanos)
}

// SetBinDuration sets the time spanned by one range bin.
func (s *Sample) SetBinDuration(d time.Duration) {
	s.BinDurationNanos = d.Nanoseconds()
}

// SetRegularBeamBearings fills Bearings with BeamCount angles starting at
// start and spaced by interval.
func (s *Sample) SetRegularBeamBearings(start, interval Angle) {
	s.Bearings = make([]Angle, s.BeamCount)
	for i := range s.Bearings {
		s.Bearings[i] = FromRad(start.Rad() + float64(i)*interval.Rad())
	}
}

// Config extracts the geometric configuration from the record.
func (s *Sample) Config() Config {
	return Config{
		BinCount:     s.BinCount,
		BeamCount:    s.BeamCount,
		BeamWidth:    s.BeamWidth,
		BinDuration:  s.BinDuration().Seconds(),
		SpeedOfSound: s.SpeedOfSound,
		Bearings:     s.Bearings,
	}
}

// Bin returns the intensity of the (beam, bin) cell.
func (s *Sample) Bin(beam, bin int) float32 {
	return s.Bins[beam*s.BinCount+bin]
}

// Validate checks the geometry and that one intensity exists per cell.
func (s *Sample) Validate() error {
	if err := s.Config().Validate(); err != nil {
		return err
	}
	if want := s.BeamCount * s.BinCount; len(s.Bins) != want {
		return fmt.Errorf("%w: sample has %d bins, want %d", ErrInvalidConfiguration, len(s.Bins), want)
	}
	return nil
}

// ParseSample decodes one JSON encoded sample.
func ParseSample(data []byte) (*Sample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse sonar sample: %w", err)
	}
	return &s, nil
}
