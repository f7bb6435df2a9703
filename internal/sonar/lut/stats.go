package lut

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises how pixels are spread over the cells of a LUT.
type Stats struct {
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Cells          int     `json:"cells"`
	EmptyCells     int     `json:"empty_cells"`
	Assignments    int     `json:"assignments"`
	CoveredPixels  int     `json:"covered_pixels"`
	Coverage       float64 `json:"coverage"`
	MeanPerCell    float64 `json:"mean_per_cell"`
	StdDevPerCell  float64 `json:"stddev_per_cell"`
	MaxPerCell     float64 `json:"max_per_cell"`
	MultiCellRatio float64 `json:"multi_cell_ratio"`
}

// CellPopulation returns the number of pixels of every cell in cell order.
func (l *LUT) CellPopulation() []float64 {
	counts := make([]float64, l.CellCount())
	for i := range counts {
		counts[i] = float64(l.offsets[i+1] - l.offsets[i])
	}
	return counts
}

// BeamPopulation returns the number of pixel assignments per beam.
func (l *LUT) BeamPopulation() []float64 {
	counts := make([]float64, l.cfg.BeamCount)
	for beam := range counts {
		start := l.offsets[l.cfg.CellIndex(beam, 0)]
		end := l.offsets[l.cfg.CellIndex(beam, l.cfg.BinCount-1)+1]
		counts[beam] = float64(end - start)
	}
	return counts
}

// BinPopulation returns the number of pixel assignments per range bin,
// summed over beams.
func (l *LUT) BinPopulation() []float64 {
	counts := make([]float64, l.cfg.BinCount)
	for beam := 0; beam < l.cfg.BeamCount; beam++ {
		for bin := range counts {
			idx := l.cfg.CellIndex(beam, bin)
			counts[bin] += float64(l.offsets[idx+1] - l.offsets[idx])
		}
	}
	return counts
}

// Stats computes the population statistics of the LUT.
func (l *LUT) Stats() Stats {
	counts := l.CellPopulation()
	s := Stats{
		Width:       l.width,
		Height:      l.height,
		Cells:       len(counts),
		Assignments: int(floats.Sum(counts)),
	}
	for _, c := range counts {
		if c == 0 {
			s.EmptyCells++
		}
	}
	if len(counts) > 0 {
		s.MeanPerCell, s.StdDevPerCell = stat.MeanStdDev(counts, nil)
		s.MaxPerCell = floats.Max(counts)
	}

	seen := make(map[int]int, len(l.pixels))
	for _, p := range l.pixels {
		seen[p.Y*l.width+p.X]++
	}
	s.CoveredPixels = len(seen)
	if area := l.width * l.height; area > 0 {
		s.Coverage = float64(s.CoveredPixels) / float64(area)
	}
	multi := 0
	for _, n := range seen {
		if n > 1 {
			multi++
		}
	}
	if s.CoveredPixels > 0 {
		s.MultiCellRatio = float64(multi) / float64(s.CoveredPixels)
	}
	return s
}
