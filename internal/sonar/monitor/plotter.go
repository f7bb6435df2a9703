package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/tidewise/drivers-sonar-base/internal/monitoring"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/lut"
)

// CoveragePlotter writes offline coverage plots of a LUT: how many raster
// pixels each range bin and each beam receive.
type CoveragePlotter struct {
	outputDir string
}

// NewCoveragePlotter creates a plotter writing into outputDir.
func NewCoveragePlotter(outputDir string) *CoveragePlotter {
	return &CoveragePlotter{outputDir: outputDir}
}

// Save writes <prefix>_bins.png and <prefix>_beams.png and returns their
// paths.
func (cp *CoveragePlotter) Save(l *lut.LUT, prefix string) ([]string, error) {
	if l == nil {
		return nil, fmt.Errorf("no LUT to plot")
	}
	if err := os.MkdirAll(cp.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	cfg := l.Config()
	subtitle := fmt.Sprintf("%d beams, %d bins, raster %dx%d", cfg.BeamCount, cfg.BinCount, l.Width(), l.Height())

	binPlot, err := populationPlot(l.BinPopulation(), "Pixels per Bin ("+subtitle+")", "Bin")
	if err != nil {
		return nil, err
	}
	beamPlot, err := populationPlot(l.BeamPopulation(), "Pixels per Beam ("+subtitle+")", "Beam")
	if err != nil {
		return nil, err
	}

	binFile := filepath.Join(cp.outputDir, prefix+"_bins.png")
	if err := binPlot.Save(14*vg.Inch, 6*vg.Inch, binFile); err != nil {
		return nil, fmt.Errorf("failed to save bin plot: %w", err)
	}
	beamFile := filepath.Join(cp.outputDir, prefix+"_beams.png")
	if err := beamPlot.Save(14*vg.Inch, 6*vg.Inch, beamFile); err != nil {
		return nil, fmt.Errorf("failed to save beam plot: %w", err)
	}

	monitoring.Logf("[CoveragePlotter] Saved %s and %s", binFile, beamFile)
	return []string{binFile, beamFile}, nil
}

func populationPlot(population []float64, title, xLabel string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Pixels"

	pts := make(plotter.XYs, len(population))
	for i, n := range population {
		pts[i] = plotter.XY{X: float64(i), Y: n}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())
	return p, nil
}
