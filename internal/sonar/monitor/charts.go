package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/tidewise/drivers-sonar-base/internal/sonar"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/lut"
)

// maxHeatmapCells bounds the heatmap payload; larger frames are decimated
// along the bin axis.
const maxHeatmapCells = 60000

// FrameHeatmap builds a beam x bin heatmap of the raw intensities of s,
// the polar view the raster is computed from.
func FrameHeatmap(s *sonar.Sample) *charts.HeatMap {
	stride := 1
	if cells := s.BeamCount * s.BinCount; cells > maxHeatmapCells {
		stride = (cells + maxHeatmapCells - 1) / maxHeatmapCells
	}

	beams := make([]string, s.BeamCount)
	for beam := range beams {
		beams[beam] = fmt.Sprintf("%.1f°", s.Bearings[beam].Deg())
	}
	var bins []string
	for bin := 0; bin < s.BinCount; bin += stride {
		bins = append(bins, strconv.Itoa(bin))
	}

	data := make([]opts.HeatMapData, 0, len(beams)*len(bins))
	maxValue := float32(0)
	for beam := 0; beam < s.BeamCount; beam++ {
		for i, bin := 0, 0; bin < s.BinCount; i, bin = i+1, bin+stride {
			v := s.Bin(beam, bin)
			if v > maxValue {
				maxValue = v
			}
			data = append(data, opts.HeatMapData{Value: []interface{}{beam, i, v}})
		}
	}
	if maxValue == 0 {
		maxValue = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sonar frame", Theme: "dark", Width: "1200px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Sonar Frame (beam x bin)", Subtitle: fmt.Sprintf("beams=%d bins=%d stride=%d", s.BeamCount, s.BinCount, stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: beams, Name: "Bearing"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: bins, Name: "Bin"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        maxValue,
			InRange:    &opts.VisualMapInRange{Color: []string{"#000000", "#404040", "#808080", "#c0c0c0", "#ffffff"}},
		}),
	)
	hm.AddSeries("intensity", data)
	return hm
}

// BeamCoverageBar builds a bar chart of the pixel assignments per beam.
func BeamCoverageBar(l *lut.LUT) *charts.Bar {
	cfg := l.Config()
	population := l.BeamPopulation()

	x := make([]string, len(population))
	y := make([]opts.BarData, len(population))
	for beam, n := range population {
		x[beam] = fmt.Sprintf("%.1f°", cfg.Bearings[beam].Deg())
		y[beam] = opts.BarData{Value: n}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LUT coverage", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Pixels per Beam", Subtitle: fmt.Sprintf("raster=%dx%d window=%d", l.Width(), l.Height(), l.WindowSize())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("pixels", y)
	return bar
}

// handleFrameHeatmap renders the latest sample as an HTML heatmap.
func (ws *WebServer) handleFrameHeatmap(w http.ResponseWriter, r *http.Request) {
	_, s, _ := ws.latest()
	if s == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no frame received yet")
		return
	}

	var buf bytes.Buffer
	if err := FrameHeatmap(s).Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleBeamCoverage renders the per-beam pixel counts of the current LUT.
func (ws *WebServer) handleBeamCoverage(w http.ResponseWriter, r *http.Request) {
	l := ws.currentLUT()
	if l == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no LUT built yet")
		return
	}

	var buf bytes.Buffer
	if err := BeamCoverageBar(l).Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
