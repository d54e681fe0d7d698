// Package report renders run diagnostics. It consumes a finished RunResult
// only; nothing here feeds back into the search.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/beamforge/phasor/internal/tuner"
)

// SavePatternPlot writes a PNG of the optimized pattern against the
// normalized target over the azimuth sweep.
func SavePatternPlot(path string, result *tuner.RunResult) error {
	p := plot.New()
	p.Title.Text = "Optimized vs target pattern"
	p.X.Label.Text = "Phi angle, deg"
	p.Y.Label.Text = "Total gain, mag"
	p.X.Min = result.PhiDeg[0]
	p.X.Max = result.PhiDeg[len(result.PhiDeg)-1]
	p.X.Tick.Marker = plot.ConstantTicks(phiTicks(result.PhiDeg))
	p.Add(plotter.NewGrid())

	optPts := make(plotter.XYs, len(result.Optimized))
	for i, v := range result.Optimized {
		optPts[i] = plotter.XY{X: result.PhiDeg[i], Y: v}
	}
	optLine, err := plotter.NewLine(optPts)
	if err != nil {
		return err
	}
	optLine.Width = vg.Points(1)
	optLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(optLine)
	p.Legend.Add("Optimized pattern", optLine)

	tgtPts := make(plotter.XYs, len(result.Target))
	for i, v := range result.Target {
		tgtPts[i] = plotter.XY{X: result.PhiDeg[i], Y: v}
	}
	tgtLine, err := plotter.NewLine(tgtPts)
	if err != nil {
		return err
	}
	tgtLine.Width = vg.Points(1)
	tgtLine.Color = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	p.Add(tgtLine)
	p.Legend.Add("Target pattern", tgtLine)

	return save(p, path)
}

// SaveConvergencePlot writes a PNG of the error trace, one point per
// objective evaluation.
func SaveConvergencePlot(path string, result *tuner.RunResult) error {
	p := plot.New()
	p.Title.Text = "Error vs iteration"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Error"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(result.Trace))
	for i, v := range result.Trace {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)

	return save(p, path)
}

func save(p *plot.Plot, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

// phiTicks labels every 15 degrees, matching how the patterns are usually
// eyeballed.
func phiTicks(phi []float64) []plot.Tick {
	if len(phi) == 0 {
		return nil
	}
	var ticks []plot.Tick
	for v := phi[0]; v <= phi[len(phi)-1]; v += 15 {
		ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf("%g", v)})
	}
	return ticks
}
