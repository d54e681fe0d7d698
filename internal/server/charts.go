package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleCharts renders a quick HTML view of a completed run using go-echarts:
// optimized vs target pattern over azimuth, and error vs iteration. This is a
// debugging endpoint for eyeballing a run without pulling the JSON result
// into a notebook.
func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.jobsMu.RLock()
	job, ok := s.jobs[id]
	s.jobsMu.RUnlock()

	if !ok || job.Result == nil {
		http.Error(w, "no completed result for job", http.StatusNotFound)
		return
	}
	result := job.Result

	phi := make([]string, len(result.PhiDeg))
	optimized := make([]opts.LineData, len(result.Optimized))
	target := make([]opts.LineData, len(result.Target))
	for i := range result.PhiDeg {
		phi[i] = fmt.Sprintf("%g", result.PhiDeg[i])
		optimized[i] = opts.LineData{Value: result.Optimized[i]}
		target[i] = opts.LineData{Value: result.Target[i]}
	}

	patternLine := charts.NewLine()
	patternLine.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Optimized vs target pattern",
			Subtitle: fmt.Sprintf("job=%s best_error=%.4f converged=%t", job.ID, result.BestError, result.Converged),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Phi, deg"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Gain, mag"}),
	)
	patternLine.SetXAxis(phi).
		AddSeries("optimized", optimized).
		AddSeries("target", target)

	trace := make([]opts.LineData, len(result.Trace))
	iterations := make([]string, len(result.Trace))
	for i, v := range result.Trace {
		trace[i] = opts.LineData{Value: v}
		iterations[i] = fmt.Sprintf("%d", i)
	}

	traceLine := charts.NewLine()
	traceLine.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Error vs iteration",
			Subtitle: fmt.Sprintf("evaluations=%d", len(result.Trace)),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Evaluation"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Error"}),
	)
	traceLine.SetXAxis(iterations).
		AddSeries("error", trace)

	page := components.NewPage()
	page.AddCharts(patternLine, traceLine)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(w); err != nil {
		s.logger.Error("Failed to render charts", map[string]interface{}{
			"job_id": id,
			"error":  err.Error(),
		})
	}
}
