// Command tune runs one excitation tuning campaign from the command line and
// writes the result JSON plus diagnostic plots.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beamforge/phasor/internal/array"
	"github.com/beamforge/phasor/internal/config"
	"github.com/beamforge/phasor/internal/logging"
	"github.com/beamforge/phasor/internal/oracle"
	"github.com/beamforge/phasor/internal/pattern"
	"github.com/beamforge/phasor/internal/report"
	"github.com/beamforge/phasor/internal/solver"
	"github.com/beamforge/phasor/internal/tuner"
)

func main() {
	var (
		targetFile = flag.String("target", "", "JSON file with the target gain samples; empty selects the built-in rectangular beam")
		maxIter    = flag.Int("maxiter", 0, "override the configured iteration cap")
		beamGain   = flag.Float64("beam-gain", 2.0, "built-in target: gain inside the beam")
		beamLo     = flag.Float64("beam-lo", -45, "built-in target: beam start, degrees")
		beamHi     = flag.Float64("beam-hi", 45, "built-in target: beam end, degrees")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	runLogger := logger.WithField("service", "phasor-tune")

	sweep := pattern.Sweep{
		PhiStartDeg: cfg.Sweep.PhiStartDeg,
		PhiStopDeg:  cfg.Sweep.PhiStopDeg,
		PhiStepDeg:  cfg.Sweep.PhiStepDeg,
		ThetaDeg:    cfg.Sweep.ThetaDeg,
		Frequency:   cfg.Sweep.Frequency,
	}

	target, err := loadTarget(*targetFile, sweep, *beamGain, *beamLo, *beamHi)
	if err != nil {
		runLogger.Fatal("Could not load target pattern", map[string]interface{}{"error": err.Error()})
	}

	iterations := cfg.Tuner.MaxIterations
	if *maxIter > 0 {
		iterations = *maxIter
	}

	ctx := context.Background()

	bridge := solver.NewBridge(solver.BridgeConfig{
		URL:          cfg.Solver.BridgeURL,
		Design:       cfg.Solver.Design,
		Setup:        cfg.Solver.Setup,
		ProjectPath:  cfg.Solver.ProjectPath,
		CallTimeout:  cfg.Solver.CallTimeout,
		SolveTimeout: cfg.Solver.SolveTimeout,
	}, runLogger)
	if err := bridge.Open(ctx); err != nil {
		runLogger.Fatal("Could not establish solver session", map[string]interface{}{"error": err.Error()})
	}
	defer func() {
		if err := bridge.Release(context.Background()); err != nil {
			runLogger.Warn("Failed to release solver session", map[string]interface{}{"error": err.Error()})
		}
	}()

	result, err := tuner.Run(ctx, bridge, tuner.RunConfig{
		Oracle: oracle.Config{
			Elements:       cfg.Array.Elements,
			AmplitudeFloor: cfg.Array.AmplitudeFloor,
			Precision:      cfg.Array.Precision,
			Sweep:          sweep,
		},
		Target:        target,
		Initial:       array.DefaultInitialGuess(),
		MaxIterations: iterations,
		Tolerance:     cfg.Tuner.Tolerance,
	}, runLogger)
	if err != nil {
		runLogger.Fatal("Tuning run failed", map[string]interface{}{"error": err.Error()})
	}

	runLogger.Info("Run complete", map[string]interface{}{
		"best_error":  result.BestError,
		"iterations":  result.Iterations,
		"converged":   result.Converged,
		"evaluations": len(result.Trace),
	})

	outDir := cfg.Report.OutputDir
	if err := writeResult(filepath.Join(outDir, "result.json"), result); err != nil {
		runLogger.Error("Could not write result", map[string]interface{}{"error": err.Error()})
	}
	if err := report.SavePatternPlot(filepath.Join(outDir, "pattern.png"), result); err != nil {
		runLogger.Error("Could not save pattern plot", map[string]interface{}{"error": err.Error()})
	}
	if err := report.SaveConvergencePlot(filepath.Join(outDir, "convergence.png"), result); err != nil {
		runLogger.Error("Could not save convergence plot", map[string]interface{}{"error": err.Error()})
	}
}

// loadTarget reads a JSON array of gain samples, or builds the rectangular
// default beam on the configured sweep.
func loadTarget(path string, sweep pattern.Sweep, gain, lo, hi float64) (pattern.Target, error) {
	if path == "" {
		return pattern.Rectangular(sweep, gain, lo, hi), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var samples []float64
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(samples) != sweep.Samples() {
		return nil, fmt.Errorf("target in %s has %d samples, sweep produces %d", path, len(samples), sweep.Samples())
	}
	return pattern.Target(samples), nil
}

func writeResult(path string, result *tuner.RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
