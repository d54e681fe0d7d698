package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Array struct {
		// Elements is the number of radiating elements in the array.
		Elements int `env:"ARRAY_ELEMENTS" envDefault:"5"`
		// AmplitudeFloor is the minimum excitation magnitude (volts) presented
		// to the solver. Near-zero amplitudes break the solver's pattern
		// normalization, so anything below the floor is raised to it.
		AmplitudeFloor float64 `env:"ARRAY_AMPLITUDE_FLOOR" envDefault:"0.001"`
		// Precision is the number of decimal digits used when encoding
		// phase/amplitude variables for the solver.
		Precision int `env:"ARRAY_PRECISION" envDefault:"3"`
	}
	Sweep struct {
		// Azimuth sweep in degrees. Must match the solver project's far-field
		// sphere setup; a mismatch surfaces as a sample-count error at run start.
		PhiStartDeg float64 `env:"SWEEP_PHI_START_DEG" envDefault:"-90"`
		PhiStopDeg  float64 `env:"SWEEP_PHI_STOP_DEG" envDefault:"90"`
		PhiStepDeg  float64 `env:"SWEEP_PHI_STEP_DEG" envDefault:"5"`
		ThetaDeg    float64 `env:"SWEEP_THETA_DEG" envDefault:"90"`
		Frequency   string  `env:"SWEEP_FREQUENCY" envDefault:"2.4GHz"`
	}
	Solver struct {
		// BridgeURL is the JSON-RPC endpoint of the solver bridge process.
		BridgeURL   string `env:"SOLVER_BRIDGE_URL" envDefault:"http://localhost:9465/rpc"`
		Design      string `env:"SOLVER_DESIGN" envDefault:"arrayY5"`
		Setup       string `env:"SOLVER_SETUP" envDefault:"Setup1"`
		ProjectPath string `env:"SOLVER_PROJECT_PATH" envDefault:""`
		// SolveTimeout bounds a single full solve; a timed-out solve degrades
		// to a zero pattern rather than aborting the run.
		SolveTimeout time.Duration `env:"SOLVER_SOLVE_TIMEOUT" envDefault:"10m"`
		CallTimeout  time.Duration `env:"SOLVER_CALL_TIMEOUT" envDefault:"30s"`
	}
	Tuner struct {
		MaxIterations int     `env:"TUNER_MAX_ITERATIONS" envDefault:"100"`
		Tolerance     float64 `env:"TUNER_TOLERANCE" envDefault:"0.01"`
	}
	Report struct {
		OutputDir string `env:"REPORT_OUTPUT_DIR" envDefault:"out"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	// Batch runs write plots and JSON results here
	if cfg.Report.OutputDir != "" {
		if err := os.MkdirAll(cfg.Report.OutputDir, 0755); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
