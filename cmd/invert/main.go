// Command invert computes the inverse of a displacement field.
//
// The forward field is read from a file (-in) or generated (-synth). The
// inverse can be written to a file, recorded in a run database and its
// convergence history plotted:
//
//	invert -synth sinusoid -size 64,64 -amplitude 1.5 -out inverse.gz -plot conv.png
//	invert -in forward.json -config run.json -db runs.db
//	invert -db runs.db migrate status
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/banshee-data/invertfield/internal/config"
	"github.com/banshee-data/invertfield/internal/db"
	"github.com/banshee-data/invertfield/internal/field"
	"github.com/banshee-data/invertfield/internal/fieldio"
	"github.com/banshee-data/invertfield/internal/invert"
	"github.com/banshee-data/invertfield/internal/monitoring"
	"github.com/banshee-data/invertfield/internal/parallel"
	"github.com/banshee-data/invertfield/internal/report"
	"github.com/banshee-data/invertfield/internal/version"
)

var (
	inPath      = flag.String("in", "", "Forward field file (.json or .gz)")
	synthKind   = flag.String("synth", "", "Generate the forward field instead: zero, translation or sinusoid")
	sizeFlag    = flag.String("size", "32,32", "Grid size per axis for -synth, comma separated")
	spacingFlag = flag.String("spacing", "", "Grid spacing per axis for -synth (default 1 on every axis)")
	vectorFlag  = flag.String("vector", "", "Displacement vector for -synth translation")
	amplitude   = flag.Float64("amplitude", 0.5, "Amplitude for -synth sinusoid, in physical units")
	configPath  = flag.String("config", "", "Inversion config JSON file")
	iterations  = flag.Int("iterations", -1, "Override maximum_number_of_iterations (-1 keeps the config value)")
	workers     = flag.Int("workers", -1, "Override the worker count (-1 keeps the config value, 0 uses GOMAXPROCS)")
	outPath     = flag.String("out", "", "Write the inverse field to this file (.json or .gz)")
	dbPath      = flag.String("db", "", "Record the run in this SQLite database")
	plotPath    = flag.String("plot", "", "Save a convergence plot (PNG, SVG or PDF by extension)")
	htmlPath    = flag.String("html", "", "Save an interactive convergence chart as HTML")
	verbose     = flag.Bool("v", false, "Log per-iteration residual norms")
	traceLogs   = flag.Bool("trace", false, "Log per-partition reductions")
	showVersion = flag.Bool("version", false, "Print build information and exit")
)

// options is the parsed command line.
type options struct {
	InPath     string
	Synth      fieldio.SynthOptions
	ConfigPath string
	Iterations int
	Workers    int
	OutPath    string
	DBPath     string
	PlotPath   string
	HTMLPath   string
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	diag := io.Writer(nil)
	if *verbose {
		diag = monitoring.Writer()
	}
	trace := io.Writer(nil)
	if *traceLogs {
		trace = monitoring.Writer()
	}
	invert.SetLogWriters(monitoring.Writer(), diag, trace)

	if flag.NArg() > 0 {
		if flag.Arg(0) != "migrate" {
			log.Fatalf("unknown command %q", flag.Arg(0))
		}
		if err := runMigrate(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	opts, err := optionsFromFlags()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func optionsFromFlags() (options, error) {
	opts := options{
		InPath:     *inPath,
		ConfigPath: *configPath,
		Iterations: *iterations,
		Workers:    *workers,
		OutPath:    *outPath,
		DBPath:     *dbPath,
		PlotPath:   *plotPath,
		HTMLPath:   *htmlPath,
	}
	if (opts.InPath == "") == (*synthKind == "") {
		return opts, errors.New("exactly one of -in or -synth is required")
	}
	if *synthKind == "" {
		return opts, nil
	}

	size, err := parseInts(*sizeFlag)
	if err != nil {
		return opts, fmt.Errorf("invalid -size: %w", err)
	}
	opts.Synth = fieldio.SynthOptions{Kind: *synthKind, Size: size, Amplitude: *amplitude}
	if *spacingFlag != "" {
		if opts.Synth.Spacing, err = parseFloats(*spacingFlag); err != nil {
			return opts, fmt.Errorf("invalid -spacing: %w", err)
		}
	}
	if *vectorFlag != "" {
		if opts.Synth.Vector, err = parseFloats(*vectorFlag); err != nil {
			return opts, fmt.Errorf("invalid -vector: %w", err)
		}
	}
	return opts, nil
}

// run performs one inversion. A diverged run still writes its outputs and
// then returns the divergence error.
func run(ctx context.Context, opts options, stdout io.Writer) error {
	cfg := config.EmptyInversionConfig()
	if opts.ConfigPath != "" {
		loaded, err := config.LoadInversionConfig(opts.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if opts.Iterations >= 0 {
		cfg = cfg.Merge(&config.InversionConfig{MaximumNumberOfIterations: &opts.Iterations})
	}
	if opts.Workers >= 0 {
		cfg = cfg.Merge(&config.InversionConfig{Workers: &opts.Workers})
	}

	forward, err := loadForward(opts)
	if err != nil {
		return err
	}
	interp, err := cfg.EngineInterpolator()
	if err != nil {
		return err
	}

	inv := invert.New(cfg.ToEngineConfig(),
		invert.WithInterpolator(interp),
		invert.WithPool(parallel.NewPool(cfg.GetWorkers())),
	)
	res, runErr := inv.Invert(ctx, forward)
	if res == nil {
		return runErr
	}

	fmt.Fprintf(stdout, "reason=%s iterations=%d mean_error_norm=%g max_error_norm=%g duration=%v\n",
		res.Reason, res.State.Iteration, res.State.MeanErrorNorm, res.State.MaxErrorNorm, res.Duration)

	if opts.OutPath != "" {
		if err := fieldio.WriteFile(opts.OutPath, res.Inverse); err != nil {
			return err
		}
	}
	if opts.DBPath != "" {
		id, err := recordRun(opts.DBPath, cfg, forward, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "run_id=%s\n", id)
	}

	pts := report.PointsFromStats(res.History)
	title := fmt.Sprintf("%s after %d iterations", res.Reason, res.State.Iteration)
	if opts.PlotPath != "" && len(pts) > 0 {
		if err := report.SaveConvergencePlot(pts, title, opts.PlotPath); err != nil {
			return err
		}
	}
	if opts.HTMLPath != "" {
		if err := writeChart(opts.HTMLPath, title, pts); err != nil {
			return err
		}
	}
	return runErr
}

func loadForward(opts options) (*field.Field, error) {
	if opts.InPath != "" {
		return fieldio.ReadFile(opts.InPath)
	}
	return fieldio.Synthesize(opts.Synth)
}

func recordRun(path string, cfg *config.InversionConfig, forward *field.Field, res *invert.Result) (string, error) {
	database, err := db.NewDB(path)
	if err != nil {
		return "", err
	}
	defer database.Close()

	cfgJSON, err := jsonConfig(cfg)
	if err != nil {
		return "", err
	}
	run, iters, err := db.RecordFromResult(forward, res, cfgJSON)
	if err != nil {
		return "", err
	}
	return database.InsertRun(run, iters)
}

func jsonConfig(cfg *config.InversionConfig) ([]byte, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return b, nil
}

func writeChart(path, title string, pts []report.Point) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := report.RenderConvergenceChart(f, "Displacement field inversion", title, pts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
