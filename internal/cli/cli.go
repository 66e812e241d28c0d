// Package cli implements the command-line interface for flipwatch.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/eunmann/flipwatch/internal/logctx"
	"github.com/eunmann/flipwatch/pkg/detector"
	"github.com/eunmann/flipwatch/pkg/humanfmt"
	"github.com/eunmann/flipwatch/pkg/logging"
	"github.com/eunmann/flipwatch/pkg/memdiag"
	"github.com/eunmann/flipwatch/pkg/monitor"
	"github.com/eunmann/flipwatch/pkg/sysmem"
)

const version = "0.1.0"

const defaultDelay = 30 * time.Second

// Environment overrides, used when the matching flag is not given.
const (
	envMemory = "FLIPWATCH_MEMORY"
	envDelay  = "FLIPWATCH_DELAY"
)

// runConfig is the fully resolved run configuration.
type runConfig struct {
	capacityBytes int // explicit size; 0 when maximizing
	maximize      bool
	mode          sysmem.Mode
	delay         time.Duration
	parallel      bool
	workers       int
	verbose       bool
	maxChecks     uint64
}

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	fs := flag.NewFlagSet("flipwatch", flag.ContinueOnError)
	memFlag := fs.String("memory", "", "size of the memory to monitor for bit flips, e.g. 200, 5kB, 2GiB")
	useAllFlag := fs.String("use-all", "", useAllUsage())
	delayFlag := fs.String("delay", "", "delay between integrity checks (default 30s)")
	parallel := fs.Bool("parallel", false, "run writes and integrity checks on a worker pool")
	workers := fs.Int("workers", 0, "worker pool size with --parallel (default: number of CPUs)")
	checks := fs.Uint64("checks", 0, "stop after this many integrity checks (default: run forever)")
	quiet := fs.Bool("quiet", false, "only log detections")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-friendly log output")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if *showVersion {
		fmt.Printf("flipwatch %s\n", version)
		return nil
	}

	logging.Init(*debug, *human)

	cfg, err := resolveConfig(*memFlag, *useAllFlag, *delayFlag)
	if err != nil {
		return err
	}
	cfg.parallel = *parallel
	cfg.workers = *workers
	cfg.verbose = !*quiet
	cfg.maxChecks = *checks

	det, err := buildDetector(cfg)
	if err != nil {
		return err
	}

	diag := memdiag.NewTracker(memdiag.DefaultConfig())
	diag.Start()
	defer diag.Stop()
	diag.SetPhase("monitor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logctx.WithLogger(ctx, logging.WithPhase("monitor"))

	m := monitor.New(det, monitor.Config{
		Interval:  cfg.delay,
		Verbose:   cfg.verbose,
		MaxChecks: cfg.maxChecks,
	})
	return m.Run(ctx)
}

// useAllUsage describes the --use-all values this platform accepts.
func useAllUsage() string {
	switch sysmem.Capable() {
	case sysmem.CapAvailableFree:
		return "allocate as much memory as possible: \"available\" (free plus reclaimable caches) or \"free\" (strictly unused)"
	case sysmem.CapMaximizeOnly:
		return "allocate as much memory as possible: \"max\" (this platform reports a single figure)"
	default:
		return "unsupported on this platform, use --memory instead"
	}
}

// resolveConfig validates the size selection and delay, applying
// environment overrides where flags are absent.
func resolveConfig(memFlag, useAllFlag, delayFlag string) (runConfig, error) {
	var cfg runConfig

	if memFlag != "" && useAllFlag != "" {
		return cfg, errors.New("use exactly one of --memory and --use-all")
	}

	switch {
	case useAllFlag != "":
		mode, err := resolveMode(useAllFlag)
		if err != nil {
			return cfg, err
		}
		cfg.maximize = true
		cfg.mode = mode

	default:
		mem := memFlag
		fromEnv := false
		if mem == "" {
			mem = os.Getenv(envMemory)
			fromEnv = true
		}
		if mem == "" {
			return cfg, errors.New("one of --memory and --use-all is required")
		}
		capacity, err := parseMemorySize(mem)
		if err != nil {
			if fromEnv {
				return cfg, fmt.Errorf("%s: %w", envMemory, err)
			}
			return cfg, fmt.Errorf("--memory: %w", err)
		}
		cfg.capacityBytes = capacity
	}

	delay, err := resolveDelay(delayFlag)
	if err != nil {
		return cfg, err
	}
	cfg.delay = delay
	return cfg, nil
}

// resolveMode maps a --use-all value through the platform capability.
func resolveMode(value string) (sysmem.Mode, error) {
	switch sysmem.Capable() {
	case sysmem.CapAvailableFree:
		mode, err := sysmem.ParseMode(value)
		if err != nil {
			return 0, fmt.Errorf("--use-all: %w", err)
		}
		return mode, nil
	case sysmem.CapMaximizeOnly:
		if value != "max" {
			return 0, fmt.Errorf("--use-all: this platform reports a single memory figure, pass %q", "max")
		}
		return sysmem.ModeAvailable, nil
	default:
		return 0, fmt.Errorf("--use-all: %w", sysmem.ErrUnsupportedPlatform)
	}
}

// parseMemorySize parses a human size string ("200", "5kB", "2GiB")
// into a byte count of at least one.
func parseMemorySize(s string) (int, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("cannot parse %q as a memory size: %w", s, err)
	}
	if n == 0 {
		return 0, errors.New("the detector needs at least one byte of memory")
	}
	if n > uint64(maxInt) {
		return 0, fmt.Errorf("%s does not fit in this platform's address space", s)
	}
	return int(n), nil
}

const maxInt = int(^uint(0) >> 1)

// resolveDelay picks the delay from flag, environment, or default.
func resolveDelay(delayFlag string) (time.Duration, error) {
	s := delayFlag
	source := "--delay"
	if s == "" {
		s = os.Getenv(envDelay)
		source = envDelay
	}
	if s == "" {
		return defaultDelay, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: cannot parse %q as a duration", source, s)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: the delay cannot be negative", source)
	}
	return d, nil
}

// buildDetector allocates the detector mass per the resolved config.
func buildDetector(cfg runConfig) (*detector.Detector, error) {
	log := logging.WithPhase("allocate")
	dcfg := detector.Config{Parallel: cfg.parallel, Workers: cfg.workers}

	if cfg.maximize {
		log.Info().Str("mode", cfg.mode.String()).Msg("sizing detector from system memory")
		det, err := detector.NewWithMaximumSize(0, cfg.mode, dcfg)
		if err != nil {
			return nil, err
		}
		log.Info().
			Int("mass_bytes", det.Len()).
			Str("mass", humanfmt.Bytes(int64(det.Len()))).
			Msg("detector allocated")
		return det, nil
	}

	det, err := detector.New(0, cfg.capacityBytes, dcfg)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("mass_bytes", det.Len()).
		Str("mass", humanfmt.Bytes(int64(det.Len()))).
		Msg("detector allocated")
	return det, nil
}
