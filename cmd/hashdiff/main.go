package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/lattice-substrate/hashdiff/campaign"
	"github.com/lattice-substrate/hashdiff/compare"
	"github.com/lattice-substrate/hashdiff/config"
	"github.com/lattice-substrate/hashdiff/hasherr"
	"github.com/lattice-substrate/hashdiff/logger"
	"github.com/lattice-substrate/hashdiff/metrics"
	"github.com/lattice-substrate/hashdiff/procrun"
	"github.com/lattice-substrate/hashdiff/report"
	"github.com/lattice-substrate/hashdiff/suite"
)

// Swapped in tests.
var (
	environ   = config.Environ
	newRunner = func(cfg *config.File) procrun.Runner {
		timeout, _ := cfg.TimeoutDuration()
		return procrun.OSRunner{Timeout: timeout}
	}
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		writeUsage(stdout)
		return 0
	}

	sub := args[0]
	flags, err := parseKV(args[1:])
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return hasherr.CLIUsage.ExitCode()
	}
	if _, ok := flags["--help"]; ok {
		writeUsage(stdout)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch sub {
	case "fuzz":
		code, err = cmdFuzz(ctx, flags, stdout, stderr)
	case "suite":
		code, err = cmdSuite(ctx, flags, stdout, stderr)
	case "report":
		code, err = cmdReport(flags, stdout)
	case "bundle":
		code, err = cmdBundle(flags, stdout)
	default:
		fmt.Fprintf(stderr, "error: unknown subcommand %q\n", sub)
		writeUsage(stderr)
		return hasherr.CLIUsage.ExitCode()
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCode(err)
	}
	return code
}

func cmdFuzz(ctx context.Context, flags map[string]string, stdout, stderr io.Writer) (int, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return 0, err
	}
	timeout, _ := cfg.TimeoutDuration()
	log := logger.New(stderr, cfg.LogLevel)
	rec := metrics.New()

	c, err := campaign.New(campaign.Config{
		Subject:    cfg.Subject,
		Reference:  compare.Reference{Path: cfg.Reference.Path, Args: cfg.Reference.Args},
		Algorithms: cfg.Algorithms,
		Trials:     cfg.Trials,
		MaxOptions: cfg.MaxOptions,
		MaxFiles:   cfg.MaxFiles,
		MaxPayload: cfg.MaxPayload,
		MaxLiteral: cfg.MaxLiteral,
		Timeout:    timeout,
		WorkDir:    cfg.WorkDir,
		Seed:       cfg.Seed,
	}, campaign.Options{Runner: newRunner(cfg), Logger: log, Metrics: rec})
	if err != nil {
		return 0, err
	}

	rep, runErr := c.Run(ctx)
	return finish(cfg, rep, rec, runErr, stdout)
}

func cmdSuite(ctx context.Context, flags map[string]string, stdout, stderr io.Writer) (int, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return 0, err
	}
	timeout, _ := cfg.TimeoutDuration()
	benchmark, err := boolFlag(flags, "--benchmark")
	if err != nil {
		return 0, err
	}
	var only []string
	if v := requireFlag(flags, "--scenario"); v != "" {
		only = splitList(v)
	}
	log := logger.New(stderr, cfg.LogLevel)
	rec := metrics.New()

	s, err := suite.New(suite.Config{
		Subject:      cfg.Subject,
		Reference:    compare.Reference{Path: cfg.Reference.Path, Args: cfg.Reference.Args},
		Algorithms:   cfg.Algorithms,
		DisplayNames: cfg.DisplayNames,
		Timeout:      timeout,
		WorkDir:      cfg.WorkDir,
		Seed:         cfg.Seed,
		Only:         only,
		Benchmark:    benchmark,
	}, suite.Options{Runner: newRunner(cfg), Logger: log, Metrics: rec})
	if err != nil {
		return 0, err
	}

	rep, runErr := s.Run(ctx)
	return finish(cfg, rep, rec, runErr, stdout)
}

// finish persists whatever a run produced, even a partial report, and maps
// the outcome to an exit code.
func finish(cfg *config.File, rep *report.Report, rec *metrics.Recorder, runErr error, stdout io.Writer) (int, error) {
	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if cfg.ReportFile != "" && rep != nil {
		if err := report.Write(cfg.ReportFile, rep); err != nil {
			errs = append(errs, hasherr.Wrap(hasherr.InternalIO, "write report", err))
		}
	}
	if cfg.MetricsFile != "" {
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			errs = append(errs, hasherr.Wrap(hasherr.InternalIO, "write metrics", err))
		}
	}
	if rep != nil {
		if err := report.Summarize(stdout, rep); err != nil {
			errs = append(errs, hasherr.Wrap(hasherr.InternalIO, "write summary", err))
		}
		if cfg.ReportFile != "" {
			fmt.Fprintf(stdout, "report: %s\n", cfg.ReportFile)
		}
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return rep.ExitCode(), nil
}

func cmdReport(flags map[string]string, stdout io.Writer) (int, error) {
	path := requireFlag(flags, "--report")
	if path == "" {
		return 0, hasherr.New(hasherr.CLIUsage, "report requires --report")
	}
	rep, err := report.Load(path)
	if err != nil {
		return 0, hasherr.Wrap(hasherr.InternalIO, "load report", err)
	}
	if err := report.Summarize(stdout, rep); err != nil {
		return 0, hasherr.Wrap(hasherr.InternalIO, "write summary", err)
	}
	return rep.ExitCode(), nil
}

func cmdBundle(flags map[string]string, stdout io.Writer) (int, error) {
	reportPath := requireFlag(flags, "--report")
	outPath := requireFlag(flags, "--out")
	if reportPath == "" || outPath == "" {
		return 0, hasherr.New(hasherr.CLIUsage, "bundle requires --report, --out")
	}
	manifest, err := report.Bundle(reportPath, outPath)
	if err != nil {
		return 0, hasherr.Wrap(hasherr.InternalIO, "bundle report", err)
	}
	fmt.Fprintf(stdout, "bundle: %s\n", outPath)
	fmt.Fprintf(stdout, "run_id: %s\n", manifest.RunID)
	fmt.Fprintf(stdout, "report_blake3: %s\n", manifest.ReportBLAKE3)
	fmt.Fprintf(stdout, "files: %d\n", len(manifest.Files))
	for _, m := range manifest.Missing {
		fmt.Fprintf(stdout, "missing: %s\n", m)
	}
	return 0, nil
}

// loadConfig layers the YAML document, HASHDIFF_* variables and flags, in
// that order, then validates the result.
func loadConfig(flags map[string]string) (*config.File, error) {
	cfg := config.Default()
	if path := requireFlag(flags, "--config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, hasherr.Wrap(hasherr.Config, "load config", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(environ()); err != nil {
		return nil, hasherr.Wrap(hasherr.Config, "environment", err)
	}
	if err := applyFlags(cfg, flags); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, hasherr.Wrap(hasherr.Config, "invalid config", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.File, flags map[string]string) error {
	for name, raw := range flags {
		value := strings.TrimSpace(raw)
		var err error
		switch name {
		case "--config", "--scenario", "--benchmark":
		case "--subject":
			cfg.Subject = value
		case "--reference":
			cfg.Reference.Path = value
		case "--algorithms":
			cfg.Algorithms = splitList(value)
		case "--trials":
			cfg.Trials, err = strconv.Atoi(value)
		case "--seed":
			cfg.Seed, err = strconv.ParseUint(value, 10, 64)
		case "--timeout":
			cfg.Timeout = value
		case "--work-dir":
			cfg.WorkDir = value
		case "--report":
			cfg.ReportFile = value
		case "--metrics":
			cfg.MetricsFile = value
		case "--log-level":
			cfg.LogLevel = strings.ToUpper(value)
		default:
			return hasherr.New(hasherr.CLIUsage, fmt.Sprintf("unknown flag %s", name))
		}
		if err != nil {
			return hasherr.Wrap(hasherr.CLIUsage, "flag "+name, err)
		}
	}
	return nil
}

func exitCode(err error) int {
	var herr *hasherr.Error
	if errors.As(err, &herr) {
		return herr.Class.ExitCode()
	}
	return hasherr.InternalError.ExitCode()
}

func parseKV(args []string) (map[string]string, error) {
	flags := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--help" || arg == "-h" {
			flags["--help"] = "true"
			continue
		}
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument %q", arg)
		}
		if strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flags[parts[0]] = parts[1]
			continue
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("flag %s requires value", arg)
		}
		flags[arg] = args[i+1]
		i++
	}
	return flags, nil
}

func requireFlag(flags map[string]string, name string) string {
	return strings.TrimSpace(flags[name])
}

func boolFlag(flags map[string]string, name string) (bool, error) {
	v := requireFlag(flags, name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, hasherr.Wrap(hasherr.CLIUsage, "flag "+name, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: hashdiff <fuzz|suite|report|bundle> [flags]")
	fmt.Fprintln(w, "  fuzz   [--config <yaml>] [--subject <path>] [--reference <path>] [--algorithms a,b]")
	fmt.Fprintln(w, "         [--trials N] [--seed S] [--timeout D] [--work-dir <dir>] [--report <path>] [--metrics <path>]")
	fmt.Fprintln(w, "  suite  [--config <yaml>] [--work-dir <dir>] [--report <path>] [--scenario a,b] [--benchmark true]")
	fmt.Fprintln(w, "  report --report <path>")
	fmt.Fprintln(w, "  bundle --report <path> --out <path.tar.gz>")
	fmt.Fprintln(w, "exit: 0 no failures, 1 failures found, 2 usage or config error, 10 internal error")
}
