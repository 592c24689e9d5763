// Package campaign drives randomized differential trials against the subject
// hash utility.
//
// Each trial moves through GENERATE, EXECUTE, CLASSIFY and then RETAIN or
// CLEANUP. Trials run one at a time; a trial failure is recorded and the
// campaign continues. Only harness failures (unwritable work directory,
// missing executables, cancellation) end a run early.
package campaign

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-substrate/hashdiff/compare"
	"github.com/lattice-substrate/hashdiff/hasherr"
	"github.com/lattice-substrate/hashdiff/inputgen"
	"github.com/lattice-substrate/hashdiff/logger"
	"github.com/lattice-substrate/hashdiff/metrics"
	"github.com/lattice-substrate/hashdiff/optgen"
	"github.com/lattice-substrate/hashdiff/procrun"
	"github.com/lattice-substrate/hashdiff/report"
)

// Config bounds one campaign.
type Config struct {
	Subject    string
	Reference  compare.Reference
	Algorithms []string
	// Trials is the trial count per algorithm.
	Trials     int
	MaxOptions int
	MaxFiles   int
	MaxPayload int
	MaxLiteral int
	Timeout    time.Duration
	// WorkDir holds every ephemeral file; it is created when missing.
	WorkDir string
	// Seed makes generation reproducible when non-zero.
	Seed uint64
}

// Options carries collaborators. Zero values get working defaults.
type Options struct {
	Runner  procrun.Runner
	Logger  logger.Logger
	Metrics *metrics.Recorder
	RunID   string
	Now     func() time.Time
}

// Campaign is a configured fuzz run.
type Campaign struct {
	cfg     Config
	runner  procrun.Runner
	cmp     *compare.Comparator
	gen     *inputgen.Generator
	options *optgen.Combinator
	log     logger.Logger
	metrics *metrics.Recorder
	runID   string
	now     func() time.Time
}

// New validates cfg and wires the campaign.
func New(cfg Config, opts Options) (*Campaign, error) {
	if cfg.Subject == "" {
		return nil, hasherr.New(hasherr.Config, "subject path is required")
	}
	if cfg.Reference.Path == "" {
		return nil, hasherr.New(hasherr.Config, "reference path is required")
	}
	if cfg.WorkDir == "" {
		return nil, hasherr.New(hasherr.Config, "work dir is required")
	}
	if len(cfg.Algorithms) == 0 {
		return nil, hasherr.New(hasherr.Config, "at least one algorithm is required")
	}
	if cfg.Trials < 1 {
		return nil, hasherr.New(hasherr.Config, "trial count must be >= 1")
	}
	if cfg.MaxFiles < 1 {
		cfg.MaxFiles = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = procrun.DefaultTimeout
	}

	c := &Campaign{
		cfg:     cfg,
		runner:  opts.Runner,
		log:     opts.Logger,
		metrics: opts.Metrics,
		runID:   opts.RunID,
		now:     opts.Now,
	}
	if c.runner == nil {
		c.runner = procrun.OSRunner{Timeout: cfg.Timeout}
	}
	if c.log == nil {
		c.log = logger.Discard()
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.gen = inputgen.NewSeeded(cfg.Seed)
	c.options = optgen.New(c.gen)
	c.options.MaxOptions = cfg.MaxOptions
	c.options.MaxLiteral = cfg.MaxLiteral
	c.cmp = &compare.Comparator{
		Runner:    c.runner,
		Reference: cfg.Reference,
		WorkDir:   cfg.WorkDir,
		Timeout:   cfg.Timeout,
	}
	return c, nil
}

// RunID identifies this campaign in logs and the report.
func (c *Campaign) RunID() string {
	return c.runID
}

// Run executes every trial and returns the accumulated report. The report is
// returned even when a harness error ends the run early.
func (c *Campaign) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New(c.runID, "fuzz")
	rep.GeneratedAtUTC = c.now().UTC().Format(time.RFC3339Nano)
	rep.Subject = c.cfg.Subject
	rep.Reference = c.cfg.Reference
	rep.WorkDir = c.cfg.WorkDir
	rep.Algorithms = append([]string(nil), c.cfg.Algorithms...)
	if c.cfg.Seed != 0 {
		rep.Seed = strconv.FormatUint(c.cfg.Seed, 10)
	}

	if err := os.MkdirAll(c.cfg.WorkDir, 0o700); err != nil {
		return rep, hasherr.Wrap(hasherr.InternalIO, "create work dir", err)
	}

	ctx = logger.WithTrial(ctx, logger.TrialCtx{RunID: c.runID})
	c.log.Info(ctx, "campaign started",
		"trials", c.cfg.Trials, "algorithms", c.cfg.Algorithms, "work_dir", c.cfg.WorkDir, "seed", c.cfg.Seed)

	for _, alg := range c.cfg.Algorithms {
		for i := 1; i <= c.cfg.Trials; i++ {
			if err := ctx.Err(); err != nil {
				return rep, fmt.Errorf("campaign cancelled: %w", err)
			}
			tctx := logger.WithTrial(ctx, logger.TrialCtx{Algorithm: alg, Trial: i})
			counters, rec, err := c.runTrial(tctx, alg, i)
			if err != nil {
				return rep, fmt.Errorf("%s trial %d: %w", alg, i, err)
			}
			rep.Tally(alg, counters)
			if rec != nil {
				rep.Append(*rec)
			}
		}
	}

	c.log.Info(ctx, "campaign finished",
		"passed", rep.Passed(),
		"trials", rep.Totals.Trials,
		"crashes", rep.Totals.Crashes,
		"mismatches", rep.Totals.Mismatches,
		"timeouts", rep.Totals.Timeouts,
		"not_verifiable", rep.Totals.NotVerifiable)
	return rep, nil
}
