// Package suite runs the deterministic boundary and edge-case scenarios
// against the subject hash utility.
//
// Every scenario works in its own directory under the configured work
// directory and hands the subject relative file names, so expected lines
// read exactly as a user would type them. A scenario directory is removed
// when all of its cases pass and kept for diagnosis otherwise.
package suite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-substrate/hashdiff/compare"
	"github.com/lattice-substrate/hashdiff/hasherr"
	"github.com/lattice-substrate/hashdiff/inputgen"
	"github.com/lattice-substrate/hashdiff/logger"
	"github.com/lattice-substrate/hashdiff/metrics"
	"github.com/lattice-substrate/hashdiff/procrun"
	"github.com/lattice-substrate/hashdiff/report"
)

// Config bounds one suite run.
type Config struct {
	Subject    string
	Reference  compare.Reference
	Algorithms []string
	// DisplayNames maps an algorithm token to the label the subject prints.
	// Missing entries fall back to the upper-cased token.
	DisplayNames map[string]string
	Timeout      time.Duration
	WorkDir      string
	Seed         uint64
	// BoundaryBlocks are the block multiples of the boundary catalog.
	BoundaryBlocks []int
	// Only restricts the run to the named scenarios, in catalog order.
	Only []string
	// Benchmark adds the informational timing scenario.
	Benchmark bool
}

// Options carries collaborators. Zero values get working defaults.
type Options struct {
	Runner  procrun.Runner
	Logger  logger.Logger
	Metrics *metrics.Recorder
	RunID   string
	Now     func() time.Time
}

// Scenario is one named group of fixed cases.
type Scenario struct {
	Name        string
	Description string
	run         func(ctx context.Context, e *env) error
}

// Scenarios returns the catalog in execution order.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "boundary_digests", Description: "block-boundary sized text and binary files match the reference digest", run: boundaryDigests},
		{Name: "edge_content", Description: "empty, huge, NUL, non-ASCII, control and malformed UTF-8 files exit 0 and match", run: edgeContent},
		{Name: "correctness", Description: "fixed payloads around one and two blocks plus every byte value match", run: correctness},
		{Name: "invalid_options", Description: "malformed argument lists never end in a fatal signal", run: invalidOptions},
		{Name: "idempotence", Description: "the same input and flags yield identical output twice", run: idempotence},
		{Name: "subject_format", Description: "documented output lines for stdin, echo, quiet, reverse and literal modes", run: subjectFormat},
		{Name: "reference_parity", Description: "file, stdin, reverse and multi-file output equals the reference line for line", run: referenceParity},
		{Name: "benchmark", Description: "informational subject and reference wall time on 10 KiB and 1 MiB files", run: benchmark},
	}
}

// Suite is a configured scenario run.
type Suite struct {
	cfg     Config
	runner  procrun.Runner
	gen     *inputgen.Generator
	log     logger.Logger
	metrics *metrics.Recorder
	runID   string
	now     func() time.Time
	plan    []Scenario
}

// New validates cfg and selects the scenarios to run.
func New(cfg Config, opts Options) (*Suite, error) {
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
	if cfg.Timeout <= 0 {
		cfg.Timeout = procrun.DefaultTimeout
	}
	if len(cfg.BoundaryBlocks) == 0 {
		cfg.BoundaryBlocks = inputgen.DefaultBoundaryBlocks
	}

	plan, err := selectScenarios(cfg)
	if err != nil {
		return nil, err
	}

	s := &Suite{
		cfg:     cfg,
		runner:  opts.Runner,
		log:     opts.Logger,
		metrics: opts.Metrics,
		runID:   opts.RunID,
		now:     opts.Now,
		plan:    plan,
		gen:     inputgen.NewSeeded(cfg.Seed),
	}
	if s.runner == nil {
		s.runner = procrun.OSRunner{Timeout: cfg.Timeout}
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func selectScenarios(cfg Config) ([]Scenario, error) {
	all := Scenarios()
	if len(cfg.Only) == 0 {
		plan := make([]Scenario, 0, len(all))
		for _, sc := range all {
			if sc.Name == "benchmark" && !cfg.Benchmark {
				continue
			}
			plan = append(plan, sc)
		}
		return plan, nil
	}

	want := make(map[string]bool, len(cfg.Only))
	for _, name := range cfg.Only {
		want[name] = true
	}
	plan := make([]Scenario, 0, len(cfg.Only))
	for _, sc := range all {
		if want[sc.Name] {
			plan = append(plan, sc)
			delete(want, sc.Name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for _, name := range cfg.Only {
			if want[name] {
				unknown = append(unknown, name)
			}
		}
		return nil, hasherr.New(hasherr.Config, "unknown scenario: "+strings.Join(unknown, ", "))
	}
	return plan, nil
}

// RunID identifies this suite run in logs and the report.
func (s *Suite) RunID() string {
	return s.runID
}

// Plan returns the names of the scenarios Run will execute.
func (s *Suite) Plan() []string {
	names := make([]string, len(s.plan))
	for i, sc := range s.plan {
		names[i] = sc.Name
	}
	return names
}

// Run executes every planned scenario for every algorithm. The report is
// returned even when a harness error ends the run early.
func (s *Suite) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New(s.runID, "suite")
	rep.GeneratedAtUTC = s.now().UTC().Format(time.RFC3339Nano)
	rep.Subject = s.cfg.Subject
	rep.Reference = s.cfg.Reference
	rep.WorkDir = s.cfg.WorkDir
	rep.Algorithms = append([]string(nil), s.cfg.Algorithms...)
	if s.cfg.Seed != 0 {
		rep.Seed = strconv.FormatUint(s.cfg.Seed, 10)
	}

	root, err := filepath.Abs(s.cfg.WorkDir)
	if err != nil {
		return rep, hasherr.Wrap(hasherr.InternalIO, "resolve work dir", err)
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return rep, hasherr.Wrap(hasherr.InternalIO, "create work dir", err)
	}

	ctx = logger.WithTrial(ctx, logger.TrialCtx{RunID: s.runID})
	s.log.Info(ctx, "suite started", "algorithms", s.cfg.Algorithms, "scenarios", s.Plan(), "work_dir", root)

	for _, alg := range s.cfg.Algorithms {
		for _, sc := range s.plan {
			if err := ctx.Err(); err != nil {
				return rep, fmt.Errorf("suite cancelled: %w", err)
			}
			sctx := logger.WithTrial(ctx, logger.TrialCtx{Algorithm: alg, Scenario: sc.Name})
			e, err := s.newEnv(root, alg, sc.Name)
			if err != nil {
				return rep, err
			}
			runErr := sc.run(sctx, e)
			rep.Tally(alg, e.counters)
			for _, rec := range e.failures {
				rep.Append(rec)
			}
			e.finish(sctx)
			if runErr != nil {
				return rep, fmt.Errorf("%s %s: %w", alg, sc.Name, runErr)
			}
			s.log.Debug(sctx, "scenario finished",
				"cases", e.counters.Trials, "passed", e.counters.Passed, "failures", len(e.failures))
		}
	}

	s.log.Info(ctx, "suite finished",
		"passed", rep.Passed(),
		"cases", rep.Totals.Trials,
		"crashes", rep.Totals.Crashes,
		"mismatches", rep.Totals.Mismatches,
		"timeouts", rep.Totals.Timeouts,
		"not_verifiable", rep.Totals.NotVerifiable)
	return rep, nil
}

func (s *Suite) displayName(alg string) string {
	if name, ok := s.cfg.DisplayNames[alg]; ok && name != "" {
		return name
	}
	return strings.ToUpper(alg)
}
