package campaign

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lattice-substrate/hashdiff/compare"
	"github.com/lattice-substrate/hashdiff/hasherr"
	"github.com/lattice-substrate/hashdiff/invocation"
	"github.com/lattice-substrate/hashdiff/metrics"
	"github.com/lattice-substrate/hashdiff/procrun"
	"github.com/lattice-substrate/hashdiff/report"
)

// trial is the ephemeral state of one generate/execute/classify cycle.
type trial struct {
	index  int
	suffix string
	inv    *invocation.Invocation
	// paths are the files this trial created, with their artifact roles.
	paths []artifactPath
}

type artifactPath struct {
	path string
	role string
}

func (c *Campaign) runTrial(ctx context.Context, alg string, index int) (report.Counters, *report.FailureRecord, error) {
	counters := report.Counters{Trials: 1}

	t, err := c.generate(alg, index)
	if err != nil {
		if t != nil {
			c.cleanup(ctx, t)
		}
		return counters, nil, err
	}

	res, err := c.runner.Run(ctx, procrun.Request{
		Argv:    t.inv.Argv(),
		Stdin:   t.inv.Input(),
		Dir:     c.cfg.WorkDir,
		Timeout: c.cfg.Timeout,
	})
	if err != nil {
		c.cleanup(ctx, t)
		return counters, nil, hasherr.Wrap(hasherr.InternalIO, "run subject", err)
	}
	c.metrics.Execution(alg, "subject", res.Elapsed)

	switch {
	case res.Crashed():
		counters.Crashes = 1
		c.metrics.Trial(alg, metrics.OutcomeCrash)
		rec := c.retain(ctx, t, res, report.FailureRecord{
			Kind:       report.KindCrash,
			Diagnostic: fmt.Sprintf("fatal signal status %d", res.ExitStatus),
		})
		c.log.Error(ctx, "subject crashed", nil,
			"command", t.inv.String(), "status", res.ExitStatus, "stderr", res.StderrText())
		return counters, rec, nil

	case res.TimedOut():
		counters.Timeouts = 1
		c.metrics.Trial(alg, metrics.OutcomeTimeout)
		c.log.Warn(ctx, "subject timed out; trial dropped", "command", t.inv.String())
		c.cleanup(ctx, t)
		return counters, &report.FailureRecord{
			Kind:       report.KindTimeoutIgnored,
			Algorithm:  alg,
			Trial:      index,
			Invocation: *t.inv,
			Subject:    report.NewExecution(t.inv, res),
			Diagnostic: res.Diagnostic,
		}, nil

	case res.ExitStatus != 0:
		counters.NotVerifiable = 1
		c.metrics.Trial(alg, metrics.OutcomeNotVerifiable)
		c.log.Debug(ctx, "subject exited non-zero; not verifiable",
			"command", t.inv.String(), "status", res.ExitStatus, "stderr", res.StderrText())
		c.cleanup(ctx, t)
		return counters, nil, nil
	}

	out, err := c.cmp.Compare(ctx, t.inv, res)
	if err != nil {
		c.cleanup(ctx, t)
		return counters, nil, err
	}
	for _, ch := range out.Checks {
		c.metrics.Check(alg, string(ch.Verdict))
	}

	switch out.Verdict {
	case compare.Mismatch:
		counters.Mismatches = 1
		c.metrics.Trial(alg, metrics.OutcomeMismatch)
		rec := c.retain(ctx, t, res, report.FailureRecord{
			Kind:       report.KindMismatch,
			Records:    out.Records,
			Checks:     out.Checks,
			Diagnostic: out.Detail,
		})
		c.log.Error(ctx, "digest mismatch", nil, "command", t.inv.String(), "detail", out.Detail)
		return counters, rec, nil
	case compare.NotVerifiable:
		counters.NotVerifiable = 1
		c.metrics.Trial(alg, metrics.OutcomeNotVerifiable)
		c.log.Debug(ctx, "trial not verifiable", "command", t.inv.String(), "detail", out.Detail)
	default:
		if out.Skipped {
			counters.Skipped = 1
			c.metrics.Trial(alg, metrics.OutcomeSkipped)
		} else {
			counters.Passed = 1
			c.metrics.Trial(alg, metrics.OutcomePass)
		}
		c.log.Debug(ctx, "trial passed", "command", t.inv.String(), "skipped", out.Skipped)
	}
	c.cleanup(ctx, t)
	return counters, nil, nil
}

// generate builds the invocation for one trial and creates its input files.
// On error the returned trial lists whatever was already written.
func (c *Campaign) generate(alg string, index int) (*trial, error) {
	t := &trial{index: index, suffix: c.gen.Suffix()}
	shape := invocation.Shapes[c.gen.IntRange(0, len(invocation.Shapes)-1)]

	inv := &invocation.Invocation{
		Path:      c.cfg.Subject,
		Algorithm: alg,
		Options:   c.options.Random(),
	}

	if shape == invocation.ShapeFiles || shape == invocation.ShapeBoth {
		n := c.gen.IntRange(1, c.cfg.MaxFiles)
		for j := 1; j <= n; j++ {
			binary := c.gen.Bool()
			ext := "txt"
			if binary {
				ext = "bin"
			}
			path := filepath.Join(c.cfg.WorkDir, fmt.Sprintf("data_%s_%d.%s", t.suffix, j, ext))
			if _, err := c.gen.WriteRandomFile(path, c.gen.IntRange(0, c.cfg.MaxPayload), binary); err != nil {
				return t, hasherr.Wrap(hasherr.InternalIO, "generate input file", err)
			}
			t.paths = append(t.paths, artifactPath{path: path, role: "file"})
			inv.Files = append(inv.Files, path)
		}
	}

	if shape == invocation.ShapeStdin || shape == invocation.ShapeBoth {
		payload := c.gen.Payload(c.gen.IntRange(0, c.cfg.MaxPayload), c.gen.Bool())
		path := filepath.Join(c.cfg.WorkDir, fmt.Sprintf("stdin_%s.txt", t.suffix))
		if err := os.WriteFile(path, payload, 0o600); err != nil {
			return t, hasherr.Wrap(hasherr.InternalIO, "write stdin payload", err)
		}
		t.paths = append(t.paths, artifactPath{path: path, role: "stdin"})
		inv.Stdin = payload
		inv.Piped = true
		inv.StdinPath = path
	}

	if err := inv.Validate(); err != nil {
		return t, hasherr.Wrap(hasherr.InternalError, "generated invalid invocation", err)
	}
	t.inv = inv
	return t, nil
}

// retain keeps the trial's files, writes the raw subject and reference
// output beside them and fingerprints everything into the failure record.
func (c *Campaign) retain(ctx context.Context, t *trial, res *procrun.Result, rec report.FailureRecord) *report.FailureRecord {
	runs := report.ReferenceRuns(rec.Checks)
	for _, o := range report.Outputs(t.suffix, res, runs) {
		path := filepath.Join(c.cfg.WorkDir, o.Name)
		if err := os.WriteFile(path, o.Data, 0o600); err != nil {
			c.log.Warn(ctx, "could not keep captured output", "path", path, "error", err.Error())
			continue
		}
		t.paths = append(t.paths, artifactPath{path: path, role: o.Role})
	}

	for _, p := range t.paths {
		art, err := report.Fingerprint(p.path, p.role)
		if err != nil {
			c.log.Warn(ctx, "could not fingerprint artifact", "path", p.path, "error", err.Error())
			continue
		}
		rec.Artifacts = append(rec.Artifacts, art)
	}
	c.metrics.Retained(len(rec.Artifacts))

	rec.Algorithm = t.inv.Algorithm
	rec.Trial = t.index
	rec.Invocation = *t.inv
	rec.Subject = report.NewExecution(t.inv, res)
	rec.Reference = report.ReferenceExecutions(runs)
	return &rec
}

// cleanup removes the trial's files. Failures are logged and dropped.
func (c *Campaign) cleanup(ctx context.Context, t *trial) {
	for _, p := range t.paths {
		if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
			c.log.Debug(ctx, "cleanup failed", "path", p.path, "error", err.Error())
		}
	}
}
