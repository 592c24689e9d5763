package suite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lattice-substrate/hashdiff/compare"
	"github.com/lattice-substrate/hashdiff/hasherr"
	"github.com/lattice-substrate/hashdiff/invocation"
	"github.com/lattice-substrate/hashdiff/metrics"
	"github.com/lattice-substrate/hashdiff/procrun"
	"github.com/lattice-substrate/hashdiff/report"
)

// env is the working state of one scenario for one algorithm.
type env struct {
	s        *Suite
	alg      string
	scenario string
	dir      string
	cmp      *compare.Comparator

	counters report.Counters
	failures []report.FailureRecord
}

func (s *Suite) newEnv(root, alg, scenario string) (*env, error) {
	dir := filepath.Join(root, fmt.Sprintf("%s_%s_%s", scenario, alg, s.gen.Suffix()))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, hasherr.Wrap(hasherr.InternalIO, "create scenario dir", err)
	}
	return &env{
		s:        s,
		alg:      alg,
		scenario: scenario,
		dir:      dir,
		cmp: &compare.Comparator{
			Runner:    s.runner,
			Reference: s.cfg.Reference,
			WorkDir:   dir,
			Timeout:   s.cfg.Timeout,
		},
	}, nil
}

// finish removes the scenario directory unless a surfaced failure needs it.
func (e *env) finish(ctx context.Context) {
	if e.surfaced() > 0 {
		e.s.log.Info(ctx, "scenario artifacts kept", "dir", e.dir)
		return
	}
	if err := os.RemoveAll(e.dir); err != nil {
		e.s.log.Debug(ctx, "cleanup failed", "path", e.dir, "error", err.Error())
	}
}

func (e *env) surfaced() int {
	n := 0
	for _, f := range e.failures {
		if f.Kind.Class().Surfaced() {
			n++
		}
	}
	return n
}

// write creates name inside the scenario directory.
func (e *env) write(name string, content []byte) error {
	if err := os.WriteFile(filepath.Join(e.dir, name), content, 0o600); err != nil {
		return hasherr.Wrap(hasherr.InternalIO, "write scenario file", err)
	}
	return nil
}

// read returns the content of a scenario file, never nil.
func (e *env) read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(e.dir, name))
	if err != nil {
		return nil, hasherr.Wrap(hasherr.InternalIO, "read scenario file", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// subject returns an invocation of the subject on relative file names.
func (e *env) subject(opts []invocation.Option, files ...string) *invocation.Invocation {
	return &invocation.Invocation{
		Path:      e.s.cfg.Subject,
		Algorithm: e.alg,
		Options:   opts,
		Files:     files,
	}
}

// piped attaches a stdin payload to inv and keeps a copy on disk.
func (e *env) piped(inv *invocation.Invocation, name string, payload []byte) (*invocation.Invocation, error) {
	if err := e.write(name, payload); err != nil {
		return nil, err
	}
	inv.Stdin = payload
	inv.Piped = true
	inv.StdinPath = filepath.Join(e.dir, name)
	return inv, nil
}

func (e *env) run(ctx context.Context, inv *invocation.Invocation) (*procrun.Result, error) {
	res, err := e.s.runner.Run(ctx, procrun.Request{
		Argv:    inv.Argv(),
		Stdin:   inv.Input(),
		Dir:     e.dir,
		Timeout: e.s.cfg.Timeout,
	})
	if err != nil {
		return nil, hasherr.Wrap(hasherr.InternalIO, "run subject", err)
	}
	e.s.metrics.Execution(e.alg, "subject", res.Elapsed)
	return res, nil
}

// reference runs the reference tool as "<path> [args] <alg> extra...".
func (e *env) reference(ctx context.Context, stdin []byte, extra ...string) (*compare.ReferenceRun, error) {
	argv := make([]string, 0, len(e.s.cfg.Reference.Args)+2+len(extra))
	argv = append(argv, e.s.cfg.Reference.Path)
	argv = append(argv, e.s.cfg.Reference.Args...)
	argv = append(argv, e.alg)
	argv = append(argv, extra...)
	res, err := e.s.runner.Run(ctx, procrun.Request{Argv: argv, Stdin: stdin, Dir: e.dir, Timeout: e.s.cfg.Timeout})
	if err != nil {
		return nil, hasherr.Wrap(hasherr.InternalIO, "run reference", err)
	}
	e.s.metrics.Execution(e.alg, "reference", res.Elapsed)
	return &compare.ReferenceRun{Argv: argv, Result: res}, nil
}

// settle counts a case and reports whether the caller should go on to judge
// its output.
func (e *env) settle(ctx context.Context, name string, inv *invocation.Invocation, res *procrun.Result) bool {
	e.counters.Trials++
	return !e.abnormal(ctx, name, inv, res)
}

// abnormal records a crash or a timeout of res.
func (e *env) abnormal(ctx context.Context, name string, inv *invocation.Invocation, res *procrun.Result) bool {
	switch {
	case res.Crashed():
		e.counters.Crashes++
		e.s.metrics.Trial(e.alg, metrics.OutcomeCrash)
		e.fail(ctx, report.FailureRecord{
			Kind:       report.KindCrash,
			Diagnostic: fmt.Sprintf("fatal signal status %d", res.ExitStatus),
		}, name, inv, res)
		e.s.log.Error(ctx, "subject crashed", nil,
			"case", name, "command", inv.String(), "status", res.ExitStatus, "stderr", res.StderrText())
		return true
	case res.TimedOut():
		e.counters.Timeouts++
		e.s.metrics.Trial(e.alg, metrics.OutcomeTimeout)
		e.failures = append(e.failures, report.FailureRecord{
			Kind:       report.KindTimeoutIgnored,
			Algorithm:  e.alg,
			Scenario:   e.scenario + "/" + name,
			Invocation: *inv,
			Subject:    report.NewExecution(inv, res),
			Diagnostic: res.Diagnostic,
		})
		e.s.log.Warn(ctx, "subject timed out; case dropped", "case", name, "command", inv.String())
		return true
	}
	return false
}

func (e *env) pass(ctx context.Context, name string) {
	e.counters.Passed++
	e.s.metrics.Trial(e.alg, metrics.OutcomePass)
	e.s.log.Debug(ctx, "case passed", "case", name)
}

func (e *env) unverifiable(ctx context.Context, name, why string) {
	e.counters.NotVerifiable++
	e.s.metrics.Trial(e.alg, metrics.OutcomeNotVerifiable)
	e.s.log.Debug(ctx, "case not verifiable", "case", name, "detail", why)
}

func (e *env) mismatch(ctx context.Context, name string, inv *invocation.Invocation, res *procrun.Result, rec report.FailureRecord, runs ...*compare.ReferenceRun) {
	e.counters.Mismatches++
	e.s.metrics.Trial(e.alg, metrics.OutcomeMismatch)
	rec.Kind = report.KindMismatch
	e.fail(ctx, rec, name, inv, res, runs...)
	e.s.log.Error(ctx, "case mismatch", nil, "case", name, "command", inv.String(), "detail", rec.Diagnostic)
}

// exitZero turns an unexpected nonzero exit into a mismatch.
func (e *env) exitZero(ctx context.Context, name string, inv *invocation.Invocation, res *procrun.Result) bool {
	if res.ExitStatus == 0 {
		return true
	}
	e.mismatch(ctx, name, inv, res, report.FailureRecord{
		Diagnostic: fmt.Sprintf("exit status %d, want 0", res.ExitStatus),
	})
	return false
}

// verify runs inv and checks every digest it prints against the reference.
func (e *env) verify(ctx context.Context, name string, inv *invocation.Invocation) error {
	res, err := e.run(ctx, inv)
	if err != nil {
		return err
	}
	if !e.settle(ctx, name, inv, res) || !e.exitZero(ctx, name, inv, res) {
		return nil
	}
	out, err := e.cmp.Compare(ctx, inv, res)
	if err != nil {
		return err
	}
	for _, ch := range out.Checks {
		e.s.metrics.Check(e.alg, string(ch.Verdict))
	}
	switch out.Verdict {
	case compare.Mismatch:
		e.mismatch(ctx, name, inv, res, report.FailureRecord{
			Records:    out.Records,
			Checks:     out.Checks,
			Diagnostic: out.Detail,
		})
	case compare.NotVerifiable:
		e.unverifiable(ctx, name, out.Detail)
	default:
		e.pass(ctx, name)
	}
	return nil
}

// expectLines runs inv and compares its trimmed output with want. When exact
// is false, want must appear as an ordered subsequence of the output lines.
func (e *env) expectLines(ctx context.Context, name string, inv *invocation.Invocation, want []string, exact bool) error {
	res, err := e.run(ctx, inv)
	if err != nil {
		return err
	}
	if !e.settle(ctx, name, inv, res) || !e.exitZero(ctx, name, inv, res) {
		return nil
	}
	got := outputLines(res.StdoutText())
	ok := containsInOrder(got, want)
	if exact {
		ok = strings.Join(got, "\n") == strings.Join(want, "\n")
	}
	if !ok {
		e.mismatch(ctx, name, inv, res, report.FailureRecord{
			Diagnostic: fmt.Sprintf("want %q, got %q", strings.Join(want, "\n"), strings.Join(got, "\n")),
		})
		return nil
	}
	e.pass(ctx, name)
	return nil
}

// oracle returns reference digests of fixed contents, keyed by content.
// A reference that cannot answer yields ok=false.
func (e *env) oracle(ctx context.Context, contents ...string) (map[string]string, bool, error) {
	sums := make(map[string]string, len(contents))
	for _, c := range contents {
		sum, err := e.cmp.DigestBytes(ctx, e.alg, []byte(c))
		if err != nil {
			var herr *hasherr.Error
			if errors.As(err, &herr) && herr.Class == hasherr.NotVerifiable {
				e.s.log.Warn(ctx, "reference could not digest fixed content", "detail", herr.Message)
				return nil, false, nil
			}
			return nil, false, err
		}
		sums[c] = sum
	}
	return sums, true, nil
}

type artifactPath struct {
	path string
	role string
}

// fail records a failure and keeps the files it needs for diagnosis. Reference
// runs behind rec's checks are kept along with any extra runs.
func (e *env) fail(ctx context.Context, rec report.FailureRecord, name string, inv *invocation.Invocation, res *procrun.Result, extra ...*compare.ReferenceRun) {
	runs := append(report.ReferenceRuns(rec.Checks), extra...)
	var paths []artifactPath
	for _, f := range inv.Files {
		path := f
		if !filepath.IsAbs(path) {
			path = filepath.Join(e.dir, f)
		}
		paths = append(paths, artifactPath{path, "file"})
	}
	if inv.StdinPath != "" {
		paths = append(paths, artifactPath{inv.StdinPath, "stdin"})
	}
	for _, o := range report.Outputs(fileSafe(name), res, runs) {
		path := filepath.Join(e.dir, o.Name)
		if err := os.WriteFile(path, o.Data, 0o600); err != nil {
			e.s.log.Warn(ctx, "could not keep captured output", "path", path, "error", err.Error())
			continue
		}
		paths = append(paths, artifactPath{path, o.Role})
	}
	for _, p := range paths {
		art, err := report.Fingerprint(p.path, p.role)
		if err != nil {
			// Missing input files are part of some cases, e.g. a flag read as a file name.
			e.s.log.Debug(ctx, "artifact not fingerprinted", "path", p.path, "error", err.Error())
			continue
		}
		rec.Artifacts = append(rec.Artifacts, art)
	}
	e.s.metrics.Retained(len(rec.Artifacts))

	rec.Algorithm = e.alg
	rec.Scenario = e.scenario + "/" + name
	rec.Invocation = *inv
	rec.Subject = report.NewExecution(inv, res)
	rec.Reference = report.ReferenceExecutions(runs)
	e.failures = append(e.failures, rec)
}

func outputLines(text string) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func containsInOrder(got, want []string) bool {
	i := 0
	for _, line := range got {
		if i < len(want) && line == want[i] {
			i++
		}
	}
	return i == len(want)
}

func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}
