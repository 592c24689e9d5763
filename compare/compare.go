// Package compare decides whether a subject run agrees with the reference
// hash tool for the same input.
//
// The outcome is tri-state. Whenever a digest cannot be recovered or mapped
// to its source, the comparison is not-verifiable rather than a mismatch.
package compare

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lattice-substrate/hashdiff/extract"
	"github.com/lattice-substrate/hashdiff/hasherr"
	"github.com/lattice-substrate/hashdiff/invocation"
	"github.com/lattice-substrate/hashdiff/procrun"
)

// Verdict is the result of one comparison.
type Verdict string

const (
	Match         Verdict = "match"
	Mismatch      Verdict = "mismatch"
	NotVerifiable Verdict = "not-verifiable"
)

// DefaultSkip lists the subject flags the reference tool has no equivalent
// for. Invocations using them are reported as trivially matching.
var DefaultSkip = []invocation.Flag{invocation.Echo, invocation.Quiet}

// Reference is the trusted oracle executable. It is invoked as
// Path Args... <algorithm> [file].
type Reference struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

// ReferenceRun is one execution of the reference tool with its raw result.
type ReferenceRun struct {
	Argv   []string
	Result *procrun.Result
}

// Check is the comparison of one hashed source.
type Check struct {
	Source    extract.Label `json:"source"`
	Name      string        `json:"name"`
	Subject   string        `json:"subject,omitempty"`
	Reference string        `json:"reference,omitempty"`
	Verdict   Verdict       `json:"verdict"`
	Detail    string        `json:"detail,omitempty"`
	// Run is the reference execution behind the check, if one was made.
	Run *ReferenceRun `json:"-"`
}

// Outcome aggregates the checks of one trial.
type Outcome struct {
	Verdict Verdict          `json:"verdict"`
	Skipped bool             `json:"skipped,omitempty"`
	Detail  string           `json:"detail,omitempty"`
	Records []extract.Record `json:"records,omitempty"`
	// Expected is the number of hash operations the invocation implies.
	Expected int     `json:"expected_records"`
	Checks   []Check `json:"checks,omitempty"`
}

// Comparator runs the reference tool and compares digests.
type Comparator struct {
	Runner    procrun.Runner
	Reference Reference
	// WorkDir receives the temporary files literal contents are written to.
	WorkDir string
	Timeout time.Duration
	// Skip overrides DefaultSkip when non-nil.
	Skip []invocation.Flag
}

// Compare checks every source inv hashed against the reference tool. The
// returned error is reserved for harness failures; disagreement and
// ambiguity are reported through the Outcome.
func (c *Comparator) Compare(ctx context.Context, inv *invocation.Invocation, subject *procrun.Result) (Outcome, error) {
	if flag, ok := c.skipped(inv); ok {
		return Outcome{
			Verdict: Match,
			Skipped: true,
			Detail:  fmt.Sprintf("flag %s has no reference equivalent", flag),
		}, nil
	}

	records := extract.Extract(subject.StdoutText(), inv.Shape())
	out := Outcome{Records: records, Expected: inv.ExpectedRecords()}

	// Quoted records pair with literals by position, which is only safe when
	// there are no more of them than literals.
	quoted := extract.Select(records, extract.LabelQuoted)
	literals := inv.Literals()
	for i, lit := range literals {
		if len(quoted) > len(literals) {
			out.Checks = append(out.Checks, unverifiable(extract.LabelQuoted, lit,
				fmt.Sprintf("%d quoted records for %d literals", len(quoted), len(literals))))
			continue
		}
		if i >= len(quoted) {
			out.Checks = append(out.Checks, unverifiable(extract.LabelQuoted, lit, "no quoted record for literal"))
			continue
		}
		content := quoted[i].Source
		check, err := c.check(extract.LabelQuoted, content, quoted[i].Hash, func() (string, *ReferenceRun, error) {
			return c.digestBytes(ctx, inv.Algorithm, []byte(content))
		})
		if err != nil {
			return out, err
		}
		out.Checks = append(out.Checks, check)
	}

	for _, name := range inv.Files {
		rec, ok := extract.ForFile(records, name)
		if !ok {
			out.Checks = append(out.Checks, unverifiable(extract.LabelFilename, name, "no record names the file"))
			continue
		}
		path := name
		check, err := c.check(extract.LabelFilename, name, rec.Hash, func() (string, *ReferenceRun, error) {
			return c.digest(ctx, inv.Algorithm, []string{path}, nil)
		})
		if err != nil {
			return out, err
		}
		out.Checks = append(out.Checks, check)
	}

	if inv.Piped && len(inv.Files) == 0 {
		stdin := extract.Select(records, extract.LabelStdin)
		if len(stdin) == 0 {
			out.Checks = append(out.Checks, unverifiable(extract.LabelStdin, "stdin", "no stdin record"))
		} else {
			check, err := c.check(extract.LabelStdin, "stdin", stdin[0].Hash, func() (string, *ReferenceRun, error) {
				return c.digest(ctx, inv.Algorithm, nil, inv.Input())
			})
			if err != nil {
				return out, err
			}
			out.Checks = append(out.Checks, check)
		}
	} else if inv.Piped {
		out.Detail = "stdin combined with file arguments is not verified"
	}

	if len(records) != out.Expected && len(out.Checks) > 0 {
		out.Checks = append(out.Checks, unverifiable(extract.LabelNone, "records",
			fmt.Sprintf("%d records for %d expected hash operations", len(records), out.Expected)))
	}

	out.Verdict, out.Detail = aggregate(out.Checks, out.Detail)
	return out, nil
}

func (c *Comparator) skipped(inv *invocation.Invocation) (invocation.Flag, bool) {
	skip := c.Skip
	if skip == nil {
		skip = DefaultSkip
	}
	for _, f := range skip {
		if inv.Has(f) {
			return f, true
		}
	}
	return "", false
}

// check compares got against the digest returned by ref. A not-verifiable
// reference answer becomes a check; any other error is returned.
func (c *Comparator) check(label extract.Label, name, got string, ref func() (string, *ReferenceRun, error)) (Check, error) {
	want, run, err := ref()
	if err != nil {
		var he *hasherr.Error
		if errors.As(err, &he) && he.Class == hasherr.NotVerifiable {
			check := unverifiable(label, name, he.Message)
			check.Run = run
			return check, nil
		}
		return Check{}, err
	}
	check := Check{Source: label, Name: name, Subject: got, Reference: want, Verdict: Match, Run: run}
	if got != want {
		check.Verdict = Mismatch
		check.Detail = fmt.Sprintf("%s %q: subject %s, reference %s", label, name, got, want)
	}
	return check, nil
}

func unverifiable(label extract.Label, name, why string) Check {
	return Check{Source: label, Name: name, Verdict: NotVerifiable, Detail: why}
}

// aggregate folds checks into one verdict: any mismatch wins, then any
// unverifiable check. No checks at all is not-verifiable.
func aggregate(checks []Check, note string) (Verdict, string) {
	if len(checks) == 0 {
		if note == "" {
			note = "no verifiable sources"
		}
		return NotVerifiable, note
	}
	verdict := Match
	detail := note
	for _, ch := range checks {
		switch ch.Verdict {
		case Mismatch:
			return Mismatch, ch.Detail
		case NotVerifiable:
			if verdict == Match {
				verdict = NotVerifiable
				detail = ch.Detail
			}
		}
	}
	return verdict, detail
}

// DigestFile returns the reference digest of the file at path.
func (c *Comparator) DigestFile(ctx context.Context, algorithm, path string) (string, error) {
	sum, _, err := c.digest(ctx, algorithm, []string{path}, nil)
	return sum, err
}

// DigestStdin returns the reference digest of payload piped on stdin.
func (c *Comparator) DigestStdin(ctx context.Context, algorithm string, payload []byte) (string, error) {
	if payload == nil {
		payload = []byte{}
	}
	sum, _, err := c.digest(ctx, algorithm, nil, payload)
	return sum, err
}

// DigestBytes writes content to a fresh temporary file in WorkDir and returns
// its reference digest. The content never passes through an argument list.
func (c *Comparator) DigestBytes(ctx context.Context, algorithm string, content []byte) (string, error) {
	sum, _, err := c.digestBytes(ctx, algorithm, content)
	return sum, err
}

func (c *Comparator) digestBytes(ctx context.Context, algorithm string, content []byte) (string, *ReferenceRun, error) {
	f, err := os.CreateTemp(c.WorkDir, "literal_*.txt")
	if err != nil {
		return "", nil, hasherr.Wrap(hasherr.InternalIO, "create literal file", err)
	}
	path := f.Name()
	defer func() {
		_ = os.Remove(path)
	}()
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return "", nil, hasherr.Wrap(hasherr.InternalIO, "write literal file", err)
	}
	if err := f.Close(); err != nil {
		return "", nil, hasherr.Wrap(hasherr.InternalIO, "close literal file", err)
	}
	return c.digest(ctx, algorithm, []string{path}, nil)
}

// digest runs the reference tool once. The run is returned whenever the
// process was started, including when its answer is not usable.
func (c *Comparator) digest(ctx context.Context, algorithm string, files []string, stdin []byte) (string, *ReferenceRun, error) {
	argv := make([]string, 0, len(c.Reference.Args)+2+len(files))
	argv = append(argv, c.Reference.Path)
	argv = append(argv, c.Reference.Args...)
	argv = append(argv, algorithm)
	argv = append(argv, files...)

	res, err := c.Runner.Run(ctx, procrun.Request{Argv: argv, Stdin: stdin, Dir: c.WorkDir, Timeout: c.Timeout})
	if err != nil {
		return "", nil, hasherr.Wrap(hasherr.InternalIO, "run reference", err)
	}
	run := &ReferenceRun{Argv: argv, Result: res}
	if res.TimedOut() {
		return "", run, hasherr.New(hasherr.NotVerifiable, "reference timed out")
	}
	if res.ExitStatus != 0 {
		return "", run, hasherr.New(hasherr.NotVerifiable, fmt.Sprintf("reference exited %d", res.ExitStatus))
	}
	hex, ok := extract.TrailingHex(res.StdoutText())
	if !ok {
		return "", run, hasherr.New(hasherr.NotVerifiable, "no digest in reference output")
	}
	return hex, run, nil
}
