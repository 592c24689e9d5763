// Package report holds the append-only failure collection of a campaign or
// suite run and its on-disk form.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/kballard/go-shellquote"

	"github.com/lattice-substrate/hashdiff/compare"
	"github.com/lattice-substrate/hashdiff/extract"
	"github.com/lattice-substrate/hashdiff/hasherr"
	"github.com/lattice-substrate/hashdiff/invocation"
	"github.com/lattice-substrate/hashdiff/procrun"
)

const SchemaVersion = "hashdiff.report.v1"

// Kind is the failure category of a record.
type Kind string

const (
	KindCrash          Kind = "crash"
	KindMismatch       Kind = "mismatch"
	KindTimeoutIgnored Kind = "timeout-ignored"
)

// Class maps k onto the error taxonomy.
func (k Kind) Class() hasherr.FailureClass {
	switch k {
	case KindCrash:
		return hasherr.Crash
	case KindMismatch:
		return hasherr.Mismatch
	default:
		return hasherr.Timeout
	}
}

// Execution is the persisted form of one process run.
type Execution struct {
	Command    string `json:"command"`
	ExitStatus int    `json:"exit_status"`
	Signaled   bool   `json:"signaled,omitempty"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ElapsedNS  int64  `json:"elapsed_ns"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// NewExecution captures res for inv with streams decoded lossily.
func NewExecution(inv *invocation.Invocation, res *procrun.Result) Execution {
	return newExecution(inv.String(), res)
}

// ReferenceExecutions captures every reference run for a failure record.
func ReferenceExecutions(runs []*compare.ReferenceRun) []Execution {
	var out []Execution
	for _, run := range runs {
		out = append(out, newExecution(shellquote.Join(run.Argv...), run.Result))
	}
	return out
}

// ReferenceRuns returns the reference runs behind checks, in check order.
func ReferenceRuns(checks []compare.Check) []*compare.ReferenceRun {
	var out []*compare.ReferenceRun
	for _, ch := range checks {
		if ch.Run != nil && ch.Run.Result != nil {
			out = append(out, ch.Run)
		}
	}
	return out
}

// Output is one captured stream kept beside a failure.
type Output struct {
	Name string
	Role string
	Data []byte
}

// Outputs lists the subject streams of res and the streams of every
// reference run, named after stem.
func Outputs(stem string, res *procrun.Result, runs []*compare.ReferenceRun) []Output {
	out := []Output{
		{Name: fmt.Sprintf("out_%s.stdout", stem), Role: "stdout", Data: res.Stdout},
		{Name: fmt.Sprintf("out_%s.stderr", stem), Role: "stderr", Data: res.Stderr},
	}
	for i, run := range runs {
		out = append(out,
			Output{Name: fmt.Sprintf("ref_%s_%d.stdout", stem, i+1), Role: "reference_stdout", Data: run.Result.Stdout},
			Output{Name: fmt.Sprintf("ref_%s_%d.stderr", stem, i+1), Role: "reference_stderr", Data: run.Result.Stderr},
		)
	}
	return out
}

func newExecution(command string, res *procrun.Result) Execution {
	return Execution{
		Command:    command,
		ExitStatus: res.ExitStatus,
		Signaled:   res.Signaled,
		Stdout:     res.StdoutText(),
		Stderr:     res.StderrText(),
		ElapsedNS:  res.Elapsed.Nanoseconds(),
		Diagnostic: res.Diagnostic,
	}
}

// Artifact is a retained file with its content fingerprint.
type Artifact struct {
	Path   string `json:"path"`
	Role   string `json:"role"`
	Size   int64  `json:"size"`
	BLAKE3 string `json:"blake3"`
}

// FailureRecord is one surfaced or ignored failure.
type FailureRecord struct {
	Kind       Kind                  `json:"kind"`
	Algorithm  string                `json:"algorithm"`
	Trial      int                   `json:"trial,omitempty"`
	Scenario   string                `json:"scenario,omitempty"`
	Invocation invocation.Invocation `json:"invocation"`
	Subject    Execution             `json:"subject"`
	Reference  []Execution           `json:"reference,omitempty"`
	Records    []extract.Record      `json:"records,omitempty"`
	Checks     []compare.Check       `json:"checks,omitempty"`
	Diagnostic string                `json:"diagnostic,omitempty"`
	Artifacts  []Artifact            `json:"artifacts,omitempty"`
}

// Counters tallies trial outcomes. Timeouts count toward neither pass nor fail.
type Counters struct {
	Trials        int `json:"trials"`
	Passed        int `json:"passed"`
	Skipped       int `json:"skipped"`
	NotVerifiable int `json:"not_verifiable"`
	Crashes       int `json:"crashes"`
	Mismatches    int `json:"mismatches"`
	Timeouts      int `json:"timeouts"`
}

// Add accumulates o into c.
func (c *Counters) Add(o Counters) {
	c.Trials += o.Trials
	c.Passed += o.Passed
	c.Skipped += o.Skipped
	c.NotVerifiable += o.NotVerifiable
	c.Crashes += o.Crashes
	c.Mismatches += o.Mismatches
	c.Timeouts += o.Timeouts
}

// Report is the externally visible result of a run. Seed is kept as decimal
// text since canonical JSON numbers cannot carry every uint64.
type Report struct {
	SchemaVersion  string              `json:"schema_version"`
	RunID          string              `json:"run_id"`
	Mode           string              `json:"mode"`
	GeneratedAtUTC string              `json:"generated_at_utc"`
	Seed           string              `json:"seed,omitempty"`
	Subject        string              `json:"subject"`
	Reference      compare.Reference   `json:"reference"`
	WorkDir        string              `json:"work_dir"`
	Algorithms     []string            `json:"algorithms"`
	Totals         Counters            `json:"totals"`
	PerAlgorithm   map[string]Counters `json:"per_algorithm,omitempty"`
	Failures       []FailureRecord     `json:"failures"`
}

// New returns an empty report.
func New(runID, mode string) *Report {
	return &Report{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		Mode:          mode,
		PerAlgorithm:  map[string]Counters{},
		Failures:      []FailureRecord{},
	}
}

// Append adds rec. Records are never removed.
func (r *Report) Append(rec FailureRecord) {
	r.Failures = append(r.Failures, rec)
}

// Tally adds c to the totals and to the per-algorithm counters.
func (r *Report) Tally(algorithm string, c Counters) {
	r.Totals.Add(c)
	if r.PerAlgorithm == nil {
		r.PerAlgorithm = map[string]Counters{}
	}
	cur := r.PerAlgorithm[algorithm]
	cur.Add(c)
	r.PerAlgorithm[algorithm] = cur
}

// Surfaced returns the crash and mismatch records.
func (r *Report) Surfaced() []FailureRecord {
	var out []FailureRecord
	for _, f := range r.Failures {
		if f.Kind.Class().Surfaced() {
			out = append(out, f)
		}
	}
	return out
}

// Passed reports the pass condition: no surfaced failure records.
func (r *Report) Passed() bool {
	return len(r.Surfaced()) == 0
}

// ExitCode is the process exit code the report implies.
func (r *Report) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return hasherr.Mismatch.ExitCode()
}

// Marshal renders r as RFC 8785 canonical JSON followed by a newline.
func Marshal(r *Report) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("report is nil")
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	canon, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize report: %w", err)
	}
	return append(canon, '\n'), nil
}

// Write stores r at path atomically.
func Write(path string, r *Report) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}
	return WriteAtomic(path, data)
}

// Load reads and checks a report written by Write.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var r Report
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if r.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema_version %q", r.SchemaVersion)
	}
	if r.RunID == "" {
		return nil, fmt.Errorf("report missing run_id")
	}
	return &r, nil
}

// WriteAtomic writes data to a temp file beside path, syncs it and renames
// it into place.
func WriteAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".hashdiff-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp to final: %w", err)
	}
	success = true
	return nil
}

// Summarize writes a human-readable digest of r.
func Summarize(w io.Writer, r *Report) error {
	var b strings.Builder
	status := "PASS"
	if !r.Passed() {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "%s run %s (%s) %s\n", status, r.RunID, r.Mode, r.GeneratedAtUTC)
	fmt.Fprintf(&b, "subject=%s reference=%s algorithms=%s\n",
		r.Subject, r.Reference.Path, strings.Join(r.Algorithms, ","))
	writeCounters(&b, "total", r.Totals)

	algs := make([]string, 0, len(r.PerAlgorithm))
	for alg := range r.PerAlgorithm {
		algs = append(algs, alg)
	}
	sort.Strings(algs)
	for _, alg := range algs {
		writeCounters(&b, alg, r.PerAlgorithm[alg])
	}

	for i, f := range r.Failures {
		where := f.Scenario
		if where == "" {
			where = fmt.Sprintf("trial %d", f.Trial)
		}
		fmt.Fprintf(&b, "[%d] %s %s %s: %s\n", i+1, f.Kind, f.Algorithm, where, f.Subject.Command)
		if f.Diagnostic != "" {
			fmt.Fprintf(&b, "    %s\n", f.Diagnostic)
		}
		for _, a := range f.Artifacts {
			fmt.Fprintf(&b, "    %s %s\n", a.Role, a.Path)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeCounters(b *strings.Builder, name string, c Counters) {
	fmt.Fprintf(b, "%-8s trials=%d passed=%d skipped=%d not_verifiable=%d crashes=%d mismatches=%d timeouts=%d\n",
		name, c.Trials, c.Passed, c.Skipped, c.NotVerifiable, c.Crashes, c.Mismatches, c.Timeouts)
}
