package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattice-substrate/hashdiff/compare"
	"github.com/lattice-substrate/hashdiff/invocation"
	"github.com/lattice-substrate/hashdiff/procrun"
)

const blake3Empty = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"

func sampleReport(t *testing.T, dir string) *Report {
	t.Helper()
	r := New("11111111-2222-3333-4444-555555555555", "fuzz")
	r.GeneratedAtUTC = "2026-01-02T03:04:05Z"
	r.Seed = "42"
	r.Subject = "./ft_ssl"
	r.Reference = compare.Reference{Path: "openssl"}
	r.WorkDir = dir
	r.Algorithms = []string{"md5", "sha256"}

	path := filepath.Join(dir, "data_ab.txt")
	require.NoError(t, os.WriteFile(path, []byte{}, 0o600))
	art, err := Fingerprint(path, "file")
	require.NoError(t, err)

	inv := &invocation.Invocation{Path: "./ft_ssl", Algorithm: "md5", Files: []string{path}}
	res := &procrun.Result{ExitStatus: 11, Signaled: true, Stdout: []byte{0xff}, Elapsed: time.Millisecond}
	r.Append(FailureRecord{
		Kind:       KindCrash,
		Algorithm:  "md5",
		Trial:      7,
		Invocation: *inv,
		Subject:    NewExecution(inv, res),
		Diagnostic: "terminated by signal 11",
		Artifacts:  []Artifact{art},
	})
	r.Tally("md5", Counters{Trials: 10, Passed: 8, Crashes: 1, Timeouts: 1})
	return r
}

func TestFingerprintBLAKE3(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	art, err := Fingerprint(path, "file")
	require.NoError(t, err)
	require.Equal(t, blake3Empty, art.BLAKE3)
	require.Equal(t, int64(0), art.Size)

	_, err = Fingerprint(filepath.Join(dir, "missing"), "file")
	require.Error(t, err)
}

func TestNewExecutionDecodesLossily(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport(t, dir)
	exec := r.Failures[0].Subject
	require.Equal(t, "�", exec.Stdout)
	require.Equal(t, 11, exec.ExitStatus)
	require.True(t, exec.Signaled)
	require.Equal(t, int64(time.Millisecond), exec.ElapsedNS)
	require.True(t, strings.HasPrefix(exec.Command, "./ft_ssl md5 "))
}

func TestReferenceRunsAreKeptPerCheck(t *testing.T) {
	md5Run := &compare.ReferenceRun{
		Argv:   []string{"openssl", "md5", "/tmp/a b.txt"},
		Result: &procrun.Result{Stdout: []byte("MD5(/tmp/a b.txt)= 00\n"), Stderr: []byte("warn\n")},
	}
	checks := []compare.Check{
		{Name: "a", Verdict: compare.Mismatch, Run: md5Run},
		{Name: "b", Verdict: compare.NotVerifiable},
		{Name: "c", Verdict: compare.NotVerifiable, Run: &compare.ReferenceRun{Argv: []string{"openssl"}}},
	}
	runs := ReferenceRuns(checks)
	require.Equal(t, []*compare.ReferenceRun{md5Run}, runs)

	execs := ReferenceExecutions(runs)
	require.Len(t, execs, 1)
	require.Equal(t, "openssl md5 '/tmp/a b.txt'", execs[0].Command)
	require.Equal(t, "MD5(/tmp/a b.txt)= 00\n", execs[0].Stdout)

	outs := Outputs("trial_7", &procrun.Result{Stdout: []byte("s"), Stderr: []byte("e")}, runs)
	var names, roles []string
	for _, o := range outs {
		names = append(names, o.Name)
		roles = append(roles, o.Role)
	}
	require.Equal(t, []string{"out_trial_7.stdout", "out_trial_7.stderr", "ref_trial_7_1.stdout", "ref_trial_7_1.stderr"}, names)
	require.Equal(t, []string{"stdout", "stderr", "reference_stdout", "reference_stderr"}, roles)
	require.Equal(t, []byte("warn\n"), outs[3].Data)
}

func TestWriteIsCanonicalAndStable(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport(t, dir)
	p1 := filepath.Join(dir, "a.json")
	p2 := filepath.Join(dir, "b.json")
	require.NoError(t, Write(p1, r))
	require.NoError(t, Write(p2, r))

	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
	require.True(t, bytes.HasPrefix(b1, []byte(`{"algorithms":["md5","sha256"],`)))
	require.False(t, bytes.Contains(b1, []byte("\n  ")))

	loaded, err := Load(p1)
	require.NoError(t, err)
	require.Equal(t, r.RunID, loaded.RunID)
	require.Equal(t, "42", loaded.Seed)
	require.Len(t, loaded.Failures, 1)
	require.Equal(t, KindCrash, loaded.Failures[0].Kind)
	require.Equal(t, r.Failures[0].Artifacts, loaded.Failures[0].Artifacts)
	require.Equal(t, 1, loaded.PerAlgorithm["md5"].Crashes)
}

func TestLoadRejectsForeignDocuments(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"schema":  `{"schema_version":"evidence.v1","run_id":"x"}`,
		"unknown": `{"schema_version":"hashdiff.report.v1","run_id":"x","extra":1}`,
		"run_id":  `{"schema_version":"hashdiff.report.v1"}`,
	} {
		path := filepath.Join(dir, name+".json")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := Load(path)
		require.Error(t, err, name)
	}
}

func TestPassConditionIgnoresTimeouts(t *testing.T) {
	r := New("run", "fuzz")
	require.True(t, r.Passed())
	require.Equal(t, 0, r.ExitCode())

	r.Append(FailureRecord{Kind: KindTimeoutIgnored})
	require.True(t, r.Passed())

	r.Append(FailureRecord{Kind: KindMismatch})
	require.False(t, r.Passed())
	require.Equal(t, 1, r.ExitCode())
	require.Len(t, r.Surfaced(), 1)
}

func TestTallyAccumulates(t *testing.T) {
	r := New("run", "fuzz")
	r.Tally("md5", Counters{Trials: 2, Passed: 2})
	r.Tally("md5", Counters{Trials: 1, Timeouts: 1})
	r.Tally("sha256", Counters{Trials: 1, Mismatches: 1})
	require.Equal(t, Counters{Trials: 3, Passed: 2, Timeouts: 1}, r.PerAlgorithm["md5"])
	require.Equal(t, 4, r.Totals.Trials)
	require.Equal(t, 1, r.Totals.Mismatches)
}

func TestSummarize(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport(t, dir)
	var buf bytes.Buffer
	require.NoError(t, Summarize(&buf, r))
	out := buf.String()
	require.Contains(t, out, "FAIL run 11111111-2222-3333-4444-555555555555 (fuzz)")
	require.Contains(t, out, "[1] crash md5 trial 7: ./ft_ssl md5 ")
	require.Contains(t, out, "terminated by signal 11")
	require.Contains(t, out, "md5      trials=10 passed=8")
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, WriteAtomic(path, []byte("x")))
	require.NoError(t, WriteAtomic(path, []byte("y")))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	err = WriteAtomic(filepath.Join(dir, "missing", "out.json"), []byte("x"))
	require.Error(t, err)
}
