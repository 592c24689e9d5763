// Package procrun executes one command line as a child process under a hard
// wall-clock timeout and captures its exit status and raw output streams.
//
// A timeout is an expected outcome, not an error: Run returns a synthesized
// Result with ExitStatus == TimeoutStatus instead of failing.
package procrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

const (
	// TimeoutStatus is the reserved exit status of a timed-out run. A real
	// process never reports it.
	TimeoutStatus = -1
	// DefaultTimeout is the wall-clock budget when neither the request nor
	// the runner sets one.
	DefaultTimeout = 2 * time.Second

	timeoutDiagnostic = "Timeout"
	waitDelay         = time.Second
)

// Crash statuses as reported by the subject's original tooling: segmentation
// fault, abort, arithmetic fault and bus error.
var crashStatuses = map[int]struct{}{11: {}, 6: {}, 8: {}, 10: {}}

// Request is one command execution.
type Request struct {
	Argv []string
	// Stdin is piped to the child when non-nil; otherwise the child reads
	// from the null device.
	Stdin   []byte
	Dir     string
	Env     map[string]string
	Timeout time.Duration
}

// Result is the immutable outcome of one execution.
type Result struct {
	ExitStatus int           `json:"exit_status"`
	Signaled   bool          `json:"signaled,omitempty"`
	Stdout     []byte        `json:"-"`
	Stderr     []byte        `json:"-"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	Diagnostic string        `json:"diagnostic,omitempty"`
}

// TimedOut reports whether r is the synthesized timeout result.
func (r *Result) TimedOut() bool {
	return r.ExitStatus == TimeoutStatus
}

// Crashed reports whether r ended in a fatal-signal status.
func (r *Result) Crashed() bool {
	return IsCrashStatus(r.ExitStatus)
}

// StdoutText decodes stdout, replacing invalid UTF-8 with U+FFFD.
func (r *Result) StdoutText() string {
	return DecodeText(r.Stdout)
}

// StderrText decodes stderr, replacing invalid UTF-8 with U+FFFD.
func (r *Result) StderrText() string {
	return DecodeText(r.Stderr)
}

// IsCrashStatus reports whether status belongs to the fatal-signal set.
func IsCrashStatus(status int) bool {
	if status == TimeoutStatus {
		return false
	}
	if _, ok := crashStatuses[status]; ok {
		return true
	}
	for _, sig := range platformCrashSignals {
		if status == sig {
			return true
		}
	}
	return false
}

// DecodeText converts raw output to a string. Hashed content may be arbitrary
// bytes, so invalid sequences become the replacement character instead of
// failing.
func DecodeText(raw []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "�")
	}
	return string(out)
}

// Runner abstracts command execution for the comparator and orchestrator.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// OSRunner executes commands on the host.
type OSRunner struct {
	// Timeout applies to requests that do not set their own.
	Timeout time.Duration
	// Now is injected by tests; it defaults to time.Now.
	Now func() time.Time
}

// Run executes req. The returned error is reserved for harness failures such
// as an empty argv, a missing executable or a cancelled parent context.
func (r OSRunner) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}

	// #nosec G204 -- argv is built from harness configuration and generated options.
	cmd := exec.Command(req.Argv[0], req.Argv[1:]...)
	cmd.Dir = req.Dir
	cmd.WaitDelay = waitDelay
	if len(req.Env) != 0 {
		cmd.Env = mergeEnv(cmd.Environ(), req.Env)
	}
	if req.Stdin != nil {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureGroup(cmd)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", req.Argv[0], err)
	}
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-runCtx.Done():
		killGroup(cmd)
		<-done
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run %q cancelled: %w", req.Argv[0], ctx.Err())
		}
		return &Result{
			ExitStatus: TimeoutStatus,
			Stdout:     []byte{},
			Stderr:     []byte{},
			Elapsed:    now().Sub(start),
			Diagnostic: timeoutDiagnostic,
		}, nil
	case waitErr = <-done:
	}

	res := &Result{
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
		Elapsed: now().Sub(start),
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("run %q failed: %w", req.Argv[0], waitErr)
		}
		if sig, ok := signalOf(exitErr.ProcessState); ok {
			res.ExitStatus = sig
			res.Signaled = true
			res.Diagnostic = fmt.Sprintf("terminated by signal %d", sig)
		} else {
			res.ExitStatus = exitErr.ExitCode()
		}
	}
	return res, nil
}

func mergeEnv(base []string, env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		base = append(base, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return base
}
