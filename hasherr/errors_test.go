package hasherr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lattice-substrate/hashdiff/hasherr"
)

func TestFailureClassExitCodes(t *testing.T) {
	cases := []struct {
		class    hasherr.FailureClass
		wantExit int
	}{
		{hasherr.Crash, 1},
		{hasherr.Mismatch, 1},
		{hasherr.Timeout, 0},
		{hasherr.NotVerifiable, 0},
		{hasherr.CLIUsage, 2},
		{hasherr.Config, 2},
		{hasherr.InternalIO, 10},
		{hasherr.InternalError, 10},
	}
	for _, tc := range cases {
		if got := tc.class.ExitCode(); got != tc.wantExit {
			t.Errorf("%s.ExitCode() = %d, want %d", tc.class, got, tc.wantExit)
		}
	}
}

func TestSurfacedClasses(t *testing.T) {
	for _, fc := range []hasherr.FailureClass{hasherr.Crash, hasherr.Mismatch} {
		if !fc.Surfaced() {
			t.Errorf("%s should be surfaced", fc)
		}
	}
	for _, fc := range []hasherr.FailureClass{hasherr.Timeout, hasherr.NotVerifiable, hasherr.InternalIO} {
		if fc.Surfaced() {
			t.Errorf("%s should not be surfaced", fc)
		}
	}
}

func TestErrorFormat(t *testing.T) {
	e := hasherr.New(hasherr.Config, "trials must be >= 1")
	if e.Error() != "hasherr: CONFIG: trials must be >= 1" {
		t.Fatalf("unexpected error string: %s", e.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	e := hasherr.Wrap(hasherr.InternalIO, "write report", cause)
	if !errors.Is(e, cause) {
		t.Fatal("Unwrap did not return cause")
	}
	if got := e.Error(); got != "hasherr: INTERNAL_IO: write report: disk full" {
		t.Fatalf("unexpected wrapped error string: %s", got)
	}
}

func TestErrorAsThroughWrap(t *testing.T) {
	err := fmt.Errorf("load config: %w", hasherr.New(hasherr.Config, "work_dir is required"))
	var target *hasherr.Error
	if !errors.As(err, &target) {
		t.Fatal("errors.As failed")
	}
	if target.Class != hasherr.Config {
		t.Fatalf("class = %s, want CONFIG", target.Class)
	}
}
