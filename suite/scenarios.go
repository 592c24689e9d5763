package suite

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/lattice-substrate/hashdiff/inputgen"
	"github.com/lattice-substrate/hashdiff/invocation"
	"github.com/lattice-substrate/hashdiff/optgen"
	"github.com/lattice-substrate/hashdiff/report"
)

func boundaryDigests(ctx context.Context, e *env) error {
	paths, err := e.s.gen.BoundaryCatalog(e.dir, inputgen.BlockSize, e.s.cfg.BoundaryBlocks...)
	if err != nil {
		return fmt.Errorf("boundary catalog: %w", err)
	}
	for _, p := range paths {
		name := filepath.Base(p)
		if err := e.verify(ctx, name, e.subject(nil, name)); err != nil {
			return err
		}
	}
	return nil
}

func edgeContent(ctx context.Context, e *env) error {
	return verifyCases(ctx, e, e.s.gen.EdgeCases())
}

func correctness(ctx context.Context, e *env) error {
	return verifyCases(ctx, e, inputgen.CorrectnessCases())
}

func verifyCases(ctx context.Context, e *env, cases []inputgen.Case) error {
	for _, c := range cases {
		if err := e.write(c.Name, c.Content); err != nil {
			return err
		}
		if err := e.verify(ctx, c.Name, e.subject(nil, c.Name)); err != nil {
			return err
		}
	}
	return nil
}

// invalidOptions only fails on a fatal signal; any exit status is accepted.
func invalidOptions(ctx context.Context, e *env) error {
	if err := e.write("test_invalid_opts.txt", []byte("test data")); err != nil {
		return err
	}
	for _, c := range optgen.InvalidCatalog() {
		if c.NeedsFile {
			if err := e.write("file1.txt", []byte("test data")); err != nil {
				return err
			}
		}
		inv := &invocation.Invocation{Path: e.s.cfg.Subject, Algorithm: e.alg, Raw: c.Args}
		res, err := e.run(ctx, inv)
		if err != nil {
			return err
		}
		if !e.settle(ctx, c.Name, inv, res) {
			continue
		}
		e.pass(ctx, c.Name)
	}
	return nil
}

// idempotenceInput is hashed repeatedly under each flag set.
var idempotenceInput = []byte("Hello, World! 123\nTest\x00\xff\xaa")

func idempotence(ctx context.Context, e *env) error {
	const file = "idempotence.txt"
	if err := e.write(file, idempotenceInput); err != nil {
		return err
	}
	cases := []struct {
		name  string
		opts  []invocation.Option
		stdin bool
	}{
		{name: "file_plain"},
		{name: "file_quiet", opts: []invocation.Option{{Flag: invocation.Quiet}}},
		{name: "file_reverse", opts: []invocation.Option{{Flag: invocation.Reverse}}},
		{name: "file_quiet_reverse", opts: []invocation.Option{{Flag: invocation.Quiet}, {Flag: invocation.Reverse}}},
		{name: "literal", opts: []invocation.Option{{Flag: invocation.String, Arg: "foo", HasArg: true}}},
		{name: "stdin_echo", opts: []invocation.Option{{Flag: invocation.Echo}}, stdin: true},
	}
	for _, c := range cases {
		inv := e.subject(c.opts)
		if c.stdin {
			var err error
			if inv, err = e.piped(inv, "idempotence_stdin.txt", idempotenceInput); err != nil {
				return err
			}
		} else if c.name != "literal" {
			inv.Files = []string{file}
		}

		first, err := e.run(ctx, inv)
		if err != nil {
			return err
		}
		if !e.settle(ctx, c.name, inv, first) {
			continue
		}
		second, err := e.run(ctx, inv)
		if err != nil {
			return err
		}
		if e.abnormal(ctx, c.name, inv, second) {
			continue
		}
		if first.ExitStatus != second.ExitStatus || string(first.Stdout) != string(second.Stdout) {
			e.mismatch(ctx, c.name, inv, second, report.FailureRecord{
				Diagnostic: fmt.Sprintf("first run exited %d with %q, second exited %d with %q",
					first.ExitStatus, first.StdoutText(), second.ExitStatus, second.StdoutText()),
			})
			continue
		}
		e.pass(ctx, c.name)
	}
	return nil
}
