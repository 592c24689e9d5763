package suite

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lattice-substrate/hashdiff/inputgen"
	"github.com/lattice-substrate/hashdiff/invocation"
	"github.com/lattice-substrate/hashdiff/report"
)

// formatCase is one documented subject output.
type formatCase struct {
	name  string
	opts  []invocation.Option
	files []string
	// stdin is piped when non-empty.
	stdin string
	want  []string
	// exact requires the whole output to equal want; otherwise want lines
	// must appear in order.
	exact bool
}

var (
	optEcho    = invocation.Option{Flag: invocation.Echo}
	optQuiet   = invocation.Option{Flag: invocation.Quiet}
	optReverse = invocation.Option{Flag: invocation.Reverse}
)

func literal(arg string) invocation.Option {
	return invocation.Option{Flag: invocation.String, Arg: arg, HasArg: true}
}

// subjectFormat checks the fixed output contract with stdin "foo" and a
// file named "file" holding "bar". Expected digests come from the reference.
func subjectFormat(ctx context.Context, e *env) error {
	if err := e.write("file", []byte("bar")); err != nil {
		return err
	}
	multi := []string{"f1", "f2", "f3"}
	for i, name := range multi {
		if err := e.write(name, []byte(fmt.Sprintf("content %d", i+1))); err != nil {
			return err
		}
	}

	sums, ok, err := e.oracle(ctx, "foo", "bar", "content 1", "content 2", "content 3")
	if err != nil {
		return err
	}
	cases := formatCases(e.s.displayName(e.alg), sums)
	if !ok {
		for _, c := range cases {
			e.counters.Trials++
			e.unverifiable(ctx, c.name, "reference digests unavailable")
		}
		return nil
	}

	for _, c := range cases {
		inv := e.subject(c.opts, c.files...)
		if c.stdin != "" {
			if inv, err = e.piped(inv, "stdin_"+c.name+".txt", []byte(c.stdin)); err != nil {
				return err
			}
		}
		if err := e.expectLines(ctx, c.name, inv, c.want, c.exact); err != nil {
			return err
		}
	}
	return nil
}

func formatCases(label string, sum map[string]string) []formatCase {
	foo, bar := sum["foo"], sum["bar"]
	return []formatCase{
		{name: "stdin_basic", stdin: "foo", exact: true,
			want: []string{label + "(stdin)= " + foo}},
		{name: "stdin_echo", opts: []invocation.Option{optEcho}, stdin: "foo", exact: true,
			want: []string{`("foo")= ` + foo}},
		{name: "stdin_quiet_reverse", opts: []invocation.Option{optQuiet, optReverse}, stdin: "foo", exact: true,
			want: []string{foo}},
		{name: "file_basic", files: []string{"file"}, exact: true,
			want: []string{label + "(file)= " + bar}},
		{name: "file_reverse", opts: []invocation.Option{optReverse}, files: []string{"file"}, exact: true,
			want: []string{bar + " *file"}},
		{name: "file_quiet_reverse", opts: []invocation.Option{optQuiet, optReverse}, files: []string{"file"}, exact: true,
			want: []string{bar + " *file"}},
		// The label is dropped only when a literal is the sole source. Some
		// builds also hash an empty stdin first, so only the line is required.
		{name: "literal_only", opts: []invocation.Option{literal("foo")},
			want: []string{`("foo")= ` + foo}},
		{name: "literal_with_file", opts: []invocation.Option{literal("foo")}, files: []string{"file"},
			want: []string{label + `("foo")= ` + foo, label + "(file)= " + bar}},
		{name: "stdin_ignored_with_file", files: []string{"file"}, stdin: "foo", exact: true,
			want: []string{label + "(file)= " + bar}},
		{name: "echo_with_file", opts: []invocation.Option{optEcho}, files: []string{"file"}, stdin: "foo", exact: true,
			want: []string{`("foo")= ` + foo, label + "(file)= " + bar}},
		{name: "echo_reverse_with_file", opts: []invocation.Option{optEcho, optReverse}, files: []string{"file"}, stdin: "foo", exact: true,
			want: []string{`("foo")= ` + foo, bar + " *file"}},
		{name: "echo_literal_with_file", opts: []invocation.Option{optEcho, literal("foo")}, files: []string{"file"}, stdin: "foo", exact: true,
			want: []string{`("foo")= ` + foo, label + `("foo")= ` + foo, label + "(file)= " + bar}},
		{name: "multi_file_order", files: []string{"f1", "f2", "f3"}, exact: true,
			want: []string{
				label + "(f1)= " + sum["content 1"],
				label + "(f2)= " + sum["content 2"],
				label + "(f3)= " + sum["content 3"],
			}},
	}
}

// referenceParity compares whole outputs with the reference tool on the text
// boundary files, in file, stdin and reverse mode, plus one multi-file run.
func referenceParity(ctx context.Context, e *env) error {
	paths, err := e.s.gen.BoundaryCatalog(e.dir, inputgen.BlockSize, e.s.cfg.BoundaryBlocks...)
	if err != nil {
		return fmt.Errorf("boundary catalog: %w", err)
	}
	var texts []string
	for _, p := range paths {
		if name := filepath.Base(p); strings.HasPrefix(name, "text_") {
			texts = append(texts, name)
		}
	}

	for _, name := range texts {
		if err := e.parity(ctx, "file_"+name, nil, []string{name}, nil); err != nil {
			return err
		}
		content, err := e.read(name)
		if err != nil {
			return err
		}
		if err := e.parity(ctx, "stdin_"+name, nil, nil, content); err != nil {
			return err
		}
		if err := e.parity(ctx, "reverse_"+name, []invocation.Option{optReverse}, []string{name}, nil); err != nil {
			return err
		}
	}
	return e.parity(ctx, "multiple_files", nil, texts, nil)
}

// parity runs the subject and the reference with the same flags and sources
// and requires identical trimmed output.
func (e *env) parity(ctx context.Context, name string, opts []invocation.Option, files []string, stdin []byte) error {
	inv := e.subject(opts, files...)
	if stdin != nil {
		var err error
		if inv, err = e.piped(inv, "stdin_"+fileSafe(name)+".txt", stdin); err != nil {
			return err
		}
	}

	res, err := e.run(ctx, inv)
	if err != nil {
		return err
	}
	if !e.settle(ctx, name, inv, res) {
		return nil
	}

	extra := make([]string, 0, len(opts)+len(files))
	for _, o := range opts {
		extra = append(extra, o.Tokens()...)
	}
	extra = append(extra, files...)
	run, err := e.reference(ctx, inv.Input(), extra...)
	if err != nil {
		return err
	}
	ref := run.Result
	if ref.TimedOut() || ref.ExitStatus != 0 {
		e.unverifiable(ctx, name, fmt.Sprintf("reference exited %d", ref.ExitStatus))
		return nil
	}

	got := strings.Join(outputLines(res.StdoutText()), "\n")
	want := strings.Join(outputLines(ref.StdoutText()), "\n")
	if res.ExitStatus != 0 || got != want {
		e.mismatch(ctx, name, inv, res, report.FailureRecord{
			Diagnostic: fmt.Sprintf("subject exited %d with %q, reference printed %q", res.ExitStatus, got, want),
		}, run)
		return nil
	}
	e.pass(ctx, name)
	return nil
}
