// Package invocation models one command line of the subject hash utility:
// executable, algorithm token, ordered options and ordered input sources.
package invocation

import (
	"fmt"

	"github.com/kballard/go-shellquote"
)

// Flag is a subject command-line flag.
type Flag string

const (
	// Echo wraps piped stdin content in quotes and echoes it before the digest.
	Echo Flag = "-p"
	// Quiet suppresses the algorithm label and source prefix.
	Quiet Flag = "-q"
	// Reverse prints the digest first, then the source.
	Reverse Flag = "-r"
	// String hashes its single following argument directly.
	String Flag = "-s"
)

// Legal lists the flags the subject accepts, in canonical order.
var Legal = []Flag{Echo, Quiet, Reverse, String}

// TakesArgument reports whether f consumes exactly one following argument.
func (f Flag) TakesArgument() bool {
	return f == String
}

// Formatting reports whether f only changes how results are printed.
func (f Flag) Formatting() bool {
	return f == Echo || f == Quiet || f == Reverse
}

// Option is one flag occurrence with its argument, if the flag takes one.
type Option struct {
	Flag   Flag   `json:"flag"`
	Arg    string `json:"arg,omitempty"`
	HasArg bool   `json:"has_arg,omitempty"`
}

// Tokens returns the argv tokens for o.
func (o Option) Tokens() []string {
	if o.HasArg {
		return []string{string(o.Flag), o.Arg}
	}
	return []string{string(o.Flag)}
}

// Shape is the kind of input sources an invocation carries.
type Shape string

const (
	ShapeNone  Shape = "none"
	ShapeStdin Shape = "stdin"
	ShapeFiles Shape = "files"
	ShapeBoth  Shape = "both"
)

// Shapes lists every input shape a trial may pick.
var Shapes = []Shape{ShapeNone, ShapeStdin, ShapeFiles, ShapeBoth}

// Invocation is one subject command line plus its piped stdin payload.
//
// Raw, when non-nil, replaces Options and Files verbatim after the algorithm
// token. It carries intentionally malformed argument lists.
type Invocation struct {
	Path      string   `json:"path"`
	Algorithm string   `json:"algorithm"`
	Options   []Option `json:"options,omitempty"`
	Files     []string `json:"files,omitempty"`
	Raw       []string `json:"raw,omitempty"`

	// Stdin is piped to the child when Piped is set. StdinPath, if set, is
	// the on-disk copy of the payload kept for diagnosis.
	Stdin     []byte `json:"-"`
	Piped     bool   `json:"piped"`
	StdinPath string `json:"stdin_path,omitempty"`
}

// Validate checks that an argument is present exactly for flags that take one.
func (inv *Invocation) Validate() error {
	if inv.Path == "" {
		return fmt.Errorf("invocation path is required")
	}
	if inv.Algorithm == "" {
		return fmt.Errorf("invocation algorithm is required")
	}
	if inv.Raw != nil {
		return nil
	}
	for i, o := range inv.Options {
		if o.Flag.TakesArgument() != o.HasArg {
			if o.HasArg {
				return fmt.Errorf("option[%d] %s does not take an argument", i, o.Flag)
			}
			return fmt.Errorf("option[%d] %s requires an argument", i, o.Flag)
		}
		if !o.HasArg && o.Arg != "" {
			return fmt.Errorf("option[%d] %s carries a stray argument", i, o.Flag)
		}
	}
	return nil
}

// Argv returns the full argument vector, executable first.
func (inv *Invocation) Argv() []string {
	argv := []string{inv.Path, inv.Algorithm}
	if inv.Raw != nil {
		return append(argv, inv.Raw...)
	}
	for _, o := range inv.Options {
		argv = append(argv, o.Tokens()...)
	}
	return append(argv, inv.Files...)
}

// String renders a shell command line that reproduces the invocation. Every
// argument is quoted so it stays a single token whatever its content.
func (inv *Invocation) String() string {
	cmd := shellquote.Join(inv.Argv()...)
	if !inv.Piped {
		return cmd
	}
	if inv.StdinPath != "" {
		return fmt.Sprintf("%s < %s", cmd, shellquote.Join(inv.StdinPath))
	}
	return fmt.Sprintf("%s < /dev/stdin", cmd)
}

// Input returns the bytes to pipe to the child: nil when nothing is piped,
// never nil otherwise.
func (inv *Invocation) Input() []byte {
	if !inv.Piped {
		return nil
	}
	if inv.Stdin == nil {
		return []byte{}
	}
	return inv.Stdin
}

// Has reports whether the option list contains f.
func (inv *Invocation) Has(f Flag) bool {
	for _, o := range inv.Options {
		if o.Flag == f {
			return true
		}
	}
	return false
}

// Literals returns the arguments of every String option, in order.
func (inv *Invocation) Literals() []string {
	var out []string
	for _, o := range inv.Options {
		if o.Flag == String && o.HasArg {
			out = append(out, o.Arg)
		}
	}
	return out
}

// Shape classifies the input sources of inv.
func (inv *Invocation) Shape() Shape {
	switch {
	case inv.Piped && len(inv.Files) > 0:
		return ShapeBoth
	case inv.Piped:
		return ShapeStdin
	case len(inv.Files) > 0:
		return ShapeFiles
	default:
		return ShapeNone
	}
}

// StdinHashed reports whether the subject hashes piped stdin for inv: stdin
// is read when no file argument is given, or when echo mode is on.
func (inv *Invocation) StdinHashed() bool {
	return inv.Piped && (len(inv.Files) == 0 || inv.Has(Echo))
}

// ExpectedRecords is the number of distinct hash operations inv implies:
// one per file, one for hashed stdin, one per literal string.
func (inv *Invocation) ExpectedRecords() int {
	n := len(inv.Files) + len(inv.Literals())
	if inv.StdinHashed() {
		n++
	}
	return n
}
