// Package optgen builds option lists for subject invocations: random legal
// combinations for the fuzz campaign, and a fixed catalog of malformed ones
// for the robustness suite.
package optgen

import (
	"github.com/lattice-substrate/hashdiff/inputgen"
	"github.com/lattice-substrate/hashdiff/invocation"
)

const (
	// DefaultMaxOptions bounds the number of distinct flags per combination.
	DefaultMaxOptions = 4
	// DefaultMaxLiteral bounds the length of generated literal-string arguments.
	DefaultMaxLiteral = 20
)

// Combinator draws random legal option sets.
type Combinator struct {
	Gen        *inputgen.Generator
	MaxOptions int
	MaxLiteral int
}

// New returns a Combinator with default bounds.
func New(gen *inputgen.Generator) *Combinator {
	return &Combinator{Gen: gen, MaxOptions: DefaultMaxOptions, MaxLiteral: DefaultMaxLiteral}
}

// Random selects 0..K distinct legal flags in random order. Flags that take
// an argument get a random text argument, possibly empty or whitespace-only.
func (c *Combinator) Random() []invocation.Option {
	k := c.MaxOptions
	if k > len(invocation.Legal) {
		k = len(invocation.Legal)
	}
	if k < 0 {
		k = 0
	}
	n := c.Gen.IntRange(0, k)
	perm := c.Gen.Perm(len(invocation.Legal))

	opts := make([]invocation.Option, 0, n)
	for _, idx := range perm[:n] {
		flag := invocation.Legal[idx]
		if flag.TakesArgument() {
			opts = append(opts, invocation.Option{Flag: flag, Arg: c.literal(), HasArg: true})
			continue
		}
		opts = append(opts, invocation.Option{Flag: flag})
	}
	return opts
}

func (c *Combinator) literal() string {
	switch c.Gen.IntRange(0, 9) {
	case 0:
		return ""
	case 1:
		return whitespace[:c.Gen.IntRange(1, len(whitespace))]
	default:
		return c.Gen.RandomText(c.Gen.IntRange(0, c.MaxLiteral))
	}
}

const whitespace = " \t \n  "

// Invalid is one intentionally malformed argument list.
type Invalid struct {
	Name string
	Args []string
	// NeedsFile is set when Args reference file1.txt, which the caller creates
	// in the working directory before running.
	NeedsFile bool
}

// InvalidCatalog returns the fixed malformed combinations: unknown flag,
// duplicated flags, a required argument left out, a flag soup, and a flag
// placed after a filename. The list is deterministic.
func InvalidCatalog() []Invalid {
	return []Invalid{
		{Name: "unknown_flag", Args: []string{"-z"}},
		{Name: "duplicate_echo", Args: []string{"-p", "-p"}},
		{Name: "repeated_quiet", Args: []string{"-q", "-q", "-q"}},
		{Name: "string_missing_argument", Args: []string{"-s"}},
		{Name: "flag_soup", Args: []string{"-p", "-q", "-r", "-s", "test", "-p", "-q", "-r", "-s", "test2"}},
		{Name: "flag_after_file", Args: []string{"file1.txt", "-p"}, NeedsFile: true},
	}
}
