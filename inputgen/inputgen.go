// Package inputgen produces the payloads hashed during a campaign: random
// text, random binary, and deterministic files sized around the digest block
// boundaries where padding bugs live.
package inputgen

import (
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strings"

	"github.com/zeebo/pcg"
)

// BlockSize is the compression block length of md5 and sha256.
const BlockSize = 64

const filePerm = 0o600

// TextAlphabet is the character set drawn from by RandomText: ASCII letters,
// digits, punctuation, space, tab and newline.
const TextAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"0123456789" +
	"!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~" +
	" \t\n"

// DefaultBoundaryBlocks are the block multiples covered by the boundary catalog.
var DefaultBoundaryBlocks = []int{1, 2, 8, 16}

// PCGSource draws from the process-wide zeebo/pcg stream. It is the entropy
// source of unseeded campaigns.
type PCGSource struct{}

// Uint64 implements rand.Source.
func (PCGSource) Uint64() uint64 {
	return pcg.Uint64()
}

// Generator is a random payload factory. It is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// New returns a Generator drawing from src.
func New(src rand.Source) *Generator {
	if src == nil {
		src = PCGSource{}
	}
	return &Generator{rng: rand.New(src)}
}

// NewSeeded returns a reproducible Generator for a non-zero seed and a
// PCGSource-backed one for seed 0.
func NewSeeded(seed uint64) *Generator {
	if seed == 0 {
		return New(PCGSource{})
	}
	return New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// IntRange returns a uniform integer in [lo, hi].
func (g *Generator) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.IntN(hi-lo+1)
}

// Bool returns a fair coin flip.
func (g *Generator) Bool() bool {
	return g.rng.IntN(2) == 1
}

// Perm returns a random permutation of [0, n).
func (g *Generator) Perm(n int) []int {
	return g.rng.Perm(n)
}

// RandomText returns length characters drawn from TextAlphabet.
func (g *Generator) RandomText(length int) string {
	if length <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(TextAlphabet[g.rng.IntN(len(TextAlphabet))])
	}
	return b.String()
}

// RandomBinary returns length uniformly random bytes.
func (g *Generator) RandomBinary(length int) []byte {
	if length <= 0 {
		return []byte{}
	}
	out := make([]byte, length)
	for i := 0; i < length; i += 8 {
		v := g.rng.Uint64()
		for j := 0; j < 8 && i+j < length; j++ {
			out[i+j] = byte(v >> (8 * j))
		}
	}
	return out
}

// Payload returns either random text or random binary of the given size.
func (g *Generator) Payload(size int, binary bool) []byte {
	if binary {
		return g.RandomBinary(size)
	}
	return []byte(g.RandomText(size))
}

// Suffix returns a short random hex token used to namespace ephemeral files
// of one trial inside a shared working directory.
func (g *Generator) Suffix() string {
	var b [6]byte
	v := g.rng.Uint64()
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return hex.EncodeToString(b[:])
}

// WriteRandomFile creates path with size bytes of random content and returns
// the content written.
func (g *Generator) WriteRandomFile(path string, size int, binary bool) ([]byte, error) {
	content := g.Payload(size, binary)
	if err := os.WriteFile(path, content, filePerm); err != nil {
		return nil, fmt.Errorf("write random file: %w", err)
	}
	return content, nil
}

// BoundaryFile creates path holding size repetitions of 'a'. Size 0 yields an
// empty file.
func BoundaryFile(path string, size int) error {
	if size < 0 {
		size = 0
	}
	if err := os.WriteFile(path, []byte(strings.Repeat("a", size)), filePerm); err != nil {
		return fmt.Errorf("write boundary file: %w", err)
	}
	return nil
}

// BoundarySizes returns the sorted, de-duplicated sizes {0, 1} plus
// {kB-1, kB, kB+1} for every block multiple k.
func BoundarySizes(block int, multiples ...int) []int {
	if len(multiples) == 0 {
		multiples = DefaultBoundaryBlocks
	}
	seen := map[int]struct{}{0: {}, 1: {}}
	for _, k := range multiples {
		if k < 1 {
			continue
		}
		n := k * block
		for _, s := range []int{n - 1, n, n + 1} {
			seen[s] = struct{}{}
		}
	}
	sizes := make([]int, 0, len(seen))
	for s := range seen {
		sizes = append(sizes, s)
	}
	sort.Ints(sizes)
	return sizes
}
