package inputgen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Case is a named fixed payload.
type Case struct {
	Name    string
	Content []byte
}

// EdgeCases returns payloads that stress input handling rather than digest
// arithmetic: empty input, a large random file, NUL runs, multi-byte UTF-8,
// one very long line, bare newlines, control bytes and malformed UTF-8.
func (g *Generator) EdgeCases() []Case {
	return []Case{
		{Name: "empty.txt", Content: []byte{}},
		{Name: "large.txt", Content: g.RandomBinary(1024 * 1024)},
		{Name: "nulls.txt", Content: bytes.Repeat([]byte{0}, 1024)},
		{Name: "non_ascii.txt", Content: []byte("こんにちは世界")},
		{Name: "long_line.txt", Content: []byte(g.RandomText(10000) + "\n")},
		{Name: "newlines.txt", Content: bytes.Repeat([]byte{'\n'}, 10)},
		{Name: "control_chars.txt", Content: controlBytes()},
		{Name: "invalid_utf8.txt", Content: []byte{0xff, 0xfe, 0xfd}},
	}
}

// CorrectnessCases returns payloads whose digests are checked against the
// reference tool: 'a' runs straddling one and two blocks, mixed bytes, and
// every byte value once.
func CorrectnessCases() []Case {
	cases := make([]Case, 0, 10)
	for _, n := range []int{0, 1, BlockSize - 1, BlockSize, BlockSize + 1, 2*BlockSize - 1, 2 * BlockSize, 2*BlockSize + 1} {
		cases = append(cases, Case{Name: fmt.Sprintf("a_%d.txt", n), Content: bytes.Repeat([]byte{'a'}, n)})
	}
	cases = append(cases,
		Case{Name: "mixed.txt", Content: []byte("Hello, World! 123\nTest\x00\xff\xaa")},
		Case{Name: "all_bytes.txt", Content: allBytes()},
	)
	return cases
}

// BoundaryCatalog writes, under dir, a text ('a' run) and a random binary
// file for every boundary size and returns their paths in size order.
func (g *Generator) BoundaryCatalog(dir string, block int, multiples ...int) ([]string, error) {
	sizes := BoundarySizes(block, multiples...)
	paths := make([]string, 0, 2*len(sizes))
	for _, size := range sizes {
		textPath := filepath.Join(dir, fmt.Sprintf("text_%d.txt", size))
		if err := BoundaryFile(textPath, size); err != nil {
			return paths, err
		}
		paths = append(paths, textPath)

		binPath := filepath.Join(dir, fmt.Sprintf("bin_%d.txt", size))
		if err := os.WriteFile(binPath, g.RandomBinary(size), filePerm); err != nil {
			return paths, fmt.Errorf("write boundary file: %w", err)
		}
		paths = append(paths, binPath)
	}
	return paths, nil
}

func controlBytes() []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

func allBytes() []byte {
	out := make([]byte, 256)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}
