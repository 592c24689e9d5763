package inputgen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeebo/assert"
)

func TestBoundarySizesDefault(t *testing.T) {
	got := BoundarySizes(BlockSize)
	want := []int{0, 1, 63, 64, 65, 127, 128, 129, 511, 512, 513, 1023, 1024, 1025}
	assert.Equal(t, fmt.Sprint(got), fmt.Sprint(want))
}

func TestBoundarySizesDeduplicates(t *testing.T) {
	got := BoundarySizes(1, 1, 2)
	assert.Equal(t, fmt.Sprint(got), fmt.Sprint([]int{0, 1, 2, 3}))
}

func TestBoundaryFileSizes(t *testing.T) {
	dir := t.TempDir()
	for _, size := range BoundarySizes(BlockSize, 1, 2) {
		path := filepath.Join(dir, "b")
		assert.NoError(t, BoundaryFile(path, size))
		data, err := os.ReadFile(path)
		assert.NoError(t, err)
		assert.Equal(t, len(data), size)
		assert.Equal(t, strings.Count(string(data), "a"), size)
	}
}

func TestSeededGeneratorIsReproducible(t *testing.T) {
	a, b := NewSeeded(42), NewSeeded(42)
	assert.Equal(t, a.RandomText(64), b.RandomText(64))
	assert.Equal(t, string(a.RandomBinary(100)), string(b.RandomBinary(100)))
	assert.Equal(t, a.Suffix(), b.Suffix())
}

func TestRandomTextAlphabet(t *testing.T) {
	g := NewSeeded(7)
	text := g.RandomText(2000)
	assert.Equal(t, len(text), 2000)
	for _, r := range text {
		if !strings.ContainsRune(TextAlphabet, r) {
			t.Fatalf("rune %q outside alphabet", r)
		}
	}
	assert.Equal(t, g.RandomText(0), "")
}

func TestRandomBinaryLength(t *testing.T) {
	g := NewSeeded(7)
	for _, n := range []int{0, 1, 7, 8, 9, 1024} {
		assert.Equal(t, len(g.RandomBinary(n)), n)
	}
}

func TestIntRangeBounds(t *testing.T) {
	g := New(nil)
	for i := 0; i < 500; i++ {
		v := g.IntRange(1, 3)
		if v < 1 || v > 3 {
			t.Fatalf("IntRange(1,3) = %d", v)
		}
	}
	assert.Equal(t, g.IntRange(5, 5), 5)
}

func TestBoundaryCatalog(t *testing.T) {
	dir := t.TempDir()
	paths, err := NewSeeded(1).BoundaryCatalog(dir, BlockSize, 1)
	assert.NoError(t, err)
	assert.Equal(t, len(paths), 2*len(BoundarySizes(BlockSize, 1)))
	info, err := os.Stat(filepath.Join(dir, "bin_65.txt"))
	assert.NoError(t, err)
	assert.Equal(t, info.Size(), int64(65))
}

func TestEdgeAndCorrectnessCatalogs(t *testing.T) {
	edge := NewSeeded(3).EdgeCases()
	assert.Equal(t, len(edge), 8)
	assert.Equal(t, len(edge[1].Content), 1024*1024)

	cases := CorrectnessCases()
	assert.Equal(t, len(cases), 10)
	assert.Equal(t, len(cases[len(cases)-1].Content), 256)
}
