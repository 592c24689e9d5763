package extract

import (
	"testing"

	"github.com/zeebo/assert"

	"github.com/lattice-substrate/hashdiff/invocation"
)

const (
	md5Empty = "d41d8cd98f00b204e9800998ecf8427e"
	md5Foo   = "acbd18db4cc2f85cedef654fccc4a4d8"
	md5Bar   = "37b51d194a7513e45b56f6524f2d51f2"
	sha256A  = "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb"
)

func TestExtractGrammars(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		shape invocation.Shape
		want  []Record
	}{
		{
			name:  "labeled_file_uppercase_hex",
			text:  "MD5(file.txt)= D41D8CD98F00B204E9800998ECF8427E\n",
			shape: invocation.ShapeFiles,
			want: []Record{{Label: LabelFilename, Algorithm: "MD5", Source: "file.txt", Hash: md5Empty,
				Line: "MD5(file.txt)= D41D8CD98F00B204E9800998ECF8427E"}},
		},
		{
			name:  "labeled_stdin",
			text:  "SHA2-256(stdin)= " + sha256A + "\n",
			shape: invocation.ShapeStdin,
			want: []Record{{Label: LabelStdin, Algorithm: "SHA2-256", Source: "stdin", Hash: sha256A,
				Line: "SHA2-256(stdin)= " + sha256A}},
		},
		{
			name:  "file_named_stdin_without_pipe",
			text:  "MD5(stdin)= " + md5Empty + "\n",
			shape: invocation.ShapeFiles,
			want: []Record{{Label: LabelFilename, Algorithm: "MD5", Source: "stdin", Hash: md5Empty,
				Line: "MD5(stdin)= " + md5Empty}},
		},
		{
			name:  "literal_without_label",
			text:  `("foo")= ` + md5Foo + "\n",
			shape: invocation.ShapeNone,
			want:  []Record{{Label: LabelQuoted, Source: "foo", Hash: md5Foo, Line: `("foo")= ` + md5Foo}},
		},
		{
			name:  "empty_literal",
			text:  `MD5("")= ` + md5Empty,
			shape: invocation.ShapeNone,
			want: []Record{{Label: LabelQuoted, Algorithm: "MD5", Source: "", Hash: md5Empty,
				Line: `MD5("")= ` + md5Empty}},
		},
		{
			name:  "reverse_file",
			text:  md5Bar + " *file\n",
			shape: invocation.ShapeFiles,
			want:  []Record{{Label: LabelFilename, Source: "file", Hash: md5Bar, Line: md5Bar + " *file"}},
		},
		{
			name:  "reverse_stdin",
			text:  md5Bar + " *stdin\n",
			shape: invocation.ShapeStdin,
			want:  []Record{{Label: LabelStdin, Source: "stdin", Hash: md5Bar, Line: md5Bar + " *stdin"}},
		},
		{
			name:  "reverse_literal",
			text:  md5Foo + ` "foo"` + "\n",
			shape: invocation.ShapeNone,
			want:  []Record{{Label: LabelQuoted, Source: "foo", Hash: md5Foo, Line: md5Foo + ` "foo"`}},
		},
		{
			name:  "bare",
			text:  md5Bar + "\r\n",
			shape: invocation.ShapeFiles,
			want:  []Record{{Label: LabelNone, Hash: md5Bar, Line: md5Bar}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.text, tc.shape)
			assert.Equal(t, len(got), len(tc.want))
			for i := range got {
				assert.Equal(t, got[i], tc.want[i])
			}
		})
	}
}

func TestExtractJoinsMultilineEcho(t *testing.T) {
	text := "(\"line one\nline two\n\")= " + md5Foo + "\nMD5(f1)= " + md5Bar + "\n"
	got := Extract(text, invocation.ShapeBoth)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].Label, LabelQuoted)
	assert.Equal(t, got[0].Source, "line one\nline two\n")
	assert.Equal(t, got[0].Hash, md5Foo)
	assert.Equal(t, got[1].Source, "f1")
}

func TestExtractMultilineReverseLiteral(t *testing.T) {
	got := Extract(md5Foo+" \"a\nb\"\n", invocation.ShapeNone)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0].Label, LabelQuoted)
	assert.Equal(t, got[0].Source, "a\nb")
}

func TestExtractUnterminatedQuoteYieldsToLaterRecords(t *testing.T) {
	text := "(\"never closed\n" + md5Bar + " *file\n"
	got := Extract(text, invocation.ShapeFiles)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0].Source, "file")
}

func TestExtractIgnoresNoise(t *testing.T) {
	text := "ft_ssl: md5: missing.txt: No such file or directory\nusage: ft_ssl\n\n" +
		"abc123\n" + md5Empty + "zz\n"
	assert.Equal(t, len(Extract(text, invocation.ShapeFiles)), 0)
	assert.Equal(t, len(Extract("", invocation.ShapeNone)), 0)
}

func TestExtractKeepsOutputOrder(t *testing.T) {
	text := "MD5(f1)= " + md5Empty + "\nMD5(f2)= " + md5Foo + "\nMD5(f3)= " + md5Bar + "\n"
	got := Extract(text, invocation.ShapeFiles)
	assert.Equal(t, len(got), 3)
	for i, name := range []string{"f1", "f2", "f3"} {
		assert.Equal(t, got[i].Source, name)
	}
}

func TestTrailingHex(t *testing.T) {
	h, ok := TrailingHex("MD5(/tmp/x y)= " + md5Foo + "\n")
	assert.Equal(t, ok, true)
	assert.Equal(t, h, md5Foo)

	h, ok = TrailingHex("SHA2-256(stdin)= " + sha256A)
	assert.Equal(t, ok, true)
	assert.Equal(t, h, sha256A)

	_, ok = TrailingHex("openssl: unknown command\n")
	assert.Equal(t, ok, false)
}

func TestForFile(t *testing.T) {
	recs := Extract("MD5(/w/data_ab.txt)= "+md5Foo+"\n"+md5Bar+" *other.bin\n", invocation.ShapeFiles)

	r, ok := ForFile(recs, "/w/data_ab.txt")
	assert.Equal(t, ok, true)
	assert.Equal(t, r.Hash, md5Foo)

	r, ok = ForFile(recs, "other.bin")
	assert.Equal(t, ok, true)
	assert.Equal(t, r.Hash, md5Bar)

	_, ok = ForFile(recs, "missing.txt")
	assert.Equal(t, ok, false)
}

func TestSelect(t *testing.T) {
	recs := Extract(`("a")= `+md5Foo+"\nMD5(f)= "+md5Bar+"\n"+md5Foo+` "b"`+"\n", invocation.ShapeFiles)
	quoted := Select(recs, LabelQuoted)
	assert.Equal(t, len(quoted), 2)
	assert.Equal(t, quoted[1].Source, "b")
}
