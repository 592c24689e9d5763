// Package extract recovers canonical hash records from the free-form text a
// hash utility prints.
//
// Three line grammars are recognized, each on its own line:
//
//	ALG(source)= hex      labeled; source is stdin, a filename or a "quoted" literal
//	hex *file             reverse form for files and stdin
//	hex "literal"         reverse form for literal strings
//	hex                   bare digest (quiet mode)
//
// Quoted sources may contain newlines, so a line that opens a quoted record
// is joined with the following lines until the record closes.
package extract

import (
	"regexp"
	"strings"

	"github.com/lattice-substrate/hashdiff/invocation"
)

// Label is the kind of source a record was computed over.
type Label string

const (
	LabelStdin    Label = "stdin"
	LabelFilename Label = "filename"
	LabelQuoted   Label = "quoted"
	LabelNone     Label = "none"
)

// Record is one recovered (label, hash) pair.
type Record struct {
	Label Label `json:"label"`
	// Algorithm is the printed algorithm name, empty when the line carries none.
	Algorithm string `json:"algorithm,omitempty"`
	// Source is the filename, the literal content, or "stdin".
	Source string `json:"source,omitempty"`
	// Hash is lowercase hex.
	Hash string `json:"hash"`
	Line string `json:"line"`
}

const hexPattern = `([0-9a-fA-F]{32,128})`

var (
	labeledRE        = regexp.MustCompile(`(?s)^([A-Za-z0-9_-]*)\((.*)\)= ` + hexPattern + `$`)
	reverseFileRE    = regexp.MustCompile(`^` + hexPattern + ` \*(.+)$`)
	reverseLiteralRE = regexp.MustCompile(`(?s)^` + hexPattern + ` "(.*)"$`)
	bareRE           = regexp.MustCompile(`^` + hexPattern + `$`)
	trailingHexRE    = regexp.MustCompile(`([0-9a-fA-F]{32,128})\s*$`)

	openLabeledRE = regexp.MustCompile(`^[A-Za-z0-9_-]*\("`)
	openReverseRE = regexp.MustCompile(`^` + hexPattern + ` "`)
)

// maxJoinedLines bounds how far a quoted record may span.
const maxJoinedLines = 4096

// Extract scans text and returns every recognized record in output order.
// shape tells whether a stdin source can exist: without piped input a
// source named "stdin" is a file of that name. Unrecognized lines are
// ignored; an empty result is not an error.
func Extract(text string, shape invocation.Shape) []Record {
	piped := shape == invocation.ShapeStdin || shape == invocation.ShapeBoth
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var out []Record
	var pending []string
	for _, line := range lines {
		if pending != nil {
			pending = append(pending, line)
			joined := strings.Join(pending, "\n")
			if rec, ok := parse(joined, piped); ok {
				out = append(out, rec)
				pending = nil
				continue
			}
			if rec, ok := parse(line, piped); ok {
				out = append(out, rec)
				pending = nil
				continue
			}
			if len(pending) >= maxJoinedLines {
				pending = nil
			}
			continue
		}
		if rec, ok := parse(line, piped); ok {
			out = append(out, rec)
			continue
		}
		if opensQuoted(line) {
			pending = []string{line}
		}
	}
	return out
}

func opensQuoted(line string) bool {
	return openLabeledRE.MatchString(line) || openReverseRE.MatchString(line)
}

func parse(line string, piped bool) (Record, bool) {
	if m := labeledRE.FindStringSubmatch(line); m != nil {
		rec := Record{Algorithm: m[1], Hash: strings.ToLower(m[3]), Line: line}
		src := m[2]
		switch {
		case len(src) >= 2 && strings.HasPrefix(src, `"`) && strings.HasSuffix(src, `"`):
			rec.Label = LabelQuoted
			rec.Source = src[1 : len(src)-1]
		case src == "stdin" && piped:
			rec.Label = LabelStdin
			rec.Source = src
		default:
			rec.Label = LabelFilename
			rec.Source = src
		}
		return rec, true
	}
	if m := reverseLiteralRE.FindStringSubmatch(line); m != nil {
		return Record{Label: LabelQuoted, Source: m[2], Hash: strings.ToLower(m[1]), Line: line}, true
	}
	if m := reverseFileRE.FindStringSubmatch(line); m != nil {
		label := LabelFilename
		if m[2] == "stdin" && piped {
			label = LabelStdin
		}
		return Record{Label: label, Source: m[2], Hash: strings.ToLower(m[1]), Line: line}, true
	}
	if m := bareRE.FindStringSubmatch(line); m != nil {
		return Record{Label: LabelNone, Hash: strings.ToLower(m[1]), Line: line}, true
	}
	return Record{}, false
}

// TrailingHex returns the last hex token of text, lowercased. It reads the
// reference tool's output, where the digest always ends the line.
func TrailingHex(text string) (string, bool) {
	m := trailingHexRE.FindStringSubmatch(strings.TrimRight(text, "\r\n"))
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// ForFile returns the record computed over name. An exact source match wins;
// otherwise the first record whose line contains name is used.
func ForFile(records []Record, name string) (Record, bool) {
	for _, r := range records {
		if r.Label == LabelFilename && r.Source == name {
			return r, true
		}
	}
	for _, r := range records {
		if r.Label != LabelQuoted && strings.Contains(r.Line, name) {
			return r, true
		}
	}
	return Record{}, false
}

// Select returns the records carrying label, in output order.
func Select(records []Record, label Label) []Record {
	var out []Record
	for _, r := range records {
		if r.Label == label {
			out = append(out, r)
		}
	}
	return out
}
