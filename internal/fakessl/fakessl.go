// Package fakessl emulates the subject hash utility and the reference tool
// in-process, behind the procrun.Runner interface, for tests.
package fakessl

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lattice-substrate/hashdiff/procrun"
)

const (
	// SubjectPath and ReferencePath select which tool a request emulates.
	SubjectPath   = "ft_ssl"
	ReferencePath = "openssl"
)

// Fault injects one subject misbehaviour.
type Fault int

const (
	None Fault = iota
	// Crash makes every subject run end with status 11.
	Crash
	// Hang makes every subject run time out.
	Hang
	// CorruptFiles returns a wrong digest for file sources.
	CorruptFiles
	// LabelLiteralOnly prints the algorithm label for a literal-only run.
	LabelLiteralOnly
)

// Runner emulates both executables. It is safe for sequential use from one
// goroutine and records every argv it saw.
type Runner struct {
	Fault Fault
	// Err, when set, is returned for every request.
	Err error

	mu    sync.Mutex
	calls [][]string
}

// Calls returns the recorded argv lists.
func (r *Runner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// SubjectCalls returns the recorded subject argv lists.
func (r *Runner) SubjectCalls() [][]string {
	var out [][]string
	for _, c := range r.Calls() {
		if c[0] == SubjectPath {
			out = append(out, c)
		}
	}
	return out
}

func (r *Runner) Run(_ context.Context, req procrun.Request) (*procrun.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), req.Argv...))
	r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if len(req.Argv) < 2 {
		return &procrun.Result{ExitStatus: 1, Stderr: []byte("usage\n")}, nil
	}
	if filepath.Base(req.Argv[0]) == ReferencePath {
		return reference(req), nil
	}
	switch r.Fault {
	case Crash:
		return &procrun.Result{ExitStatus: 11, Signaled: true, Stdout: []byte{}, Stderr: []byte{}}, nil
	case Hang:
		return &procrun.Result{ExitStatus: procrun.TimeoutStatus, Stdout: []byte{}, Stderr: []byte{}, Diagnostic: "Timeout"}, nil
	}
	return r.subject(req), nil
}

// Digest returns the lowercase hex digest of data.
func Digest(alg string, data []byte) (string, bool) {
	switch alg {
	case "md5":
		sum := md5.Sum(data)
		return hex.EncodeToString(sum[:]), true
	case "sha256":
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:]), true
	}
	return "", false
}

// DisplayName is the label the emulated subject prints.
func DisplayName(alg string) string {
	if alg == "sha256" {
		return "SHA2-256"
	}
	return strings.ToUpper(alg)
}

// reference emulates "<tool> [args] <alg> [-r] [files...]": one line per
// file, or a stdin line when no file is named.
func reference(req procrun.Request) *procrun.Result {
	// Leading reference arguments such as "dgst" are passed over.
	at := 1
	for at < len(req.Argv)-1 {
		if _, ok := Digest(req.Argv[at], nil); ok {
			break
		}
		at++
	}
	alg := req.Argv[at]
	if _, ok := Digest(alg, nil); !ok {
		return &procrun.Result{ExitStatus: 1, Stderr: []byte("Invalid command '" + alg + "'\n")}
	}
	reverse := false
	var files []string
	for _, a := range req.Argv[at+1:] {
		if a == "-r" {
			reverse = true
			continue
		}
		files = append(files, a)
	}

	var out strings.Builder
	emit := func(name string, data []byte) {
		sum, _ := Digest(alg, data)
		if reverse {
			fmt.Fprintf(&out, "%s *%s\n", sum, name)
			return
		}
		fmt.Fprintf(&out, "%s(%s)= %s\n", DisplayName(alg), name, sum)
	}
	if len(files) == 0 {
		emit("stdin", req.Stdin)
	}
	for _, name := range files {
		data, err := os.ReadFile(resolve(req.Dir, name))
		if err != nil {
			return &procrun.Result{ExitStatus: 1, Stdout: []byte(out.String()), Stderr: []byte(err.Error())}
		}
		emit(name, data)
	}
	return &procrun.Result{Stdout: []byte(out.String()), Stderr: []byte{}}
}

func resolve(dir, name string) string {
	if dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func (r *Runner) subject(req procrun.Request) *procrun.Result {
	alg := req.Argv[1]
	if _, ok := Digest(alg, nil); !ok {
		return &procrun.Result{ExitStatus: 1, Stderr: []byte("ft_ssl: invalid command\n")}
	}
	var echo, quiet, reverse bool
	var literals, files []string
	args := req.Argv[2:]
	for i := 0; i < len(args); i++ {
		a := args[i]
		if len(files) > 0 || !strings.HasPrefix(a, "-") {
			files = append(files, a)
			continue
		}
		switch a {
		case "-p":
			echo = true
		case "-q":
			quiet = true
		case "-r":
			reverse = true
		case "-s":
			if i+1 >= len(args) {
				return &procrun.Result{ExitStatus: 1, Stderr: []byte("ft_ssl: option -s requires an argument\n")}
			}
			i++
			literals = append(literals, args[i])
		default:
			return &procrun.Result{ExitStatus: 1, Stderr: []byte("ft_ssl: invalid option " + a + "\n")}
		}
	}

	label := DisplayName(alg)
	var out strings.Builder
	piped := req.Stdin != nil
	if (piped && (len(files) == 0 || echo)) || (!piped && len(files) == 0 && len(literals) == 0) {
		data := req.Stdin
		sum, _ := Digest(alg, data)
		switch {
		case echo:
			fmt.Fprintf(&out, "(\"%s\")= %s\n", data, sum)
		case quiet:
			fmt.Fprintf(&out, "%s\n", sum)
		case reverse:
			fmt.Fprintf(&out, "%s *stdin\n", sum)
		default:
			fmt.Fprintf(&out, "%s(stdin)= %s\n", label, sum)
		}
	}
	for _, lit := range literals {
		sum, _ := Digest(alg, []byte(lit))
		switch {
		case quiet:
			fmt.Fprintf(&out, "%s\n", sum)
		case reverse:
			fmt.Fprintf(&out, "%s \"%s\"\n", sum, lit)
		case len(files) == 0 && r.Fault != LabelLiteralOnly:
			fmt.Fprintf(&out, "(\"%s\")= %s\n", lit, sum)
		default:
			fmt.Fprintf(&out, "%s(\"%s\")= %s\n", label, lit, sum)
		}
	}
	status := 0
	for _, name := range files {
		data, err := os.ReadFile(resolve(req.Dir, name))
		if err != nil {
			fmt.Fprintf(&out, "ft_ssl: %s: %s: No such file or directory\n", alg, name)
			status = 1
			continue
		}
		if r.Fault == CorruptFiles {
			data = append(data, 'x')
		}
		sum, _ := Digest(alg, data)
		switch {
		case reverse:
			fmt.Fprintf(&out, "%s *%s\n", sum, name)
		case quiet:
			fmt.Fprintf(&out, "%s\n", sum)
		default:
			fmt.Fprintf(&out, "%s(%s)= %s\n", label, name, sum)
		}
	}
	return &procrun.Result{ExitStatus: status, Stdout: []byte(out.String()), Stderr: []byte{}}
}
