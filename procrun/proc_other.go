//go:build !unix

package procrun

import (
	"os"
	"os/exec"
)

var platformCrashSignals []int

func configureGroup(*exec.Cmd) {}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func signalOf(*os.ProcessState) (int, bool) {
	return 0, false
}
