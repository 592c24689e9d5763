//go:build unix

package procrun

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

var platformCrashSignals = []int{
	int(unix.SIGSEGV),
	int(unix.SIGABRT),
	int(unix.SIGFPE),
	int(unix.SIGBUS),
}

// configureGroup places the child in its own process group so a timeout
// kills everything it spawned.
func configureGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

func signalOf(state *os.ProcessState) (int, bool) {
	if state == nil {
		return 0, false
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return 0, false
	}
	return int(ws.Signal()), true
}
