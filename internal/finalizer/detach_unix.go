//go:build !windows

package finalizer

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so it survives our exit and
// receives no signals aimed at our process group.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
