//go:build windows

package finalizer

import (
	"os/exec"
	"syscall"
)

const (
	createNewProcessGroup = 0x00000200
	createNewConsole      = 0x00000010
)

// detach gives the child its own console (so a failure pause is visible)
// and process group, without inheriting our handles.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags:    createNewConsole | createNewProcessGroup,
		NoInheritHandles: true,
	}
}
