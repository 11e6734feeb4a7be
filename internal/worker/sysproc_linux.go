//go:build linux

package worker

import "syscall"

// sysProcAttr kills the worker with its parent and keeps it out of the
// terminal's process group.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGKILL,
		Setpgid:   true,
	}
}
