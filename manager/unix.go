//go:build !windows

package manager

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// shellCommand runs command through sh in a new process group
func shellCommand(command string) *exec.Cmd {
	cmd := exec.Command("sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return cmd
}

// detach puts a relaunched process in its own group
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killGroup kills the command and its children
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	// negative pid targets the process group
	err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	if err != nil {
		// 如果进程已经不存在，忽略错误
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
	return nil
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, unix.ESRCH) || errors.Is(err, os.ErrNotExist)
}

func isAccessDenied(err error) bool {
	return errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES)
}
