//go:build unix || linux || darwin

package daemon

import (
	"fmt"
	"syscall"
)

func killProcess(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal TERM to pid %d: %w", pid, err)
	}
	return nil
}

func forceKillProcess(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("signal KILL to pid %d: %w", pid, err)
	}
	return nil
}

func isProcessAlive(pid int) bool {
	return pid > 0 && syscall.Kill(pid, 0) == nil
}
