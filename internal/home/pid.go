package home

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrServerRunning is returned by ClaimPID when a live server owns the PID file.
var ErrServerRunning = errors.New("server already running")

// ClaimPID records the current process as the running server. A stale PID
// file left by a dead process is replaced.
func (d *Dir) ClaimPID() error {
	if pid, err := d.ReadPID(); err == nil && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("%w (pid %d)", ErrServerRunning, pid)
	}
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create home: %w", err)
	}
	return os.WriteFile(d.PIDPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReleasePID removes the PID file if it belongs to this process.
func (d *Dir) ReleasePID() {
	if pid, err := d.ReadPID(); err == nil && pid == os.Getpid() {
		_ = os.Remove(d.PIDPath())
	}
}

// ReadPID returns the process ID stored in the PID file.
func (d *Dir) ReadPID() (int, error) {
	data, err := os.ReadFile(d.PIDPath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file contents: %w", err)
	}
	return pid, nil
}

// ServerPID returns the PID of a live server, or 0 when none is running.
func (d *Dir) ServerPID() int {
	pid, err := d.ReadPID()
	if err != nil || !processAlive(pid) {
		return 0
	}
	return pid
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without sending a real signal.
	return proc.Signal(syscall.Signal(0)) == nil
}
