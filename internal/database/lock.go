package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName marks a data directory as owned by a running process
const LockFileName = "waterworks.lock"

// Lock is an exclusive, file-based claim on a data directory. Concurrent runs
// against the same stores are refused rather than interleaved.
type Lock struct {
	path string
}

// AcquireLock creates the lock file, failing with ErrLocked if another live
// process holds it. A lock left behind by a process that no longer exists is
// taken over.
func AcquireLock(dir string) (*Lock, error) {
	path := filepath.Join(dir, LockFileName)
	lock, err := createLock(path)
	if !errors.Is(err, ErrLocked) {
		return lock, err
	}

	holder, readErr := os.ReadFile(path)
	pid, parseErr := strconv.Atoi(strings.TrimSpace(string(holder)))
	if readErr != nil || parseErr != nil || processAlive(pid) {
		return nil, fmt.Errorf("%w (pid %s); remove %s if no other run is active",
			ErrLocked, strings.TrimSpace(string(holder)), path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale lock file: %w", err)
	}
	return createLock(path)
}

func createLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return &Lock{path: path}, nil
}

// processAlive probes pid with signal 0. Windows has no such probe, so a
// recorded pid is always treated as live there.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Release removes the lock file. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
