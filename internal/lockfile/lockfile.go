// Package lockfile guards a ConciergePipe state directory against a second instance.
//
// SQLite allows one writer; two services sharing a state directory would serialize on
// busy timeouts and interleave conversation updates. The lock is an flock(2) on a file in
// the directory, so the kernel drops it when the process exits for any reason.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "concierge.lock"

// Info is the owner record written into the lock file.
type Info struct {
	PID       int
	StartedAt time.Time
	Store     string
}

func (i Info) encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pid=%d\n", i.PID)
	if !i.StartedAt.IsZero() {
		fmt.Fprintf(&b, "started_at=%s\n", i.StartedAt.UTC().Format(time.RFC3339))
	}
	if i.Store != "" {
		fmt.Fprintf(&b, "store=%s\n", i.Store)
	}
	return b.String()
}

// parseInfo reads key=value lines; unknown keys and malformed lines are skipped.
func parseInfo(content string) Info {
	var info Info
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(val); err == nil && pid > 0 {
				info.PID = pid
			}
		case "started_at":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				info.StartedAt = t
			}
		case "store":
			info.Store = val
		}
	}
	return info
}

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
	info Info
}

// AcquireLock takes the lock on stateDir, creating the directory if needed. storeName is
// recorded for operators and may be empty. When another live process holds the lock the
// error is a *LockError describing it.
func AcquireLock(stateDir, storeName string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("AcquireLock: attempting to lock state directory", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC would wipe the owner record of a running instance before we know we hold the lock.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(lockPath)
		slog.Error("AcquireLock: state directory is locked by another instance", "lock_path", lockPath, "holder", holder, "error", err)
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	info := Info{PID: os.Getpid(), StartedAt: time.Now(), Store: storeName}
	if err := writeInfo(file, info); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("AcquireLock: state directory locked", "lock_path", lockPath, "pid", info.PID)
	return &Lock{file: file, path: lockPath, info: info}, nil
}

func writeInfo(file *os.File, info Info) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(info.encode()), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("AcquireLock: failed to sync lock file", "error", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Info returns the owner record written by this process.
func (l *Lock) Info() Info { return l.info }

// Release drops the lock and removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("Lock.Release: failed to release flock", "error", err, "lock_path", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("Lock.Release: failed to close lock file", "error", err, "lock_path", l.path)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: failed to remove lock file", "error", err, "lock_path", l.path)
	}
	l.file = nil
	slog.Info("Lock.Release: state directory unlocked", "lock_path", l.path)
	return nil
}

// LockError is returned when another process holds the state directory lock.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another ConciergePipe instance is using this state directory (lock file %s", e.LockPath)
	if e.Holder != "" {
		msg += ", held by " + e.Holder
	}
	return msg + "); stop it or point --state-dir elsewhere. If no instance is running, remove the lock file"
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// describeHolder summarizes the owner record of a lock held by someone else.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "unknown (lock file unreadable)"
	}
	info := parseInfo(string(data))
	if info.PID == 0 {
		return "unknown (no owner record)"
	}
	desc := fmt.Sprintf("PID %d", info.PID)
	if isProcessRunning(info.PID) {
		desc += " (running)"
	} else {
		desc += " (not running)"
	}
	if !info.StartedAt.IsZero() {
		desc += " since " + info.StartedAt.Format(time.RFC3339)
	}
	if info.Store != "" {
		desc += " with store " + info.Store
	}
	return desc
}

// isProcessRunning sends signal 0 to pid.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
