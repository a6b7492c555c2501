package lockfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LockInfo is the contents of a daemon's lock file: enough to tell a
// second process which PID holds the maintenance worker for which
// catalog database, without having to parse a bare PID.
type LockInfo struct {
	PID       int       `json:"pid"`
	ParentPID int       `json:"parent_pid,omitempty"`
	Database  string    `json:"database"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

const (
	lockFileName = "daemon.lock"
	pidFileName  = "daemon.pid"
)

// ReadLockInfo reads the lock file under dir, accepting either the
// current JSON encoding or the legacy plain-PID text format.
func ReadLockInfo(dir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err == nil {
		return &info, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	return &LockInfo{PID: pid}, nil
}

// checkPIDFile falls back to a bare daemon.pid file when no lock file
// is present or it can't be interpreted, reporting whether the PID it
// names is still alive.
func checkPIDFile(dir string) (running bool, pid int) {
	data, err := os.ReadFile(filepath.Join(dir, pidFileName))
	if err != nil {
		return false, 0
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || !isProcessRunning(pid) {
		return false, 0
	}
	return true, pid
}

// TryDaemonLock reports whether a maintenance worker already holds the
// singleton lock under dir, without itself taking the lock. It tries,
// in order: an exclusive probe of daemon.lock (if that succeeds, no one
// holds it, so it's released again immediately), then daemon.pid.
func TryDaemonLock(dir string) (running bool, pid int) {
	lockPath := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_RDWR, 0644)
	if err != nil {
		return checkPIDFile(dir)
	}
	defer f.Close()

	if err := flockExclusive(f); err != nil {
		info, infoErr := ReadLockInfo(dir)
		if infoErr == nil {
			return true, info.PID
		}
		return checkPIDFile(dir)
	}
	FlockUnlock(f)
	return checkPIDFile(dir)
}

// AcquireDaemonLock takes the singleton exclusive lock under dir and
// writes info as its JSON contents, returning an open *os.File the
// caller must keep open (and eventually Close, which releases the
// flock) for the lifetime of the maintenance worker.
func AcquireDaemonLock(dir string, info LockInfo) (*os.File, error) {
	lockPath := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := flockExclusive(f); err != nil {
		f.Close()
		return nil, err
	}
	data, err := json.Marshal(info)
	if err != nil {
		FlockUnlock(f)
		f.Close()
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		FlockUnlock(f)
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		FlockUnlock(f)
		f.Close()
		return nil, err
	}
	return f, nil
}
