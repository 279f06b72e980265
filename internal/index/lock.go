// Package index provides the local retrieval index: SQLite-backed document
// storage with hybrid dense/lexical search, guarded by an exclusive on-disk
// lock so only one process touches the index files at a time.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// ErrLocked is returned when the index lock is held by a live process.
var ErrLocked = errors.New("index: locked by another process")

// lockState is the on-disk lock payload. Hostname and PID together let a
// later process decide whether the holder is still alive.
type lockState struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is an exclusive file lock for the index.
type Lock struct {
	path string
}

// AcquireLock takes the exclusive lock at path. A lock file whose recorded
// process is no longer running on this host is treated as stale and
// replaced; the stale holder is reported through the returned string so the
// caller can log it. A lock held by a live process, or by a process on a
// different host, fails with ErrLocked.
func AcquireLock(path string) (*Lock, string, error) {
	var stale string
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if werr := writeLockState(f); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, stale, werr
			}
			if cerr := f.Close(); cerr != nil {
				os.Remove(path)
				return nil, stale, fmt.Errorf("index: write lock file: %w", cerr)
			}
			return &Lock{path: path}, stale, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, stale, fmt.Errorf("index: create lock file: %w", err)
		}

		state, rerr := readLockState(path)
		if rerr != nil {
			// Unreadable lock file: do not guess, refuse the lock.
			return nil, stale, fmt.Errorf("%w: unreadable lock file %s: %v", ErrLocked, path, rerr)
		}
		if !holderDead(state) {
			return nil, stale, fmt.Errorf("%w: held by pid %d on %s since %s",
				ErrLocked, state.PID, state.Hostname, state.AcquiredAt.Format(time.RFC3339))
		}

		stale = fmt.Sprintf("pid %d on %s", state.PID, state.Hostname)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, stale, fmt.Errorf("index: remove stale lock: %w", err)
		}
	}
	return nil, stale, fmt.Errorf("%w: could not acquire %s", ErrLocked, path)
}

// Release removes the lock file. Safe to call once.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("index: release lock: %w", err)
	}
	return nil
}

func writeLockState(f *os.File) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	state := lockState{PID: os.Getpid(), Hostname: hostname, AcquiredAt: time.Now().UTC()}
	if err := json.NewEncoder(f).Encode(state); err != nil {
		return fmt.Errorf("index: write lock file: %w", err)
	}
	return nil
}

func readLockState(path string) (lockState, error) {
	var state lockState
	data, err := os.ReadFile(path)
	if err != nil {
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, err
	}
	if state.PID <= 0 {
		return state, fmt.Errorf("invalid pid %d", state.PID)
	}
	return state, nil
}

// holderDead reports whether the lock holder is provably gone. Only locks
// recorded on this host can be probed; a lock from another host is always
// treated as live.
func holderDead(state lockState) bool {
	hostname, err := os.Hostname()
	if err != nil || hostname != state.Hostname {
		return false
	}
	proc, err := os.FindProcess(state.PID)
	if err != nil {
		return true
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) != nil
}
