package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

const (
	lockDirName   = ".run.lock"
	lockOwnerFile = "owner.json"
)

// ErrLocked is returned when another live run holds the directory.
var ErrLocked = errors.New("directory is locked by another run")

// DirLock is a mkdir-based lock on one destination directory.
type DirLock struct {
	path  string
	owner LockOwner
}

type LockOwner struct {
	RunID     string `json:"run_id,omitempty"`
	PID       int    `json:"pid"`
	Hostname  string `json:"hostname,omitempty"`
	CreatedAt string `json:"created_at"`
}

// AcquireRunLock takes the lock for dir. A lock left behind by a dead
// process on this host is reclaimed once.
func AcquireRunLock(dir, runID string) (*DirLock, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("lock directory is required")
	}
	path := filepath.Join(dir, lockDirName)
	owner := LockOwner{
		RunID:     runID,
		PID:       os.Getpid(),
		Hostname:  hostname(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	for reclaimed := false; ; reclaimed = true {
		err := os.Mkdir(path, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire run lock for %s: %w", dir, err)
		}
		held, known := readOwner(path)
		if !known {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		if reclaimed || !held.stale() {
			return nil, fmt.Errorf("%w: %s (run_id=%s pid=%d created_at=%s host=%s)",
				ErrLocked, dir, held.RunID, held.PID, held.CreatedAt, held.Hostname)
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("remove stale run lock %s: %w", path, err)
		}
	}

	if err := WriteJSON(filepath.Join(path, lockOwnerFile), owner); err != nil {
		_ = os.RemoveAll(path)
		return nil, fmt.Errorf("write run lock owner for %s: %w", dir, err)
	}
	return &DirLock{path: path, owner: owner}, nil
}

func (l *DirLock) Owner() LockOwner {
	return l.owner
}

func (l *DirLock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.path, lockOwnerFile))
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release run lock %s: %w", l.path, err)
	}
	l.path = ""
	return nil
}

func readOwner(lockPath string) (LockOwner, bool) {
	var owner LockOwner
	if err := ReadJSON(filepath.Join(lockPath, lockOwnerFile), &owner); err != nil {
		return LockOwner{}, false
	}
	return owner, owner.PID > 0 && owner.CreatedAt != ""
}

// stale reports whether the owner was on this host and its process is gone.
func (o LockOwner) stale() bool {
	if runtime.GOOS == "windows" || o.Hostname != hostname() || o.PID == os.Getpid() {
		return false
	}
	proc, err := os.FindProcess(o.PID)
	if err != nil {
		return true
	}
	err = proc.Signal(syscall.Signal(0))
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}

func hostname() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}
