package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ErrRepoLocked is returned when another run holds a repository's lock.
var ErrRepoLocked = errors.New("repository is locked by another run")

// LockInfo is the content of a repository lock file.
type LockInfo struct {
	RepoID    string    `json:"repo_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// RepoLocker serializes runs per repository: within the process through a
// mutex table and across processes through a lock file per repository.
type RepoLocker struct {
	dir string

	mu   sync.Mutex
	held map[string]bool
}

// NewRepoLocker keeps lock files in dir.
func NewRepoLocker(dir string) *RepoLocker {
	return &RepoLocker{dir: dir, held: make(map[string]bool)}
}

// RepoLock is a held repository lock. Release it exactly once.
type RepoLock struct {
	locker *RepoLocker
	repoID string
	path   string
}

// TryAcquire takes the lock for repoID without waiting. It fails with
// ErrRepoLocked when another run in this or a live process holds it; lock
// files left behind by dead processes are taken over.
//
// The lock file only ever appears fully written: it is written under a
// private name and hard-linked into place, which fails when the file exists.
func (l *RepoLocker) TryAcquire(repoID string) (*RepoLock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[repoID] {
		return nil, fmt.Errorf("%w: %s", ErrRepoLocked, repoID)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}
	data, err := json.MarshalIndent(LockInfo{
		RepoID:    repoID,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	path := l.lockPath(repoID)
	// Second pass only after a stale lock was removed
	for attempt := 0; attempt < 2; attempt++ {
		err := createExclusive(path, data)
		if err == nil {
			l.held[repoID] = true
			return &RepoLock{locker: l, repoID: repoID, path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create repository lock: %w", err)
		}

		existing, raw, err := readLock(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue // released meanwhile
		}
		if err == nil && isProcessAlive(existing.PID, existing.Hostname) {
			return nil, fmt.Errorf("%w: %s (PID %d on %s, started %s)", ErrRepoLocked, repoID,
				existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
		if err := takeOver(path, raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRepoLocked, repoID, err)
		}
	}
	return nil, fmt.Errorf("%w: %s (lost a race for a stale lock)", ErrRepoLocked, repoID)
}

func (l *RepoLocker) lockPath(repoID string) string {
	return filepath.Join(l.dir, repoID+".lock")
}

var tmpSeq atomic.Uint64

// createExclusive writes data to path, failing with fs.ErrExist when path
// is already there.
func createExclusive(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.%d.%d.tmp", path, os.Getpid(), tmpSeq.Add(1))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	defer os.Remove(tmp)
	if werr != nil {
		return werr
	}
	return os.Link(tmp, path)
}

// takeoverGuardTTL is how old a takeover guard must be before it counts as
// left behind by a crashed run. Guards are held for microseconds.
const takeoverGuardTTL = 10 * time.Second

var errTakeoverBusy = errors.New("another run is taking over the stale lock")

// takeOver removes the stale lock at path, whose content was staleRaw.
// Takeovers are serialized by a guard file; the lock is removed only when it
// still holds the content judged stale, so a lock created in between by a
// live run is never removed.
func takeOver(path string, staleRaw []byte) error {
	guard := path + ".takeover"
	if err := createExclusive(guard, nil); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return err
		}
		if fi, err := os.Stat(guard); err == nil && time.Since(fi.ModTime()) > takeoverGuardTTL {
			_ = os.Remove(guard)
		}
		return errTakeoverBusy
	}
	defer os.Remove(guard)

	current, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !bytes.Equal(current, staleRaw) {
		return errors.New("lock changed during takeover")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func readLock(path string) (*LockInfo, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, data, fmt.Errorf("corrupt lock file %s: %w", filepath.Base(path), err)
	}
	return &info, data, nil
}

// Release removes the lock file and frees the in-process slot.
func (r *RepoLock) Release() error {
	r.locker.mu.Lock()
	defer r.locker.mu.Unlock()

	delete(r.locker.held, r.repoID)
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove repository lock: %w", err)
	}
	return nil
}

// Inspect reads the lock file of repoID. It returns nil when no lock file
// exists; alive is false for locks left behind by dead processes.
func (l *RepoLocker) Inspect(repoID string) (info *LockInfo, alive bool, err error) {
	info, _, err = readLock(l.lockPath(repoID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read lock of %s: %w", repoID, err)
	}
	return info, isProcessAlive(info.PID, info.Hostname), nil
}

// ClearStale removes the lock file of repoID when its owner is dead and
// reports whether it did. Live locks are left alone.
func (l *RepoLocker) ClearStale(repoID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[repoID] {
		return false, nil
	}
	path := l.lockPath(repoID)
	info, raw, err := readLock(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read lock of %s: %w", repoID, err)
	}
	if isProcessAlive(info.PID, info.Hostname) {
		return false, nil
	}
	if err := takeOver(path, raw); err != nil {
		return false, fmt.Errorf("failed to remove stale lock: %w", err)
	}
	return true, nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		// Can't check hostname, assume remote/alive
		return true
	}

	if !strings.EqualFold(hostname, currentHost) {
		// Remote host - can't check, assume alive
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 probes for existence without delivering anything
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM: the process exists but belongs to someone else
	if errors.Is(err, syscall.EPERM) {
		return true
	}

	return false
}
