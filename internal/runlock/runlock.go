// Package runlock keeps two shipyard processes from triggering the same job
// list at the same time.
//
// The lock is an flock(2) on a file in the system temp directory whose name
// is derived from the job list's absolute path. The kernel releases it when
// the holding process exits, so a crashed run never leaves a stale lock.
package runlock

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/Iron-Ham/shipyard/internal/errors"
)

// ErrHeld is returned by Acquire when another process holds the lock.
var ErrHeld = errors.New("job list is locked by another run")

// Lock is an exclusive lock on one job list.
type Lock struct {
	key  string
	path string
	file *os.File
}

// New returns the lock for the job list at jobsPath. Lock files live in dir,
// or in the system temp directory when dir is empty.
func New(dir, jobsPath string) (*Lock, error) {
	abs, err := filepath.Abs(jobsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", jobsPath)
	}
	if dir == "" {
		dir = os.TempDir()
	}
	sum := sha256.Sum256([]byte(abs))
	name := "shipyard-" + hex.EncodeToString(sum[:8]) + ".lock"
	return &Lock{key: abs, path: filepath.Join(dir, name)}, nil
}

// Path is the lock file.
func (l *Lock) Path() string { return l.path }

// Acquire takes the lock without blocking. When another process holds it
// the error wraps ErrHeld and names the holder's pid if it is known.
func (l *Lock) Acquire() error {
	if l.file != nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrap(err, "open lock file")
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readHolder(f)
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			if holder > 0 {
				return fmt.Errorf("%w: %s (pid %d)", ErrHeld, l.key, holder)
			}
			return fmt.Errorf("%w: %s", ErrHeld, l.key)
		}
		return errors.Wrap(err, "flock")
	}

	// Record the holder for the next process that finds the lock taken.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"+l.key+"\n"), 0)
	}
	l.file = f
	return nil
}

// Release drops the lock. It is a no-op when the lock is not held.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	_ = f.Truncate(0)
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "funlock")
	}
	return f.Close()
}

func readHolder(f *os.File) int {
	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)
	line, _, _ := strings.Cut(string(buf[:n]), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0
	}
	return pid
}
