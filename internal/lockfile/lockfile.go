// Package lockfile guarantees that only one bot process polls a token at a time.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// ErrAlreadyRunning is returned when the lock file already exists.
var ErrAlreadyRunning = errors.New("lockfile: another instance is already running")

// Lock is a held lock file.
type Lock struct {
	path string
	once sync.Once
}

// Acquire creates path exclusively and writes the current pid into it.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, errors.New("lockfile: path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("lockfile: create directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w (%s)", ErrAlreadyRunning, path)
		}
		return nil, fmt.Errorf("lockfile: create %s: %w", path, err)
	}

	_, writeErr := file.WriteString(strconv.Itoa(os.Getpid()))
	closeErr := file.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("lockfile: write pid: %w", err)
	}
	return &Lock{path: path}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	var err error
	l.once.Do(func() {
		if removeErr := os.Remove(l.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			err = fmt.Errorf("lockfile: remove %s: %w", l.path, removeErr)
		}
	})
	return err
}
