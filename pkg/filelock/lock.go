// Package filelock keeps two modelfetch processes from writing the same
// destination at once. A lock is a sibling "<target>.lock" file holding the
// owner's timestamp and PID; locks left by dead processes are taken over.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// PollInterval is how often a waiter re-checks a lock held by a live process.
var PollInterval = 200 * time.Millisecond

// Lock acquires the lock for target, waiting while another live process holds
// it. The returned function releases the lock.
func Lock(ctx context.Context, target string) (func() error, error) {
	lockFile := target + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent dir for lock: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := os.OpenFile(lockFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			content := fmt.Sprintf("%s %d", time.Now().Format(time.RFC3339), os.Getpid())
			if _, err := f.WriteString(content); err != nil {
				f.Close()
				os.Remove(lockFile)
				return nil, fmt.Errorf("failed to write lock file: %w", err)
			}
			f.Close()
			return func() error { return os.Remove(lockFile) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}

		content, err := os.ReadFile(lockFile)
		if os.IsNotExist(err) {
			continue
		}
		if err == nil {
			pid, ok := parseOwner(string(content))
			if !ok || !isPidAlive(pid) {
				// Corrupt or stale. Another waiter may remove it first; that's fine.
				os.Remove(lockFile)
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

// Ensure runs fn under the lock unless target already exists, before or after
// waiting. It reports whether fn ran.
func Ensure(ctx context.Context, target string, fn func() error) (bool, error) {
	if exists(target) {
		return false, nil
	}

	unlock, err := Lock(ctx, target)
	if err != nil {
		return false, err
	}
	defer unlock()

	if exists(target) {
		return false, nil
	}
	return true, fn()
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func parseOwner(content string) (int, bool) {
	parts := strings.Fields(content)
	if len(parts) < 2 {
		return 0, false
	}
	pid, err := strconv.Atoi(parts[len(parts)-1])
	return pid, err == nil
}

func isPidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return false
	}
	// EPERM: the process exists but belongs to someone else.
	return true
}
