// Package disk inspects the local volumes that downloads are written to.
package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientSpace is returned when a volume cannot hold a pending write.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// Free returns the bytes available to unprivileged users on the volume
// holding path. Missing trailing components are skipped so the check can run
// before the destination directory is created.
func Free(path string) (uint64, error) {
	dir, err := existingParent(path)
	if err != nil {
		return 0, err
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to stat volume for %s: %w", dir, err)
	}
	return usage.Free, nil
}

// EnsureSpace fails with ErrInsufficientSpace if fewer than need bytes are
// free on the volume holding path.
func EnsureSpace(path string, need int64) error {
	if need <= 0 {
		return nil
	}
	free, err := Free(path)
	if err != nil {
		return err
	}
	if uint64(need) > free {
		return fmt.Errorf("%w: need %d bytes, %d free on %s", ErrInsufficientSpace, need, free, path)
	}
	return nil
}

func existingParent(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("no existing parent for %s", path)
		}
		abs = parent
	}
}
