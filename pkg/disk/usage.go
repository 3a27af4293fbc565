package disk

import (
	"os"
	"path/filepath"
)

// Usage describes what is stored under one directory and the room left on its volume.
type Usage struct {
	Path  string
	Size  int64
	Items int
	Free  uint64
}

// DirUsage walks path and sums regular file sizes. A missing directory
// reports zero usage.
func DirUsage(path string) (Usage, error) {
	u := Usage{Path: path}
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.Mode().IsRegular() {
			u.Size += info.Size()
			u.Items++
		}
		return nil
	})
	if err != nil {
		return u, err
	}
	free, err := Free(path)
	if err != nil {
		return u, err
	}
	u.Free = free
	return u, nil
}
