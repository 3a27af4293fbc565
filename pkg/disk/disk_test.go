package disk

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestFreeMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet", "created")
	free, err := Free(dir)
	if err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if free == 0 {
		t.Errorf("Expected free space on temp volume, got 0")
	}
}

func TestEnsureSpace(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureSpace(dir, 1); err != nil {
		t.Errorf("Expected 1 byte to fit, got %v", err)
	}
	if err := EnsureSpace(dir, 0); err != nil {
		t.Errorf("Unknown size should always pass, got %v", err)
	}
	err := EnsureSpace(dir, math.MaxInt64)
	if !errors.Is(err, ErrInsufficientSpace) {
		t.Errorf("Expected ErrInsufficientSpace, got %v", err)
	}
}

func TestDirUsage(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.safetensors"), make([]byte, 10), 0644)
	os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	os.WriteFile(filepath.Join(dir, "sub", "b.png"), make([]byte, 5), 0644)

	u, err := DirUsage(dir)
	if err != nil {
		t.Fatalf("DirUsage failed: %v", err)
	}
	if u.Size != 15 || u.Items != 2 {
		t.Errorf("Expected 15 bytes in 2 items, got %d in %d", u.Size, u.Items)
	}
}
