package preview

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestInspectPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.preview.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	img.Set(1, 1, color.White)
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	info, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Format != "png" || info.Width != 64 || info.Height != 48 {
		t.Errorf("unexpected info %v", info)
	}
	if info.String() != "png 64x48" {
		t.Errorf("String() = %q", info.String())
	}
}

func TestInspectGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.preview.webp")
	os.WriteFile(path, []byte("not an image"), 0644)

	if _, err := Inspect(path); err == nil {
		t.Error("expected decode error")
	}
	if _, err := Inspect(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}
