package download

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"modelfetch/pkg/catalog"
	"modelfetch/pkg/provider"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 6))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPreviewName(t *testing.T) {
	tests := []struct {
		stem, url, want string
	}{
		{"model", "https://x/img.jpeg", "model.preview.jpeg"},
		{"model", "https://x/IMG.WEBP?w=300", "model.preview.webp"},
		{"model", "https://x/api/image/123", "model.preview.png"},
		{"model", "::bad", "model.preview.png"},
	}
	for _, tt := range tests {
		if got := previewName(tt.stem, tt.url); got != tt.want {
			t.Errorf("previewName(%q, %q) = %q, want %q", tt.stem, tt.url, got, tt.want)
		}
	}
}

func TestURLBase(t *testing.T) {
	tests := map[string]string{
		"https://huggingface.co/org/repo/resolve/main/model.safetensors": "model.safetensors",
		"https://x/file%20name.ckpt?download=true":                       "file name.ckpt",
		"https://civitai.com/api/download/models/12345":                  "",
		"https://drive.google.com/file/d/abc/view":                       "",
		"https://x/":                                                     "",
		"::bad":                                                          "",
	}
	for u, want := range tests {
		if got := urlBase(u); got != want {
			t.Errorf("urlBase(%q) = %q, want %q", u, got, want)
		}
	}
}

func TestResolveNameOrder(t *testing.T) {
	p := newGateProvider()

	tests := []struct {
		name     string
		item     catalog.Item
		provided string
		want     string
	}{
		{"catalog filename wins", catalog.Item{ID: "i", URL: "gate://h/u.bin", Filename: "sub/known.pt"}, "server.pt", "known.pt"},
		{"provider suggestion", catalog.Item{ID: "i", URL: "gate://h/u.bin"}, "server.pt", "server.pt"},
		{"url basename", catalog.Item{ID: "i", URL: "gate://h/u.bin"}, "", "u.bin"},
		{"id fallback", catalog.Item{ID: "i", URL: "gate://h/download/7"}, "", "i.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.name = tt.provided
			tk := newTask(tt.item, nil, nil)
			if got := tk.resolveName(context.Background(), p); got != tt.want {
				t.Errorf("resolveName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func runOne(t *testing.T, registry *provider.Registry, item catalog.Item) RecordState {
	t.Helper()
	m := NewManager(registry)
	if err := m.Start([]catalog.Item{item}); err != nil {
		t.Fatal(err)
	}
	return waitDone(t, m).Records[item.ID]
}

func TestPreviewFetchedWhenPrimaryExists(t *testing.T) {
	img := pngBytes(t)
	var primaryHits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/model.safetensors":
			primaryHits.Add(1)
			w.Write([]byte("weights"))
		case "/thumb.png":
			w.Write(img)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte("old"), 0644)

	r := runOne(t, httpRegistry(), catalog.Item{
		ID: "m", URL: ts.URL + "/model.safetensors", PreviewURL: ts.URL + "/thumb.png", Dir: dir,
	})
	if r.Status != StatusExists {
		t.Errorf("status %s, want Exists", r.Status)
	}
	if primaryHits.Load() != 0 {
		t.Error("existing primary was requested")
	}
	want := filepath.Join(dir, "model.preview.png")
	if r.PreviewDestination != want || r.PreviewFilename != "model.preview.png" {
		t.Errorf("preview destination %q", r.PreviewDestination)
	}
	got, _ := os.ReadFile(want)
	if !bytes.Equal(got, img) {
		t.Error("preview not written")
	}
	if r.PreviewProgress == nil || r.PreviewProgress.BytesReady != int64(len(img)) {
		t.Errorf("preview progress %+v", r.PreviewProgress)
	}
}

func TestPreviewFailureKeepsPrimaryStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/lora.safetensors" {
			w.Write([]byte("lora"))
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	r := runOne(t, httpRegistry(), catalog.Item{
		ID: "l", URL: ts.URL + "/lora.safetensors", PreviewURL: ts.URL + "/missing.jpg", Dir: t.TempDir(),
	})
	if r.Status != StatusCompleted {
		t.Errorf("status %s, want Completed (%s)", r.Status, r.Exception)
	}
	if r.PreviewException == "" || r.Exception != "" {
		t.Errorf("expected only a preview exception, got %q / %q", r.PreviewException, r.Exception)
	}
	if r.PreviewFilename != "lora.preview.jpg" {
		t.Errorf("preview filename %q", r.PreviewFilename)
	}
}

func TestExistingPreviewNotRefetched(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("data"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "vae.pt"), []byte("old"), 0644)
	os.WriteFile(filepath.Join(dir, "vae.preview.png"), []byte("old"), 0644)

	r := runOne(t, httpRegistry(), catalog.Item{ID: "v", URL: ts.URL + "/vae.pt", PreviewURL: ts.URL + "/p.png", Dir: dir})
	if r.Status != StatusExists || hits.Load() != 0 {
		t.Errorf("status %s with %d requests", r.Status, hits.Load())
	}
	if r.PreviewDestination != filepath.Join(dir, "vae.preview.png") {
		t.Errorf("preview destination %q", r.PreviewDestination)
	}
}

func TestTransferErrorRecorded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer ts.Close()

	r := runOne(t, httpRegistry(), catalog.Item{ID: "x", URL: ts.URL + "/x.bin", Dir: filepath.Join(t.TempDir(), "new", "dir")})
	if r.Status != StatusError || r.Exception == "" {
		t.Errorf("unexpected record %+v", r)
	}
	if r.Destination == "" {
		t.Error("destination should be recorded for a failed transfer")
	}
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		f.Write([]byte(body))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestBundleExtracted(t *testing.T) {
	bundle := zipBytes(t, map[string]string{"embeddings/neg.pt": "neg", "readme.txt": "hi"})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pack.zip":
			w.Write(bundle)
		default:
			w.Write([]byte("not a zip"))
		}
	}))
	defer ts.Close()

	dir := t.TempDir()
	r := runOne(t, httpRegistry(), catalog.Item{ID: "pack", URL: ts.URL + "/pack.zip", Dir: dir, Extract: true})
	if r.Status != StatusCompleted {
		t.Fatalf("unexpected record %+v", r)
	}
	if data, err := os.ReadFile(filepath.Join(dir, "embeddings", "neg.pt")); err != nil || string(data) != "neg" {
		t.Errorf("bundle not extracted: %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pack.zip")); err != nil {
		t.Errorf("archive should be kept: %v", err)
	}

	bad := runOne(t, httpRegistry(), catalog.Item{ID: "bad", URL: ts.URL + "/broken.zip", Dir: t.TempDir(), Extract: true})
	if bad.Status != StatusError || !strings.Contains(bad.Exception, "extract broken.zip") {
		t.Errorf("expected extract error, got %+v", bad)
	}

	plain := runOne(t, httpRegistry(), catalog.Item{ID: "plain", URL: ts.URL + "/broken.zip", Dir: t.TempDir()})
	if plain.Status != StatusCompleted {
		t.Errorf("without extract the archive is just a file, got %+v", plain)
	}
}
