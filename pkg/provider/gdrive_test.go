package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"modelfetch/pkg/progress"
)

const confirmPage = `<!DOCTYPE html><html><body>
<p>Google Drive can't scan this file for viruses.</p>
<form id="download-form" action="/download" method="get">
  <input type="submit" value="Download anyway">
  <input type="hidden" name="id" value="%s">
  <input type="hidden" name="export" value="download">
  <input type="hidden" name="confirm" value="t">
  <input type="hidden" name="uuid" value="0f1e2d">
</form></body></html>`

func newDriveServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/download" || q.Get("export") != "download" {
			http.NotFound(w, r)
			return
		}
		switch q.Get("id") {
		case "small":
			w.Header().Set("Content-Disposition", `attachment; filename="small.pt"`)
			w.Write(payload)
		case "large":
			if q.Get("confirm") != "t" || q.Get("uuid") != "0f1e2d" {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				fmt.Fprintf(w, confirmPage, "large")
				return
			}
			w.Header().Set("Content-Disposition", `attachment; filename="large.safetensors"`)
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(payload)))
			w.Write(payload)
		case "quota":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body>Too many users have viewed or downloaded this file recently.</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestDriveAccepts(t *testing.T) {
	tests := []struct {
		url         string
		want        bool
		unsupported bool
	}{
		{"https://drive.google.com/file/d/abc123/view?usp=sharing", true, false},
		{"https://drive.google.com/open?id=abc123", true, false},
		{"https://docs.google.com/uc?export=download&id=abc123", true, false},
		{"https://drive.usercontent.google.com/download?id=abc123", true, false},
		{"https://drive.google.com/drive/folders/xyz", false, true},
		{"https://drive.google.com/", false, true},
		{"https://example.com/file/d/abc123", false, false},
	}

	d := NewGoogleDrive(NewHTTP())
	for _, tt := range tests {
		got, err := d.Accepts(tt.url)
		if tt.unsupported != errors.Is(err, ErrUnsupportedConfiguration) {
			t.Errorf("Accepts(%q) error = %v, want unsupported=%v", tt.url, err, tt.unsupported)
		}
		if got != tt.want {
			t.Errorf("Accepts(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestDriveDownloadDirect(t *testing.T) {
	payload := []byte("small model")
	ts := newDriveServer(t, payload)
	d := NewGoogleDrive(NewHTTP(), WithDriveBase(ts.URL))

	link := "https://drive.google.com/file/d/small/view"
	if got := d.ResolveFilename(context.Background(), link); got != "small.pt" {
		t.Errorf("ResolveFilename() = %q", got)
	}

	dest := filepath.Join(t.TempDir(), "small.pt")
	if _, err := collect(d.Download(context.Background(), link, dest, "small")); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != string(payload) {
		t.Errorf("got %q", got)
	}
}

func TestDriveDownloadConfirm(t *testing.T) {
	payload := []byte("a much larger model body")
	ts := newDriveServer(t, payload)
	d := NewGoogleDrive(NewHTTP(), WithDriveBase(ts.URL))

	link := "https://drive.google.com/open?id=large"
	if got := d.ResolveFilename(context.Background(), link); got != "large.safetensors" {
		t.Errorf("ResolveFilename() = %q", got)
	}

	dest := filepath.Join(t.TempDir(), "large.safetensors")
	snaps, err := collect(d.Download(context.Background(), link, dest, "large"))
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if snaps[0] != (progress.Snapshot{}) || snaps[1].BytesTotal != int64(len(payload)) {
		t.Errorf("unexpected leading snapshots %+v", snaps[:2])
	}
	got, _ := os.ReadFile(dest)
	if string(got) != string(payload) {
		t.Errorf("got %q", got)
	}
}

func TestDriveQuotaPage(t *testing.T) {
	ts := newDriveServer(t, nil)
	d := NewGoogleDrive(NewHTTP(), WithDriveBase(ts.URL))

	dest := filepath.Join(t.TempDir(), "quota.bin")
	_, err := collect(d.Download(context.Background(), "https://drive.google.com/file/d/quota/view", dest, "quota"))
	if !errors.Is(err, ErrTransfer) {
		t.Fatalf("expected ErrTransfer, got %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("no file should be written for a quota page")
	}
}
