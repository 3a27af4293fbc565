package provider

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeMega struct {
	name string
	data string
	err  error
}

func (f *fakeMega) Open(ctx context.Context, rawURL string) (string, int64, io.ReadCloser, error) {
	if f.err != nil {
		return "", 0, nil, f.err
	}
	return f.name, int64(len(f.data)), io.NopCloser(strings.NewReader(f.data)), nil
}

func TestMegaAccepts(t *testing.T) {
	client := &fakeMega{name: "a.bin"}
	tests := []struct {
		name        string
		client      MegaClient
		url         string
		want        bool
		unsupported bool
	}{
		{"file", client, "https://mega.nz/file/AbCd#key", true, false},
		{"legacy host", client, "https://mega.co.nz/#!AbCd!key", true, false},
		{"folder", client, "https://mega.nz/folder/AbCd#key", false, true},
		{"legacy folder", client, "https://mega.nz/#F!AbCd!key", false, true},
		{"no client", nil, "https://mega.nz/file/AbCd#key", false, true},
		{"other host", nil, "https://example.com/file/AbCd", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMega(tt.client).Accepts(tt.url)
			if tt.unsupported != errors.Is(err, ErrUnsupportedConfiguration) {
				t.Errorf("error = %v, want unsupported=%v", err, tt.unsupported)
			}
			if got != tt.want {
				t.Errorf("Accepts() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMegaDownload(t *testing.T) {
	client := &fakeMega{name: "../checkpoint.ckpt", data: strings.Repeat("m", 2500)}
	m := NewMega(client)
	link := "https://mega.nz/file/AbCd#key"

	if got := m.ResolveFilename(context.Background(), link); got != "checkpoint.ckpt" {
		t.Errorf("ResolveFilename() = %q", got)
	}

	dest := filepath.Join(t.TempDir(), "checkpoint.ckpt")
	snaps, err := collect(m.Download(context.Background(), link, dest, "ckpt"))
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(snaps) != 2+3+1 {
		t.Errorf("got %d snapshots: %+v", len(snaps), snaps)
	}
	if last := snaps[len(snaps)-1]; last.BytesReady != 2500 || last.BytesTotal != 2500 {
		t.Errorf("final snapshot = %+v", last)
	}
	info, err := os.Stat(dest)
	if err != nil || info.Size() != 2500 {
		t.Errorf("file not written: %v", err)
	}
}

func TestMegaOpenError(t *testing.T) {
	m := NewMega(&fakeMega{err: errors.New("link expired")})
	dest := filepath.Join(t.TempDir(), "x.bin")
	_, err := collect(m.Download(context.Background(), "https://mega.nz/file/AbCd#key", dest, "x"))
	if !errors.Is(err, ErrTransfer) {
		t.Fatalf("expected ErrTransfer, got %v", err)
	}
}
