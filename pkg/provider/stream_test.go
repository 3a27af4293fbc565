package provider

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"modelfetch/pkg/progress"
)

func TestWriteBodyFailsOnBrokenReader(t *testing.T) {
	body := io.MultiReader(strings.NewReader("abc"), iotest.ErrReader(io.ErrUnexpectedEOF))
	dest := filepath.Join(t.TempDir(), "x.bin")

	var last progress.Snapshot
	err := writeBody(context.Background(), "http://x/x.bin", body, dest, 0, 2, func(s progress.Snapshot) bool {
		last = s
		return true
	})
	if !errors.Is(err, ErrTransfer) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected wrapped unexpected EOF, got %v", err)
	}
	if last.BytesReady != 3 || last.BytesTotal != 0 {
		t.Errorf("expected progress without a final snapshot, got %+v", last)
	}
}

func TestWriteBodyShortLastChunk(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "x.bin")

	var snaps []progress.Snapshot
	err := writeBody(context.Background(), "http://x/x.bin", iotest.HalfReader(strings.NewReader("hello")), dest, 0, 4, func(s progress.Snapshot) bool {
		snaps = append(snaps, s)
		return true
	})
	if err != nil {
		t.Fatalf("writeBody failed: %v", err)
	}
	if len(snaps) != 3 || snaps[0].BytesReady != 4 || snaps[1].BytesReady != 5 {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}
	if final := snaps[2]; final.BytesReady != 5 || final.BytesTotal != 5 {
		t.Errorf("unexpected final snapshot %+v", final)
	}
	if data, _ := os.ReadFile(dest); string(data) != "hello" {
		t.Errorf("file = %q", data)
	}
}

func TestWriteBodyCancelledBeforeFinal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dest := filepath.Join(t.TempDir(), "x.bin")

	var snaps []progress.Snapshot
	err := writeBody(ctx, "http://x/x.bin", strings.NewReader("0123456789"), dest, 10, 10, func(s progress.Snapshot) bool {
		if ctx.Err() != nil {
			return false
		}
		snaps = append(snaps, s)
		cancel()
		return true
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("expected no final snapshot after cancel, got %+v", snaps)
	}
}
