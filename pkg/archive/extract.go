// Package archive unpacks downloaded bundles (.zip, .tar, .tar.gz, .tgz,
// .tar.zst) next to the archive.
package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var extensions = []string{".zip", ".tar", ".tar.gz", ".tgz", ".tar.zst"}

// IsSupported reports whether filename has an extension Extract understands.
func IsSupported(filename string) bool {
	name := strings.ToLower(filename)
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Result counts what Extract wrote.
type Result struct {
	Files int
	Bytes int64
}

// Extract unpacks the archive at src into dest. Entries that would land
// outside dest are rejected. ctx is checked between entries.
func Extract(ctx context.Context, src, dest string) (Result, error) {
	name := strings.ToLower(src)
	if strings.HasSuffix(name, ".zip") {
		return extractZip(ctx, src, dest)
	}

	f, err := os.Open(src)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return Result{}, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzr.Close()
		r = gzr
	case strings.HasSuffix(name, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return Result{}, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(name, ".tar"):
	default:
		return Result{}, fmt.Errorf("unsupported archive format: %s", src)
	}
	return extractTar(ctx, r, dest)
}

func extractZip(ctx context.Context, src, dest string) (Result, error) {
	var res Result
	r, err := zip.OpenReader(src)
	if err != nil {
		return res, fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := extractFile(f.Name, f.FileInfo(), dest, f.Open)
		if err != nil {
			return res, err
		}
		res.add(f.FileInfo(), n)
	}
	return res, nil
}

func extractTar(ctx context.Context, r io.Reader, dest string) (Result, error) {
	var res Result
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		header, err := tr.Next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("failed to read tar header: %w", err)
		}
		switch header.Typeflag {
		case tar.TypeReg, tar.TypeDir:
		default:
			// Links and devices have no place in a model bundle.
			continue
		}

		n, err := extractFile(header.Name, header.FileInfo(), dest, func() (io.ReadCloser, error) {
			return io.NopCloser(tr), nil
		})
		if err != nil {
			return res, err
		}
		res.add(header.FileInfo(), n)
	}
}

func (r *Result) add(info os.FileInfo, n int64) {
	if !info.IsDir() {
		r.Files++
		r.Bytes += n
	}
}

func extractFile(name string, info os.FileInfo, dest string, open func() (io.ReadCloser, error)) (int64, error) {
	target := filepath.Join(dest, name)
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return 0, fmt.Errorf("illegal file path in archive: %s", name)
	}

	if info.IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return 0, fmt.Errorf("failed to create directory %s: %w", target, err)
		}
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("failed to create parent directory for %s: %w", target, err)
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0200)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", target, err)
	}
	defer f.Close()

	rc, err := open()
	if err != nil {
		return 0, fmt.Errorf("failed to open archive entry %s: %w", name, err)
	}
	defer rc.Close()

	n, err := io.Copy(f, rc)
	if err != nil {
		return n, fmt.Errorf("failed to write file %s: %w", target, err)
	}
	return n, nil
}
