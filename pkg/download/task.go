package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"modelfetch/pkg/archive"
	"modelfetch/pkg/catalog"
	"modelfetch/pkg/filelock"
	"modelfetch/pkg/preview"
	"modelfetch/pkg/progress"
	"modelfetch/pkg/provider"
)

// updateFunc applies fn to the task's record under the manager's lock.
type updateFunc func(fn func(r *RecordState))

// task drives one catalog item through Pending → InProgress → terminal.
// Immutable
type task struct {
	item     catalog.Item
	registry *provider.Registry
	update   updateFunc
}

func newTask(item catalog.Item, registry *provider.Registry, update updateFunc) *task {
	return &task{item: item, registry: registry, update: update}
}

// run returns false when cancellation stopped the task before its record
// became terminal.
func (t *task) run(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	status, dest, err := t.fetchPrimary(ctx)
	if status == StatusCompleted && t.item.Extract && archive.IsSupported(dest) {
		status, err = t.unpack(ctx, dest)
	}
	if status == "" {
		return false
	}

	if t.item.PreviewURL != "" {
		if perr := t.fetchPreview(ctx, dest); perr != nil {
			if ctx.Err() != nil {
				return false
			}
			slog.Warn("Preview failed", "id", t.item.ID, "url", t.item.PreviewURL, "error", perr)
			t.update(func(r *RecordState) { r.PreviewException = perr.Error() })
		}
	}

	t.update(func(r *RecordState) {
		r.Status = status
		if err != nil {
			r.Exception = err.Error()
		}
	})

	switch status {
	case StatusError:
		slog.Error("Download failed", "id", t.item.ID, "url", t.item.URL, "error", err)
	case StatusExists:
		slog.Info("Already present", "id", t.item.ID, "path", dest)
	default:
		slog.Info("Downloaded", "id", t.item.ID, "path", dest)
	}
	return true
}

// fetchPrimary returns the outcome for the primary asset without recording it
// as terminal, since the preview is handled first. An empty status means the
// context was cancelled.
func (t *task) fetchPrimary(ctx context.Context) (Status, string, error) {
	p, err := t.registry.Resolve(t.item.URL)
	if err != nil {
		return StatusError, "", err
	}

	for _, name := range t.offlineNames() {
		dest := filepath.Join(t.item.Dir, name)
		if fileExists(dest) {
			t.update(func(r *RecordState) {
				r.Filename = name
				r.Destination = dest
			})
			return StatusExists, dest, nil
		}
	}

	if ctx.Err() != nil {
		return "", "", ctx.Err()
	}
	t.update(func(r *RecordState) { r.Status = StatusInProgress })

	name := t.resolveName(ctx, p)
	dest := filepath.Join(t.item.Dir, name)
	t.update(func(r *RecordState) {
		r.Filename = name
		r.Destination = dest
	})
	if fileExists(dest) {
		return StatusExists, dest, nil
	}

	if err := os.MkdirAll(t.item.Dir, 0755); err != nil {
		return StatusError, dest, fmt.Errorf("failed to create %s: %w", t.item.Dir, err)
	}

	// Another process may be fetching the same file; wait for it and reuse it.
	created, err := filelock.Ensure(ctx, dest, func() error {
		return t.consume(p.Download(ctx, t.item.URL, dest, t.item.Label()), func(r *RecordState, snap *progress.Snapshot) {
			r.Progress = snap
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", dest, ctx.Err()
		}
		return StatusError, dest, err
	}
	if !created {
		return StatusExists, dest, nil
	}
	return StatusCompleted, dest, nil
}

// unpack extracts a freshly downloaded bundle into the item's directory.
// The archive itself is kept so later runs see it as present.
func (t *task) unpack(ctx context.Context, dest string) (Status, error) {
	res, err := archive.Extract(ctx, dest, t.item.Dir)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return StatusError, fmt.Errorf("extract %s: %w", filepath.Base(dest), err)
	}
	slog.Info("Unpacked", "id", t.item.ID, "files", res.Files, "bytes", res.Bytes, "dir", t.item.Dir)
	return StatusCompleted, nil
}

// fetchPreview downloads the preview next to the primary unless it is already
// there. Its outcome never changes the primary status.
func (t *task) fetchPreview(ctx context.Context, primaryDest string) error {
	name := previewName(t.primaryStem(primaryDest), t.item.PreviewURL)
	dest := filepath.Join(t.item.Dir, name)
	t.update(func(r *RecordState) {
		r.PreviewFilename = name
		r.PreviewDestination = dest
	})
	if fileExists(dest) {
		return nil
	}

	p, err := t.registry.Resolve(t.item.PreviewURL)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.update(func(r *RecordState) {
		if r.Status == StatusPending {
			r.Status = StatusInProgress
		}
	})
	if err := os.MkdirAll(t.item.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", t.item.Dir, err)
	}

	err = t.consume(p.Download(ctx, t.item.PreviewURL, dest, t.item.Label()+" preview"), func(r *RecordState, snap *progress.Snapshot) {
		r.PreviewProgress = snap
	})
	if err != nil {
		return err
	}

	if info, err := preview.Inspect(dest); err != nil {
		slog.Warn("Preview is not a readable image", "id", t.item.ID, "path", dest, "error", err)
	} else {
		slog.Debug("Preview saved", "id", t.item.ID, "path", dest, "image", info.String())
	}
	return nil
}

func (t *task) consume(s *provider.Stream, set func(r *RecordState, snap *progress.Snapshot)) error {
	return s.Drain(func(snap progress.Snapshot) {
		t.update(func(r *RecordState) { set(r, &snap) })
	})
}

// offlineNames are the filenames known without touching the network.
func (t *task) offlineNames() []string {
	var names []string
	if t.item.Filename != "" {
		names = append(names, filepath.Base(t.item.Filename))
	}
	if base := urlBase(t.item.URL); base != "" && (len(names) == 0 || names[0] != base) {
		names = append(names, base)
	}
	return names
}

// resolveName picks, in order, the catalog filename, the provider's
// suggestion, the URL basename and finally "<id>.bin".
func (t *task) resolveName(ctx context.Context, p provider.Provider) string {
	if t.item.Filename != "" {
		return filepath.Base(t.item.Filename)
	}
	if name := p.ResolveFilename(ctx, t.item.URL); name != "" {
		return name
	}
	if base := urlBase(t.item.URL); base != "" {
		return base
	}
	return t.item.ID + ".bin"
}

func (t *task) primaryStem(primaryDest string) string {
	name := filepath.Base(primaryDest)
	if primaryDest == "" {
		if names := t.offlineNames(); len(names) > 0 {
			name = names[0]
		} else {
			name = t.item.ID
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// previewName is "<stem>.preview<ext>", with the extension taken from the
// preview URL and defaulting to .png.
func previewName(stem, previewURL string) string {
	ext := ".png"
	if u, err := url.Parse(previewURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); len(e) > 1 && len(e) <= 5 {
			ext = e
		}
	}
	return stem + ".preview" + ext
}

// urlBase returns the last path segment of rawURL when it carries an
// extension. Segments like "view" or a numeric id are not filenames.
func urlBase(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if path.Ext(base) == "" || base == "." || base == "/" {
		return ""
	}
	return base
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
