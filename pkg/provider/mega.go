package provider

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"modelfetch/pkg/progress"
)

// MegaClient opens public MEGA file links. No implementation ships with this
// module; hosts that link a MEGA SDK pass one to NewMega.
type MegaClient interface {
	// Open returns the file's name, its size (0 if unknown) and a decrypted body.
	Open(ctx context.Context, rawURL string) (name string, size int64, body io.ReadCloser, err error)
}

// Mega claims mega.nz links. Without a client every matching link is an
// unsupported configuration rather than a fall-through to HTTP, which would
// only fetch the landing page.
// Immutable
type Mega struct {
	client    MegaClient
	chunkSize int
}

// NewMega creates the MEGA provider. client may be nil.
func NewMega(client MegaClient) *Mega {
	return &Mega{client: client, chunkSize: DefaultChunkSize}
}

func (m *Mega) Name() string { return "mega" }

func (m *Mega) Accepts(rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, nil
	}
	host := strings.ToLower(u.Hostname())
	if host != "mega.nz" && host != "mega.co.nz" {
		return false, nil
	}
	if strings.HasPrefix(u.Path, "/folder/") || strings.HasPrefix(u.Fragment, "F!") {
		return false, unsupported("mega folder download not supported: %s", rawURL)
	}
	if m.client == nil {
		return false, unsupported("mega client not configured for %s", rawURL)
	}
	return true, nil
}

func (m *Mega) ResolveFilename(ctx context.Context, rawURL string) string {
	if m.client == nil {
		return ""
	}
	name, _, body, err := m.client.Open(ctx, rawURL)
	if err != nil {
		slog.Debug("Filename probe failed", "url", rawURL, "error", err)
		return ""
	}
	body.Close()
	return safeBase(name)
}

func (m *Mega) Download(ctx context.Context, rawURL, destination, label string) *Stream {
	if m.client == nil {
		return FailedStream(unsupported("mega client not configured for %s", rawURL))
	}
	return NewStream(ctx, func(emit Emit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !emit(progress.Snapshot{}) {
			return ctx.Err()
		}

		_, size, body, err := m.client.Open(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &TransferError{URL: rawURL, Err: err}
		}
		defer body.Close()

		if size < 0 {
			size = 0
		}
		if !emit(progress.Snapshot{BytesTotal: size}) {
			return ctx.Err()
		}
		slog.Debug("Downloading", "label", label, "url", rawURL, "path", destination, "size", size)
		return writeBody(ctx, rawURL, body, destination, size, m.chunkSize, emit)
	})
}
