package provider

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"modelfetch/pkg/disk"
	"modelfetch/pkg/progress"
)

// HTTP downloads plain http and https URLs.
// Immutable
type HTTP struct {
	client     *http.Client
	userAgent  string
	chunkSize  int
	checkSpace bool
}

// HTTPOption configures an HTTP provider.
type HTTPOption func(*HTTP)

// WithClient replaces the underlying http.Client.
func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTP) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

// WithChunkSize sets the write granularity at which progress is emitted.
func WithChunkSize(n int) HTTPOption {
	return func(h *HTTP) {
		if n > 0 {
			h.chunkSize = n
		}
	}
}

// WithSpaceCheck enables a free-space preflight once the size is known.
func WithSpaceCheck(enabled bool) HTTPOption {
	return func(h *HTTP) { h.checkSpace = enabled }
}

// NewHTTP creates the generic http/https provider.
func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{
		client: &http.Client{
			Timeout: 0, // Handled by context
		},
		userAgent: "modelfetch",
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTP) Name() string { return "http" }

func (h *HTTP) Accepts(rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, nil
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != "", nil
}

// ResolveFilename asks for the first two bytes only, to read
// Content-Disposition without transferring the body.
func (h *HTTP) ResolveFilename(ctx context.Context, rawURL string) string {
	resp, err := h.get(ctx, rawURL, "bytes=0-1")
	if err != nil {
		slog.Debug("Filename probe failed", "url", rawURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return ""
	}
	return filenameFromDisposition(resp.Header.Get("Content-Disposition"))
}

func (h *HTTP) Download(ctx context.Context, rawURL, destination, label string) *Stream {
	return NewStream(ctx, func(emit Emit) error {
		return h.transfer(ctx, rawURL, destination, label, emit)
	})
}

func (h *HTTP) transfer(ctx context.Context, rawURL, destination, label string, emit Emit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !emit(progress.Snapshot{}) {
		return ctx.Err()
	}

	resp, err := h.get(ctx, rawURL, "")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransferError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()
	return h.receive(ctx, rawURL, resp, destination, label, emit)
}

// receive writes an already opened response to destination. The caller has
// emitted the initial zero snapshot and owns resp.Body.
func (h *HTTP) receive(ctx context.Context, rawURL string, resp *http.Response, destination, label string, emit Emit) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransferError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	if !emit(progress.Snapshot{BytesTotal: total}) {
		return ctx.Err()
	}

	if h.checkSpace {
		if err := disk.EnsureSpace(filepath.Dir(destination), total); err != nil {
			return &TransferError{URL: rawURL, Err: err}
		}
	}

	slog.Debug("Downloading", "label", label, "url", rawURL, "path", destination, "size", total)
	return writeBody(ctx, rawURL, resp.Body, destination, total, h.chunkSize, emit)
}

func (h *HTTP) get(ctx context.Context, rawURL, byteRange string) (*http.Response, error) {
	req, err := h.newRequest(ctx, rawURL, byteRange)
	if err != nil {
		return nil, err
	}
	return h.client.Do(req)
}

func (h *HTTP) newRequest(ctx context.Context, rawURL, byteRange string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}
	return req, nil
}

// filenameFromDisposition extracts a safe base filename from a
// Content-Disposition header value.
func filenameFromDisposition(value string) string {
	if value == "" {
		return ""
	}
	var name string
	if _, params, err := mime.ParseMediaType(value); err == nil {
		name = params["filename"]
	} else {
		// Servers often send unquoted names with spaces, which ParseMediaType rejects.
		for _, part := range strings.Split(value, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if ok && strings.EqualFold(strings.TrimSpace(k), "filename") {
				name = strings.Trim(strings.TrimSpace(v), `"`)
				break
			}
		}
	}
	return safeBase(name)
}

func safeBase(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
