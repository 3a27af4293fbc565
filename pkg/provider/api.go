// Package provider resolves remote asset URLs to the source that can fetch
// them. Each Provider handles one class of URL (plain HTTP, cloud drives,
// user-scripted hosts) and streams progress while writing to disk.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Provider fetches assets from one class of source URL.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string
	// Accepts reports whether this provider services rawURL. It returns an
	// error wrapping ErrUnsupportedConfiguration when the URL belongs to the
	// provider but cannot be served; that error must not fall through to
	// other providers.
	Accepts(rawURL string) (bool, error)
	// ResolveFilename probes the source for a server-suggested filename.
	// It returns "" when none is available.
	ResolveFilename(ctx context.Context, rawURL string) string
	// Download writes the asset at rawURL to destination and reports progress
	// on the returned Stream. Cancelling ctx stops the transfer without any
	// further emission and may leave a partial file behind.
	Download(ctx context.Context, rawURL, destination, label string) *Stream
}

var (
	// ErrUnsupportedConfiguration marks a URL that matches a provider's domain
	// while a required capability or path shape is missing.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")
	// ErrNoProviderFound is returned when no registered provider accepts a URL.
	ErrNoProviderFound = errors.New("no provider found")
	// ErrTransfer marks network or filesystem failures during a download.
	ErrTransfer = errors.New("transfer failed")
)

// TransferError describes a failed download. It matches ErrTransfer with errors.Is.
type TransferError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("download %s: bad status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("download %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("download %s failed", e.URL)
	}
}

func (e *TransferError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransfer}
	}
	return []error{ErrTransfer, e.Err}
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedConfiguration, fmt.Sprintf(format, args...))
}
