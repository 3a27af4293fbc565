package provider

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
)

// Registry resolves a URL to the first provider, in registration order, that
// accepts it.
// Mutable
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates a registry that consults providers in the given order.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// NewDefaultRegistry wires the built-in providers in priority order: user
// rules, Google Drive, MEGA, then plain HTTP as the catch-all.
// scripts and mega may be nil.
func NewDefaultRegistry(h *HTTP, scripts *Script, mega MegaClient) *Registry {
	r := NewRegistry()
	if scripts != nil && scripts.Len() > 0 {
		r.Register(scripts)
	}
	r.Register(NewGoogleDrive(h))
	r.Register(NewMega(mega))
	r.Register(h)
	return r
}

// Register appends p at the lowest priority.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// Providers returns the registered providers in priority order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Provider(nil), r.providers...)
}

// Resolve returns the provider for rawURL. An ErrUnsupportedConfiguration from
// any provider stops the search.
func (r *Registry) Resolve(rawURL string) (Provider, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrNoProviderFound, rawURL)
	}

	for _, p := range r.Providers() {
		ok, err := p.Accepts(rawURL)
		if err != nil {
			if !errors.Is(err, ErrUnsupportedConfiguration) {
				err = fmt.Errorf("%w: %s: %v", ErrUnsupportedConfiguration, p.Name(), err)
			}
			return nil, err
		}
		if ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoProviderFound, rawURL)
}
