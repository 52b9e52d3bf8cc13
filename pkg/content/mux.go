package content

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Mux routes an address to a Store by URL scheme. Addresses without a scheme
// (or with file://) go to the "file" store.
type Mux struct {
	stores map[string]Store
}

// NewMux returns a Mux serving http, https and local files.
func NewMux(fileRoot string, httpTimeout time.Duration) *Mux {
	h := NewHTTPStore(httpTimeout)
	return &Mux{stores: map[string]Store{
		"http":  h,
		"https": h,
		"file":  NewFileStore(fileRoot),
	}}
}

// Handle registers store for scheme, replacing any previous one.
func (m *Mux) Handle(scheme string, store Store) {
	if m.stores == nil {
		m.stores = make(map[string]Store)
	}
	m.stores[strings.ToLower(scheme)] = store
}

// Fetch implements Store.
func (m *Mux) Fetch(ctx context.Context, address string) ([]byte, error) {
	scheme := "file"
	if u, err := url.Parse(address); err == nil && len(u.Scheme) > 1 {
		// single letters are Windows drive names
		scheme = strings.ToLower(u.Scheme)
	}

	store, ok := m.stores[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrFetchFailed, scheme)
	}
	return store.Fetch(ctx, address)
}
