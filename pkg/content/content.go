// Package content fetches listing documents and lesson bodies by address.
package content

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrFetchFailed means the address could not be reached or read.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrInvalidPayload means the source answered, but not with usable content.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Store fetches the payload at an address. Implementations make a single
// attempt; every error they return wraps ErrFetchFailed or ErrInvalidPayload.
type Store interface {
	Fetch(ctx context.Context, address string) ([]byte, error)
}

// isURL reports whether address carries a network scheme.
func isURL(address string) bool {
	u, err := url.Parse(address)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Join derives a lesson address from the content root and the lesson's
// location. Under a URL root the location is resolved as a URL reference and
// must stay on the network: file:// and other local schemes are rejected with
// ErrInvalidPayload. Under a local root, absolute locations are returned as-is.
func Join(root, location string) (string, error) {
	if isURL(root) {
		return joinURL(root, location)
	}
	if root == "" || isURL(location) || strings.HasPrefix(location, "file://") {
		return location, nil
	}
	if filepath.IsAbs(location) {
		return location, nil
	}
	if strings.HasPrefix(root, "file://") {
		return "file://" + path.Join(strings.TrimPrefix(root, "file://"), location), nil
	}
	return filepath.Join(root, filepath.FromSlash(location)), nil
}

func joinURL(root, location string) (string, error) {
	base, err := url.Parse(root)
	if err != nil {
		return "", fmt.Errorf("%w: content root %q: %v", ErrInvalidPayload, root, err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: location %q: %v", ErrInvalidPayload, location, err)
	}
	if ref.Scheme != "" && !isURL(location) {
		return "", fmt.Errorf("%w: location %q leaves remote root %s", ErrInvalidPayload, location, root)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
		base.RawPath = ""
	}
	return base.ResolveReference(ref).String(), nil
}

// RootOf returns the directory holding a listing source, the default content
// root for its lessons.
func RootOf(source string) string {
	if isURL(source) {
		u, err := url.Parse(source)
		if err != nil {
			return ""
		}
		u.RawQuery = ""
		u.Fragment = ""
		u.Path = path.Dir(u.Path)
		return u.String()
	}
	if strings.HasPrefix(source, "file://") {
		return "file://" + path.Dir(strings.TrimPrefix(source, "file://"))
	}
	return filepath.Dir(source)
}
