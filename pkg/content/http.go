package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxPayload bounds a single response body.
const maxPayload = 32 << 20

// HTTPStore fetches payloads over HTTP(S).
type HTTPStore struct {
	Client *http.Client
}

// NewHTTPStore creates an HTTPStore whose client gives up after timeout.
// A zero timeout leaves requests unbounded.
func NewHTTPStore(timeout time.Duration) *HTTPStore {
	return &HTTPStore{Client: &http.Client{Timeout: timeout}}
}

// Fetch issues a single GET. Non-2xx responses are ErrInvalidPayload.
func (s *HTTPStore) Fetch(ctx context.Context, address string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %v", ErrInvalidPayload, address, err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s: status %d", ErrInvalidPayload, address, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrFetchFailed, address, err)
	}
	if len(body) > maxPayload {
		return nil, fmt.Errorf("%w: %s: payload exceeds %d bytes", ErrInvalidPayload, address, maxPayload)
	}
	return body, nil
}
