package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore reads payloads from the local filesystem. Relative addresses are
// resolved against Root.
type FileStore struct {
	Root string
}

// NewFileStore creates a FileStore rooted at root.
func NewFileStore(root string) *FileStore {
	return &FileStore{Root: root}
}

// Fetch reads the file at address.
func (s *FileStore) Fetch(ctx context.Context, address string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	p := s.resolve(address)
	if p == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidPayload)
	}

	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrFetchFailed, p)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidPayload, p)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrFetchFailed, p, err)
	}
	return data, nil
}

func (s *FileStore) resolve(address string) string {
	address = strings.TrimPrefix(address, "file://")
	if address == "" {
		return ""
	}
	p := filepath.FromSlash(address)
	if filepath.IsAbs(p) || s.Root == "" {
		return p
	}
	return filepath.Join(s.Root, p)
}
