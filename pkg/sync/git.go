// Package sync keeps local copies of courses published as git repositories.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrNotRepository means the target directory exists but is not a git clone.
var ErrNotRepository = errors.New("not a git repository")

// Result describes what FetchCourse did.
type Result struct {
	Dir     string `json:"dir"`
	Remote  string `json:"remote"`
	Cloned  bool   `json:"cloned"`  // false means an existing clone was updated
	Listing string `json:"listing"` // listing document found in the clone, if any
}

// Fetcher runs git. Out receives git's own output.
type Fetcher struct {
	Git    string
	Out    io.Writer
	Logger *zap.Logger
}

// NewFetcher returns a Fetcher using git from PATH.
func NewFetcher(out io.Writer, logger *zap.Logger) *Fetcher {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{Git: "git", Out: out, Logger: logger}
}

// FetchCourse clones remote into dir, or fast-forwards dir when it is already
// a clone. Local commits are never rebased or merged: a diverged clone is an
// error.
func (f *Fetcher) FetchCourse(ctx context.Context, remote, dir string) (Result, error) {
	res := Result{Dir: dir, Remote: remote}
	log := f.Logger.With(zap.String("remote", remote), zap.String("dir", dir))

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return res, fmt.Errorf("creating %s: %w", filepath.Dir(dir), err)
		}
		log.Info("cloning course")
		if err := f.run(ctx, "", "clone", "--depth", "1", remote, dir); err != nil {
			return res, fmt.Errorf("clone failed: %w", err)
		}
		res.Cloned = true

	case err != nil:
		return res, err

	case !info.IsDir():
		return res, fmt.Errorf("%s exists and is not a directory", dir)

	default:
		if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
			return res, fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		log.Info("updating course")
		if err := f.run(ctx, dir, "pull", "--ff-only"); err != nil {
			return res, fmt.Errorf("update failed (local changes? resolve in %s): %w", dir, err)
		}
	}

	res.Listing = FindListing(dir)
	return res, nil
}

func (f *Fetcher) run(ctx context.Context, dir string, args ...string) error {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, f.Git, args...)
	cmd.Stdout = f.Out
	cmd.Stderr = f.Out
	return cmd.Run()
}

// listingNames are the documents FindListing looks for, in order.
var listingNames = []string{
	"channels.json",
	filepath.Join("assets", "channels.json"),
	"course.json",
	"course.yaml",
	"course.yml",
}

// FindListing returns the path of the listing document in a course
// directory, or "" when there is none.
func FindListing(dir string) string {
	for _, name := range listingNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// CourseName derives a directory name from a git remote:
// "https://github.com/acme/go-basics.git" and "git@github.com:acme/go-basics"
// both give "go-basics".
func CourseName(remote string) string {
	remote = strings.TrimRight(remote, "/")
	p := remote
	if u, err := url.Parse(remote); err == nil && u.Scheme != "" {
		p = u.Path
	} else if i := strings.LastIndex(remote, ":"); i >= 0 {
		p = remote[i+1:]
	}
	name := strings.TrimSuffix(path.Base(filepath.ToSlash(p)), ".git")
	if name == "" || name == "." || name == "/" {
		return "course"
	}
	return name
}
