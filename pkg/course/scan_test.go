package course

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLesson(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	writeLesson(t, dir, "zeta.md", "---\nid: first\ntitle: First\ntimecode: 5 min\norder: 1\n---\nbody")
	writeLesson(t, dir, "alpha.md", "---\ntitle: Second\norder: 2\n---\nbody")
	writeLesson(t, dir, "beta.html", "<p>no header</p>")
	writeLesson(t, dir, "notes.json", "{}")
	writeLesson(t, dir, ".hidden.md", "skip me")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "assets"), 0755))

	listing, err := ScanDir(dir)
	require.NoError(t, err)
	require.Len(t, listing, 3)

	// order 0 (no header) sorts first
	assert.Equal(t, Lesson{ID: "beta", Title: "beta", Location: "beta.html"}, listing[0])
	assert.Equal(t, Lesson{ID: "first", Title: "First", Location: "zeta.md", Timecode: "5 min"}, listing[1])
	assert.Equal(t, "alpha", listing[2].ID)
	assert.Equal(t, "Second", listing[2].Title)
}

func TestScanDirEmpty(t *testing.T) {
	_, err := ScanDir(t.TempDir())
	assert.True(t, errors.Is(err, ErrMalformedListing))

	_, err = ScanDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestScanDirBadFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeLesson(t, dir, "a.md", "---\ntitle: [unterminated\n---\n")

	_, err := ScanDir(dir)
	assert.Error(t, err)
}

func TestStampDir(t *testing.T) {
	dir := t.TempDir()
	writeLesson(t, dir, "intro.md", "# Intro\n")
	writeLesson(t, dir, "setup.md", "---\ntitle: Setup\norder: 2\n---\nInstall the tools.\n")
	writeLesson(t, dir, "done.md", "---\nid: done\ntitle: Done\n---\nbody\n")

	n, err := StampDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(dir, "setup.md"))
	require.NoError(t, err)
	fm, body, err := ParseFrontmatter(string(data))
	require.NoError(t, err)
	assert.Equal(t, Frontmatter{ID: "setup", Title: "Setup", Order: 2}, fm)
	assert.Equal(t, "Install the tools.\n", body)

	data, err = os.ReadFile(filepath.Join(dir, "intro.md"))
	require.NoError(t, err)
	fm, body, err = ParseFrontmatter(string(data))
	require.NoError(t, err)
	assert.Equal(t, Frontmatter{ID: "intro", Title: "intro"}, fm)
	assert.Equal(t, "# Intro\n", body)

	// a second pass has nothing to do
	n, err = StampDir(dir)
	require.NoError(t, err)
	assert.Zero(t, n)
}
