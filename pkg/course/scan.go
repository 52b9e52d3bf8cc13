package course

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// lessonExts are the file types ScanDir treats as lessons.
var lessonExts = map[string]bool{
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".txt":      true,
}

// ScanDir builds a listing from the lesson files directly inside dir.
// Lessons are ordered by their frontmatter `order`, then by file name; files
// without frontmatter fall back to their base name for id and title.
func ScanDir(dir string) (Listing, error) {
	type scanned struct {
		lesson Lesson
		order  int
		name   string
	}
	var found []scanned

	err := eachLessonFile(dir, func(name string, fm Frontmatter, _ string) error {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		lesson := Lesson{
			ID:       fm.ID,
			Title:    fm.Title,
			Location: name,
			Timecode: fm.Timecode,
		}
		if lesson.ID == "" {
			lesson.ID = base
		}
		if lesson.Title == "" {
			lesson.Title = base
		}
		found = append(found, scanned{lesson: lesson, order: fm.Order, name: name})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("%w: no lesson files in %s", ErrMalformedListing, dir)
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].order != found[j].order {
			return found[i].order < found[j].order
		}
		return found[i].name < found[j].name
	})

	listing := make(Listing, len(found))
	for i, s := range found {
		listing[i] = s.lesson
	}
	return listing, nil
}

// StampDir writes an id and title header into every lesson file in dir that
// lacks one, using the file's base name, so ids survive later renames of the
// title. It returns the number of files rewritten.
func StampDir(dir string) (int, error) {
	stamped := 0
	err := eachLessonFile(dir, func(name string, fm Frontmatter, body string) error {
		if fm.ID != "" && fm.Title != "" {
			return nil
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if fm.ID == "" {
			fm.ID = base
		}
		if fm.Title == "" {
			fm.Title = base
		}
		out, err := SerializeFrontmatter(fm, body)
		if err != nil {
			return fmt.Errorf("lesson %s: %w", name, err)
		}
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(out), info.Mode().Perm()); err != nil {
			return fmt.Errorf("writing lesson %s: %w", name, err)
		}
		stamped++
		return nil
	})
	return stamped, err
}

// eachLessonFile calls fn for the lesson files directly inside dir, in
// directory order, with their parsed header and body.
func eachLessonFile(dir string, fn func(name string, fm Frontmatter, body string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading course directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !lessonExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading lesson %s: %w", entry.Name(), err)
		}
		fm, body, err := ParseFrontmatter(string(data))
		if err != nil {
			return fmt.Errorf("lesson %s: %w", entry.Name(), err)
		}
		if err := fn(entry.Name(), fm, body); err != nil {
			return err
		}
	}
	return nil
}
