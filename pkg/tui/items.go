package tui

import (
	"github.com/stefanpenner/syllabus/pkg/controller"
	"github.com/stefanpenner/syllabus/pkg/course"
)

// LessonRow is one line of the lesson list.
type LessonRow struct {
	Number  int // 1-based
	Lesson  course.Lesson
	Active  bool
	Reached bool
	Pending bool
}

// BuildRows flattens a view's listing into list rows.
func BuildRows(v controller.View) []LessonRow {
	rows := make([]LessonRow, 0, len(v.Listing))
	for i, lesson := range v.Listing {
		rows = append(rows, LessonRow{
			Number:  i + 1,
			Lesson:  lesson,
			Active:  i == v.ActiveIndex,
			Reached: v.Reached(i),
			Pending: i == v.Pending,
		})
	}
	return rows
}

func displayTitle(l course.Lesson) string {
	if l.Title != "" {
		return l.Title
	}
	if l.ID != "" {
		return l.ID
	}
	return l.Location
}
