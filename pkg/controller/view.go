package controller

import "github.com/stefanpenner/syllabus/pkg/course"

// View is a point-in-time copy of the controller's state for rendering.
// Nothing in it aliases controller internals.
type View struct {
	Source        string         `json:"source"`
	Listing       course.Listing `json:"listing"`
	ActiveIndex   int            `json:"activeIndex"` // Unset when no lesson is selected
	FarthestIndex int            `json:"farthestIndex"`
	Timecode      string         `json:"timecode"`
	Content       string         `json:"-"`
	Pending       int            `json:"pending"` // index being fetched, or Unset
}

// CurrentView returns a snapshot of the controller's state.
func (c *Controller) CurrentView() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Source:        c.source,
		Listing:       c.listing.Clone(),
		ActiveIndex:   c.active,
		FarthestIndex: c.farthest,
		Timecode:      c.timecode,
		Content:       c.body,
		Pending:       c.pending,
	}
}

// Selected reports whether a lesson is active.
func (v View) Selected() bool {
	return v.ActiveIndex != Unset
}

// Active returns the active lesson.
func (v View) Active() (course.Lesson, bool) {
	if !v.Listing.InRange(v.ActiveIndex) {
		return course.Lesson{}, false
	}
	return v.Listing[v.ActiveIndex], true
}

// Loading reports whether a lesson fetch is outstanding.
func (v View) Loading() bool {
	return v.Pending != Unset
}

// CanAdvance reports whether Advance would move.
func (v View) CanAdvance() bool {
	return v.Selected() && v.ActiveIndex < v.Listing.Last()
}

// CanRetreat reports whether Retreat would move.
func (v View) CanRetreat() bool {
	return v.Selected() && v.ActiveIndex > 0
}

// Completed reports whether the learner is on the final lesson.
func (v View) Completed() bool {
	return v.Selected() && v.ActiveIndex == v.Listing.Last()
}

// Reached reports whether the lesson at index is at or before the furthest
// lesson reached.
func (v View) Reached(index int) bool {
	if !v.Selected() && v.FarthestIndex == 0 {
		return false
	}
	return index <= v.FarthestIndex && v.Listing.InRange(index)
}
