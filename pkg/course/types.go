package course

// Lesson is one navigable unit of a course listing.
type Lesson struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Location string `json:"location" yaml:"location"` // relative to the content root
	Timecode string `json:"timecode" yaml:"timecode"` // human-readable time estimate, e.g. "10 min"
}

// Listing is the ordered set of lessons of a course. Slice order is
// navigation order and indices are 0-based.
type Listing []Lesson

// Last returns the index of the final lesson, or -1 for an empty listing.
func (l Listing) Last() int {
	return len(l) - 1
}

// InRange reports whether index addresses a lesson.
func (l Listing) InRange(index int) bool {
	return index >= 0 && index < len(l)
}

// Clone returns an independent copy.
func (l Listing) Clone() Listing {
	if l == nil {
		return nil
	}
	out := make(Listing, len(l))
	copy(out, l)
	return out
}

// IndexOf returns the index of the lesson with the given ID, or -1.
func (l Listing) IndexOf(id string) int {
	for i, lesson := range l {
		if lesson.ID == id {
			return i
		}
	}
	return -1
}
