package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanpenner/syllabus/pkg/content"
	"github.com/stefanpenner/syllabus/pkg/course"
	"github.com/stefanpenner/syllabus/pkg/progress"
)

const source = "https://example.com/assets/channels.json"

// fakeContent serves canned payloads. A gated address blocks until its gate
// is released, announcing on started once the fetch begins.
type fakeContent struct {
	mu      sync.Mutex
	bodies  map[string]string
	errs    map[string]error
	gates   map[string]chan struct{}
	started chan string
	calls   []string
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		bodies:  make(map[string]string),
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 16),
	}
}

func (f *fakeContent) gate(address string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[address] = ch
	return ch
}

func (f *fakeContent) Fetch(ctx context.Context, address string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, address)
	gate := f.gates[address]
	delete(f.gates, address)
	f.mu.Unlock()

	if gate != nil {
		f.started <- address
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", content.ErrFetchFailed, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[address]; ok {
		return nil, err
	}
	body, ok := f.bodies[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s not found", content.ErrFetchFailed, address)
	}
	return []byte(body), nil
}

func (f *fakeContent) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeContent) set(address, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[address] = body
	delete(f.errs, address)
}

func (f *fakeContent) fail(address string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[address] = err
}

func lessonAddr(location string) string {
	return "https://example.com/assets/" + location
}

// threeLessons is the listing from the walkthrough: ids 1..3, a/b/c.html.
func threeLessons(f *fakeContent) course.Listing {
	listing := course.Listing{
		{ID: "1", Title: "One", Location: "a.html", Timecode: "10 min"},
		{ID: "2", Title: "Two", Location: "b.html", Timecode: "20 min"},
		{ID: "3", Title: "Three", Location: "c.html", Timecode: "5 min"},
	}
	serveListing(f, source, listing)
	return listing
}

func serveListing(f *fakeContent, address string, listing course.Listing) {
	data, err := course.EncodeListing(listing, course.FormatJSON)
	if err != nil {
		panic(err)
	}
	f.set(address, string(data))
	for _, lesson := range listing {
		f.set(lessonAddr(lesson.Location), "<p>"+lesson.Title+"</p>")
	}
}

func lessonsNamed(n int) course.Listing {
	listing := make(course.Listing, n)
	for i := range listing {
		listing[i] = course.Lesson{
			ID:       fmt.Sprint(i + 1),
			Title:    fmt.Sprintf("Lesson %d", i+1),
			Location: fmt.Sprintf("l%d.html", i),
			Timecode: fmt.Sprintf("%d min", i+1),
		}
	}
	return listing
}

func setup(t *testing.T) (*Controller, *fakeContent, *progress.MemoryStore) {
	t.Helper()
	f := newFakeContent()
	store := progress.NewMemoryStore()
	return New(f, store, Options{}), f, store
}

func TestWalkthrough(t *testing.T) {
	c, f, store := setup(t)
	threeLessons(f)
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx, source))
	v := c.CurrentView()
	assert.Equal(t, Unset, v.ActiveIndex)
	assert.Equal(t, 0, v.FarthestIndex)
	assert.Len(t, v.Listing, 3)
	assert.False(t, v.Selected())

	require.NoError(t, c.SelectLesson(ctx, 0))
	v = c.CurrentView()
	assert.Equal(t, 0, v.ActiveIndex)
	assert.Equal(t, 0, v.FarthestIndex)
	assert.Equal(t, "10 min", v.Timecode)
	assert.Equal(t, "<p>One</p>", v.Content)
	assert.Equal(t, map[string]string{"activeIndex": "0", "farthestIndex": "0"}, store.Snapshot())

	require.NoError(t, c.Advance(ctx))
	v = c.CurrentView()
	assert.Equal(t, 1, v.ActiveIndex)
	assert.Equal(t, 1, v.FarthestIndex)
	assert.Equal(t, "20 min", v.Timecode)

	require.NoError(t, c.Advance(ctx))
	v = c.CurrentView()
	assert.Equal(t, 2, v.ActiveIndex)
	assert.Equal(t, 2, v.FarthestIndex)
	assert.True(t, v.Completed())
	assert.Empty(t, store.Snapshot(), "completing the course clears saved progress")

	require.NoError(t, c.Retreat(ctx))
	v = c.CurrentView()
	assert.Equal(t, 1, v.ActiveIndex)
	assert.Equal(t, 2, v.FarthestIndex)
	assert.Equal(t, map[string]string{"activeIndex": "1", "farthestIndex": "2"}, store.Snapshot())
}

func TestSelectLessonTracksFarthest(t *testing.T) {
	c, f, _ := setup(t)
	serveListing(f, source, lessonsNamed(6))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))

	steps := []struct {
		index    int
		farthest int
	}{
		{3, 3}, {1, 3}, {4, 4}, {0, 4}, {5, 5}, {2, 5},
	}
	for _, step := range steps {
		require.NoError(t, c.SelectLesson(ctx, step.index))
		v := c.CurrentView()
		assert.Equal(t, step.index, v.ActiveIndex)
		assert.Equal(t, step.farthest, v.FarthestIndex)
	}
}

func TestSelectLessonOutOfRange(t *testing.T) {
	c, f, store := setup(t)
	threeLessons(f)
	ctx := context.Background()

	// before any listing is loaded every index is out of range
	err := c.SelectLesson(ctx, 0)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))

	require.NoError(t, c.Initialize(ctx, source))
	require.NoError(t, c.SelectLesson(ctx, 1))
	before := c.CurrentView()
	calls := f.callCount()
	saved := store.Snapshot()

	for _, index := range []int{-1, 3, 100} {
		err := c.SelectLesson(ctx, index)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange), "index %d", index)
	}

	assert.Equal(t, before, c.CurrentView())
	assert.Equal(t, calls, f.callCount(), "rejected selections issue no fetch")
	assert.Equal(t, saved, store.Snapshot())
}

func TestSelectLessonFetchFailureKeepsState(t *testing.T) {
	c, f, store := setup(t)
	threeLessons(f)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))
	require.NoError(t, c.SelectLesson(ctx, 0))

	f.fail(lessonAddr("b.html"), fmt.Errorf("%w: status 404", content.ErrInvalidPayload))
	before := c.CurrentView()

	err := c.SelectLesson(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentFetchFailed))
	assert.True(t, errors.Is(err, content.ErrInvalidPayload))

	assert.Equal(t, before, c.CurrentView())
	assert.False(t, c.CurrentView().Loading())
	assert.Equal(t, map[string]string{"activeIndex": "0", "farthestIndex": "0"}, store.Snapshot())

	err = c.Advance(ctx)
	assert.True(t, errors.Is(err, ErrContentFetchFailed))
	assert.Equal(t, 0, c.CurrentView().ActiveIndex)
}

func TestBoundaryNavigationIsNoop(t *testing.T) {
	c, f, _ := setup(t)
	threeLessons(f)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))

	// nothing selected yet
	calls := f.callCount()
	require.NoError(t, c.Advance(ctx))
	require.NoError(t, c.Retreat(ctx))
	assert.Equal(t, Unset, c.CurrentView().ActiveIndex)
	assert.Equal(t, calls, f.callCount())

	require.NoError(t, c.SelectLesson(ctx, 0))
	calls = f.callCount()
	require.NoError(t, c.Retreat(ctx))
	assert.Equal(t, 0, c.CurrentView().ActiveIndex)
	assert.Equal(t, calls, f.callCount())

	require.NoError(t, c.SelectLesson(ctx, 2))
	before := c.CurrentView()
	calls = f.callCount()
	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, before, c.CurrentView())
	assert.Equal(t, calls, f.callCount())
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	c, f, store := setup(t)
	serveListing(f, source, lessonsNamed(6))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))

	slow := f.gate(lessonAddr("l2.html"))
	done := make(chan error, 1)
	go func() { done <- c.SelectLesson(ctx, 2) }()

	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("request A never started")
	}
	assert.Equal(t, 2, c.CurrentView().Pending)

	require.NoError(t, c.SelectLesson(ctx, 5))
	close(slow)
	require.NoError(t, <-done)

	v := c.CurrentView()
	assert.Equal(t, 5, v.ActiveIndex)
	assert.Equal(t, "<p>Lesson 6</p>", v.Content)
	assert.Equal(t, "6 min", v.Timecode)
	assert.Equal(t, 5, v.FarthestIndex)
	assert.False(t, v.Loading())
	assert.Empty(t, store.Snapshot(), "lesson 5 is the last lesson")
}

func TestStaleFailureIsDiscarded(t *testing.T) {
	c, f, _ := setup(t)
	serveListing(f, source, lessonsNamed(4))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))

	f.fail(lessonAddr("l0.html"), fmt.Errorf("%w: reset", content.ErrFetchFailed))
	slow := f.gate(lessonAddr("l0.html"))
	done := make(chan error, 1)
	go func() { done <- c.SelectLesson(ctx, 0) }()
	<-f.started

	require.NoError(t, c.SelectLesson(ctx, 1))
	close(slow)
	assert.NoError(t, <-done, "a superseded failure is not reported")
	assert.Equal(t, 1, c.CurrentView().ActiveIndex)
}

func TestConcurrentSelectionsSettleOnLatest(t *testing.T) {
	c, f, store := setup(t)
	serveListing(f, source, lessonsNamed(10))
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			assert.NoError(t, c.SelectLesson(ctx, index))
		}(i)
	}
	wg.Wait()

	v := c.CurrentView()
	require.True(t, v.Selected())
	assert.False(t, v.Loading())
	assert.Equal(t, fmt.Sprintf("<p>Lesson %d</p>", v.ActiveIndex+1), v.Content)
	assert.GreaterOrEqual(t, v.FarthestIndex, v.ActiveIndex)

	// the saved state matches the final in-memory state
	assert.Equal(t, map[string]string{
		"activeIndex":   fmt.Sprint(v.ActiveIndex),
		"farthestIndex": fmt.Sprint(v.FarthestIndex),
	}, store.Snapshot())
}

func TestCurrentViewIsACopy(t *testing.T) {
	c, f, _ := setup(t)
	threeLessons(f)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))

	v := c.CurrentView()
	v.Listing[0].Title = "mutated"
	v.Listing = append(v.Listing, course.Lesson{ID: "extra"})

	fresh := c.CurrentView()
	assert.Equal(t, "One", fresh.Listing[0].Title)
	assert.Len(t, fresh.Listing, 3)
}

func TestReset(t *testing.T) {
	c, f, store := setup(t)
	threeLessons(f)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))
	require.NoError(t, c.SelectLesson(ctx, 1))
	require.NotEmpty(t, store.Snapshot())

	require.NoError(t, c.Reset(ctx))
	v := c.CurrentView()
	assert.Equal(t, Unset, v.ActiveIndex)
	assert.Equal(t, 0, v.FarthestIndex)
	assert.Empty(t, v.Content)
	assert.Len(t, v.Listing, 3)
	assert.Empty(t, store.Snapshot())
}

type failingStore struct {
	*progress.MemoryStore
	setErr error
}

func (s failingStore) Set(context.Context, string, string) error {
	return s.setErr
}

func TestPersistFailureKeepsSelection(t *testing.T) {
	f := newFakeContent()
	threeLessons(f)
	store := failingStore{MemoryStore: progress.NewMemoryStore(), setErr: errors.New("disk full")}
	c := New(f, store, Options{})
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))

	err := c.SelectLesson(ctx, 1)
	assert.True(t, errors.Is(err, ErrPersistFailed))
	assert.Equal(t, 1, c.CurrentView().ActiveIndex)
}

func TestContentRootOverride(t *testing.T) {
	f := newFakeContent()
	threeLessons(f)
	f.set("https://cdn.example.com/lessons/a.html", "from cdn")
	c := New(f, progress.NewMemoryStore(), Options{ContentRoot: "https://cdn.example.com/lessons"})
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx, source))
	require.NoError(t, c.SelectLesson(ctx, 0))
	assert.Equal(t, "from cdn", c.CurrentView().Content)
}

func TestRestoreProgress(t *testing.T) {
	tests := []struct {
		name         string
		saved        map[string]string
		wantRestored bool
		wantActive   int
		wantFarthest int
	}{
		{"both keys", map[string]string{"activeIndex": "1", "farthestIndex": "2"}, true, 1, 2},
		{"nothing saved", nil, false, Unset, 0},
		{"only active", map[string]string{"activeIndex": "1"}, false, Unset, 0},
		{"only farthest", map[string]string{"farthestIndex": "2"}, false, Unset, 0},
		{"not integers", map[string]string{"activeIndex": "one", "farthestIndex": "2"}, false, Unset, 0},
		{"negative", map[string]string{"activeIndex": "-1", "farthestIndex": "0"}, false, Unset, 0},
		{"active past the end", map[string]string{"activeIndex": "7", "farthestIndex": "7"}, false, Unset, 0},
		{"farthest behind active", map[string]string{"activeIndex": "2", "farthestIndex": "0"}, true, 2, 2},
		{"farthest past the end", map[string]string{"activeIndex": "1", "farthestIndex": "9"}, true, 1, 3},
		{"surrounding whitespace", map[string]string{"activeIndex": " 1\n", "farthestIndex": "1"}, true, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, f, store := setup(t)
			serveListing(f, source, lessonsNamed(4))
			ctx := context.Background()
			for k, v := range tt.saved {
				require.NoError(t, store.Set(ctx, k, v))
			}

			require.NoError(t, c.Initialize(ctx, source))
			v := c.CurrentView()
			assert.Equal(t, tt.wantActive, v.ActiveIndex)
			assert.Equal(t, tt.wantFarthest, v.FarthestIndex)
			if tt.wantRestored {
				assert.Equal(t, fmt.Sprintf("<p>Lesson %d</p>", tt.wantActive+1), v.Content)
			} else {
				assert.Empty(t, v.Content)
			}
		})
	}
}

func TestRestoreProgressIsIdempotent(t *testing.T) {
	c, f, store := setup(t)
	serveListing(f, source, lessonsNamed(4))
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "activeIndex", "1"))
	require.NoError(t, store.Set(ctx, "farthestIndex", "2"))
	require.NoError(t, c.Initialize(ctx, source))

	for i := 0; i < 2; i++ {
		state, ok, err := c.RestoreProgress(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, State{ActiveIndex: 1, FarthestIndex: 2}, state)
	}
	assert.Equal(t, map[string]string{"activeIndex": "1", "farthestIndex": "2"}, store.Snapshot())
}

func TestRestoredLessonFailsToLoad(t *testing.T) {
	c, f, store := setup(t)
	serveListing(f, source, lessonsNamed(3))
	f.fail(lessonAddr("l1.html"), fmt.Errorf("%w: offline", content.ErrFetchFailed))
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "activeIndex", "1"))
	require.NoError(t, store.Set(ctx, "farthestIndex", "1"))

	err := c.Initialize(ctx, source)
	assert.True(t, errors.Is(err, ErrContentFetchFailed))

	v := c.CurrentView()
	assert.Len(t, v.Listing, 3)
	assert.Equal(t, 1, v.ActiveIndex, "the bookmark survives a failed load")
	assert.Equal(t, "2 min", v.Timecode)
	assert.Empty(t, v.Content)
}

func TestRestoreProgressMidSession(t *testing.T) {
	c, f, store := setup(t)
	threeLessons(f)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))
	require.NoError(t, c.SelectLesson(ctx, 0))

	require.NoError(t, store.Set(ctx, "activeIndex", "1"))
	require.NoError(t, store.Set(ctx, "farthestIndex", "1"))
	_, ok, err := c.RestoreProgress(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	v := c.CurrentView()
	assert.Equal(t, 1, v.ActiveIndex)
	assert.Equal(t, "20 min", v.Timecode)
	assert.Empty(t, v.Content, "lesson one's body must not show for lesson two")
}

func TestRemoteListingCannotReachLocalFiles(t *testing.T) {
	c, f, store := setup(t)
	serveListing(f, source, course.Listing{
		{ID: "1", Title: "One", Location: "a.html"},
		{ID: "2", Title: "Secrets", Location: "file:///etc/passwd"},
	})
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))
	require.NoError(t, c.SelectLesson(ctx, 0))
	calls := f.callCount()

	err := c.SelectLesson(ctx, 1)
	assert.ErrorIs(t, err, ErrContentFetchFailed)
	assert.ErrorIs(t, err, content.ErrInvalidPayload)
	assert.Equal(t, calls, f.callCount(), "no fetch is issued")

	v := c.CurrentView()
	assert.Equal(t, 0, v.ActiveIndex)
	assert.Equal(t, "<p>One</p>", v.Content)
	assert.Equal(t, map[string]string{"activeIndex": "0", "farthestIndex": "0"}, store.Snapshot())
}

func TestInitializeFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{"unreachable", "", fmt.Errorf("%w: connection refused", content.ErrFetchFailed)},
		{"bad status", `{"status":500,"data":{"items":[{"id":"1","location":"a.html"}]}}`, nil},
		{"not json", `<html>oops</html>`, nil},
		{"no items", `{"status":200,"data":{"items":[]}}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, f, store := setup(t)
			if tt.err != nil {
				f.fail(source, tt.err)
			} else {
				f.set(source, tt.body)
			}

			err := c.Initialize(context.Background(), source)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrListingFetchFailed))

			v := c.CurrentView()
			assert.Empty(t, v.Listing)
			assert.Equal(t, Unset, v.ActiveIndex)
			assert.Empty(t, store.Snapshot())
		})
	}
}

func TestFailedReinitializeKeepsListing(t *testing.T) {
	c, f, _ := setup(t)
	threeLessons(f)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))
	require.NoError(t, c.SelectLesson(ctx, 1))
	before := c.CurrentView()

	f.set(source, `{"status":404}`)
	err := c.Initialize(ctx, source)
	assert.True(t, errors.Is(err, ErrListingFetchFailed))
	assert.Equal(t, before, c.CurrentView())
}

func TestReinitializeReplacesListing(t *testing.T) {
	c, f, store := setup(t)
	threeLessons(f)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))
	require.NoError(t, c.SelectLesson(ctx, 1))

	other := "https://example.com/assets/other.yaml"
	bigger := lessonsNamed(5)
	data, err := course.EncodeListing(bigger, course.FormatYAML)
	require.NoError(t, err)
	f.set(other, string(data))
	for _, lesson := range bigger {
		f.set(lessonAddr(lesson.Location), "<p>"+lesson.Title+"</p>")
	}

	require.NoError(t, c.Initialize(ctx, other))
	v := c.CurrentView()
	assert.Equal(t, other, v.Source)
	assert.Len(t, v.Listing, 5)
	// saved progress from the first course still applies by index
	assert.Equal(t, 1, v.ActiveIndex)
	assert.Equal(t, "<p>Lesson 2</p>", v.Content)
	assert.Equal(t, map[string]string{"activeIndex": "1", "farthestIndex": "1"}, store.Snapshot())
}

func TestStaleListingIsDiscarded(t *testing.T) {
	c, f, _ := setup(t)
	threeLessons(f)
	newer := "https://example.com/assets/newer.json"
	serveListing(f, newer, lessonsNamed(5))
	ctx := context.Background()

	slow := f.gate(source)
	done := make(chan error, 1)
	go func() { done <- c.Initialize(ctx, source) }()
	<-f.started

	require.NoError(t, c.Initialize(ctx, newer))
	close(slow)
	require.NoError(t, <-done)

	v := c.CurrentView()
	assert.Equal(t, newer, v.Source)
	assert.Len(t, v.Listing, 5)
}

func TestListingChangeDiscardsLessonInFlight(t *testing.T) {
	c, f, _ := setup(t)
	threeLessons(f)
	ctx := context.Background()
	require.NoError(t, c.Initialize(ctx, source))

	slow := f.gate(lessonAddr("c.html"))
	done := make(chan error, 1)
	go func() { done <- c.SelectLesson(ctx, 2) }()
	<-f.started

	require.NoError(t, c.Initialize(ctx, source))
	close(slow)
	require.NoError(t, <-done)

	v := c.CurrentView()
	assert.Equal(t, Unset, v.ActiveIndex)
	assert.False(t, v.Loading())
}
