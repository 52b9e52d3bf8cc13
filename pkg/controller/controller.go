// Package controller owns a learner's navigation through a course: the
// listing, the active and furthest lessons, the loaded lesson body and the
// persisted resume state.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/stefanpenner/syllabus/pkg/content"
	"github.com/stefanpenner/syllabus/pkg/course"
	"github.com/stefanpenner/syllabus/pkg/progress"
)

var (
	// ErrListingFetchFailed: the listing source was unreachable or malformed.
	ErrListingFetchFailed = errors.New("listing fetch failed")
	// ErrContentFetchFailed: a lesson body could not be loaded.
	ErrContentFetchFailed = errors.New("content fetch failed")
	// ErrIndexOutOfRange: the requested lesson is outside the listing.
	ErrIndexOutOfRange = errors.New("lesson index out of range")
	// ErrPersistFailed: the selection was applied but could not be saved.
	ErrPersistFailed = errors.New("saving progress failed")
)

// Unset is the ActiveIndex of a controller with no lesson selected.
const Unset = -1

// State is the learner's position.
type State struct {
	ActiveIndex   int `json:"activeIndex"`
	FarthestIndex int `json:"farthestIndex"`
}

// Options configures a Controller.
type Options struct {
	// ContentRoot overrides the address lesson locations are joined to.
	// Empty means the directory of the listing source.
	ContentRoot string
	Logger      *zap.Logger
}

// Controller is safe for concurrent use. Results are applied in request
// order: a fetch superseded by a later request is discarded on arrival.
type Controller struct {
	content     content.Store
	store       progress.Store
	rootOption  string
	logger      *zap.Logger
	persistMu   sync.Mutex // orders writes to store
	mu          sync.Mutex
	source      string
	contentRoot string
	listing     course.Listing
	generation  uint64 // bumped whenever the listing is replaced
	active      int
	farthest    int
	body        string
	timecode    string
	pending     int    // index of the latest outstanding lesson request
	lessonSeq   uint64 // token of the latest lesson request
	listingSeq  uint64 // token of the latest listing request
}

// New creates a controller with an empty listing and no selection.
func New(cs content.Store, ps progress.Store, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		content:    cs,
		store:      ps,
		rootOption: opts.ContentRoot,
		logger:     logger,
		active:     Unset,
		pending:    Unset,
	}
}

// Initialize loads the listing at source. On success the listing is replaced
// wholesale, the position is reset and saved progress is restored; a restored
// lesson has its content loaded. On failure nothing changes.
func (c *Controller) Initialize(ctx context.Context, source string) error {
	c.mu.Lock()
	c.listingSeq++
	token := c.listingSeq
	c.mu.Unlock()

	log := c.logger.With(zap.String("source", source), zap.Uint64("token", token))

	data, fetchErr := c.content.Fetch(ctx, source)
	var listing course.Listing
	if fetchErr == nil {
		listing, fetchErr = course.ParseListing(data, course.FormatFor(source))
	}

	c.mu.Lock()
	if token != c.listingSeq {
		c.mu.Unlock()
		log.Debug("discarding stale listing response")
		return nil
	}
	if fetchErr != nil {
		c.mu.Unlock()
		log.Warn("loading listing failed", zap.Error(fetchErr))
		return fmt.Errorf("%w: %s: %w", ErrListingFetchFailed, source, fetchErr)
	}

	c.source = source
	c.contentRoot = c.rootOption
	if c.contentRoot == "" {
		c.contentRoot = content.RootOf(source)
	}
	c.listing = listing
	c.generation++
	c.lessonSeq++ // outstanding lesson fetches belong to the old listing
	c.active = Unset
	c.farthest = 0
	c.body = ""
	c.timecode = ""
	c.pending = Unset
	c.mu.Unlock()

	log.Debug("listing loaded", zap.Int("lessons", len(listing)))

	state, ok, err := c.RestoreProgress(ctx)
	if err != nil {
		log.Warn("reading saved progress failed, starting fresh", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return c.SelectLesson(ctx, state.ActiveIndex)
}

// RestoreProgress applies the saved position. Both keys must be present and
// hold integers, and the active index must address the current listing;
// otherwise nothing is applied and ok is false. Applied state carries the
// restored lesson's timecode and no content until that lesson is loaded.
func (c *Controller) RestoreProgress(ctx context.Context) (state State, ok bool, err error) {
	rawActive, hasActive, err := c.store.Get(ctx, progress.KeyActiveIndex)
	if err != nil {
		return State{}, false, fmt.Errorf("reading %s: %w", progress.KeyActiveIndex, err)
	}
	rawFarthest, hasFarthest, err := c.store.Get(ctx, progress.KeyFarthestIndex)
	if err != nil {
		return State{}, false, fmt.Errorf("reading %s: %w", progress.KeyFarthestIndex, err)
	}
	if !hasActive || !hasFarthest {
		return State{}, false, nil
	}

	active, errA := strconv.Atoi(strings.TrimSpace(rawActive))
	farthest, errF := strconv.Atoi(strings.TrimSpace(rawFarthest))
	if errA != nil || errF != nil || active < 0 || farthest < 0 {
		c.logger.Debug("ignoring unusable saved progress",
			zap.String("activeIndex", rawActive), zap.String("farthestIndex", rawFarthest))
		return State{}, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.listing.InRange(active) {
		return State{}, false, nil
	}
	if farthest < active {
		farthest = active
	}
	if last := c.listing.Last(); farthest > last {
		farthest = last
	}

	c.lessonSeq++
	c.pending = Unset
	c.active = active
	c.farthest = farthest
	c.body = ""
	c.timecode = c.listing[active].Timecode
	return State{ActiveIndex: active, FarthestIndex: farthest}, true, nil
}

// SelectLesson loads the lesson at index and makes it active. Selection is
// all-or-nothing: on any failure the previous state is kept.
func (c *Controller) SelectLesson(ctx context.Context, index int) error {
	c.mu.Lock()
	if !c.listing.InRange(index) {
		n := len(c.listing)
		c.mu.Unlock()
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, n)
	}
	lesson := c.listing[index]
	address, err := content.Join(c.contentRoot, lesson.Location)
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("rejecting lesson location", zap.Int("index", index), zap.Error(err))
		return fmt.Errorf("%w: lesson %d: %w", ErrContentFetchFailed, index, err)
	}
	c.lessonSeq++
	token := c.lessonSeq
	generation := c.generation
	c.pending = index
	c.mu.Unlock()

	log := c.logger.With(zap.Int("index", index), zap.String("address", address), zap.Uint64("token", token))

	body, err := c.content.Fetch(ctx, address)

	c.mu.Lock()
	if token != c.lessonSeq || generation != c.generation {
		c.mu.Unlock()
		log.Debug("discarding stale lesson response")
		return nil
	}
	c.pending = Unset
	if err != nil {
		c.mu.Unlock()
		log.Warn("loading lesson failed", zap.Error(err))
		return fmt.Errorf("%w: lesson %d (%s): %w", ErrContentFetchFailed, index, address, err)
	}

	c.active = index
	c.body = string(body)
	c.timecode = lesson.Timecode
	if index > c.farthest {
		c.farthest = index
	}
	c.mu.Unlock()

	log.Debug("lesson selected", zap.String("id", lesson.ID))
	return c.persist(ctx)
}

// Advance selects the next lesson. It does nothing without a selection or on
// the last lesson.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	active, last := c.active, c.listing.Last()
	c.mu.Unlock()

	if active == Unset || active >= last {
		return nil
	}
	return c.SelectLesson(ctx, active+1)
}

// Retreat selects the previous lesson. It does nothing without a selection or
// on the first lesson.
func (c *Controller) Retreat(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	if active <= 0 {
		return nil
	}
	return c.SelectLesson(ctx, active-1)
}

// Reset forgets the position and deletes the saved progress.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.lessonSeq++
	c.active = Unset
	c.farthest = 0
	c.body = ""
	c.timecode = ""
	c.pending = Unset
	c.mu.Unlock()

	return c.persist(ctx)
}

// persist writes the current position. Reaching the last lesson completes the
// course, which deletes the saved position so the next session starts over.
func (c *Controller) persist(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	active, farthest, last := c.active, c.farthest, c.listing.Last()
	c.mu.Unlock()

	var err error
	if active == Unset || active == last {
		err = c.clearSaved(ctx)
	} else {
		err = c.store.Set(ctx, progress.KeyActiveIndex, strconv.Itoa(active))
		if err == nil {
			err = c.store.Set(ctx, progress.KeyFarthestIndex, strconv.Itoa(farthest))
		}
	}
	if err != nil {
		c.logger.Warn("saving progress failed", zap.Int("activeIndex", active), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	return nil
}

func (c *Controller) clearSaved(ctx context.Context) error {
	if err := c.store.Delete(ctx, progress.KeyActiveIndex); err != nil {
		return err
	}
	return c.store.Delete(ctx, progress.KeyFarthestIndex)
}
