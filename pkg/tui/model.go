package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/stefanpenner/syllabus/pkg/controller"
)

const statusDuration = 4 * time.Second

const (
	paneLessons = iota
	paneContent
)

// FileChangedMsg is sent when the watcher sees the listing file change.
type FileChangedMsg struct{}

// listingLoadedMsg reports the end of an Initialize call.
type listingLoadedMsg struct {
	Err error
}

// lessonLoadedMsg reports the end of a navigation call.
type lessonLoadedMsg struct {
	Err error
}

// resetDoneMsg reports the end of a Reset call.
type resetDoneMsg struct {
	Err error
}

// Model is the Bubble Tea model for the course viewer. All controller calls
// run inside commands; the model only reads CurrentView snapshots.
type Model struct {
	ctx         context.Context
	ctrl        *controller.Controller
	source      string
	logger      *zap.Logger
	keys        KeyMap
	width       int
	height      int
	view        controller.View
	cursor      int
	focusedPane int
	inflight    int

	viewport    viewport.Model
	spinner     spinner.Model
	shownBody   string
	shownActive int
	shownWidth  int

	// Modal state
	showHelpModal    bool
	showResetConfirm bool

	// Status message
	statusMsg     string
	statusIsError bool
	statusTimeout time.Time

	// Cached glamour renderer (expensive to create)
	glamourRenderer *glamour.TermRenderer
	glamourWidth    int
}

// NewModel creates a new TUI model for the course at source.
func NewModel(ctx context.Context, ctrl *controller.Controller, source string, logger *zap.Logger) Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(TimecodeStyle))
	return Model{
		ctx:         ctx,
		ctrl:        ctrl,
		source:      source,
		logger:      logger,
		keys:        DefaultKeyMap(),
		view:        ctrl.CurrentView(),
		viewport:    viewport.New(0, 0),
		spinner:     sp,
		shownActive: controller.Unset,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tea.WindowSize(), m.spinner.Tick, m.initialize())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.contentSize()
		m.viewport.Width = w
		m.viewport.Height = h
		m.getGlamourRenderer(w)
		m.syncContent()
		return m, tea.ClearScreen

	case FileChangedMsg:
		m.setStatus("Course changed on disk, reloading", false)
		return m, m.begin(m.initialize())

	case listingLoadedMsg:
		m.finish()
		var cursorID string
		if m.view.Listing.InRange(m.cursor) {
			cursorID = m.view.Listing[m.cursor].ID
		}
		m.refresh()
		m.cursor = 0
		switch {
		case m.view.Selected():
			m.cursor = m.view.ActiveIndex
		case cursorID != "" && m.view.Listing.IndexOf(cursorID) >= 0:
			m.cursor = m.view.Listing.IndexOf(cursorID)
		}
		if msg.Err != nil {
			m.reportError("Could not load course", msg.Err)
		}
		return m, nil

	case lessonLoadedMsg:
		m.finish()
		before := m.view.ActiveIndex
		m.refresh()
		if m.view.ActiveIndex != before && m.view.Selected() {
			m.cursor = m.view.ActiveIndex
		}
		if msg.Err != nil {
			m.reportError("Could not open lesson", msg.Err)
		}
		return m, nil

	case resetDoneMsg:
		m.finish()
		m.refresh()
		if msg.Err != nil {
			m.reportError("Reset failed", msg.Err)
		} else {
			m.setStatus("Progress reset", false)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Help modal
	if m.showHelpModal {
		switch msg.String() {
		case "esc", "enter", "?", "q":
			m.showHelpModal = false
		}
		return m, nil
	}

	// Reset confirmation
	if m.showResetConfirm {
		switch msg.String() {
		case "y", "Y":
			m.showResetConfirm = false
			return m, m.begin(m.reset())
		case "n", "N", "esc":
			m.showResetConfirm = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.focusedPane == paneContent {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.focusedPane == paneContent {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.cursor < len(m.view.Listing)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Open):
		if !m.view.Listing.InRange(m.cursor) {
			break
		}
		return m, m.begin(m.selectLesson(m.cursor))

	case key.Matches(msg, m.keys.Next):
		if !m.view.CanAdvance() {
			break
		}
		return m, m.begin(m.advance())

	case key.Matches(msg, m.keys.Prev):
		if !m.view.CanRetreat() {
			break
		}
		return m, m.begin(m.retreat())

	case key.Matches(msg, m.keys.Tab):
		m.focusedPane = (m.focusedPane + 1) % 2

	case key.Matches(msg, m.keys.Reload):
		m.setStatus("Reloading", false)
		return m, m.begin(m.initialize())

	case key.Matches(msg, m.keys.Reset):
		m.showResetConfirm = true

	case key.Matches(msg, m.keys.Help):
		m.showHelpModal = !m.showHelpModal
	}

	return m, nil
}

// Commands

func (m Model) initialize() tea.Cmd {
	ctrl, ctx, source := m.ctrl, m.ctx, m.source
	return func() tea.Msg {
		return listingLoadedMsg{Err: ctrl.Initialize(ctx, source)}
	}
}

func (m Model) selectLesson(index int) tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return lessonLoadedMsg{Err: ctrl.SelectLesson(ctx, index)}
	}
}

func (m Model) advance() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return lessonLoadedMsg{Err: ctrl.Advance(ctx)}
	}
}

func (m Model) retreat() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return lessonLoadedMsg{Err: ctrl.Retreat(ctx)}
	}
}

func (m Model) reset() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return resetDoneMsg{Err: ctrl.Reset(ctx)}
	}
}

// begin counts a command as in flight so the spinner shows until its result
// arrives.
func (m *Model) begin(cmd tea.Cmd) tea.Cmd {
	m.inflight++
	return cmd
}

func (m *Model) finish() {
	if m.inflight > 0 {
		m.inflight--
	}
}

func (m Model) busy() bool {
	return m.inflight > 0 || m.view.Loading()
}

// refresh takes a fresh snapshot from the controller.
func (m *Model) refresh() {
	m.view = m.ctrl.CurrentView()
	if m.cursor >= len(m.view.Listing) {
		m.cursor = len(m.view.Listing) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.syncContent()
}

// syncContent re-renders the lesson body when it or the pane width changed.
func (m *Model) syncContent() {
	width := m.viewport.Width
	if m.view.Content == m.shownBody && m.view.ActiveIndex == m.shownActive && width == m.shownWidth {
		return
	}
	moved := m.view.ActiveIndex != m.shownActive
	m.shownBody = m.view.Content
	m.shownActive = m.view.ActiveIndex
	m.shownWidth = width

	m.viewport.SetContent(m.renderLesson(width))
	if moved {
		m.viewport.GotoTop()
	}
}

func (m *Model) renderLesson(width int) string {
	if !m.view.Selected() {
		return ""
	}
	md := LessonMarkdown(m.view.Content)
	r := m.getGlamourRenderer(width)
	if r == nil {
		return md
	}
	rendered, err := r.Render(md)
	if err != nil {
		m.logger.Debug("rendering lesson markdown failed", zap.Error(err))
		return md
	}
	return rendered
}

// getGlamourRenderer returns a cached glamour renderer, creating one if needed
// or if the width changed.
func (m *Model) getGlamourRenderer(width int) *glamour.TermRenderer {
	if width <= 0 {
		return nil
	}
	if m.glamourRenderer != nil && m.glamourWidth == width {
		return m.glamourRenderer
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	m.glamourRenderer = r
	m.glamourWidth = width
	return r
}

func (m *Model) reportError(prefix string, err error) {
	switch {
	case errors.Is(err, controller.ErrPersistFailed):
		m.setStatus("Progress not saved: "+err.Error(), true)
	case errors.Is(err, controller.ErrIndexOutOfRange):
		m.setStatus("No such lesson", true)
	default:
		m.setStatus(prefix+": "+err.Error(), true)
	}
	m.logger.Warn(prefix, zap.Error(err))
}

func (m *Model) setStatus(msg string, isError bool) {
	m.statusMsg = msg
	m.statusIsError = isError
	m.statusTimeout = time.Now().Add(statusDuration)
}

// contentSize is the lesson pane's width and height for the current window.
func (m Model) contentSize() (int, int) {
	w, h := m.width, m.height
	if w < minWidth {
		w = minWidth
	}
	if h < minHeight {
		h = minHeight
	}
	_, right := paneWidths(w)
	return right - 2, h - chromeLines
}
