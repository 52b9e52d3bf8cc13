package tui

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	minWidth  = 40
	minHeight = 10

	// header + separator above, separator + footer below
	chromeLines = 4
)

// View implements tea.Model.
func (m Model) View() string {
	w := m.width
	h := m.height
	if w < minWidth {
		w = minWidth
	}
	if h < minHeight {
		h = minHeight
	}

	if m.showHelpModal {
		return placeOverlay(m.renderHelpModal(), w, h)
	}
	if m.showResetConfirm {
		return placeOverlay(m.renderResetModal(), w, h)
	}

	var b strings.Builder

	b.WriteString(m.renderHeader(w))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", w))
	b.WriteString("\n")

	contentHeight := h - chromeLines
	leftWidth, rightWidth := paneWidths(w)

	leftPanel := m.renderLessonPanel(leftWidth, contentHeight)
	rightPanel := m.renderContentPanel(rightWidth, contentHeight)

	sepColor := ColorGrayDim
	if m.focusedPane == paneContent {
		sepColor = ColorPurple
	}
	sep := lipgloss.NewStyle().Foreground(sepColor).Render("│")
	leftLines := strings.Split(leftPanel, "\n")
	rightLines := strings.Split(rightPanel, "\n")
	for i := 0; i < contentHeight; i++ {
		b.WriteString(getLine(leftLines, i, leftWidth))
		b.WriteString(sep)
		b.WriteString(getLine(rightLines, i, rightWidth))
		b.WriteString("\n")
	}

	b.WriteString(strings.Repeat("─", w))
	b.WriteString("\n")
	b.WriteString(m.renderFooter(w))

	return b.String()
}

// paneWidths splits the window between the lesson list and the content pane,
// leaving one column for the divider.
func paneWidths(w int) (int, int) {
	left := w / 3
	if left < 20 {
		left = 20
	}
	right := w - left - 1
	if right < 20 {
		right = 20
	}
	return left, right
}

func (m Model) renderHeader(width int) string {
	title := HeaderStyle.Render(courseTitle(m.view.Source))

	var stats string
	if n := len(m.view.Listing); n > 0 {
		pos := "not started"
		if m.view.Selected() {
			pos = fmt.Sprintf("lesson %d/%d", m.view.ActiveIndex+1, n)
		}
		stats = HeaderCountStyle.Render(pos)
		if m.view.Timecode != "" {
			stats += "  " + TimecodeStyle.Render(m.view.Timecode)
		}
	}
	if m.busy() {
		stats = m.spinner.View() + " " + stats
	}

	status := ""
	if m.statusMsg != "" && time.Now().Before(m.statusTimeout) {
		style := StatusStyle
		if m.statusIsError {
			style = ErrorStatusStyle
		}
		status = "  " + style.Render(m.statusMsg) + "  "
	}

	gap := width - lipgloss.Width(title) - lipgloss.Width(stats) - lipgloss.Width(status)
	if gap < 1 {
		gap = 1
	}

	return title + strings.Repeat(" ", gap) + status + stats
}

func courseTitle(source string) string {
	if source == "" {
		return "Syllabus"
	}
	dir := path.Base(path.Dir(strings.TrimRight(source, "/")))
	if dir == "." || dir == "/" || dir == "" {
		return "Syllabus"
	}
	return "Syllabus · " + dir
}

func (m Model) renderLessonPanel(width, height int) string {
	rows := BuildRows(m.view)
	if len(rows) == 0 {
		if m.busy() {
			return FooterStyle.Render(" Loading course…")
		}
		return FooterStyle.Render(" No lessons. Press R to reload.")
	}

	startIdx := 0
	endIdx := len(rows)
	if len(rows) > height {
		half := height / 2
		startIdx = m.cursor - half
		if startIdx < 0 {
			startIdx = 0
		}
		endIdx = startIdx + height
		if endIdx > len(rows) {
			endIdx = len(rows)
			startIdx = endIdx - height
		}
	}

	var lines []string
	for i := startIdx; i < endIdx; i++ {
		lines = append(lines, m.renderLessonRow(rows[i], i == m.cursor, width))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderLessonRow(row LessonRow, isCursor bool, width int) string {
	var icon string
	switch {
	case row.Pending:
		icon = m.spinner.View()
	case row.Active:
		icon = ActiveStyle.Render(IconActive)
	case row.Reached:
		icon = ReachedStyle.Render(IconReached)
	default:
		icon = UnreachedStyle.Render(IconUnreached)
	}

	name := fmt.Sprintf("%2d. %s", row.Number, displayTitle(row.Lesson))
	if row.Active {
		name = ActiveStyle.Render(name)
	}
	timecode := ""
	if row.Lesson.Timecode != "" {
		timecode = " " + LessonTimecodeStyle.Render(row.Lesson.Timecode)
	}

	line := " " + icon + " " + name
	gap := width - lipgloss.Width(line) - lipgloss.Width(timecode)
	if gap > 0 {
		line += strings.Repeat(" ", gap) + timecode
	}

	if isCursor && m.focusedPane == paneLessons {
		lineWidth := lipgloss.Width(line)
		if lineWidth < width {
			line += strings.Repeat(" ", width-lineWidth)
		}
		line = SelectedStyle.Render(line)
	}
	return line
}

func (m Model) renderContentPanel(width, height int) string {
	if !m.view.Selected() {
		if len(m.view.Listing) == 0 {
			return ""
		}
		return FooterStyle.Render(" Select a lesson and press enter")
	}
	// viewport output is already sized to the pane
	lines := strings.Split(m.viewport.View(), "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for i := range lines {
		lines[i] = " " + lines[i]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter(width int) string {
	if m.focusedPane == paneContent {
		return FooterStyle.Render("↑↓ scroll  tab lessons  ? help  q quit")
	}

	var hints []string
	if m.view.CanRetreat() {
		hints = append(hints, "← back")
	}
	if m.view.CanAdvance() {
		hints = append(hints, "→ next")
	}
	hints = append(hints, "↑↓ nav", "enter open", "tab content", "? help")
	return FooterStyle.Render(strings.Join(hints, "  "))
}

func (m Model) renderHelpModal() string {
	var b strings.Builder

	b.WriteString(ModalTitleStyle.Render("Keyboard Shortcuts"))
	b.WriteString("\n\n")

	keyStyle := lipgloss.NewStyle().Foreground(ColorBlue).Width(16)
	descStyle := lipgloss.NewStyle().Foreground(ColorWhite)

	for _, binding := range m.keys.FullHelp() {
		b.WriteString(keyStyle.Render(binding[0]))
		b.WriteString(descStyle.Render(binding[1]))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("Press Esc or ? to close"))

	return ModalStyle.Render(b.String())
}

func (m Model) renderResetModal() string {
	var b strings.Builder

	b.WriteString(ModalTitleStyle.Render("Reset Progress"))
	b.WriteString("\n\n")
	b.WriteString("Forget your place in this course?\n\n")
	b.WriteString(lipgloss.NewStyle().Foreground(ColorGreen).Render("[y]") + " Yes  ")
	b.WriteString(lipgloss.NewStyle().Foreground(ColorRed).Render("[n]") + " No")

	return ModalStyle.Render(b.String())
}

// Helper functions

func getLine(lines []string, idx int, width int) string {
	if idx < len(lines) {
		line := lines[idx]
		lineWidth := lipgloss.Width(line)
		if lineWidth < width {
			return line + strings.Repeat(" ", width-lineWidth)
		}
		return line
	}
	return strings.Repeat(" ", width)
}

func placeOverlay(modal string, width, height int) string {
	modalLines := strings.Split(modal, "\n")

	topPadding := (height - len(modalLines)) / 2
	if topPadding < 0 {
		topPadding = 0
	}

	leftPadding := (width - lipgloss.Width(modalLines[0])) / 2
	if leftPadding < 0 {
		leftPadding = 0
	}

	var result strings.Builder
	for i := 0; i < topPadding; i++ {
		result.WriteString("\n")
	}

	for _, line := range modalLines {
		result.WriteString(strings.Repeat(" ", leftPadding))
		result.WriteString(line)
		result.WriteString("\n")
	}

	return result.String()
}
