package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/leightonpayne/colab-phage-assembly/internal/runstate"
)

var (
	chromeBG      = lipgloss.Color("#06090D")
	panelBorder   = lipgloss.Color("#2D6A80")
	accentPrimary = lipgloss.Color("#50E3C2")
	accentWarm    = lipgloss.Color("#F6AE2D")
	mutedText     = lipgloss.Color("#8CA1AE")
	warningText   = lipgloss.Color("#FF6B6B")
	successText   = lipgloss.Color("#6FE37A")
)

var (
	headerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(accentPrimary)

	statusRunningStyle = lipgloss.NewStyle().
				Foreground(accentWarm).
				Bold(true)

	statusFinishedStyle = lipgloss.NewStyle().
				Foreground(successText).
				Bold(true)

	statusIdleStyle = lipgloss.NewStyle().
			Foreground(mutedText)

	errorStyle = lipgloss.NewStyle().
			Foreground(warningText).
			Bold(true)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(accentPrimary).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(panelBorder).
			Padding(0, 1)

	focusedPanelStyle = panelStyle.
				BorderForeground(accentPrimary)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedText)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(accentWarm)

	historySelectedStyle = lipgloss.NewStyle().
				Foreground(accentPrimary).
				Bold(true)
)

func (m Model) View() string {
	if !m.ready {
		return "Starting phage launcher..."
	}

	innerWidth := maxInt(40, m.width-2)
	innerHeight := maxInt(12, m.height-2)

	parts := []string{
		headerStyle.Render("Phage Assembly Launcher"),
		m.statusLine(),
	}

	if m.showActionBox {
		body := strings.Join([]string{
			"Pipeline action to request:",
			m.actionInput.View(),
			"",
			"enter request | esc cancel",
		}, "\n")
		parts = append(parts, renderPanel("Request Action", body, clampInt(innerWidth-4, 42, 80), 6, true))
	}
	if m.showPathBox {
		body := strings.Join([]string{
			"Path to a local JSON params file:",
			m.pathInput.View(),
			"",
			"enter load | esc cancel",
		}, "\n")
		parts = append(parts, renderPanel("Load Params File", body, clampInt(innerWidth-4, 42, 80), 6, true))
	}

	topRow := lipgloss.JoinHorizontal(lipgloss.Top,
		renderPanel("Params", m.paramsEditor.View(), m.paramsPanelW, m.paramsPanelH, m.focusPane == paneParams),
		renderPanel("Transcript", m.transcriptVP.View(), m.transcriptW, m.transcriptH, m.focusPane == paneTranscript),
	)
	historyPanel := renderPanel("Run History", m.historyVP.View(), m.historyW, m.historyH, m.focusPane == paneHistory)

	parts = append(parts, topRow, historyPanel)
	if m.showHelp {
		parts = append(parts, helpStyle.Render(
			"ctrl+r "+strings.ToLower(m.machine.ToggleLabel())+
				" | ctrl+a action | ctrl+s save bundle | ctrl+o load params | tab cycle panes | q quit"))
	}

	body := strings.Join(parts, "\n")
	return lipgloss.NewStyle().
		Background(chromeBG).
		Foreground(lipgloss.Color("#E8F0F2")).
		Width(innerWidth).
		Height(innerHeight).
		Padding(0, 1).
		Render(body)
}

// statusLine renders the canonical status plus the backend's message. An
// error message wins over everything else.
func (m Model) statusLine() string {
	if strings.TrimSpace(m.errorText) != "" {
		return errorStyle.Render(m.errorText)
	}

	status := m.machine.Status()
	label := string(status)
	if label == "" {
		label = "idle"
	}
	prefix := "*"
	style := statusIdleStyle
	switch {
	case m.machine.Active():
		prefix = m.spinner.View()
		style = statusRunningStyle
		if m.machine.TerminatePending() {
			label += " (terminating)"
		}
	case status == runstate.StatusFinished:
		style = statusFinishedStyle
	case status.Failed():
		style = errorStyle
	}

	text := prefix + " " + label
	if msg := strings.TrimSpace(m.statusMessage); msg != "" {
		text += " | " + msg
	}
	return style.Render(text)
}

func (m *Model) refreshHistoryView() {
	if len(m.historyItems) == 0 {
		m.historyVP.SetContent("No saved runs yet.")
		return
	}
	lines := make([]string, 0, len(m.historyItems))
	for idx, item := range m.historyItems {
		line := fmt.Sprintf("%s  %-8s  %s", item.SavedAt, item.Status, shortRunID(item.RunID))
		if idx == m.historyCursor {
			line = historySelectedStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	m.historyVP.SetContent(strings.Join(lines, "\n"))
}

func (m *Model) resizePanels() {
	innerWidth := maxInt(40, m.width-4)
	innerHeight := maxInt(14, m.height-4)

	m.paramsPanelW = clampInt(innerWidth*2/5, 30, 80)
	m.transcriptW = maxInt(30, innerWidth-m.paramsPanelW-2)
	m.historyW = innerWidth

	m.historyH = clampInt(innerHeight/5, 4, 10)
	mainH := maxInt(8, innerHeight-m.historyH-6)
	m.paramsPanelH = mainH
	m.transcriptH = mainH

	m.paramsEditor.SetWidth(maxInt(20, m.paramsPanelW-4))
	m.paramsEditor.SetHeight(maxInt(4, m.paramsPanelH-2))
	m.transcriptVP.Width = maxInt(20, m.transcriptW-4)
	m.transcriptVP.Height = maxInt(4, m.transcriptH-2)
	m.historyVP.Width = maxInt(20, m.historyW-4)
	m.historyVP.Height = maxInt(2, m.historyH-2)
	m.refreshHistoryView()
}

func renderPanel(title, body string, width, height int, focused bool) string {
	style := panelStyle
	if focused {
		style = focusedPanelStyle
	}
	content := panelTitleStyle.Render(title) + "\n" + body
	return style.Width(maxInt(10, width-2)).Height(maxInt(2, height)).Render(content)
}

func shortRunID(runID string) string {
	runID = strings.TrimSpace(runID)
	if len(runID) > 8 {
		return runID[:8]
	}
	if runID == "" {
		return "--------"
	}
	return runID
}
