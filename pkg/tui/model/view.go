package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/gamehost/pkg/core"
	"github.com/modoterra/gamehost/pkg/logstore"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusExited  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	levelWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	levelError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	levelCrit  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("199"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	// Editor overlay
	if a.mode == ModeEditor && a.editor != nil {
		editorView := a.editor.View(a.width - 4)
		return paneStyle.Width(a.width - 4).Height(a.height - 2).Render(editorView)
	}

	statusBarH := 2
	logPaneH := max(a.height/2, 5)
	mainH := a.height - logPaneH - statusBarH - 4
	listW := a.width*2/5 - 2
	detailW := a.width - listW - 4

	list := a.renderList(listW, mainH)
	listPane := a.paneBox(PaneList, " Processes ", list, listW, mainH)

	detail := a.renderDetail(detailW, mainH)
	detailPane := a.paneBox(PaneDetail, " Detail ", detail, detailW, mainH)

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)

	logs := a.renderLogs(a.width-4, logPaneH)
	logPane := a.paneBox(PaneLogs, a.logTitle(), logs, a.width-4, logPaneH)

	statusBar := a.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, topRow, logPane, statusBar)
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) renderList(w, h int) string {
	procs := a.filteredProcs()
	if len(procs) == 0 {
		if !a.connected {
			return dimStyle.Render("not connected")
		}
		return dimStyle.Render("no processes (a: spawn)")
	}

	var b strings.Builder
	maxVisible := h - 2
	start := 0
	if a.selectedIdx >= maxVisible {
		start = a.selectedIdx - maxVisible + 1
	}

	for i := start; i < len(procs) && i-start < maxVisible; i++ {
		p := procs[i]
		indicator := statusIndicator(p)
		name := truncate(fmt.Sprintf("%-7d %s", p.PID, baseName(p.Exe)), w-6)
		line := fmt.Sprintf(" %s %-*s", indicator, w-6, name)

		if i == a.selectedIdx {
			line = selectedStyle.Width(w).Render(line)
		}
		b.WriteString(line + "\n")
	}

	if a.mode == ModeSearch {
		b.WriteString("\n" + a.search.View())
	}

	return b.String()
}

func (a App) renderDetail(w, h int) string {
	p := a.selectedProc()
	if p == nil {
		return dimStyle.Render("select a process")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PID:     %d\n", p.PID)
	fmt.Fprintf(&b, "Session: %s\n", dimStyle.Render(p.Session))
	fmt.Fprintf(&b, "Exe:     %s\n", truncate(p.Exe, w-9))
	if len(p.Args) > 0 {
		fmt.Fprintf(&b, "Args:    %s\n", truncate(strings.Join(p.Args, " "), w-9))
	}
	if p.Dir != "" {
		fmt.Fprintf(&b, "Dir:     %s\n", truncate(p.Dir, w-9))
	}
	fmt.Fprintf(&b, "Status:  %s\n", colorStatus(*p))
	fmt.Fprintf(&b, "Rows:    %d\n", p.Rows)
	if p.IPC {
		fmt.Fprintf(&b, "IPC:     ready %s\n", dimStyle.Render(strings.Join(p.Capabilities, " ")))
	}
	if p.CPUPct > 0 {
		fmt.Fprintf(&b, "CPU:     %.1f%%\n", p.CPUPct)
	}
	if p.MemBytes > 0 {
		fmt.Fprintf(&b, "Memory:  %s\n", formatBytes(p.MemBytes))
	}
	if p.UptimeSec > 0 {
		fmt.Fprintf(&b, "Uptime:  %s\n", formatDuration(p.UptimeSec))
	}
	if len(p.Classes) > 0 {
		fmt.Fprintf(&b, "Classes: %s\n", truncate(strings.Join(p.Classes, ", "), w-9))
	}
	if a.mode == ModeSend {
		b.WriteString("\n" + a.input.View())
	}

	return b.String()
}

func (a App) renderLogs(w, h int) string {
	rows := a.visibleRows()
	if len(rows) == 0 {
		return dimStyle.Render("no log output")
	}

	start := 0
	if len(rows) > h-1 {
		start = len(rows) - h + 1
	}

	var b strings.Builder
	for i := start; i < len(rows); i++ {
		line := truncate(logstore.FormatLine(rows[i]), w)
		b.WriteString(colorLevel(rows[i].Level, line) + "\n")
	}
	return b.String()
}

func (a App) logTitle() string {
	title := " Log "
	if a.logPID != 0 {
		title = fmt.Sprintf(" Log %d ", a.logPID)
	}
	if floor := levelSteps[a.minLevel]; floor != core.LevelUnknown {
		title += dimStyle.Render("["+floor.String()+"+]") + " "
	}
	if a.logPaused {
		title += dimStyle.Render("[PAUSED]") + " "
	}
	return title
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	right := "j/k:nav tab:pane /:search a:spawn e:relaunch i:send x:kill d:delete v:level q:quit"
	switch a.mode {
	case ModeSearch:
		right = "enter:apply esc:cancel"
	case ModeSend:
		right = "enter:send esc:cancel"
	case ModeEditor:
		right = "tab:next field enter:spawn esc:cancel"
	}

	gap := a.width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func statusIndicator(p core.ProcessInfo) string {
	switch {
	case p.Status == core.StatusRunning:
		return statusRunning.Render("●")
	case p.ExitCode != nil && *p.ExitCode != 0:
		return statusFailed.Render("✖")
	case p.Status == core.StatusExited:
		return statusExited.Render("○")
	default:
		return dimStyle.Render("?")
	}
}

func colorStatus(p core.ProcessInfo) string {
	switch {
	case p.Status == core.StatusRunning:
		return statusRunning.Render(string(p.Status))
	case p.ExitCode != nil:
		s := fmt.Sprintf("%s (%d)", p.Status, *p.ExitCode)
		if *p.ExitCode != 0 {
			return statusFailed.Render(s)
		}
		return statusExited.Render(s)
	default:
		return dimStyle.Render(string(p.Status))
	}
}

func colorLevel(level core.Level, line string) string {
	switch level {
	case core.LevelWarning:
		return levelWarn.Render(line)
	case core.LevelError:
		return levelError.Render(line)
	case core.LevelCritical:
		return levelCrit.Render(line)
	case core.LevelTrace, core.LevelDebug:
		return dimStyle.Render(line)
	default:
		return line
	}
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func formatBytes(b uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatDuration(sec uint64) string {
	if sec < 60 {
		return fmt.Sprintf("%ds", sec)
	}
	if sec < 3600 {
		return fmt.Sprintf("%dm%ds", sec/60, sec%60)
	}
	return fmt.Sprintf("%dh%dm", sec/3600, (sec%3600)/60)
}
