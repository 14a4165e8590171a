package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"ffbatch/batch"
	"ffbatch/probe"
)

// Color palette - modern, readable
var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Violet
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan
	colorSuccess   = lipgloss.Color("#10B981") // Emerald
	colorError     = lipgloss.Color("#EF4444") // Red
	colorWarning   = lipgloss.Color("#F59E0B") // Amber
	colorMuted     = lipgloss.Color("#6B7280") // Gray
	colorText      = lipgloss.Color("#F9FAFB") // White
	colorTextDim   = lipgloss.Color("#9CA3AF") // Light gray
	colorBorder    = lipgloss.Color("#374151") // Dark gray
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText).
			Background(colorPrimary).
			Padding(0, 2).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2).
			MarginTop(1)

	statLabelStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Width(10)

	statValueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	queueBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2).
			MarginTop(1)

	rowDimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)

	logBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			MarginTop(1)
)

// statusStyle picks a color per job status.
func statusStyle(s batch.Status) lipgloss.Style {
	switch s {
	case batch.StatusSucceeded:
		return successStyle
	case batch.StatusFailed:
		return errorStyle
	case batch.StatusPaused, batch.StatusCancelled:
		return warningStyle
	case batch.StatusRunning:
		return lipgloss.NewStyle().Foreground(colorSecondary).Bold(true)
	default:
		return rowDimStyle
	}
}

// View renders the TUI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(" ⚡ ffbatch ") + "\n")

	switch {
	case m.finished:
		b.WriteString(m.renderResultsView())
	default:
		b.WriteString(m.renderEncodingView())
	}

	pauseKey := "[P] Pause"
	if m.activePaused() {
		pauseKey = "[P] Resume"
	}
	help := "  [L] Toggle logs  •  [Q] Quit"
	if !m.finished {
		help = "  " + pauseKey + "  •  [C] Cancel batch  •" + help
	}
	b.WriteString("\n" + helpStyle.Render(help) + "\n")

	return b.String()
}

func (m Model) renderEncodingView() string {
	var b strings.Builder

	b.WriteString(m.renderQueue())

	active := m.activeJob()
	if active == nil {
		b.WriteString("\n" + statValueStyle.Render("  Starting batch...") + "\n")
		return b.String()
	}

	header := fmt.Sprintf("  (%d/%d) %s", active.Index+1, len(m.snap.Jobs), active.InputName)
	if active.Status == batch.StatusPaused {
		header += warningStyle.Render("  ⏸ PAUSED")
	}
	b.WriteString(sectionHeaderStyle.Render(header) + "\n")
	if active.InputSummary != "" {
		b.WriteString(rowDimStyle.Render("  "+active.InputSummary) + "\n")
	}

	fraction := active.Fraction
	hasData := active.Stats.Frame > 0 || active.Stats.OutSeconds > 0
	if !hasData && fraction == 0 {
		fraction = 0.01 // show the bar is alive before the first record
	}
	pctStr := "..."
	if hasData {
		if active.Duration <= 0 {
			// Unknown duration; a percentage would be meaningless.
			pctStr = "—"
		} else {
			pctStr = fmt.Sprintf("%.1f%%", active.Fraction*100)
		}
	}
	b.WriteString("  " + m.Progress.ViewAs(fraction) + "  " + statValueStyle.Render(pctStr) + "\n")

	b.WriteString(statsBoxStyle.Render(m.buildStatsGrid(*active)))

	if m.ShowLogs {
		b.WriteString("\n")
		b.WriteString(sectionHeaderStyle.Render("  Encoder Output") + "\n")
		b.WriteString(logBoxStyle.Render(m.LogViewport.View()))
	}

	return b.String()
}

func (m Model) activeJob() *batch.JobSnapshot {
	if m.snap.Active < 0 || m.snap.Active >= len(m.snap.Jobs) {
		return nil
	}
	job := m.snap.Jobs[m.snap.Active]
	return &job
}

func (m Model) renderQueue() string {
	var lines []string
	for _, job := range m.snap.Jobs {
		pct := "—"
		if job.Fraction > 0 {
			pct = fmt.Sprintf("%3.0f%%", job.Fraction*100)
		}
		line := fmt.Sprintf("%2d. %-38s %-10s %s",
			job.Index+1,
			truncatePath(job.InputName, 38),
			statusStyle(job.Status).Render(job.Status.String()),
			pct,
		)
		lines = append(lines, line)
	}
	return queueBoxStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) buildStatsGrid(job batch.JobSnapshot) string {
	stats := job.Stats

	frameVal := "—"
	if stats.Frame > 0 {
		frameVal = fmt.Sprintf("%d", stats.Frame)
	}
	fpsVal := "—"
	if stats.FPS > 0 {
		fpsVal = fmt.Sprintf("%.1f", stats.FPS)
	}
	speedVal := formatSpeed(stats)
	bitrateVal := stats.Bitrate
	if bitrateVal == "" || bitrateVal == "N/A" {
		bitrateVal = "—"
	}
	sizeVal := "—"
	if stats.OutBytes > 0 {
		sizeVal = probe.FormatSize(stats.OutBytes)
	}

	spacer := lipgloss.NewStyle().Width(8).Render("")
	line1 := lipgloss.JoinHorizontal(lipgloss.Top,
		statLabelStyle.Render("Frame"), statValueStyle.Render(frameVal),
		spacer,
		statLabelStyle.Render("FPS"), statValueStyle.Render(fpsVal),
	)
	line2 := lipgloss.JoinHorizontal(lipgloss.Top,
		statLabelStyle.Render("Speed"), statValueStyle.Render(speedVal),
		spacer,
		statLabelStyle.Render("Bitrate"), statValueStyle.Render(bitrateVal),
	)
	line3 := lipgloss.JoinHorizontal(lipgloss.Top,
		statLabelStyle.Render("Size"), statValueStyle.Render(sizeVal),
		spacer,
		statLabelStyle.Render("ETA"), statValueStyle.Render(formatETA(job)),
	)
	line4 := lipgloss.JoinHorizontal(lipgloss.Top,
		statLabelStyle.Render("Elapsed"), statValueStyle.Render(formatDuration(job.Elapsed)),
	)

	return lipgloss.JoinVertical(lipgloss.Left, line1, line2, line3, line4)
}

func (m Model) renderResultsView() string {
	var b strings.Builder

	if m.snap.Batch == batch.BatchCancelled {
		b.WriteString(warningStyle.Render("  ⊘ Batch cancelled") + "\n")
	} else if m.snap.Totals.Failed > 0 {
		b.WriteString(warningStyle.Render("  Batch finished with failures") + "\n")
	} else {
		b.WriteString(successStyle.Render("  ✅ Batch complete") + "\n")
	}
	if m.batchErr != nil {
		b.WriteString(errorStyle.Render("  "+m.batchErr.Error()) + "\n")
	}

	var rows []string
	rows = append(rows, rowDimStyle.Render(fmt.Sprintf(
		"%-3s %-30s %-10s %10s %10s %8s %10s",
		"#", "File", "Status", "Input", "Output", "Saved", "Time")))

	for _, job := range m.snap.Jobs {
		in, out := "—", "—"
		saved := "—"
		if job.InputBytes > 0 {
			in = probe.FormatSize(job.InputBytes)
		}
		if job.OutputBytes > 0 {
			out = probe.FormatSize(job.OutputBytes)
			if job.InputBytes > 0 {
				saved = fmt.Sprintf("%.1f%%",
					(1-float64(job.OutputBytes)/float64(job.InputBytes))*100)
			}
		}
		rows = append(rows, fmt.Sprintf(
			"%-3d %-30s %-10s %10s %10s %8s %10s",
			job.Index+1,
			truncatePath(job.InputName, 30),
			statusStyle(job.Status).Render(job.Status.String()),
			in, out, saved,
			formatDuration(job.Elapsed),
		))
	}

	t := m.snap.Totals
	totalSaved := "—"
	if p := t.SavedPercent(); p != 0 {
		totalSaved = fmt.Sprintf("%.1f%%", p)
	}
	rows = append(rows, statValueStyle.Render(fmt.Sprintf(
		"%-3s %-30s %-10s %10s %10s %8s %10s",
		"", "TOTAL", "",
		probe.FormatSize(t.InputBytes),
		probe.FormatSize(t.OutputBytes),
		totalSaved,
		formatDuration(t.Elapsed),
	)))

	b.WriteString(queueBoxStyle.Render(strings.Join(rows, "\n")))

	summary := fmt.Sprintf("  ✅ %d encoded", t.Succeeded)
	if t.Failed > 0 {
		summary += errorStyle.Render(fmt.Sprintf("  ❌ %d failed", t.Failed))
	}
	if t.Cancelled > 0 {
		summary += warningStyle.Render(fmt.Sprintf("  ⊘ %d cancelled", t.Cancelled))
	}
	b.WriteString("\n" + summary + "\n")

	// Failed jobs keep their diagnostic tail for review.
	if m.ShowLogs {
		for _, job := range m.snap.Jobs {
			if job.Status == batch.StatusFailed && len(job.Tail) > 0 {
				b.WriteString(sectionHeaderStyle.Render("  "+job.InputName) + "\n")
				b.WriteString(logBoxStyle.Render(strings.Join(tailEnd(job.Tail, 10), "\n")))
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

// formatSpeed handles N/A and missing speed values.
func formatSpeed(s batch.Stats) string {
	if s.SpeedRaw == "N/A" {
		return "N/A"
	}
	if s.Speed <= 0 {
		return "—"
	}
	return fmt.Sprintf("%.2fx", s.Speed)
}

// formatETA extrapolates from elapsed wall time and the completion
// fraction; unavailable until the first real progress arrives.
func formatETA(job batch.JobSnapshot) string {
	if job.Fraction <= 0 || job.Elapsed <= 0 {
		return "—"
	}
	remaining := time.Duration(float64(job.Elapsed)/job.Fraction) - job.Elapsed
	if remaining < 0 {
		remaining = 0
	}
	return formatDuration(remaining)
}

func formatDuration(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh:%02dm:%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm:%02ds", m, s)
}

func truncatePath(path string, max int) string {
	if len(path) <= max {
		return path
	}
	if max <= 3 {
		return path[:max]
	}
	return "…" + path[len(path)-max+1:]
}

func tailEnd(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
