// package ui styles CLI output for sync runs with [lipgloss].
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gerrymanoim/to-listen/internal/tasks"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#1DB954")).Bold(true).MarginBottom(1)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

// RenderSyncSummary formats the per-user results of a scheduler tick.
func RenderSyncSummary(results []tasks.Result) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Listen sync results"))
	b.WriteString("\n")

	var done, failed, skipped, deleted int
	for _, res := range results {
		switch {
		case res.Skipped:
			skipped++
			b.WriteString(dimStyle.Render(fmt.Sprintf("- %s: skipped (no playlist)", res.UID)))
		case res.Phase == tasks.Done:
			done++
			deleted += res.Deleted
			b.WriteString(okStyle.Render(fmt.Sprintf("✓ %s: removed %d tracks", res.UID, res.Deleted)))
		default:
			failed++
			b.WriteString(errStyle.Render(fmt.Sprintf("✗ %s: %v", res.UID, res.Err)))
		}
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("%d ok, %d failed, %d skipped, %d tracks removed", done, failed, skipped, deleted)))
	b.WriteString("\n")
	return b.String()
}
