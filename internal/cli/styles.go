package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/goliatone/go-formwizard/pkg/session"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	activeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	completeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	reachableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	separator      = pendingStyle.Render(" › ")
)

// Progress renders the step indicator for view, for example
// "Farmer registration  ✓ Personal › ● Identity › ○ Land".
func Progress(view session.View) string {
	parts := make([]string, 0, len(view.Steps))
	for _, step := range view.Steps {
		switch {
		case step.IsActive:
			parts = append(parts, activeStyle.Render("● "+step.Label))
		case step.IsComplete:
			parts = append(parts, completeStyle.Render("✓ "+step.Label))
		case step.IsReachable:
			parts = append(parts, reachableStyle.Render("◐ "+step.Label))
		default:
			parts = append(parts, pendingStyle.Render("○ "+step.Label))
		}
	}
	return titleStyle.Render(view.Label) + "  " + strings.Join(parts, separator)
}

func errorLine(label, msg string) string {
	return errorStyle.Render("✗ " + label + ": " + msg)
}
