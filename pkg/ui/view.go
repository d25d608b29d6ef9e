package ui

import (
	"fmt"
	"strings"

	"svcfwd/pkg/state"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) View() string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorTitle)).
		Bold(true).
		Render(fmt.Sprintf("svcfwd - namespace: %s", m.namespace))

	help := "Space: Toggle Port | S: Toggle Service | /: Filter | Q: Quit"
	if m.width < 80 {
		help = "Space:Port | S:Service | /:Filter | Q:Quit"
	}
	helpText := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp)).Render(help)

	var top string
	spacing := m.width - lipgloss.Width(title) - lipgloss.Width(helpText)
	if spacing > 0 {
		top = lipgloss.JoinHorizontal(lipgloss.Left, title, strings.Repeat(" ", spacing), helpText)
	} else {
		top = lipgloss.JoinVertical(lipgloss.Left, title, helpText)
	}

	var filterView string
	if m.filterMode {
		filterView = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1).
			Render("Filter: " + m.filterInput.View())
	} else if m.filterInput.Value() != "" {
		filterView = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorStopped)).
			Foreground(lipgloss.Color(ColorStopped)).
			Padding(0, 1).
			Render(fmt.Sprintf("Filter: %s (Press / to edit, Esc to clear)", m.filterInput.Value()))
	} else {
		filterView = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Foreground(lipgloss.Color(ColorBorder)).
			Padding(0, 1).
			Render("Press / to filter...")
	}

	tableView := lipgloss.PlaceHorizontal(m.width, lipgloss.Left, m.portTable.View())

	parts := []string{top, "", filterView, tableView}
	if msg := m.messageLine(); msg != "" {
		parts = append(parts, msg)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// messageLine surfaces details for the selected entry: the local
// address when active, the last error when failed.
func (m *Model) messageLine() string {
	row, ok := m.selectedRow()
	if !ok {
		return ""
	}
	switch row.Status {
	case state.StatusActive:
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorActive)).
			Render(fmt.Sprintf("%s forwarding on 127.0.0.1:%d", row.Entry.Key(), row.LocalPort))
	case state.StatusConnecting:
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorConnecting)).
			Render(fmt.Sprintf("%s connecting...", row.Entry.Key()))
	case state.StatusFailed:
		if row.LastError != nil {
			return lipgloss.NewStyle().
				Foreground(lipgloss.Color(ColorError)).
				Render(fmt.Sprintf("ERROR %s: %v", row.Entry.Key(), row.LastError))
		}
	}
	return ""
}
