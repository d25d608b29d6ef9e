package ui

import (
	"fmt"
	"strings"

	"svcfwd/pkg/session"
	"svcfwd/pkg/state"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// statusEventMsg carries one published row change into the update loop.
type statusEventMsg struct {
	row state.EntryStatus
}

// subscriptionClosedMsg arrives when the publisher shuts down.
type subscriptionClosedMsg struct{}

// Model is the bubbletea model for the port table view.
type Model struct {
	manager *session.Manager
	sub     *state.Subscription

	namespace string
	rows      []state.EntryStatus
	index     map[string]int // entry key -> position in rows

	portTable   table.Model
	filterInput textinput.Model
	filterMode  bool

	width  int
	height int
}

// NewModel builds the UI over a running session manager.
func NewModel(manager *session.Manager, namespace string) *Model {
	rows := manager.Entries()
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		index[row.Entry.Key()] = i
	}

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(ColorBorder)).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(ColorSelectedFg)).
		Background(lipgloss.Color(ColorSelectedBg)).
		Bold(false)

	ti := textinput.New()
	ti.Placeholder = "Filter..."
	ti.CharLimit = 64
	ti.Width = 20

	m := &Model{
		manager:     manager,
		sub:         manager.Publisher().Subscribe(),
		namespace:   namespace,
		rows:        rows,
		index:       index,
		filterInput: ti,
		width:       80,
		height:      24,
	}

	m.portTable = table.New(
		table.WithColumns(m.calculateColumns()),
		table.WithRows(m.visibleRows()),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithStyles(s),
	)
	return m
}

// Close releases the publisher subscription.
func (m *Model) Close() {
	m.manager.Publisher().Unsubscribe(m.sub)
}

func (m *Model) Init() tea.Cmd {
	return waitForEvent(m.sub)
}

// waitForEvent blocks on the subscription and feeds the next row change
// into Update.
func waitForEvent(sub *state.Subscription) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub.C
		if !ok {
			return subscriptionClosedMsg{}
		}
		return statusEventMsg{row: ev.Row}
	}
}

// calculateColumns sizes columns to the terminal width, favoring the
// service column.
func (m *Model) calculateColumns() []table.Column {
	available := max(m.width-8, 56)
	service := max(available*4/10, 16)
	label := max(available*2/10, 8)
	rest := (available - service - label) / 3
	return []table.Column{
		{Title: ColService, Width: service},
		{Title: ColLabel, Width: label},
		{Title: ColRemote, Width: rest},
		{Title: ColLocal, Width: rest},
		{Title: ColStatus, Width: max(rest, 10)},
	}
}

// visibleRows renders the current view through the active filter.
func (m *Model) visibleRows() []table.Row {
	filter := strings.ToLower(strings.TrimSpace(m.filterInput.Value()))
	out := make([]table.Row, 0, len(m.rows))
	for _, row := range m.rows {
		if filter != "" && !rowMatches(row, filter) {
			continue
		}
		local := ""
		if row.LocalPort > 0 && row.Status != state.StatusIdle {
			local = fmt.Sprintf("%d", row.LocalPort)
		}
		out = append(out, table.Row{
			row.Entry.Service,
			row.Entry.Label,
			fmt.Sprintf("%d", row.Entry.RemotePort),
			local,
			row.Status.String(),
		})
	}
	return out
}

func rowMatches(row state.EntryStatus, filter string) bool {
	return strings.Contains(strings.ToLower(row.Entry.Service), filter) ||
		strings.Contains(strings.ToLower(row.Entry.Label), filter) ||
		strings.Contains(fmt.Sprintf("%d", row.Entry.RemotePort), filter)
}

// selectedRow maps the table cursor back to an entry, skipping rows
// hidden by the filter.
func (m *Model) selectedRow() (state.EntryStatus, bool) {
	cursor := m.portTable.Cursor()
	filter := strings.ToLower(strings.TrimSpace(m.filterInput.Value()))
	visible := -1
	for _, row := range m.rows {
		if filter != "" && !rowMatches(row, filter) {
			continue
		}
		visible++
		if visible == cursor {
			return row, true
		}
	}
	return state.EntryStatus{}, false
}

func (m *Model) refreshTable() {
	m.portTable.SetRows(m.visibleRows())
}
