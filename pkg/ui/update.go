package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.portTable.SetHeight(max(m.height-ViewOffset, MinTableHeight))
		m.portTable.SetColumns(m.calculateColumns())
		m.filterInput.Width = max(m.width-6, 20)
		return m, nil

	case statusEventMsg:
		if i, known := m.index[msg.row.Entry.Key()]; known {
			m.rows[i] = msg.row
			m.refreshTable()
		}
		return m, waitForEvent(m.sub)

	case subscriptionClosedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if m.filterMode {
			switch msg.String() {
			case "esc":
				m.filterMode = false
				m.filterInput.Blur()
				m.filterInput.SetValue("")
				m.refreshTable()
				m.portTable.Focus()
				return m, nil
			case "enter":
				m.filterMode = false
				m.filterInput.Blur()
				m.portTable.Focus()
				return m, nil
			default:
				m.filterInput, cmd = m.filterInput.Update(msg)
				m.refreshTable()
				return m, cmd
			}
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "/":
			m.filterMode = true
			m.filterInput.Focus()
			m.portTable.Blur()
			return m, nil
		case "esc":
			if m.filterInput.Value() != "" {
				m.filterInput.SetValue("")
				m.refreshTable()
			}
			return m, nil
		case " ":
			if row, ok := m.selectedRow(); ok {
				m.manager.Toggle(row.Entry.Key())
			}
			return m, nil
		case "s":
			if row, ok := m.selectedRow(); ok {
				m.manager.ToggleService(row.Entry.Service)
			}
			return m, nil
		}

		m.portTable, cmd = m.portTable.Update(msg)
		return m, cmd
	}

	m.portTable, cmd = m.portTable.Update(msg)
	return m, cmd
}
