package ui

// Table column titles
const (
	ColService = "SERVICE"
	ColLabel   = "PORT"
	ColRemote  = "REMOTE"
	ColLocal   = "LOCAL"
	ColStatus  = "STATUS"
)

// Layout constants
const (
	MinTableHeight = 4
	ViewOffset     = 7 // non-table lines: title, filter box, message line
)

// Lipgloss colors
const (
	ColorBorder     = "240"
	ColorSelectedFg = "229"
	ColorSelectedBg = "57"
	ColorTitle      = "14"  // cyan
	ColorHelp       = "245" // grey
	ColorError      = "9"   // red
	ColorActive     = "10"  // green
	ColorConnecting = "11"  // yellow
	ColorStopped    = "8"   // dim grey
)
