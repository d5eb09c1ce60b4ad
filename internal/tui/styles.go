package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorAccent = lipgloss.Color("#3B82F6")
	ColorDim    = lipgloss.Color("#6B7280")
	ColorGreen  = lipgloss.Color("#22C55E")
	ColorYellow = lipgloss.Color("#EAB308")
	ColorRed    = lipgloss.Color("#EF4444")
	ColorWhite  = lipgloss.Color("#F9FAFB")
)

var (
	TitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorDim)
	ErrorStyle    = lipgloss.NewStyle().Foreground(ColorRed)
	SuccessStyle  = lipgloss.NewStyle().Foreground(ColorGreen)
	LabelStyle    = lipgloss.NewStyle().Bold(true).Width(18)
	SelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorWhite).Background(ColorAccent)
	PanelStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDim).
			Padding(0, 1)
	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorAccent).
			Padding(0, 1)
)

// statusStyle colours an authorization status the way the web dashboard did:
// approved green, pending yellow, anything else red.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "approved":
		return lipgloss.NewStyle().Foreground(ColorGreen)
	case "pending":
		return lipgloss.NewStyle().Foreground(ColorYellow)
	default:
		return lipgloss.NewStyle().Foreground(ColorRed)
	}
}
