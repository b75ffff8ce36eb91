package tui

import "github.com/charmbracelet/lipgloss"

// Color constants matching the dark dashboard theme
const (
	ColorBg     = "#0d1117"
	ColorCard   = "#161b22"
	ColorBorder = "#30363d"
	ColorBlue   = "#58a6ff"
	ColorGreen  = "#3fb950"
	ColorRed    = "#f85149"
	ColorYellow = "#d29922"
	ColorGray   = "#8b949e"
	ColorText   = "#c9d1d9"
	ColorBright = "#f0f6fc"
)

// Styles holds all lipgloss styles for the TUI
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Help     lipgloss.Style
	Status   lipgloss.Style
	Error    lipgloss.Style

	// Result list
	Rank     lipgloss.Style
	Item     lipgloss.Style
	Selected lipgloss.Style
	Path     lipgloss.Style

	// Excerpt pane
	Excerpt lipgloss.Style

	Border       lipgloss.Style
	ActiveBorder lipgloss.Style
	Input        lipgloss.Style
}

// DefaultStyles creates the default style set
func DefaultStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorBright)),

		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)),

		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Italic(true),

		Status: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGreen)),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorRed)).
			Bold(true),

		Rank: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Width(4),

		Item: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorText)),

		Selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)).
			Bold(true),

		Path: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)),

		Excerpt: lipgloss.NewStyle().
			Background(lipgloss.Color(ColorCard)).
			Foreground(lipgloss.Color(ColorText)).
			Padding(0, 1),

		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1),

		ActiveBorder: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBlue)).
			Padding(0, 1),

		Input: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBlue)).
			Padding(0, 1),
	}
}

// DistanceColor styles a distance relative to the best hit of a query:
// green within 10%, yellow within 50%, red beyond.
func DistanceColor(distance, best float32) lipgloss.Style {
	style := lipgloss.NewStyle().Padding(0, 1)

	switch {
	case best <= 0 && distance <= 0, distance <= best*1.1:
		return style.Foreground(lipgloss.Color(ColorGreen))
	case distance <= best*1.5:
		return style.Foreground(lipgloss.Color(ColorYellow))
	default:
		return style.Foreground(lipgloss.Color(ColorRed))
	}
}
