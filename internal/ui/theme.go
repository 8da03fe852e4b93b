package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors used by the authorization screen.
type Theme struct {
	Name string

	Border  string
	Text    string
	Muted   string
	Accent  string
	Success string
	Warning string
	Danger  string
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Title       lipgloss.Style
	Panel       lipgloss.Style
	Text        lipgloss.Style
	MutedText   lipgloss.Style
	AccentText  lipgloss.Style
	SuccessText lipgloss.Style
	WarningText lipgloss.Style
	DangerText  lipgloss.Style
	Link        lipgloss.Style
}

// Styles returns Lipgloss styles for this theme.
func (t Theme) Styles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Accent)).
			Bold(true).
			MarginBottom(1),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.Border)).
			Padding(1, 2),

		Text:        lipgloss.NewStyle().Foreground(lipgloss.Color(t.Text)),
		MutedText:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		AccentText:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)),
		SuccessText: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Success)).Bold(true),
		WarningText: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Warning)),
		DangerText:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Danger)).Bold(true),
		Link:        lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)).Underline(true),
	}
}

var themes = map[string]Theme{
	"Nightfox": nightfoxTheme(),
	"Kanagawa": kanagawaTheme(),
}

// GetTheme returns a theme by name, falling back to Nightfox.
func GetTheme(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return nightfoxTheme()
}

func nightfoxTheme() Theme {
	// Nightfox palette: https://github.com/EdenEast/nightfox.nvim
	return Theme{
		Name:    "Nightfox",
		Border:  "#39506d", // bg4
		Text:    "#cdcecf", // fg1
		Muted:   "#738091", // comment
		Accent:  "#719cd6", // blue
		Success: "#81b29a", // green
		Warning: "#dbc074", // yellow
		Danger:  "#c94f6d", // red
	}
}

func kanagawaTheme() Theme {
	// Kanagawa palette: https://github.com/rebelot/kanagawa.nvim
	return Theme{
		Name:    "Kanagawa",
		Border:  "#54546d", // sumiInk6
		Text:    "#dcd7ba", // fujiWhite
		Muted:   "#727169", // fujiGray
		Accent:  "#7e9cd8", // crystalBlue
		Success: "#98bb6c", // springGreen
		Warning: "#e6c384", // carpYellow
		Danger:  "#e82424", // samuraiRed
	}
}
