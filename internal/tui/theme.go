package tui

import "github.com/charmbracelet/lipgloss"

// Theme is one of the dashboard's color schemes.
type Theme struct {
	Name    string
	Border  lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
	Accent  lipgloss.Color
	Profit  lipgloss.Color
	Loss    lipgloss.Color
	Warning lipgloss.Color
}

var themes = []Theme{
	{
		Name:    "Tokyo Night",
		Border:  lipgloss.Color("#7aa2f7"),
		Text:    lipgloss.Color("#c0caf5"),
		Muted:   lipgloss.Color("#565f89"),
		Accent:  lipgloss.Color("#bb9af7"),
		Profit:  lipgloss.Color("#9ece6a"),
		Loss:    lipgloss.Color("#f7768e"),
		Warning: lipgloss.Color("#e0af68"),
	},
	{
		Name:    "Light",
		Border:  lipgloss.Color("#0969da"),
		Text:    lipgloss.Color("#24292f"),
		Muted:   lipgloss.Color("#6e7781"),
		Accent:  lipgloss.Color("#8250df"),
		Profit:  lipgloss.Color("#1a7f37"),
		Loss:    lipgloss.Color("#cf222e"),
		Warning: lipgloss.Color("#9a6700"),
	},
	{
		Name:    "Cyberpunk",
		Border:  lipgloss.Color("#00ffff"),
		Text:    lipgloss.Color("#ffffff"),
		Muted:   lipgloss.Color("#777777"),
		Accent:  lipgloss.Color("#ff00ff"),
		Profit:  lipgloss.Color("#39ff14"),
		Loss:    lipgloss.Color("#ff0000"),
		Warning: lipgloss.Color("#ffd700"),
	},
}

// styles derived from the active theme.
type styles struct {
	title   lipgloss.Style
	tab     lipgloss.Style
	tabOn   lipgloss.Style
	header  lipgloss.Style
	text    lipgloss.Style
	muted   lipgloss.Style
	profit  lipgloss.Style
	loss    lipgloss.Style
	warning lipgloss.Style
	frame   lipgloss.Style
}

func buildStyles(t Theme) styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		tab:     lipgloss.NewStyle().Foreground(t.Muted).Padding(0, 1),
		tabOn:   lipgloss.NewStyle().Bold(true).Foreground(t.Accent).Underline(true).Padding(0, 1),
		header:  lipgloss.NewStyle().Bold(true).Foreground(t.Border),
		text:    lipgloss.NewStyle().Foreground(t.Text),
		muted:   lipgloss.NewStyle().Foreground(t.Muted),
		profit:  lipgloss.NewStyle().Foreground(t.Profit),
		loss:    lipgloss.NewStyle().Foreground(t.Loss),
		warning: lipgloss.NewStyle().Foreground(t.Warning),
		frame:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Border).Padding(0, 1),
	}
}
