package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines a color scheme for the dashboard
type Theme struct {
	Name    string
	Border  lipgloss.Color
	Text    lipgloss.Color
	Active  lipgloss.Color
	Accent  lipgloss.Color
	Gain    lipgloss.Color
	Loss    lipgloss.Color
	Muted   lipgloss.Color
	Warning lipgloss.Color
}

// Predefined themes
var Themes = []Theme{
	// 0: Tokyo Night
	{
		Name:    "Tokyo Night",
		Border:  lipgloss.Color("#7aa2f7"),
		Text:    lipgloss.Color("#c0caf5"),
		Active:  lipgloss.Color("#7aa2f7"),
		Accent:  lipgloss.Color("#bb9af7"),
		Gain:    lipgloss.Color("#9ece6a"),
		Loss:    lipgloss.Color("#f7768e"),
		Muted:   lipgloss.Color("#565f89"),
		Warning: lipgloss.Color("#ff9e64"),
	},
	// 1: Light
	{
		Name:    "Light",
		Border:  lipgloss.Color("#0969da"),
		Text:    lipgloss.Color("#24292f"),
		Active:  lipgloss.Color("#0550ae"),
		Accent:  lipgloss.Color("#8250df"),
		Gain:    lipgloss.Color("#1a7f37"),
		Loss:    lipgloss.Color("#cf222e"),
		Muted:   lipgloss.Color("#6e7781"),
		Warning: lipgloss.Color("#9a6700"),
	},
	// 2: Cyberpunk
	{
		Name:    "Cyberpunk",
		Border:  lipgloss.Color("#00ffff"),
		Text:    lipgloss.Color("#ffffff"),
		Active:  lipgloss.Color("#ff00ff"),
		Accent:  lipgloss.Color("#bf00ff"),
		Gain:    lipgloss.Color("#39ff14"),
		Loss:    lipgloss.Color("#ff0000"),
		Muted:   lipgloss.Color("#808080"),
		Warning: lipgloss.Color("#ffff00"),
	},
}

// Styles derived from the active theme
type Styles struct {
	Header, Key, Gain, Loss, Muted, Warning, TableHeader, Footer, Border lipgloss.Style
	Theme                                                              Theme
}

// NewStyles builds the styles for theme i, wrapping around
func NewStyles(i int) Styles {
	t := Themes[((i%len(Themes))+len(Themes))%len(Themes)]
	return Styles{
		Theme:       t,
		Header:      lipgloss.NewStyle().Bold(true).Foreground(t.Active),
		Key:         lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		Gain:        lipgloss.NewStyle().Foreground(t.Gain),
		Loss:        lipgloss.NewStyle().Foreground(t.Loss),
		Muted:       lipgloss.NewStyle().Foreground(t.Muted),
		Warning:     lipgloss.NewStyle().Foreground(t.Warning),
		TableHeader: lipgloss.NewStyle().Foreground(t.Active).Bold(true),
		Footer:      lipgloss.NewStyle().Foreground(t.Text),
		Border:      lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(t.Border),
	}
}

// HotKey renders "[k]desc"
func (s Styles) HotKey(k, desc string) string {
	return s.Key.Render("["+k+"]") + desc
}
