// Package ui provides the visual styling and the live run progress view for
// the dnerd CLI. Uses the NERD brand palette with light/dark mode support.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Brand palette shared with the rest of the NERD product family.
var (
	// Light mode colors (default)
	LightForeground = lipgloss.Color("#101F38") // Dark Blue
	LightPrimary    = lipgloss.Color("#101F38")
	LightAccent     = lipgloss.Color("#8BC34A") // Lime Green
	LightMuted      = lipgloss.Color("#d6dae0")
	LightBorder     = lipgloss.Color("#dce0e5")

	// Dark mode colors
	DarkForeground = lipgloss.Color("#f2f2f2")
	DarkPrimary    = lipgloss.Color("#8BC34A") // Lime Green (flipped)
	DarkAccent     = lipgloss.Color("#101F38")
	DarkMuted      = lipgloss.Color("#2a3850")
	DarkBorder     = lipgloss.Color("#2a3850")

	// Semantic colors (same in both modes)
	Destructive = lipgloss.Color("#e53935") // Red
	Success     = lipgloss.Color("#8BC34A") // Lime Green
	Warning     = lipgloss.Color("#FFC107") // Yellow
	Info        = lipgloss.Color("#2196F3") // Blue
)

// Theme holds the current color scheme.
type Theme struct {
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme.
func LightTheme() Theme {
	return Theme{
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
		IsDark:     false,
	}
}

// DarkTheme returns the dark mode theme.
func DarkTheme() Theme {
	return Theme{
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		IsDark:     true,
	}
}

// ThemeFor resolves a configured theme name, falling back to the
// DNERD_THEME environment variable, then to dark.
func ThemeFor(name string) Theme {
	if name == "" {
		name = os.Getenv("DNERD_THEME")
	}
	if name == "light" {
		return LightTheme()
	}
	return DarkTheme()
}

// Styles bundles the lipgloss styles the progress view and report renderer
// use, derived from one theme.
type Styles struct {
	Title    lipgloss.Style
	Step     lipgloss.Style
	Approved lipgloss.Style
	Boring   lipgloss.Style
	Rejected lipgloss.Style
	Error    lipgloss.Style
	Muted    lipgloss.Style
	Counts   lipgloss.Style
	Report   lipgloss.Style
}

// NewStyles derives the style set from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Step:     lipgloss.NewStyle().Bold(true).Foreground(Info),
		Approved: lipgloss.NewStyle().Foreground(Success),
		Boring:   lipgloss.NewStyle().Foreground(Warning),
		Rejected: lipgloss.NewStyle().Foreground(Destructive),
		Error:    lipgloss.NewStyle().Foreground(Destructive),
		Muted:    lipgloss.NewStyle().Foreground(t.Muted),
		Counts:   lipgloss.NewStyle().Foreground(t.Foreground),
		Report: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),
	}
}
