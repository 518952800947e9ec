package render

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette is the color scheme of the interactive chat
type Palette struct {
	Name string

	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color

	Text    lipgloss.Color
	TextDim lipgloss.Color
}

var (
	// TokyoNightPalette is used with dark markdown styles
	TokyoNightPalette = Palette{
		Name:      "tokyonight",
		Primary:   lipgloss.Color("#7aa2f7"),
		Secondary: lipgloss.Color("#9ece6a"),
		Accent:    lipgloss.Color("#bb9af7"),
		Warning:   lipgloss.Color("#e0af68"),
		Error:     lipgloss.Color("#f7768e"),
		Text:      lipgloss.Color("#c0caf5"),
		TextDim:   lipgloss.Color("#565f89"),
	}

	// LightPalette is used with the light markdown style
	LightPalette = Palette{
		Name:      "light",
		Primary:   lipgloss.Color("#2e59a8"),
		Secondary: lipgloss.Color("#387a2e"),
		Accent:    lipgloss.Color("#7847bd"),
		Warning:   lipgloss.Color("#8f5e15"),
		Error:     lipgloss.Color("#c4314b"),
		Text:      lipgloss.Color("#343b58"),
		TextDim:   lipgloss.Color("#6c6e75"),
	}

	// DraculaPalette matches the glamour dracula style
	DraculaPalette = Palette{
		Name:      "dracula",
		Primary:   lipgloss.Color("#8be9fd"),
		Secondary: lipgloss.Color("#50fa7b"),
		Accent:    lipgloss.Color("#ff79c6"),
		Warning:   lipgloss.Color("#f1fa8c"),
		Error:     lipgloss.Color("#ff5555"),
		Text:      lipgloss.Color("#f8f8f2"),
		TextDim:   lipgloss.Color("#6272a4"),
	}
)

// PaletteFor picks the palette matching a markdown style
func PaletteFor(style string) Palette {
	switch style {
	case "light":
		return LightPalette
	case "dracula":
		return DraculaPalette
	default:
		return TokyoNightPalette
	}
}

// Styles are the lipgloss styles the chat prompt uses
type Styles struct {
	User      lipgloss.Style
	Assistant lipgloss.Style
	Error     lipgloss.Style
	Status    lipgloss.Style
	Hint      lipgloss.Style
}

// NewStyles builds chat styles from a palette. Plain options yield
// unstyled output.
func NewStyles(opts Options) Styles {
	if opts.Plain() {
		plain := lipgloss.NewStyle()
		return Styles{User: plain, Assistant: plain, Error: plain, Status: plain, Hint: plain}
	}
	p := PaletteFor(opts.Style)
	return Styles{
		User:      lipgloss.NewStyle().Foreground(p.Primary).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(p.Secondary).Bold(true),
		Error:     lipgloss.NewStyle().Foreground(p.Error),
		Status:    lipgloss.NewStyle().Foreground(p.Warning).Italic(true),
		Hint:      lipgloss.NewStyle().Foreground(p.TextDim),
	}
}
