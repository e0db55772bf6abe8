package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme bundles palette + symbols + box borders.
// All UI helpers pull from `current`.
type Theme struct {
	Title, Muted, Accent, Success, Error, Pending lipgloss.Style
	Selected, Done, Help                          lipgloss.Style

	Border      lipgloss.Border
	BorderColor lipgloss.TerminalColor

	BoxUnchecked, BoxChecked string
	SymDone, SymPending      string
	SymOK, SymFail           string
}

var (
	current   = classic()
	themeName = "classic"
	noColor   bool
)

// Themes lists the names SetTheme accepts.
var Themes = []string{"classic", "neon", "mono"}

func SetTheme(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "neon":
		themeName = "neon"
		current = Theme{
			Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")), // bright magenta
			Muted:    lipgloss.NewStyle().Faint(true),
			Accent:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
			Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
			Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
			Pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
			Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
			Done:     lipgloss.NewStyle().Faint(true).Strikethrough(true),
			Help:     lipgloss.NewStyle().Faint(true),

			Border:      lipgloss.RoundedBorder(),
			BorderColor: lipgloss.Color("13"),

			BoxUnchecked: "◻", BoxChecked: "◼",
			SymDone: "✔", SymPending: "•",
			SymOK: "✔", SymFail: "✖",
		}
	case "mono":
		themeName = "mono"
		plain := lipgloss.NewStyle()
		current = Theme{
			Title: plain.Bold(true), Muted: plain, Accent: plain,
			Success: plain, Error: plain, Pending: plain,
			Selected: plain.Reverse(true), Done: plain, Help: plain,

			Border:      lipgloss.NormalBorder(),
			BorderColor: lipgloss.NoColor{},

			BoxUnchecked: "[ ]", BoxChecked: "[x]",
			SymDone: "x", SymPending: "-",
			SymOK: "ok", SymFail: "error:",
		}
	default:
		themeName = "classic"
		current = classic()
	}
	if noColor {
		current = stripped(current)
	}
}

func classic() Theme {
	return Theme{
		Title:    lipgloss.NewStyle().Bold(true),
		Muted:    lipgloss.NewStyle().Faint(true),
		Accent:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Selected: lipgloss.NewStyle().Bold(true).Reverse(true),
		Done:     lipgloss.NewStyle().Faint(true).Strikethrough(true),
		Help:     lipgloss.NewStyle().Faint(true),

		Border:      lipgloss.RoundedBorder(),
		BorderColor: lipgloss.Color("8"),

		BoxUnchecked: "☐", BoxChecked: "☑",
		SymDone: "✔", SymPending: "•",
		SymOK: "✔", SymFail: "✖",
	}
}

// SetColor turns colors off (or back on) for the current and later themes.
func SetColor(enabled bool) {
	noColor = !enabled
	SetTheme(themeName)
}

func stripped(t Theme) Theme {
	plain := lipgloss.NewStyle()
	t.Title, t.Muted, t.Accent = plain.Bold(true), plain, plain
	t.Success, t.Error, t.Pending = plain, plain, plain
	t.Selected, t.Done, t.Help = plain.Reverse(true), plain, plain
	t.BorderColor = lipgloss.NoColor{}
	return t
}

// Expose what renderers need
func Current() Theme { return current }

// Name of the active theme.
func Name() string { return themeName }
