package display

import (
	"github.com/charmbracelet/lipgloss"

	"modelfetch/pkg/download"
)

// Theme defines colors and symbols for terminal output using lipgloss.
type Theme struct {
	Bold   lipgloss.Style
	Cyan   lipgloss.Style
	Green  lipgloss.Style
	Yellow lipgloss.Style
	Dim    lipgloss.Style
	Red    lipgloss.Style

	Bullet  string
	Arrow   string
	BoxTree string
	BoxLast string
	BoxItem string

	IconDownload string
	IconCatalog  string
	IconScript   string
	IconHelp     string
}

func DefaultTheme() *Theme {
	return &Theme{
		Bold:   lipgloss.NewStyle().Bold(true),
		Cyan:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		Green:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Yellow: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Dim:    lipgloss.NewStyle().Faint(true),
		Red:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		Bullet:  "•",
		Arrow:   "→",
		BoxTree: "├──",
		BoxLast: "└──",
		BoxItem: "│  ",

		IconDownload: "📥",
		IconCatalog:  "📚",
		IconScript:   "🧩",
		IconHelp:     "💡",
	}
}

func (t *Theme) Styled(style lipgloss.Style, text string) string {
	return style.Render(text)
}

// StatusStyle picks the color for a record status.
func (t *Theme) StatusStyle(s download.Status) lipgloss.Style {
	switch s {
	case download.StatusCompleted:
		return t.Green
	case download.StatusExists:
		return t.Cyan
	case download.StatusError:
		return t.Red
	case download.StatusInProgress:
		return t.Yellow
	default:
		return t.Dim
	}
}

// GeneralStyle picks the color for a batch status.
func (t *Theme) GeneralStyle(s download.GeneralStatus) lipgloss.Style {
	switch s {
	case download.GeneralCompleted:
		return t.Green
	case download.GeneralError, download.GeneralCancelled:
		return t.Red
	case download.GeneralInProgress:
		return t.Yellow
	default:
		return t.Dim
	}
}
