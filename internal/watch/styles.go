package watch

import "github.com/charmbracelet/lipgloss"

// Dark broadcast palette
var (
	Primary   = lipgloss.Color("#FF6B35")
	Secondary = lipgloss.Color("#1E88E5")
	Success   = lipgloss.Color("#4CAF50")
	Warning   = lipgloss.Color("#FFB74D")
	Error     = lipgloss.Color("#F44336")

	Text       = lipgloss.Color("#E0E0E0")
	TextBright = lipgloss.Color("#FFFFFF")
	Muted      = lipgloss.Color("#90A4AE")

	PanelBg    = lipgloss.Color("#161B26")
	HeaderBg   = lipgloss.Color("#1C2128")
	BorderDark = lipgloss.Color("#30363D")
	OnAir      = lipgloss.Color("#FF1744")
	Offline    = lipgloss.Color("#424242")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(TextBright).
			Background(HeaderBg).
			Padding(0, 2).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderDark).
			Foreground(Text).
			Padding(0, 1)

	PanelTitleStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Muted)

	ValueStyle = lipgloss.NewStyle().
			Foreground(TextBright).
			Bold(true)

	LiveStyle = lipgloss.NewStyle().
			Foreground(OnAir).
			Bold(true)

	IdleStyle = lipgloss.NewStyle().
			Foreground(Offline).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)
)

// StatusBadge renders the feed state shown in the header.
func StatusBadge(live bool) string {
	if live {
		return LiveStyle.Render("● LIVE")
	}
	return IdleStyle.Render("○ IDLE")
}

// ConfidenceStyle colors a confidence value by band.
func ConfidenceStyle(pr float64) lipgloss.Style {
	switch {
	case pr >= 0.7:
		return SuccessStyle
	case pr >= 0.4:
		return WarningStyle
	default:
		return ErrorStyle
	}
}
