package style

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Primary = lipgloss.Color("#2563EB")
	Green   = lipgloss.Color("#10B981")
	Red     = lipgloss.Color("#EF4444")
	Yellow  = lipgloss.Color("#F59E0B")
	Dim     = lipgloss.Color("#6B7280")
	White   = lipgloss.Color("#F9FAFB")

	// Text styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Bold = lipgloss.NewStyle().Bold(true).Foreground(White)

	Healthy   = lipgloss.NewStyle().Foreground(Green).Bold(true)
	Unhealthy = lipgloss.NewStyle().Foreground(Red).Bold(true)
	Warning   = lipgloss.NewStyle().Foreground(Yellow)
	DimText   = lipgloss.NewStyle().Foreground(Dim)

	// Status indicators
	DotHealthy   = Healthy.Render("●")
	DotUnhealthy = Unhealthy.Render("●")
	DotWarning   = Warning.Render("●")
	DotDim       = DimText.Render("●")

	// Table
	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			BorderBottom(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(Dim)

	// Key-value
	Key = lipgloss.NewStyle().Foreground(Dim).Width(18)
	Val = lipgloss.NewStyle().Foreground(White)
)

// RateDot maps a success rate to a health indicator. Rates come from days
// with at least one call; pass hasData=false for empty days.
func RateDot(rate float64, hasData bool) string {
	switch {
	case !hasData:
		return DotDim
	case rate >= 0.9:
		return DotHealthy
	case rate >= 0.5:
		return DotWarning
	default:
		return DotUnhealthy
	}
}

func OnOff(on bool) string {
	if on {
		return Healthy.Render("active")
	}
	return DimText.Render("inactive")
}
