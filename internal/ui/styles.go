package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ngmaloney/weather-terminal/internal/models"
)

var (
	colorSky    = lipgloss.Color("#00BFFF")
	colorCloud  = lipgloss.Color("#87CEEB")
	colorStorm  = lipgloss.Color("#FF6B6B")
	colorSun    = lipgloss.Color("#FFD93D")
	colorClear  = lipgloss.Color("#6BCF7F")
	colorFog    = lipgloss.Color("#6C757D")
	colorWhite  = lipgloss.Color("#FFFFFF")
	colorOrange = lipgloss.Color("#FF8C42")
)

// Text
var (
	titleStyle         = lipgloss.NewStyle().Bold(true).Foreground(colorSky)
	headerStyle        = lipgloss.NewStyle().Bold(true).Foreground(colorSky).Padding(0, 1)
	sectionHeaderStyle = headerStyle.MarginTop(1)
	labelStyle         = lipgloss.NewStyle().Bold(true).Foreground(colorFog)
	valueStyle         = lipgloss.NewStyle().Foreground(colorWhite)
	temperatureStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorCloud)
	mutedStyle         = lipgloss.NewStyle().Foreground(colorFog)
	helpStyle          = mutedStyle.Padding(1, 0)
)

// Status line
var (
	successStyle = lipgloss.NewStyle().Foreground(colorClear)
	staleStyle   = lipgloss.NewStyle().Foreground(colorSun)
	statusStyle  = lipgloss.NewStyle().Italic(true).Foreground(colorCloud).Padding(0, 1)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorStorm).Padding(0, 2)
)

var searchBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#4A90E2")).
	Padding(1, 2).
	Width(64)

var alertStyles = map[models.AlertSeverity]lipgloss.Style{
	models.SeverityExtreme:  lipgloss.NewStyle().Bold(true).Foreground(colorStorm),
	models.SeveritySevere:   lipgloss.NewStyle().Bold(true).Foreground(colorOrange),
	models.SeverityModerate: lipgloss.NewStyle().Bold(true).Foreground(colorSun),
	models.SeverityMinor:    lipgloss.NewStyle().Foreground(colorClear),
}

// alertStyle colors an alert headline by severity.
func alertStyle(severity models.AlertSeverity) lipgloss.Style {
	if s, ok := alertStyles[severity]; ok {
		return s
	}
	return valueStyle
}
