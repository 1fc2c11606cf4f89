package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mei-chen/beagle-sub000/internal/collection"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	cursorStyle   = lipgloss.NewStyle().Background(lipgloss.Color("236"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Strikethrough(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	detailStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	badgeColors = map[collection.Variant]lipgloss.Color{
		collection.VariantReady:      lipgloss.Color("42"),
		collection.VariantProcessing: lipgloss.Color("220"),
		collection.VariantFailed:     lipgloss.Color("196"),
		collection.VariantTimedOut:   lipgloss.Color("208"),
	}
)

var columnWidths = map[string]int{
	"title":   32,
	"owner":   14,
	"tags":    18,
	"status":  13,
	"created": 16,
}

func columnWidth(name string) int {
	if w, ok := columnWidths[name]; ok {
		return w
	}
	return 12
}
