package ui

import "github.com/charmbracelet/lipgloss"

type Style struct {
	UserMessage      lipgloss.Style
	AssistantMessage lipgloss.Style
	ErrorMessage     lipgloss.Style
	Timestamp        lipgloss.Style

	Header         lipgloss.Style
	Sidebar        lipgloss.Style
	FocusedSidebar lipgloss.Style
	Input          lipgloss.Style
	FocusedInput   lipgloss.Style
	Prompt         lipgloss.Style
	Status         lipgloss.Style
}

type BorderColors struct {
	Unselected string
	Selected   string
	Focused    string
}

func DefaultStyles() *Style {
	lightModeColors := BorderColors{
		Unselected: "#CCCCCC",
		Selected:   "#FFB6C1", // Light pink
		Focused:    "#FFFF99", // Light yellow
	}

	darkModeColors := BorderColors{
		Unselected: "#444444",
		Selected:   "#DD7090", // Desaturated pink for dark mode
		Focused:    "#DDDD77", // Desaturated yellow for dark mode
	}

	unselected := lipgloss.AdaptiveColor{Light: lightModeColors.Unselected, Dark: darkModeColors.Unselected}
	selected := lipgloss.AdaptiveColor{Light: lightModeColors.Selected, Dark: darkModeColors.Selected}
	focused := lipgloss.AdaptiveColor{Light: lightModeColors.Focused, Dark: darkModeColors.Focused}

	return &Style{
		UserMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(selected),
		AssistantMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(unselected),
		ErrorMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.Color("#FF5555")).
			Foreground(lipgloss.Color("#FF5555")),
		Timestamp: lipgloss.NewStyle().Faint(true),

		Header: lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Sidebar: lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(unselected),
		FocusedSidebar: lipgloss.NewStyle().Border(lipgloss.ThickBorder(), false, true, false, false).
			BorderForeground(focused),
		Input: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			BorderForeground(unselected),
		FocusedInput: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			BorderForeground(focused),
		Prompt: lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Status: lipgloss.NewStyle().Faint(true).Padding(0, 1),
	}
}
