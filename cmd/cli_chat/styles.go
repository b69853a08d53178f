package main

import "github.com/charmbracelet/lipgloss"

const (
	sidebarWidth  = 30
	headerHeight  = 1
	footerHeight  = 3
	minBodyHeight = 3
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	accentColor  = lipgloss.Color("#06B6D4")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	textColor    = lipgloss.Color("#F9FAFB")
	borderColor  = lipgloss.Color("#4B5563")

	titleStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(textColor).
			Bold(true).
			Padding(0, 1)

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(borderColor).
			Width(sidebarWidth)

	chatItemStyle   = lipgloss.NewStyle().Foreground(mutedColor).PaddingLeft(1)
	activeChatStyle = lipgloss.NewStyle().Foreground(textColor).Bold(true).PaddingLeft(1)

	userLabelStyle      = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	assistantLabelStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	messageStyle        = lipgloss.NewStyle().PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	noticeStyle = lipgloss.NewStyle().Foreground(errorColor)
	helpStyle   = lipgloss.NewStyle().Foreground(mutedColor)
)
