package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorSecondary = lipgloss.Color("#06B6D4")
	ColorSuccess   = lipgloss.Color("#22C55E")
	ColorError     = lipgloss.Color("#EF4444")
	ColorText      = lipgloss.Color("#F8FAFC")
	ColorMuted     = lipgloss.Color("#94A3B8")
	ColorSubtle    = lipgloss.Color("#64748B")
)

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

const logoASCII = `
 _  _  ___ __  __ ___
( \/ )/ _ \\ \/ /|   \
 \  /( (_) ))  ( | |) |
  \/  \___//_/\_\|___/ `

func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}
