// Package ui provides terminal styling for wg CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/steveyegge/workgraph/internal/types"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)

	// CategoryStyle for section headers
	CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Node status icons, with ASCII fallbacks for non-emoji output.
var statusIcons = map[types.Status][2]string{
	types.StatusLocked:     {"🔒", "#"},
	types.StatusOpen:       {"○", "o"},
	types.StatusInProgress: {"◐", "~"},
	types.StatusDone:       {"✓", "x"},
}

// Tree characters for hierarchical display
const (
	TreeChild  = "├─ "
	TreeLast   = "└─ "
	TreePipe   = "│  "
	TreeIndent = "   "
)

// SeparatorLight is the default section rule.
const SeparatorLight = "──────────────────────────────────────────"

func statusStyle(s types.Status) lipgloss.Style {
	switch s {
	case types.StatusDone:
		return PassStyle
	case types.StatusInProgress:
		return WarnStyle
	case types.StatusLocked:
		return MutedStyle
	default:
		return AccentStyle
	}
}

// StatusIcon returns the glyph for a node status.
func StatusIcon(s types.Status) string {
	icons, ok := statusIcons[s]
	if !ok {
		return "?"
	}
	if ShouldUseEmoji() {
		return icons[0]
	}
	return icons[1]
}

// RenderStatus renders a node status in its color, e.g. "in_progress" in yellow.
func RenderStatus(s types.Status) string {
	return statusStyle(s).Render(string(s))
}

// RenderStatusIcon renders the icon of a node status in its color.
func RenderStatusIcon(s types.Status) string {
	return statusStyle(s).Render(StatusIcon(s))
}

// RenderInstanceStatus renders the aggregate status of an instance.
func RenderInstanceStatus(s types.InstanceStatus) string {
	if s == types.InstanceCompleted {
		return PassStyle.Render(string(s))
	}
	return AccentStyle.Render(string(s))
}

// RenderPass renders text with pass (green) styling
func RenderPass(s string) string {
	return PassStyle.Render(s)
}

// RenderWarn renders text with warning (yellow) styling
func RenderWarn(s string) string {
	return WarnStyle.Render(s)
}

// RenderFail renders text with fail (red) styling
func RenderFail(s string) string {
	return FailStyle.Render(s)
}

// RenderMuted renders text with muted (gray) styling
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// RenderAccent renders text with accent (blue) styling
func RenderAccent(s string) string {
	return AccentStyle.Render(s)
}

// RenderCategory renders a category header in uppercase with accent color
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// RenderProgress renders "done/total" with a colored fraction.
func RenderProgress(done, total int) string {
	style := WarnStyle
	switch {
	case total > 0 && done == total:
		style = PassStyle
	case done == 0:
		style = MutedStyle
	}
	return style.Render(strconv.Itoa(done) + "/" + strconv.Itoa(total))
}

// Truncate shortens s to maxLen runes, ending with "...".
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
