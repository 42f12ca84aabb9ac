// Package ui provides terminal styling and confirmation prompts for fpw CLI
// output. Colors follow the Ayu theme with adaptive light/dark support.
package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fpw-project/fpw/internal/types"
)

// Ayu theme color palette
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// BannerStyle frames warnings that need the operator's attention.
var BannerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorFail).Border(lipgloss.RoundedBorder()).BorderForeground(ColorFail).Padding(0, 1)

// Status icons
const (
	IconPass    = "✓"
	IconWarn    = "⚠"
	IconFail    = "✗"
	IconPending = "○"
	IconActive  = "●"
	IconInfo    = "ℹ"
)

// SeparatorLight is a horizontal rule for section breaks.
const SeparatorLight = "──────────────────────────────────────────"

func RenderPass(s string) string { return PassStyle.Render(s) }
func RenderWarn(s string) string { return WarnStyle.Render(s) }
func RenderFail(s string) string { return FailStyle.Render(s) }
func RenderMuted(s string) string { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderHeader renders a section header in uppercase.
func RenderHeader(s string) string {
	return HeaderStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color.
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// RenderProcessing renders a processing status with its semantic color.
func RenderProcessing(s types.ProcessingStatus) string {
	switch s {
	case types.ProcessingProcessed:
		return RenderPass(string(s))
	case types.ProcessingQueued, types.ProcessingProcessing:
		return RenderAccent(string(s))
	case types.ProcessingError:
		return RenderFail(string(s))
	}
	return RenderMuted(string(s))
}

// RenderAuthorization renders an authorization status with its icon.
func RenderAuthorization(s types.AuthorizationStatus) string {
	switch s {
	case types.AuthApproved:
		return RenderPass(IconPass + " " + string(s))
	case types.AuthDenied:
		return RenderFail(IconFail + " " + string(s))
	case types.AuthPending:
		return RenderWarn(IconPending + " " + string(s))
	}
	return RenderMuted(string(s))
}

// RenderSteps renders the workflow steps in order, marking completed ones
// and highlighting the current step.
func RenderSteps(current types.WorkflowStep, completed func(types.WorkflowStep) bool) string {
	parts := make([]string, 0, len(types.AllSteps))
	for _, step := range types.AllSteps {
		switch {
		case step == current:
			parts = append(parts, RenderAccent(IconActive+" "+string(step)))
		case completed(step):
			parts = append(parts, RenderPass(IconPass+" "+string(step)))
		default:
			parts = append(parts, RenderMuted(IconPending+" "+string(step)))
		}
	}
	return strings.Join(parts, RenderMuted(" → "))
}

// RenderDegradedBanner renders the connectivity warning shown while polling
// is failing.
func RenderDegradedBanner(errorCount int, lastErr string) string {
	msg := IconWarn + " Connection problems: " + strconv.Itoa(errorCount) + " consecutive refreshes failed."
	if lastErr != "" {
		msg += "\n" + lastErr
	}
	msg += "\nData shown may be stale. Press r to retry."
	return BannerStyle.Render(msg)
}
