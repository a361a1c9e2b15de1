package main

import (
	"fmt"
	"strings"

	"codeberg.org/mutker/lightsync/internal/led"
	"codeberg.org/mutker/lightsync/internal/visual"
	"github.com/charmbracelet/lipgloss"
)

var (
	primaryColor = lipgloss.Color("#00A3FF")
	mutedColor   = lipgloss.Color("#888888")
	textColor    = lipgloss.Color("#FFFFFF")
	errorColor   = lipgloss.Color("#D70000")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	keyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)
)

// renderStatus styles the "Key: value" lines of a driver status report.
func renderStatus(report string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("LED status"))
	b.WriteString("\n")

	for _, line := range strings.Split(report, "\n") {
		if key, value, ok := strings.Cut(line, ": "); ok {
			fmt.Fprintf(&b, "%s %s\n", keyStyle.Render(key+":"), valueStyle.Render(value))
			continue
		}
		fmt.Fprintf(&b, "  %s\n", valueStyle.Render(strings.TrimPrefix(line, "- ")))
	}

	return b.String()
}

func printStatus(report string) {
	fmt.Print(renderStatus(report))
}

// renderList shows the modes, effects and preset colors accepted on the
// command line. Preset names are drawn in their own color.
func renderList() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Modes"))
	b.WriteString("\n")
	for _, m := range visual.Modes() {
		fmt.Fprintf(&b, "  %s\n", valueStyle.Render(m.String()))
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Effects"))
	b.WriteString("\n")
	for _, p := range led.Patterns() {
		fmt.Fprintf(&b, "  %s %s\n", valueStyle.Render(p.String()), keyStyle.Render(fmt.Sprintf("(%d)", p.Code())))
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Colors"))
	b.WriteString("\n")
	for _, p := range led.PresetColors {
		swatch := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#" + p.Color.Hex()))
		fmt.Fprintf(&b, "  %s %s\n", swatch.Render(p.Name), keyStyle.Render(p.Color.Hex()))
	}

	return b.String()
}

func printList() {
	fmt.Print(renderList())
}
