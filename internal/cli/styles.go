package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
)

// Success prints a ✓ line.
func (c *Context) Success(format string, args ...any) {
	c.Println(okStyle.Render("✓") + " " + fmt.Sprintf(format, args...))
}

// Failure prints a ❌ line.
func (c *Context) Failure(format string, args ...any) {
	c.Println(failStyle.Render("❌") + " " + fmt.Sprintf(format, args...))
}

// Warning prints a ⚠ line.
func (c *Context) Warning(format string, args ...any) {
	c.Println(warnStyle.Render("⚠") + " " + fmt.Sprintf(format, args...))
}

// Skipped prints a ⊘ line.
func (c *Context) Skipped(format string, args ...any) {
	c.Println(mutedStyle.Render("⊘ " + fmt.Sprintf(format, args...)))
}

// Muted renders secondary text.
func Muted(s string) string { return mutedStyle.Render(s) }

// Title renders a section heading.
func Title(s string) string { return titleStyle.Render(s) }
