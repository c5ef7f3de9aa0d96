// Package ui holds the terminal styles used by command output.
//
// A [Palette] is a small stylesheet of [lipgloss.Style] values. [Default] is the stock palette and the
// helpers ([Title], [OK], [Err], [Warn], [Help]) render with it. [PresenceBadge] formats the session
// presence signal for the status command.
package ui
