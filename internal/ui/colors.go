package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Default is the stock palette, using the Spotify green for success.
var Default = NewPalette("#7D56F4", "#1DB954", "#E22134", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string    { return p.ok.Render("✓ " + s) }
func (p *Palette) Err(s string) string   { return p.err.Render("✗ " + s) }
func (p *Palette) Warn(s string) string  { return p.warn.Render("! " + s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }

func Title(s string) string { return Default.Title(s) }
func OK(s string) string    { return Default.OK(s) }
func Err(s string) string   { return Default.Err(s) }
func Warn(s string) string  { return Default.Warn(s) }
func Help(s string) string  { return Default.Help(s) }

// PresenceBadge renders a presence value ("present", "absent", "loading").
func PresenceBadge(presence string) string {
	switch presence {
	case "present":
		return Default.OK("signed in")
	case "absent":
		return Default.Err("signed out")
	default:
		return Default.Warn(presence)
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
