package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type box struct {
	style lipgloss.Style
	label lipgloss.Style
	theme Theme
	width int
}

func newBox(th Theme) box {
	c := lipgloss.Color(th.Primary)
	return box{
		style: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(c).
			Padding(0),
		label: lipgloss.NewStyle().Padding(0),
		theme: th,
	}
}

func (b *box) setWidth(width int) *box {
	b.width = width
	return b
}

func (b *box) renderTab(t *tab, id int) string {
	border := lipgloss.Border{
		Top:         "─",
		Left:        "│",
		Right:       "│",
		TopLeft:     "╭",
		TopRight:    "╮",
		BottomLeft:  "│",
		BottomRight: "╰",
		Bottom:      "─",
	}

	switch {
	case t.active && id == 0:
		border.Bottom = " "
	case t.active:
		border.Bottom = " "
		border.BottomLeft = "╯"
	case id == 0:
		border.BottomLeft = "├"
		border.BottomRight = "┴"
	default:
		border.BottomLeft = "┴"
		border.BottomRight = "┴"
	}

	l := b.label.Border(border).
		BorderForeground(lipgloss.Color(b.theme.Primary)).
		Bold(true).
		Italic(true)
	if t.active {
		l = l.Foreground(lipgloss.Color(b.theme.Primary))
	}

	dot := lipgloss.NewStyle().Foreground(lipgloss.Color(b.theme.stateColor(t.state))).Render("●")
	return l.Render(fmt.Sprintf(" %s %s ", dot, t.title()))
}

// render draws content inside a box whose top border carries one tab per room.
func (b *box) render(tabs []tab, content string) string {
	styler := lipgloss.NewStyle().Foreground(b.style.GetBorderTopForeground()).Render
	border := b.style.GetBorderStyle()
	left, right := styler(border.TopLeft), styler(border.TopRight)

	width := lipgloss.Width(content)
	if b.width != 0 {
		width = b.width
	}

	var stack []string
	for i := range tabs {
		stack = append(stack, b.renderTab(&tabs[i], i))
	}
	labels := lipgloss.JoinHorizontal(lipgloss.Bottom, stack...)

	short := max(1, width+b.style.GetHorizontalBorderSize()-lipgloss.Width(left+right+labels))
	gap := styler(strings.Repeat(border.Top, short))

	var top string
	if len(stack) == 0 {
		top = "\n\n" + left + gap + right
	} else {
		top = labels + gap + styler(border.Top) + right
	}

	bottom := b.style.BorderTop(false).Width(width).Render(content)
	return top + "\n" + bottom + "\n"
}
