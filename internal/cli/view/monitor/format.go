package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

type styles struct {
	faint  lipgloss.Style
	name   lipgloss.Style
	gift   lipgloss.Style
	guard  lipgloss.Style
	super  lipgloss.Style
	system lipgloss.Style
	danger lipgloss.Style
}

func newStyles(th Theme) styles {
	return styles{
		faint:  lipgloss.NewStyle().Faint(true),
		name:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(th.Chat)),
		gift:   lipgloss.NewStyle().Foreground(lipgloss.Color(th.Gift)),
		guard:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(th.Guard)),
		super:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(th.Super)),
		system: lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color(th.System)),
		danger: lipgloss.NewStyle().Foreground(lipgloss.Color(th.Danger)),
	}
}

func (s styles) user(u event.User) string {
	var b strings.Builder
	if u.Medal != nil && u.Medal.Name != "" {
		b.WriteString(s.faint.Render(fmt.Sprintf("[%s %d] ", u.Medal.Name, u.Medal.Level)))
	}
	name := u.Name
	if name == "" {
		name = fmt.Sprintf("%d", u.UID)
	}
	if u.Guard != nil && u.Guard.Level != event.GuardNone {
		return b.String() + s.guard.Render(name)
	}
	return b.String() + s.name.Render(name)
}

func money(v float64) string {
	return "¥" + humanize.CommafWithDigits(v, 2)
}

// line renders e as one display line, or "" for events the monitor skips.
func (s styles) line(e event.Event, width int) string {
	var body string
	switch v := e.(type) {
	case event.Connected:
		body = s.system.Render("connected")
	case event.Disconnected:
		body = s.danger.Render("disconnected")
	case event.LiveStart:
		body = s.system.Render("stream started")
	case event.LiveEnd:
		body = s.system.Render("stream ended")
	case event.EnterRoom:
		body = s.faint.Render(v.Sender.Name + " entered")
	case event.Follow:
		body = s.user(v.Sender) + s.system.Render(" followed")
	case event.Share:
		body = s.user(v.Sender) + s.system.Render(" shared the room")
	case event.Chat:
		body = s.user(v.Sender) + ": " + v.Text
	case event.Emote:
		body = s.user(v.Sender) + ": " + s.faint.Render(v.Emoticon.Label)
	case event.FreeGift:
		body = s.user(v.Sender) + s.faint.Render(fmt.Sprintf(" sent %s x%d", v.Gift.Name, v.Gift.Count))
	case event.PaidGift:
		body = s.user(v.Sender) + s.gift.Render(fmt.Sprintf(" sent %s x%d (%s)", v.Gift.Name, v.Gift.Count, money(v.Gift.Price*float64(v.Gift.Count))))
	case event.BlindBoxGift:
		body = s.user(v.Sender) + s.gift.Render(fmt.Sprintf(" opened %s and got %s x%d", v.Original.Name, v.Gift.Name, v.Gift.Count))
	case event.Membership:
		body = s.user(v.Sender) + s.guard.Render(fmt.Sprintf(" %s %s x%d %s (%s)", v.Op, v.Tier, v.Count, v.Unit, money(v.Price)))
	case event.SuperChat:
		body = s.super.Render(fmt.Sprintf("[SC %s] ", money(v.Value))) + s.user(v.Sender) + ": " + v.Text
	case event.Like:
		return ""
	case event.LikeCount:
		body = s.faint.Render(humanize.Comma(int64(v.Count)) + " likes")
	default:
		return ""
	}

	ts := s.faint.Render(e.Time().Format("15:04:05"))
	out := ts + " " + body
	if width > 0 {
		out = lipgloss.NewStyle().Width(width).Render(out)
	}
	return out
}
