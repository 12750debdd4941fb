package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
	"github.com/Kostaaa1/bililive/pkg/bilibili/live"
)

const (
	statusInterval = time.Second
	noticeTTL      = 3 * time.Second
	footerHeight   = 2
	helpWidth      = 32
)

// Rooms is the registry surface the monitor drives.
type Rooms interface {
	AddByUID(ctx context.Context, uid uint64) (event.Room, error)
	Remove(uid uint64) error
	Status() []live.Status
}

type (
	eventMsg     struct{ event.Event }
	eventsClosed struct{}
	statusMsg    []live.Status
	noticeMsg    string
	clearNotice  struct{ id int }
	roomRemoved  uint64
)

type model struct {
	ctx    context.Context
	rooms  Rooms
	events <-chan event.Event

	viewport viewport.Model
	input    textarea.Model
	box      box
	styles   styles

	tabs     []tab
	width    int
	height   int
	showHelp bool
	notice   string
	noticeID int
}

func newModel(ctx context.Context, rooms Rooms, events <-chan event.Event, th Theme) model {
	vp := viewport.New(0, 0)

	t := textarea.New()
	t.CharLimit = 64
	t.Placeholder = "/add <uid> or /remove <uid>"
	t.Prompt = ""
	t.FocusedStyle.CursorLine = lipgloss.NewStyle()
	t.ShowLineNumbers = false
	t.SetHeight(1)
	t.KeyMap.InsertNewline.SetEnabled(false)
	t.Focus()

	m := model{
		ctx:      ctx,
		rooms:    rooms,
		events:   events,
		viewport: vp,
		input:    t,
		box:      newBox(th),
		styles:   newStyles(th),
	}
	m.refresh()
	return m
}

// Run shows one tab per watched room until the user quits or ctx is done.
func Run(ctx context.Context, rooms Rooms, events <-chan event.Event) error {
	p := tea.NewProgram(newModel(ctx, rooms, events, DefaultTheme()), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.pollStatus(0), textarea.Blink)
}

func (m model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return eventsClosed{}
		}
		return eventMsg{e}
	}
}

func (m model) pollStatus(after time.Duration) tea.Cmd {
	rooms := m.rooms
	if after <= 0 {
		return func() tea.Msg { return statusMsg(rooms.Status()) }
	}
	return tea.Tick(after, func(time.Time) tea.Msg {
		return statusMsg(rooms.Status())
	})
}

func (m *model) notify(text string) tea.Cmd {
	m.noticeID++
	m.notice = text
	id := m.noticeID
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return clearNotice{id: id} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width - 2
		m.height = msg.Height - 6
		m.viewport.Width = m.width
		m.viewport.Height = m.height - footerHeight
		m.input.SetWidth(m.width)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			cmd := m.submit()
			return m, tea.Batch(inputCmd, cmd)
		case tea.KeyCtrlRight:
			m.nextTab()
		case tea.KeyCtrlLeft:
			m.prevTab()
		case tea.KeyCtrlShiftRight:
			m.moveTabForward()
		case tea.KeyCtrlShiftLeft:
			m.moveTabBack()
		case tea.KeyCtrlW:
			if t := m.activeTab(); t != nil {
				return m, tea.Batch(inputCmd, m.remove(t.room.UID))
			}
		case tea.KeyTab:
			m.showHelp = !m.showHelp
		}

	case eventMsg:
		t := m.openTab(msg.Room())
		t.events++
		switch msg.Event.(type) {
		case event.Connected:
			t.state = live.StateConnected.String()
		case event.Disconnected:
			t.state = live.StateClosed.String()
		}
		if line := m.styles.line(msg.Event, m.viewport.Width); line != "" {
			t.append(line)
			if t.active {
				m.refresh()
			}
		}
		return m, m.waitForEvent()

	case eventsClosed:
		return m, tea.Quit

	case statusMsg:
		m.syncStatus(msg)
		return m, m.pollStatus(statusInterval)

	case roomRemoved:
		m.closeTab(uint64(msg))

	case noticeMsg:
		return m, m.notify(string(msg))

	case clearNotice:
		if msg.id == m.noticeID {
			m.notice = ""
		}
	}
	return m, inputCmd
}

func (m *model) submit() tea.Cmd {
	input := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if input == "" {
		return nil
	}

	fields := strings.Fields(input)
	if len(fields) != 2 {
		return m.notify(fmt.Sprintf("invalid command: %s", input))
	}
	uid, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return m.notify(fmt.Sprintf("invalid uid: %s", fields[1]))
	}

	switch fields[0] {
	case "/add":
		return m.add(uid)
	case "/remove":
		return m.remove(uid)
	default:
		return m.notify(fmt.Sprintf("invalid command: %s", input))
	}
}

func (m *model) add(uid uint64) tea.Cmd {
	ctx, rooms := m.ctx, m.rooms
	return func() tea.Msg {
		room, err := rooms.AddByUID(ctx, uid)
		if err != nil {
			return noticeMsg(err.Error())
		}
		return noticeMsg(fmt.Sprintf("watching %s", room))
	}
}

func (m *model) remove(uid uint64) tea.Cmd {
	rooms := m.rooms
	return func() tea.Msg {
		if err := rooms.Remove(uid); err != nil {
			return noticeMsg(err.Error())
		}
		return roomRemoved(uid)
	}
}

func (m model) View() string {
	if m.width == 0 {
		return ""
	}

	width := m.width
	if m.showHelp {
		width -= helpWidth
	}
	m.viewport.Width = width

	var b strings.Builder
	b.WriteString(m.box.setWidth(width).render(m.tabs, m.viewport.View()))
	b.WriteString(m.footer(width))
	if m.notice != "" {
		b.WriteString("\n" + m.styles.danger.Render(m.notice))
	}

	if !m.showHelp {
		return b.String()
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, b.String(), m.help(m.viewport.Height+footerHeight+4))
}

func (m model) footer(width int) string {
	status := m.styles.faint.Render("no room selected")
	if t := m.activeTab(); t != nil {
		parts := []string{
			fmt.Sprintf("[%s]", orDash(t.state)),
			fmt.Sprintf("room %d", t.room.RoomNumber),
			humanize.Comma(int64(t.viewers)) + " popularity",
			humanize.Comma(int64(t.events)) + " events",
		}
		if !t.since.IsZero() {
			parts = append(parts, "since "+humanize.Time(t.since))
		}
		status = m.styles.faint.Render(strings.Join(parts, "  "))
	}

	style := lipgloss.NewStyle().
		Width(width).
		Height(footerHeight).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.box.style.GetBorderTopForeground())

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, status, m.input.View()))
}

func (m model) help(height int) string {
	keys := [][2]string{
		{"ctrl+→ / ctrl+←", "switch room"},
		{"ctrl+shift+→/←", "move tab"},
		{"ctrl+w", "stop watching"},
		{"/add <uid>", "watch a room"},
		{"/remove <uid>", "stop a room"},
		{"tab", "toggle help"},
		{"esc", "quit"},
	}
	var lines []string
	for _, k := range keys {
		lines = append(lines, m.styles.name.Render(k[0]), "  "+k[1])
	}
	return lipgloss.NewStyle().
		Width(helpWidth-2).
		Height(height).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.box.style.GetBorderTopForeground()).
		Render(strings.Join(lines, "\n"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
