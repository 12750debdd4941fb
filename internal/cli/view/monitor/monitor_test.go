package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
	"github.com/Kostaaa1/bililive/pkg/bilibili/live"
)

var (
	one = event.Room{UID: 1, Name: "one", RoomNumber: 10}
	two = event.Room{UID: 2, Name: "two", RoomNumber: 20}
	at  = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
)

type fakeRooms struct {
	mu      sync.Mutex
	added   []uint64
	removed []uint64
}

func (f *fakeRooms) AddByUID(_ context.Context, uid uint64) (event.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if uid == 404 {
		return event.Room{}, errors.New("no such user")
	}
	f.added = append(f.added, uid)
	return event.Room{UID: uid, Name: "new"}, nil
}

func (f *fakeRooms) Remove(uid uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, uid)
	return nil
}

func (f *fakeRooms) Status() []live.Status {
	return []live.Status{
		{Room: one, State: live.StateConnected.String(), Viewers: 1200},
		{Room: two, State: live.StateConnecting.String()},
	}
}

func newTestModel(t *testing.T) (model, *fakeRooms) {
	t.Helper()

	rooms := &fakeRooms{}
	m := newModel(context.Background(), rooms, make(chan event.Event), DefaultTheme())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(model), rooms
}

func update(m model, msg tea.Msg) (model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestStatusOpensTabs(t *testing.T) {
	t.Parallel()

	m, rooms := newTestModel(t)
	m, _ = update(m, statusMsg(rooms.Status()))

	require.Len(t, m.tabs, 2)
	require.True(t, m.tabs[0].active)
	require.Equal(t, "connected", m.tabs[0].state)
	require.Equal(t, uint32(1200), m.tabs[0].viewers)
	require.Equal(t, "connecting", m.tabs[1].state)

	m.nextTab()
	require.Equal(t, uint64(2), m.activeTab().room.UID)
	m.nextTab()
	require.Equal(t, uint64(1), m.activeTab().room.UID)
	m.prevTab()
	require.Equal(t, uint64(2), m.activeTab().room.UID)

	m.moveTabBack()
	require.Equal(t, uint64(2), m.tabs[0].room.UID)
	require.True(t, m.tabs[0].active)

	require.NotEmpty(t, m.View())
}

func TestEventsAppendToRoomTab(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	chat := event.Chat{
		Header: event.Header{Source: one, Timestamp: at},
		Sender: event.User{UID: 7, Name: "viewer"},
		Text:   "hello there",
	}
	m, cmd := update(m, eventMsg{chat})
	require.NotNil(t, cmd)

	m, _ = update(m, eventMsg{event.Like{Header: event.Header{Source: one, Timestamp: at}}})
	m, _ = update(m, eventMsg{event.NewDisconnected(two, at)})

	require.Len(t, m.tabs, 2)
	tab := m.tab(1)
	require.Equal(t, 2, tab.events)
	require.Len(t, tab.lines, 2, "likes are counted but not shown")
	require.Contains(t, tab.lines[1], "hello there")
	require.Contains(t, tab.lines[1], "12:30:00")
	require.Equal(t, "closed", m.tab(2).state)
}

func TestCommands(t *testing.T) {
	t.Parallel()

	m, rooms := newTestModel(t)
	m, _ = update(m, statusMsg(rooms.Status()))

	m.input.SetValue("/add 42")
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Empty(t, m.input.Value())

	msg := runCmd(cmd)
	require.Equal(t, noticeMsg("watching new(42)"), msg)
	require.Equal(t, []uint64{42}, rooms.added)

	m.input.SetValue("/add 404")
	_, cmd = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, noticeMsg("no such user"), runCmd(cmd))

	m.input.SetValue("/drop 1")
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, "invalid command: /drop 1", m.notice)

	m, cmd = update(m, tea.KeyMsg{Type: tea.KeyCtrlW})
	msg = runCmd(cmd)
	require.Equal(t, roomRemoved(1), msg)
	require.Equal(t, []uint64{1}, rooms.removed)

	m, _ = update(m, msg)
	require.Len(t, m.tabs, 1)
	require.True(t, m.tabs[0].active)
}

func TestNoticeClears(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	m, _ = update(m, noticeMsg("first"))
	m, _ = update(m, noticeMsg("second"))

	m, _ = update(m, clearNotice{id: 1})
	require.Equal(t, "second", m.notice)
	m, _ = update(m, clearNotice{id: 2})
	require.Empty(t, m.notice)
}

// runCmd unwraps batches and returns the first message that is not a
// textarea blink or tick.
func runCmd(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			switch m := c().(type) {
			case noticeMsg, roomRemoved:
				return m
			}
		}
		return nil
	}
	return msg
}

func TestLineFormatting(t *testing.T) {
	t.Parallel()

	s := newStyles(DefaultTheme())
	h := event.Header{Source: one, Timestamp: at}
	sender := event.User{UID: 7, Name: "viewer", Medal: &event.Medal{Name: "fans", Level: 12}}

	tests := []struct {
		name string
		e    event.Event
		want []string
	}{
		{"paid gift", event.PaidGift{Header: h, Sender: sender, Gift: event.Gift{Name: "rocket", Price: 500, Count: 2}}, []string{"viewer", "rocket x2", "¥1,000", "[fans 12]"}},
		{"super chat", event.SuperChat{Header: h, Sender: sender, Text: "hi", Value: 30}, []string{"[SC ¥30]", "hi"}},
		{"membership", event.Membership{Header: h, Sender: sender, Tier: event.GuardCaptain, Op: event.OpActivate, Count: 1, Unit: "month", Price: 198}, []string{"activate captain x1 month", "¥198"}},
		{"like count", event.LikeCount{Header: h, Count: 12345}, []string{"12,345 likes"}},
		{"live end", event.LiveEnd{Header: h}, []string{"stream ended"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := s.line(tt.e, 0)
			for _, w := range tt.want {
				require.Contains(t, line, w)
			}
		})
	}

	require.Empty(t, s.line(event.Like{Header: h, Sender: sender}, 0))
}
