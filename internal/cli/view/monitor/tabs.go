package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
	"github.com/Kostaaa1/bililive/pkg/bilibili/live"
)

const maxLines = 200

type tab struct {
	room    event.Room
	state   string
	since   time.Time
	viewers uint32
	events  int
	lines   []string
	active  bool
}

func (t *tab) title() string {
	if t.room.Name != "" {
		return t.room.Name
	}
	return fmt.Sprintf("%d", t.room.RoomNumber)
}

func (t *tab) append(line string) {
	if len(t.lines) >= maxLines {
		t.lines = t.lines[1:]
	}
	t.lines = append(t.lines, line)
}

func (t *tab) content() string {
	return strings.Join(t.lines, "\n")
}

func (m *model) tab(uid uint64) *tab {
	for i := range m.tabs {
		if m.tabs[i].room.UID == uid {
			return &m.tabs[i]
		}
	}
	return nil
}

func (m *model) activeTab() *tab {
	for i := range m.tabs {
		if m.tabs[i].active {
			return &m.tabs[i]
		}
	}
	return nil
}

func (m *model) activeIndex() int {
	for i := range m.tabs {
		if m.tabs[i].active {
			return i
		}
	}
	return -1
}

// openTab returns the tab for room, creating it when missing. The first tab
// becomes active.
func (m *model) openTab(room event.Room) *tab {
	if t := m.tab(room.UID); t != nil {
		if room.Name != "" {
			t.room = room
		}
		return t
	}
	m.tabs = append(m.tabs, tab{
		room:   room,
		active: len(m.tabs) == 0,
		lines:  []string{m.styles.faint.Render(fmt.Sprintf("Watching %s", room))},
	})
	t := &m.tabs[len(m.tabs)-1]
	if t.active {
		m.refresh()
	}
	return t
}

func (m *model) closeTab(uid uint64) {
	idx := -1
	for i := range m.tabs {
		if m.tabs[i].room.UID == uid {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	wasActive := m.tabs[idx].active
	m.tabs = append(m.tabs[:idx], m.tabs[idx+1:]...)
	if wasActive && len(m.tabs) > 0 {
		m.tabs[min(idx, len(m.tabs)-1)].active = true
	}
	m.refresh()
}

func (m *model) focus(next int) {
	if len(m.tabs) == 0 {
		return
	}
	cur := max(m.activeIndex(), 0)
	m.tabs[cur].active = false
	next = (next%len(m.tabs) + len(m.tabs)) % len(m.tabs)
	m.tabs[next].active = true
	m.refresh()
}

func (m *model) nextTab() {
	m.focus(m.activeIndex() + 1)
}

func (m *model) prevTab() {
	m.focus(m.activeIndex() - 1)
}

func (m *model) moveTabForward() {
	i := m.activeIndex()
	if i < 0 || i == len(m.tabs)-1 {
		return
	}
	m.tabs[i], m.tabs[i+1] = m.tabs[i+1], m.tabs[i]
}

func (m *model) moveTabBack() {
	i := m.activeIndex()
	if i <= 0 {
		return
	}
	m.tabs[i], m.tabs[i-1] = m.tabs[i-1], m.tabs[i]
}

func (m *model) syncStatus(status []live.Status) {
	for _, st := range status {
		t := m.openTab(st.Room)
		t.state = st.State
		t.since = st.Since
		t.viewers = st.Viewers
	}
}

func (m *model) refresh() {
	t := m.activeTab()
	if t == nil {
		m.viewport.SetContent(m.styles.faint.Render("No rooms. Use '/add <uid>' to watch one."))
		return
	}
	m.viewport.SetContent(t.content())
	m.viewport.GotoBottom()
}
