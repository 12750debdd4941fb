package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Kostaaa1/bililive/internal/store"
	"github.com/Kostaaa1/bililive/pkg/bilibili"
	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
	"github.com/Kostaaa1/bililive/pkg/bilibili/live"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeRegistry struct {
	mu    sync.Mutex
	rooms map[uint64]event.Room
	known map[uint64]event.Room
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		rooms: map[uint64]event.Room{},
		known: map[uint64]event.Room{
			1: {UID: 1, Name: "one", RoomNumber: 10},
			2: {UID: 2, Name: "offline"},
		},
	}
}

func (f *fakeRegistry) add(room event.Room) (event.Room, error) {
	if room.RoomNumber == 0 {
		return event.Room{}, fmt.Errorf("uid %d: %w", room.UID, bilibili.ErrNoLiveRoom)
	}
	if _, ok := f.rooms[room.UID]; ok {
		return event.Room{}, live.ErrRoomExists
	}
	f.rooms[room.UID] = room
	return room, nil
}

func (f *fakeRegistry) AddByUID(_ context.Context, uid uint64) (event.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.known[uid]
	if !ok {
		return event.Room{}, &bilibili.ResponseError{Code: -404, Message: "not found"}
	}
	return f.add(room)
}

func (f *fakeRegistry) AddByRoomNumber(_ context.Context, n uint64) (event.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, room := range f.known {
		if room.RoomNumber == n && n != 0 {
			return f.add(room)
		}
	}
	return event.Room{}, fmt.Errorf("room %d: %w", n, bilibili.ErrNetwork)
}

func (f *fakeRegistry) Remove(uid uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[uid]; !ok {
		return live.ErrRoomNotFound
	}
	delete(f.rooms, uid)
	return nil
}

func (f *fakeRegistry) Status() []live.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []live.Status
	for _, room := range f.rooms {
		out = append(out, live.Status{Room: room, State: live.StateConnected.String()})
	}
	return out
}

type fakeStore struct {
	mu    sync.Mutex
	saved map[uint64]event.Room
}

func (f *fakeStore) Save(_ context.Context, room event.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[room.UID] = room
	return nil
}

func (f *fakeStore) Delete(_ context.Context, uid uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.saved[uid]; !ok {
		return store.ErrNotFound
	}
	delete(f.saved, uid)
	return nil
}

func newTestServer() (*Server, *fakeRegistry, *fakeStore) {
	reg := newFakeRegistry()
	st := &fakeStore{saved: map[uint64]event.Room{}}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "bililive_up 1\n")
	})
	return New(Config{}, NewRooms(reg, st), metrics, zerolog.Nop()), reg, st
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestAddRoom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"by uid", `{"uid": 1}`, http.StatusCreated},
		{"by room number", `{"room_number": 10}`, http.StatusCreated},
		{"no live room", `{"uid": 2}`, http.StatusUnprocessableEntity},
		{"unknown uid", `{"uid": 99}`, http.StatusBadGateway},
		{"upstream down", `{"room_number": 77}`, http.StatusBadGateway},
		{"empty", `{}`, http.StatusBadRequest},
		{"malformed", `{"uid": "x"`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, _, st := newTestServer()
			w := do(t, s, http.MethodPost, "/rooms", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			if tt.status == http.StatusCreated {
				var room event.Room
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
				require.Equal(t, uint64(1), room.UID)
				require.Contains(t, st.saved, uint64(1))
			}
		})
	}
}

func TestAddRoomTwice(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer()
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/rooms", `{"uid": 1}`).Code)
	require.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/rooms", `{"uid": 1}`).Code)
}

func TestListAndRemoveRooms(t *testing.T) {
	t.Parallel()

	s, reg, st := newTestServer()
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/rooms", `{"uid": 1}`).Code)

	w := do(t, s, http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Rooms []live.Status `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Rooms, 1)
	require.Equal(t, "connected", list.Rooms[0].State)

	require.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/rooms/1", "").Code)
	require.Empty(t, reg.rooms)
	require.Empty(t, st.saved)

	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/rooms/1", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodDelete, "/rooms/abc", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer()

	w := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok","rooms":0}`, w.Body.String())
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "bililive_up 1")
}

func TestResponsesAreCompressed(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}
