package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

type fakeResolver struct {
	rooms map[uint64]event.Room
}

func (f *fakeResolver) ResolveUID(_ context.Context, uid uint64) (event.Room, error) {
	room, ok := f.rooms[uid]
	if !ok {
		return event.Room{}, errors.New("unknown uid")
	}
	return room, nil
}

func (f *fakeResolver) ResolveRoomNumber(_ context.Context, n uint64) (event.Room, error) {
	for _, room := range f.rooms {
		if room.RoomNumber == n {
			return room, nil
		}
	}
	return event.Room{}, errors.New("unknown room")
}

func newTestRegistry(t *testing.T, interval time.Duration, sink event.Sink) (*Registry, *Queue) {
	t.Helper()

	opts := testOptions()
	opts.ConnectInterval = interval
	q := NewQueue(interval, zerolog.Nop(), nil)
	resolver := &fakeResolver{rooms: map[uint64]event.Room{
		1: {UID: 1, Name: "one", RoomNumber: 10},
		2: {UID: 2, Name: "two", RoomNumber: 20},
		3: {UID: 3, Name: "three", RoomNumber: 30},
		4: {UID: 4, Name: "offline"},
	}}
	r := NewRegistry(q, resolver, opts, Deps{Platform: &fakePlatform{}, Dialer: &fakeDialer{}, Sink: sink})
	return r, q
}

func TestRegistryConnectsRoomsInOrder(t *testing.T) {
	t.Parallel()

	sink := &recorder{}
	r, q := newTestRegistry(t, 100*time.Millisecond, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	for uid := uint64(1); uid <= 3; uid++ {
		_, err := r.AddByUID(ctx, uid)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return sink.count(event.KindConnected) == 3 }, 3*time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	order := make([]uint64, 0, 3)
	for _, e := range sink.events {
		order = append(order, e.Room().UID)
	}
	sink.mu.Unlock()
	require.Equal(t, []uint64{1, 2, 3}, order)

	for _, st := range r.Status() {
		require.Equal(t, StateConnected.String(), st.State)
	}

	r.Close()
	require.Empty(t, r.Rooms())
	require.Equal(t, 3, sink.count(event.KindDisconnected))
}

func TestRegistryAddErrors(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t, time.Hour, event.Discard)
	ctx := context.Background()

	_, err := r.AddByUID(ctx, 4)
	require.ErrorIs(t, err, ErrNoLiveRoom)

	room, err := r.AddByRoomNumber(ctx, 20)
	require.NoError(t, err)
	require.Equal(t, uint64(2), room.UID)

	_, err = r.AddByUID(ctx, 2)
	require.ErrorIs(t, err, ErrRoomExists)

	_, err = r.AddByUID(ctx, 99)
	require.Error(t, err)

	require.Equal(t, []event.Room{{UID: 2, Name: "two", RoomNumber: 20}}, r.Rooms())
}

func TestRegistryRemovePendingRoom(t *testing.T) {
	t.Parallel()

	sink := &recorder{}
	r, q := newTestRegistry(t, time.Hour, sink)

	require.NoError(t, r.Add(event.Room{UID: 1, RoomNumber: 10}))
	require.NoError(t, r.Add(event.Room{UID: 2, RoomNumber: 20}))
	require.Equal(t, 2, q.Len())

	require.NoError(t, r.RemoveByRoomNumber(20))
	require.Equal(t, 1, q.Len())
	require.ErrorIs(t, r.Remove(2), ErrRoomNotFound)
	require.ErrorIs(t, r.RemoveByRoomNumber(20), ErrRoomNotFound)

	_, ok := r.Get(2)
	require.False(t, ok)
	require.Zero(t, sink.count(event.KindDisconnected), "a room that never connected is dropped silently")

	// the room can be registered again afterwards
	require.NoError(t, r.Add(event.Room{UID: 2, RoomNumber: 20}))
	require.Equal(t, 2, q.Len())
}

func TestRegistryRemoveConnectedRoom(t *testing.T) {
	t.Parallel()

	sink := &recorder{}
	r, q := newTestRegistry(t, 5*time.Millisecond, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	require.NoError(t, r.Add(event.Room{UID: 1, RoomNumber: 10}))
	require.Eventually(t, func() bool { return sink.count(event.KindConnected) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, r.Remove(1))
	require.Equal(t, 1, sink.count(event.KindDisconnected))
	require.Empty(t, r.Status())
}
