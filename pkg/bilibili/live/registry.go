package live

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Kostaaa1/bililive/internal/logger"
	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

// RoomResolver turns a streamer uid or a room number into a Room.
type RoomResolver interface {
	ResolveUID(ctx context.Context, uid uint64) (event.Room, error)
	ResolveRoomNumber(ctx context.Context, roomNumber uint64) (event.Room, error)
}

// Registry is the set of watched rooms and their connectors.
type Registry struct {
	queue    *Queue
	resolver RoomResolver
	opts     Options
	deps     Deps
	logger   zerolog.Logger

	mu         sync.Mutex
	rooms      map[uint64]event.Room
	byNumber   map[uint64]uint64
	connectors map[uint64]*Connector
}

func NewRegistry(queue *Queue, resolver RoomResolver, opts Options, deps Deps) *Registry {
	return &Registry{
		queue:      queue,
		resolver:   resolver,
		opts:       opts,
		deps:       deps,
		logger:     deps.Logger,
		rooms:      make(map[uint64]event.Room),
		byNumber:   make(map[uint64]uint64),
		connectors: make(map[uint64]*Connector),
	}
}

func (r *Registry) requeue(c *Connector) bool {
	r.mu.Lock()
	current, ok := r.connectors[c.room.UID]
	r.mu.Unlock()
	if !ok || current != c {
		return false
	}
	return r.queue.Enqueue(c)
}

// Add registers room and queues its connector.
func (r *Registry) Add(room event.Room) error {
	if room.RoomNumber == 0 {
		return fmt.Errorf("uid %d: %w", room.UID, ErrNoLiveRoom)
	}

	r.mu.Lock()
	if _, ok := r.rooms[room.UID]; ok {
		r.mu.Unlock()
		r.logger.Warn().Uint64(logger.FieldUID, room.UID).Msg("room already registered")
		return fmt.Errorf("uid %d: %w", room.UID, ErrRoomExists)
	}
	c := NewConnector(room, r.opts, r.deps, r.requeue)
	r.rooms[room.UID] = room
	r.byNumber[room.RoomNumber] = room.UID
	r.connectors[room.UID] = c
	r.mu.Unlock()

	r.queue.Enqueue(c)
	return nil
}

func (r *Registry) AddByUID(ctx context.Context, uid uint64) (event.Room, error) {
	room, err := r.resolver.ResolveUID(ctx, uid)
	if err != nil {
		return event.Room{}, fmt.Errorf("resolve uid %d: %w", uid, err)
	}
	return room, r.Add(room)
}

func (r *Registry) AddByRoomNumber(ctx context.Context, roomNumber uint64) (event.Room, error) {
	room, err := r.resolver.ResolveRoomNumber(ctx, roomNumber)
	if err != nil {
		return event.Room{}, fmt.Errorf("resolve room %d: %w", roomNumber, err)
	}
	return room, r.Add(room)
}

// Remove stops watching the room owned by uid.
func (r *Registry) Remove(uid uint64) error {
	r.mu.Lock()
	room, ok := r.rooms[uid]
	c := r.connectors[uid]
	if ok {
		delete(r.rooms, uid)
		delete(r.byNumber, room.RoomNumber)
		delete(r.connectors, uid)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("uid %d: %w", uid, ErrRoomNotFound)
	}

	if r.queue.Remove(c) {
		c.retire()
	} else {
		c.Disconnect()
	}
	return nil
}

func (r *Registry) RemoveByRoomNumber(roomNumber uint64) error {
	r.mu.Lock()
	uid, ok := r.byNumber[roomNumber]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("room %d: %w", roomNumber, ErrRoomNotFound)
	}
	return r.Remove(uid)
}

func (r *Registry) Get(uid uint64) (event.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[uid]
	return room, ok
}

// Rooms returns the registered rooms ordered by uid.
func (r *Registry) Rooms() []event.Room {
	r.mu.Lock()
	out := make([]event.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (r *Registry) Status() []Status {
	r.mu.Lock()
	conns := make([]*Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room.UID < out[j].Room.UID })
	return out
}

// Close disconnects every room in parallel and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	uids := make([]uint64, 0, len(r.rooms))
	for uid := range r.rooms {
		uids = append(uids, uid)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, uid := range uids {
		uid := uid
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Remove(uid)
		}()
	}
	wg.Wait()
}
