package live

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kostaaa1/bililive/internal/logger"
	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

// Target is something the queue can admit. Active reports a session that is
// connecting or connected; such targets are not queued again.
type Target interface {
	Room() event.Room
	Active() bool
	Connect()
}

// Queue admits targets one at a time, pausing between admissions so the
// platform does not see a burst of handshakes.
type Queue struct {
	interval time.Duration
	logger   zerolog.Logger
	observer Observer

	mu      sync.Mutex
	pending *list.List
	index   map[uint64]*list.Element
	wake    chan struct{}
}

func NewQueue(interval time.Duration, l zerolog.Logger, o Observer) *Queue {
	if interval <= 0 {
		interval = defaultConnectInterval
	}
	if o == nil {
		o = nopObserver{}
	}
	return &Queue{
		interval: interval,
		logger:   l,
		observer: o,
		pending:  list.New(),
		index:    make(map[uint64]*list.Element),
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue appends t unless a target for the same room is already waiting or
// t itself is already connecting or connected.
func (q *Queue) Enqueue(t Target) bool {
	room := t.Room()

	if t.Active() {
		q.logger.Warn().
			Uint64(logger.FieldUID, room.UID).
			Uint64(logger.FieldRoomNumber, room.RoomNumber).
			Msg("room already connected")
		return false
	}

	q.mu.Lock()
	if _, ok := q.index[room.UID]; ok {
		q.mu.Unlock()
		q.logger.Warn().
			Uint64(logger.FieldUID, room.UID).
			Uint64(logger.FieldRoomNumber, room.RoomNumber).
			Msg("room already queued")
		return false
	}
	q.index[room.UID] = q.pending.PushBack(t)
	n := q.pending.Len()
	q.mu.Unlock()

	q.observer.QueueLength(n)
	q.logger.Info().
		Uint64(logger.FieldUID, room.UID).
		Uint64(logger.FieldRoomNumber, room.RoomNumber).
		Int("queue_length", n).
		Msg("room queued")

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Remove drops t if it is still waiting. A different target queued for the
// same room is left alone. false means t is not queued and
// the caller owns shutting it down.
func (q *Queue) Remove(t Target) bool {
	room := t.Room()

	q.mu.Lock()
	el, ok := q.index[room.UID]
	ok = ok && el.Value.(Target) == t
	if ok {
		q.pending.Remove(el)
		delete(q.index, room.UID)
	}
	n := q.pending.Len()
	q.mu.Unlock()

	if !ok {
		q.logger.Warn().
			Uint64(logger.FieldUID, room.UID).
			Uint64(logger.FieldRoomNumber, room.RoomNumber).
			Msg("room not queued")
		return false
	}

	q.observer.QueueLength(n)
	q.logger.Info().
		Uint64(logger.FieldUID, room.UID).
		Int("queue_length", n).
		Msg("room dequeued")
	return true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

func (q *Queue) pop() (Target, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.pending.Front()
	if front == nil {
		return nil, 0, false
	}
	t := q.pending.Remove(front).(Target)
	delete(q.index, t.Room().UID)
	return t, q.pending.Len(), true
}

// Run admits queued targets until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		t, n, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-q.wake:
				continue
			}
		}

		q.observer.QueueLength(n)
		room := t.Room()
		q.logger.Info().
			Uint64(logger.FieldUID, room.UID).
			Uint64(logger.FieldRoomNumber, room.RoomNumber).
			Int("queue_length", n).
			Msg("admitting room")
		t.Connect()

		timer := time.NewTimer(q.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
