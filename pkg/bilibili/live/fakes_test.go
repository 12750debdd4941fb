package live

import (
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kostaaa1/bililive/pkg/bilibili"
	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
	"github.com/Kostaaa1/bililive/pkg/bilibili/packet"
)

var testRoom = event.Room{UID: 1000, Name: "streamer", RoomNumber: 5050, Avatar: "s.png"}

var errConnClosed = errors.New("conn closed")

// serverFrame builds frames the client never sends, so it bypasses Encode.
func serverFrame(header packet.HeaderKind, pack packet.PackKind, body []byte) []byte {
	buf := make([]byte, packet.HeaderLen+len(body))
	binary.BigEndian.PutUint32(buf[0:], uint32(len(buf)))
	binary.BigEndian.PutUint16(buf[4:], packet.HeaderLen)
	binary.BigEndian.PutUint16(buf[6:], uint16(header))
	binary.BigEndian.PutUint32(buf[8:], uint32(pack))
	binary.BigEndian.PutUint32(buf[12:], 1)
	copy(buf[16:], body)
	return buf
}

func verifyAck() []byte {
	return serverFrame(packet.HeaderHeartbeat, packet.PackVerifyAck, []byte(`{"code":0}`))
}

func notice(body string) []byte {
	return serverFrame(packet.HeaderRawJSON, packet.PackNotice, []byte(body))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeConn struct {
	ackVerify bool
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32

	mu      sync.Mutex
	written [][]byte
}

func newFakeConn(ackVerify bool) *fakeConn {
	return &fakeConn{
		ackVerify: ackVerify,
		in:        make(chan []byte, 16),
		closed:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	c.mu.Lock()
	c.written = append(c.written, data)
	c.mu.Unlock()

	frames, err := packet.Decode(data)
	if err == nil && len(frames) == 1 && frames[0].Pack == packet.PackVerify && c.ackVerify {
		c.in <- verifyAck()
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Drop simulates the server hanging up.
func (c *fakeConn) Drop() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *fakeConn) count(pack packet.PackKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.written {
		frames, err := packet.Decode(w)
		if err == nil && len(frames) == 1 && frames[0].Pack == pack {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	urls  []string
	dials atomic.Int32
}

func (d *fakeDialer) Dial(_ context.Context, url string, _ http.Header) (Conn, error) {
	d.dials.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if len(d.conns) == 0 {
		return newFakeConn(true), nil
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

type fakePlatform struct {
	mu         sync.Mutex
	history    [][]bilibili.Message
	historyN   int
	keepalives atomic.Int32
	infoErr    error
}

func (p *fakePlatform) ConnectInfo(_ context.Context, roomNumber uint64) (*bilibili.ConnectInfo, error) {
	if p.infoErr != nil {
		return nil, p.infoErr
	}
	return &bilibili.ConnectInfo{
		Token: "tok",
		Hosts: []bilibili.Host{{Host: "chat.example", WSSPort: 443}},
	}, nil
}

func (p *fakePlatform) Keepalive(context.Context, uint64) error {
	p.keepalives.Add(1)
	return nil
}

// RecentMessages replays history in order and repeats the last snapshot.
func (p *fakePlatform) RecentMessages(context.Context, uint64) ([]bilibili.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == 0 {
		return nil, nil
	}
	i := p.historyN
	if i >= len(p.history) {
		i = len(p.history) - 1
	}
	p.historyN++
	return p.history[i], nil
}

func (p *fakePlatform) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.historyN
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
	times  []time.Time
}

func (r *recorder) Publish(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	r.times = append(r.times, time.Now())
	return nil
}

func (r *recorder) kinds() []event.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind())
	}
	return out
}

func (r *recorder) count(k event.Kind) int {
	n := 0
	for _, got := range r.kinds() {
		if got == k {
			n++
		}
	}
	return n
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ConnectInterval = 5 * time.Millisecond
	opts.ReconnectInterval = 5 * time.Millisecond
	opts.HandshakeTimeout = 200 * time.Millisecond
	opts.HeartbeatDelay = 5 * time.Millisecond
	opts.HeartbeatInterval = 5 * time.Millisecond
	opts.CompleteEvent = false
	opts.Risk.Enabled = false
	return opts
}
