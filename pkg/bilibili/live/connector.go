package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kostaaa1/bililive/internal/logger"
	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
	"github.com/Kostaaa1/bililive/pkg/bilibili/packet"
)

// Connector keeps one room's push channel alive. Connect starts a session on
// its own goroutine; the session is a single actor that owns the socket, the
// heartbeat bookkeeping and the sampling window.
type Connector struct {
	room    event.Room
	opts    Options
	deps    Deps
	requeue func(*Connector) bool
	logger  zerolog.Logger
	window  *Window

	stop     context.Context
	stopFunc context.CancelFunc
	once     sync.Once

	mu      sync.Mutex
	state   State
	since   time.Time
	done    chan struct{}
	viewers atomic.Uint32
}

// NewConnector builds a connector for room. requeue is called with the
// connector after every failed session once ReconnectInterval has passed.
func NewConnector(room event.Room, opts Options, deps Deps, requeue func(*Connector) bool) *Connector {
	deps = deps.withDefaults()
	opts = opts.withDefaults()
	if requeue == nil {
		requeue = func(*Connector) bool { return false }
	}

	stop, stopFunc := context.WithCancel(context.Background())
	return &Connector{
		room:    room,
		opts:    opts,
		deps:    deps,
		requeue: requeue,
		logger: deps.Logger.With().
			Uint64(logger.FieldUID, room.UID).
			Uint64(logger.FieldRoomNumber, room.RoomNumber).
			Str("name", room.Name).
			Logger(),
		window:   NewWindow(opts.Risk.Window),
		stop:     stop,
		stopFunc: stopFunc,
		state:    StateInit,
		since:    deps.Now(),
	}
}

func (c *Connector) Room() event.Room {
	return c.room
}

func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether a session is connecting or connected.
func (c *Connector) Active() bool {
	return c.State().active()
}

// Status is a point-in-time view of a connector.
type Status struct {
	Room    event.Room `json:"room"`
	State   string     `json:"state"`
	Since   time.Time  `json:"since"`
	Viewers uint32     `json:"viewers"`
}

func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Room:    c.room,
		State:   c.state.String(),
		Since:   c.since,
		Viewers: c.viewers.Load(),
	}
}

// setState moves to s unless a disconnect already claimed the connector.
func (c *Connector) setState(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return false
	}
	c.transitionLocked(s)
	return true
}

func (c *Connector) transitionLocked(s State) {
	if c.state == s {
		return
	}
	from := c.state
	c.state = s
	c.since = c.deps.Now()
	c.deps.Observer.StateChanged(c.room, from, s)
}

// Connect starts a connection attempt and returns immediately. It does nothing
// while a session is live. After a disconnect it only settles the connector
// into Closed.
func (c *Connector) Connect() {
	c.mu.Lock()
	if c.state.Terminal() {
		c.transitionLocked(StateClosed)
		c.mu.Unlock()
		return
	}
	if c.state.active() {
		c.mu.Unlock()
		c.logger.Debug().Msg("session already running")
		return
	}
	c.transitionLocked(StateConnecting)
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	c.deps.Observer.ConnectAttempt(c.room)
	go c.run(done)
}

// Disconnect stops the connector for good. It is idempotent; the first call
// waits for the running session to finish and publishes Disconnected.
func (c *Connector) Disconnect() {
	c.once.Do(func() {
		c.logger.Info().Msg("disconnecting")

		c.mu.Lock()
		c.transitionLocked(StateClosing)
		done := c.done
		c.mu.Unlock()

		c.stopFunc()
		if done != nil {
			<-done
		}

		c.mu.Lock()
		c.transitionLocked(StateClosed)
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.publish(ctx, event.NewDisconnected(c.room, c.deps.Now()))
		c.logger.Info().Msg("disconnected")
	})
}

// retire closes a connector that never got to run, without publishing.
func (c *Connector) retire() {
	c.once.Do(func() {
		c.mu.Lock()
		c.transitionLocked(StateClosed)
		c.mu.Unlock()
		c.stopFunc()
	})
}

func (c *Connector) publish(ctx context.Context, e event.Event) {
	if err := c.deps.Sink.Publish(ctx, e); err != nil {
		c.logger.Warn().Err(err).Str("kind", string(e.Kind())).Msg("publish failed")
	}
}

// sessionResult is how a session ended.
type sessionResult struct {
	cause    State
	received bool
	err      error
}

func (c *Connector) run(done chan struct{}) {
	defer close(done)

	res := c.session(c.stop)

	if c.stop.Err() != nil {
		return
	}

	switch res.cause {
	case StateTimeout:
		c.logger.Warn().Dur("retry_in", c.opts.ReconnectInterval).Msg("heartbeat ack timed out, reconnecting")
	case StateRisk:
		c.logger.Warn().Dur("retry_in", c.opts.ReconnectInterval).Msg("room data looks throttled, reconnecting")
	default:
		c.setState(StateError)
		switch {
		case errors.Is(res.err, ErrHandshakeTimeout):
			c.logger.Warn().Err(res.err).Dur("retry_in", c.opts.ReconnectInterval).Msg("handshake timed out, reconnecting")
		case res.received:
			c.logger.Warn().Err(res.err).Dur("retry_in", c.opts.ReconnectInterval).Msg("connection dropped, reconnecting")
		default:
			c.logger.Error().Err(res.err).Dur("retry_in", c.opts.ReconnectInterval).Msg("no data received since connect, reconnecting")
		}
		res.cause = StateError
	}
	c.deps.Observer.Reconnect(c.room, res.cause)

	timer := time.NewTimer(c.opts.ReconnectInterval)
	defer timer.Stop()
	select {
	case <-c.stop.Done():
		return
	case <-timer.C:
	}

	if c.State().Terminal() {
		return
	}
	c.requeue(c)
}

type sample struct {
	keys []Key
	seed bool
	err  error
}

// session runs one connection until it fails or stop is cancelled.
func (c *Connector) session(stop context.Context) sessionResult {
	ctx, cancel := context.WithCancel(stop)
	defer cancel()

	info, err := c.deps.Platform.ConnectInfo(ctx, c.room.RoomNumber)
	if err != nil {
		return sessionResult{err: fmt.Errorf("%w: %w", ErrHandshakeFailed, err)}
	}
	url := info.Hosts[0].URL()

	c.logger.Info().Str("url", url).Msg("connecting")

	deadline := c.deps.Now().Add(c.opts.HandshakeTimeout)
	handshake := time.NewTimer(c.opts.HandshakeTimeout)
	defer handshake.Stop()

	dialCtx, dialCancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	header := http.Header{}
	if c.opts.UserAgent != "" {
		header.Set("User-Agent", c.opts.UserAgent)
	}
	conn, err := c.deps.Dialer.Dial(dialCtx, url, header)
	dialCancel()
	if err != nil {
		if stop.Err() != nil {
			return sessionResult{}
		}
		if c.deps.Now().After(deadline) || errors.Is(err, context.DeadlineExceeded) {
			return sessionResult{err: fmt.Errorf("%w: %w", ErrHandshakeTimeout, err)}
		}
		return sessionResult{err: fmt.Errorf("%w: %w", ErrHandshakeFailed, err)}
	}
	defer conn.Close()

	verify, err := packet.Verify(packet.NewVerifyBody(c.opts.UID, c.room.RoomNumber, c.opts.Buvid, info.Token))
	if err != nil {
		return sessionResult{err: fmt.Errorf("%w: %w", ErrHandshakeFailed, err)}
	}
	if err := conn.WriteMessage(verify); err != nil {
		return sessionResult{err: fmt.Errorf("%w: send verify: %w", ErrHandshakeFailed, err)}
	}

	messages := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case messages <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	samples := make(chan sample, 1)
	fetch := func(seed bool) {
		go func() {
			msgs, err := c.deps.Platform.RecentMessages(ctx, c.room.RoomNumber)
			s := sample{seed: seed, err: err, keys: make([]Key, 0, len(msgs))}
			for _, m := range msgs {
				s.keys = append(s.keys, Key{UID: m.UID, Text: m.Text})
			}
			select {
			case samples <- s:
			case <-ctx.Done():
			}
		}()
	}

	var (
		connected bool
		received  bool
		lastAck   time.Time
		heartbeat <-chan time.Time
		sampling  <-chan time.Time
		hbTimer   *time.Timer
		ticker    *time.Ticker
	)
	defer func() {
		if hbTimer != nil {
			hbTimer.Stop()
		}
		if ticker != nil {
			ticker.Stop()
		}
	}()

	c.window.Reset()

	for {
		select {
		case <-ctx.Done():
			return sessionResult{received: received}

		case <-handshake.C:
			if !connected {
				return sessionResult{received: received, err: ErrHandshakeTimeout}
			}

		case err := <-readErr:
			return sessionResult{received: received, err: err}

		case data := <-messages:
			received = true
			frames, err := packet.Decode(data)
			if err != nil {
				c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping undecodable message")
				continue
			}
			for _, f := range frames {
				switch f.Pack {
				case packet.PackVerifyAck:
					if connected {
						continue
					}
					connected = true
					handshake.Stop()
					if !c.setState(StateConnected) {
						return sessionResult{received: received}
					}
					lastAck = c.deps.Now()
					c.logger.Info().Msg("connected")
					c.publish(ctx, event.NewConnected(c.room, lastAck))

					hbTimer = time.NewTimer(c.opts.HeartbeatDelay)
					heartbeat = hbTimer.C
					if c.opts.Risk.Enabled {
						fetch(true)
						ticker = time.NewTicker(c.opts.Risk.Interval)
						sampling = ticker.C
					}

				case packet.PackHeartbeatAck:
					lastAck = c.deps.Now()
					if n, ok := f.Viewers(); ok {
						c.viewers.Store(n)
						c.deps.Observer.Viewers(c.room, n)
					}

				case packet.PackNotice:
					ev, ok := c.deps.Decoder.DecodeNotice(ctx, f.Body, c.room, c.opts.CompleteEvent)
					if !ok {
						continue
					}
					if connected {
						c.observe(ev)
					}
					c.publish(ctx, ev)

				default:
					c.logger.Warn().Stringer("pack", f.Pack).Bytes("body", f.Body).Msg("unexpected frame")
				}
			}

		case <-heartbeat:
			hbTimer.Reset(c.opts.HeartbeatInterval)
			if c.deps.Now().Sub(lastAck) > c.opts.HeartbeatTimeout {
				if !c.setState(StateTimeout) {
					return sessionResult{received: received}
				}
				return sessionResult{cause: StateTimeout, received: received}
			}
			if err := conn.WriteMessage(packet.Heartbeat()); err != nil {
				c.logger.Warn().Err(err).Msg("send heartbeat failed")
			}
			go c.keepalive(ctx)

		case <-sampling:
			fetch(false)

		case s := <-samples:
			if s.err != nil {
				c.logger.Warn().Err(s.err).Bool("seed", s.seed).Msg("recent messages unavailable")
				continue
			}
			if s.seed {
				for _, k := range s.keys {
					c.window.Add(k)
				}
				continue
			}
			ratio, ok := c.window.MatchRatio(s.keys)
			if !ok {
				continue
			}
			c.logger.Debug().Float64("ratio", ratio).Int("sampled", len(s.keys)).Msg("completeness sample")
			if ratio <= c.opts.Risk.Threshold {
				if !c.setState(StateRisk) {
					return sessionResult{received: received}
				}
				return sessionResult{cause: StateRisk, received: received}
			}
		}
	}
}

// observe folds chat keys into the sampling window.
func (c *Connector) observe(ev event.Event) {
	switch e := ev.(type) {
	case event.Chat:
		c.window.Add(Key{UID: e.Sender.UID, Text: e.Text})
	case event.Emote:
		c.window.Add(Key{UID: e.Sender.UID, Text: e.Emoticon.Label})
	}
}

func (c *Connector) keepalive(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, keepaliveTimeout)
	defer cancel()
	if err := c.deps.Platform.Keepalive(ctx, c.room.RoomNumber); err != nil && ctx.Err() == nil {
		c.logger.Debug().Err(err).Msg("keepalive failed")
	}
}
