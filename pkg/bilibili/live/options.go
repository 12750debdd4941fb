package live

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kostaaa1/bililive/pkg/bilibili"
	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

const (
	DefaultWindowSize = 30

	defaultHandshakeTimeout  = 3 * time.Second
	defaultHeartbeatDelay    = 10 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultHeartbeatTimeout  = 75 * time.Second
	defaultConnectInterval   = time.Second
	defaultReconnectInterval = time.Second
	defaultRiskInterval      = 60 * time.Second
	defaultRiskThreshold     = 50
	keepaliveTimeout         = 10 * time.Second
)

type RiskOptions struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	Threshold float64       `mapstructure:"threshold"`
	Window    int           `mapstructure:"window"`
}

// Options tunes connectors and the admission queue.
type Options struct {
	ConnectInterval   time.Duration `mapstructure:"connect_interval"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	HeartbeatDelay    time.Duration `mapstructure:"heartbeat_delay"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	CompleteEvent     bool          `mapstructure:"complete_event"`
	Risk              RiskOptions   `mapstructure:"risk"`

	// UID and Buvid identify the session in the verify frame.
	UID       uint64 `mapstructure:"-"`
	Buvid     string `mapstructure:"-"`
	UserAgent string `mapstructure:"-"`
}

func DefaultOptions() Options {
	return Options{
		ConnectInterval:   defaultConnectInterval,
		ReconnectInterval: defaultReconnectInterval,
		HandshakeTimeout:  defaultHandshakeTimeout,
		HeartbeatDelay:    defaultHeartbeatDelay,
		HeartbeatInterval: defaultHeartbeatInterval,
		HeartbeatTimeout:  defaultHeartbeatTimeout,
		CompleteEvent:     true,
		Risk: RiskOptions{
			Enabled:   true,
			Interval:  defaultRiskInterval,
			Threshold: defaultRiskThreshold,
			Window:    DefaultWindowSize,
		},
	}
}

// withDefaults fills zero durations so a partially set Options still works.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConnectInterval <= 0 {
		o.ConnectInterval = d.ConnectInterval
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = d.ReconnectInterval
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	if o.HeartbeatDelay <= 0 {
		o.HeartbeatDelay = d.HeartbeatDelay
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = d.HeartbeatInterval
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if o.Risk.Interval <= 0 {
		o.Risk.Interval = d.Risk.Interval
	}
	if o.Risk.Window <= 0 {
		o.Risk.Window = d.Risk.Window
	}
	return o
}

type EndpointSource interface {
	ConnectInfo(ctx context.Context, roomNumber uint64) (*bilibili.ConnectInfo, error)
}

type Keepaliver interface {
	Keepalive(ctx context.Context, roomNumber uint64) error
}

type HistorySource interface {
	RecentMessages(ctx context.Context, roomNumber uint64) ([]bilibili.Message, error)
}

// Platform is everything a connector asks of the HTTP API.
type Platform interface {
	EndpointSource
	Keepaliver
	HistorySource
}

// Observer receives connector and queue telemetry.
type Observer interface {
	ConnectAttempt(room event.Room)
	StateChanged(room event.Room, from, to State)
	Reconnect(room event.Room, cause State)
	Viewers(room event.Room, n uint32)
	QueueLength(n int)
}

type nopObserver struct{}

func (nopObserver) ConnectAttempt(event.Room)             {}
func (nopObserver) StateChanged(event.Room, State, State) {}
func (nopObserver) Reconnect(event.Room, State)           {}
func (nopObserver) Viewers(event.Room, uint32)            {}
func (nopObserver) QueueLength(int)                       {}

// Deps are the collaborators shared by every connector.
type Deps struct {
	Platform Platform
	Dialer   Dialer
	Decoder  *event.Decoder
	Sink     event.Sink
	Observer Observer
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Dialer == nil {
		d.Dialer = NewWebsocketDialer()
	}
	if d.Decoder == nil {
		d.Decoder = event.NewDecoder(nil, event.WithLogger(d.Logger))
	}
	if d.Sink == nil {
		d.Sink = event.Discard
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}
