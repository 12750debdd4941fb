package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Kostaaa1/bililive/internal/logger"
	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

const (
	DriverLog     = "log"
	DriverRedis   = "redis"
	DriverKafka   = "kafka"
	DriverArchive = "archive"
)

// Publisher is an event.Sink that owns a connection or a buffer.
type Publisher interface {
	event.Sink
	Close() error
}

type Config struct {
	Drivers []string      `mapstructure:"drivers"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Archive ArchiveConfig `mapstructure:"archive"`
	// Channel is the redis channel prefix, the room uid is appended.
	Channel string `mapstructure:"channel"`
}

// Envelope is the wire form shared by every external sink.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Type      event.Kind      `json:"type"`
	RoomID    uint64          `json:"room_id"`
	UID       uint64          `json:"uid"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func NewEnvelope(e event.Event) (*Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.Kind(), err)
	}
	room := e.Room()
	return &Envelope{
		ID:        uuid.New(),
		Type:      e.Kind(),
		RoomID:    room.RoomNumber,
		UID:       room.UID,
		Timestamp: e.Time(),
		Payload:   payload,
	}, nil
}

func (e *Envelope) Key() string {
	return strconv.FormatUint(e.UID, 10)
}

// New builds the publisher chain for cfg.Drivers. rdb is only used by the
// redis driver and may be nil otherwise. Run must be started for the archive
// driver to flush on its interval.
func New(ctx context.Context, cfg Config, rdb redis.UniversalClient, l zerolog.Logger) (*Multi, error) {
	var pubs []Publisher
	fail := func(err error) (*Multi, error) {
		for _, p := range pubs {
			p.Close()
		}
		return nil, err
	}

	for _, driver := range cfg.Drivers {
		switch driver {
		case DriverLog:
			pubs = append(pubs, NewLog(l))
		case DriverRedis:
			if rdb == nil {
				return fail(errors.New("redis sink requires a redis client"))
			}
			pubs = append(pubs, NewRedis(rdb, cfg.Channel))
		case DriverKafka:
			k, err := NewKafka(cfg.Kafka, l)
			if err != nil {
				return fail(err)
			}
			pubs = append(pubs, k)
		case DriverArchive:
			a, err := NewArchive(ctx, cfg.Archive, l)
			if err != nil {
				return fail(err)
			}
			pubs = append(pubs, a)
		default:
			return fail(fmt.Errorf("unknown sink driver %q", driver))
		}
	}
	return NewMulti(l, pubs...), nil
}

type logSink struct {
	l zerolog.Logger
}

// NewLog writes one debug line per event.
func NewLog(l zerolog.Logger) Publisher {
	return &logSink{l: l}
}

func (s *logSink) Publish(_ context.Context, e event.Event) error {
	room := e.Room()
	evt := s.l.Debug().
		Uint64(logger.FieldUID, room.UID).
		Uint64(logger.FieldRoomNumber, room.RoomNumber).
		Str("kind", string(e.Kind()))
	if u, ok := event.SenderOf(e); ok {
		evt = evt.Str("sender", u.Name)
	}
	evt.Msg("event")
	return nil
}

func (s *logSink) Close() error { return nil }
