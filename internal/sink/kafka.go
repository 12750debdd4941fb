package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

const DefaultTopic = "bililive-events"

type KafkaConfig struct {
	Brokers      string        `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// Kafka produces envelopes keyed by room uid so that one room stays on one
// partition.
type Kafka struct {
	producer *kafka.Producer
	topic    string
	flush    time.Duration
	l        zerolog.Logger
	done     chan struct{}
}

func NewKafka(cfg KafkaConfig, l zerolog.Logger) (*Kafka, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &Kafka{
		producer: p,
		topic:    cfg.Topic,
		flush:    cfg.FlushTimeout,
		l:        l.With().Str("sink", DriverKafka).Logger(),
		done:     make(chan struct{}),
	}
	if k.topic == "" {
		k.topic = DefaultTopic
	}
	if k.flush <= 0 {
		k.flush = 5 * time.Second
	}

	go k.deliveryReports()
	return k, nil
}

func (k *Kafka) deliveryReports() {
	defer close(k.done)
	for e := range k.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				k.l.Warn().Err(ev.TopicPartition.Error).Bytes("key", ev.Key).Msg("kafka delivery failed")
			}
		case kafka.Error:
			k.l.Error().Err(ev).Bool("fatal", ev.IsFatal()).Msg("kafka producer error")
		}
	}
}

func (k *Kafka) Publish(_ context.Context, e event.Event) error {
	env, err := NewEnvelope(e)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(env.Key()),
		Value: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	if left := k.producer.Flush(int(k.flush.Milliseconds())); left > 0 {
		k.l.Warn().Int("pending", left).Msg("kafka flush timed out")
	}
	k.producer.Close()
	<-k.done
	return nil
}
