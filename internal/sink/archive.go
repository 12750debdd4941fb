package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

var ErrClosed = errors.New("sink closed")

type ArchiveConfig struct {
	Region        string        `mapstructure:"region"`
	Bucket        string        `mapstructure:"bucket"`
	Prefix        string        `mapstructure:"prefix"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Retries       int           `mapstructure:"retries"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

func (c *ArchiveConfig) withDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Minute
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type batch struct {
	body  []byte
	count int
	at    time.Time
}

// Archive buffers envelopes as gzip compressed JSON lines and uploads a batch
// to S3 once it holds BatchSize events or FlushInterval has passed.
type Archive struct {
	put     putter
	cfg     ArchiveConfig
	l       zerolog.Logger
	now     func() time.Time
	backoff time.Duration

	mu  sync.Mutex
	buf *bytes.Buffer
	zw  *gzip.Writer
	n   int

	ready chan batch
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewArchive(ctx context.Context, cfg ArchiveConfig, l zerolog.Logger) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive sink requires a bucket")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})
	return newArchive(client, cfg, l), nil
}

func newArchive(p putter, cfg ArchiveConfig, l zerolog.Logger) *Archive {
	cfg.withDefaults()
	buf := new(bytes.Buffer)
	a := &Archive{
		put:     p,
		cfg:     cfg,
		l:       l.With().Str("sink", DriverArchive).Logger(),
		now:     time.Now,
		backoff: 200 * time.Millisecond,
		buf:     buf,
		zw:      gzip.NewWriter(buf),
		ready:   make(chan batch, 4),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Archive) Publish(ctx context.Context, e event.Event) error {
	env, err := NewEnvelope(e)
	if err != nil {
		return err
	}
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	if _, err := a.zw.Write(line); err != nil {
		a.mu.Unlock()
		return fmt.Errorf("failed to compress envelope: %w", err)
	}
	a.n++
	if a.n < a.cfg.BatchSize {
		a.mu.Unlock()
		return nil
	}
	b := a.cut()
	a.mu.Unlock()

	select {
	case a.ready <- b:
		return nil
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cut closes the current gzip stream and starts a new one. Callers hold mu.
func (a *Archive) cut() batch {
	a.zw.Close()
	b := batch{body: bytes.Clone(a.buf.Bytes()), count: a.n, at: a.now()}
	a.buf.Reset()
	a.zw.Reset(a.buf)
	a.n = 0
	return b
}

func (a *Archive) loop() {
	defer close(a.done)

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case b := <-a.ready:
			a.upload(ctx, b)
		case <-ticker.C:
			a.mu.Lock()
			if a.n == 0 {
				a.mu.Unlock()
				continue
			}
			b := a.cut()
			a.mu.Unlock()
			a.upload(ctx, b)
		case <-a.stop:
			a.drain(ctx)
			return
		}
	}
}

func (a *Archive) drain(ctx context.Context) {
	for {
		select {
		case b := <-a.ready:
			a.upload(ctx, b)
			continue
		default:
		}

		a.mu.Lock()
		if a.n == 0 {
			a.mu.Unlock()
			return
		}
		b := a.cut()
		a.mu.Unlock()
		a.upload(ctx, b)
		return
	}
}

func (a *Archive) key(b batch) string {
	name := uuid.NewString() + ".jsonl.gz"
	return path.Join(a.cfg.Prefix, "dt="+b.at.UTC().Format(time.DateOnly), name)
}

func (a *Archive) upload(ctx context.Context, b batch) {
	key := a.key(b)
	backoff := a.backoff

	var err error
	for attempt := 1; attempt <= a.cfg.Retries; attempt++ {
		if err = a.putObject(ctx, key, b.body); err == nil {
			a.l.Debug().Str("key", key).Int("events", b.count).Msg("archived batch")
			return
		}
		a.l.Warn().Err(err).Str("key", key).Int("attempt", attempt).Msg("archive upload failed")
		if attempt == a.cfg.Retries {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 2*time.Second)
	}
	a.l.Error().Err(err).Str("key", key).Int("events", b.count).Msg("dropping archive batch")
}

func (a *Archive) putObject(ctx context.Context, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	_, err := a.put.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.cfg.Bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentLength:   aws.Int64(int64(len(body))),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	return err
}

// Close uploads whatever is buffered and stops the flush loop.
func (a *Archive) Close() error {
	a.once.Do(func() { close(a.stop) })
	<-a.done
	return nil
}
