package sink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

var (
	room = event.Room{UID: 1000, Name: "streamer", RoomNumber: 5050}
	at   = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func chat(text string) event.Chat {
	return event.Chat{
		Header: event.Header{Source: room, Timestamp: at},
		Sender: event.User{UID: 7, Name: "viewer"},
		Text:   text,
	}
}

func TestNewEnvelope(t *testing.T) {
	t.Parallel()

	env, err := NewEnvelope(chat("hello"))
	require.NoError(t, err)
	require.Equal(t, event.KindChat, env.Type)
	require.Equal(t, uint64(5050), env.RoomID)
	require.Equal(t, uint64(1000), env.UID)
	require.Equal(t, "1000", env.Key())
	require.True(t, at.Equal(env.Timestamp))
	require.NotEqual(t, uuid.Nil, env.ID)

	var payload struct {
		Text   string     `json:"text"`
		Room   event.Room `json:"room"`
		Sender event.User `json:"sender"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Equal(t, "hello", payload.Text)
	require.Equal(t, room, payload.Room)
	require.Equal(t, uint64(7), payload.Sender.UID)
}

type failing struct {
	err    error
	closed bool
}

func (f *failing) Publish(context.Context, event.Event) error { return f.err }
func (f *failing) Close() error {
	f.closed = true
	return nil
}

func TestMultiKeepsPublishingAfterFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	bad := &failing{err: boom}
	ch := NewChannel(4)
	m := NewMulti(zerolog.Nop(), bad, ch)
	require.Equal(t, 2, m.Len())

	err := m.Publish(context.Background(), chat("a"))
	require.ErrorIs(t, err, boom)
	require.Len(t, ch.C(), 1)

	require.NoError(t, m.Close())
	require.True(t, bad.closed)
}

func TestChannelDropsWhenFull(t *testing.T) {
	t.Parallel()

	ch := NewChannel(2)
	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, ch.Publish(context.Background(), chat(text)))
	}
	require.Equal(t, uint64(1), ch.Dropped())

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Publish(context.Background(), chat("d")))

	var got []string
	for e := range ch.C() {
		got = append(got, e.(event.Chat).Text)
	}
	require.Equal(t, []string{"a", "b"}, got)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Drivers: []string{"carrier-pigeon"}}, nil, zerolog.Nop())
	require.ErrorContains(t, err, "carrier-pigeon")

	_, err = New(context.Background(), Config{Drivers: []string{DriverRedis}}, nil, zerolog.Nop())
	require.Error(t, err)

	m, err := New(context.Background(), Config{Drivers: []string{DriverLog}}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())
}

type fakeS3 struct {
	mu     sync.Mutex
	fails  int
	puts   []*s3.PutObjectInput
	bodies [][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return nil, errors.New("slow down")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) objects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func lines(t *testing.T, body []byte) []Envelope {
	t.Helper()

	zr, err := gzip.NewReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer zr.Close()

	var out []Envelope
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var env Envelope
		require.NoError(t, json.Unmarshal(sc.Bytes(), &env))
		out = append(out, env)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestArchiveBatches(t *testing.T) {
	t.Parallel()

	s3c := &fakeS3{fails: 1}
	a := newArchive(s3c, ArchiveConfig{Bucket: "events", Prefix: "live", BatchSize: 2, FlushInterval: time.Hour}, zerolog.Nop())
	a.backoff = time.Millisecond
	a.now = func() time.Time { return at }

	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, a.Publish(ctx, chat(text)))
	}
	require.Eventually(t, func() bool { return s3c.objects() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, a.Close())
	require.Equal(t, 2, s3c.objects())

	keyRe := regexp.MustCompile(`^live/dt=2024-03-01/[0-9a-f-]{36}\.jsonl\.gz$`)
	var texts []string
	for i, in := range s3c.puts {
		require.Equal(t, "events", *in.Bucket)
		require.Regexp(t, keyRe, *in.Key)
		require.Equal(t, "gzip", *in.ContentEncoding)
		for _, env := range lines(t, s3c.bodies[i]) {
			var c struct {
				Text string `json:"text"`
			}
			require.NoError(t, json.Unmarshal(env.Payload, &c))
			texts = append(texts, c.Text)
		}
	}
	require.Equal(t, []string{"a", "b", "c"}, texts)
}

func TestArchiveFlushesOnInterval(t *testing.T) {
	t.Parallel()

	s3c := &fakeS3{}
	a := newArchive(s3c, ArchiveConfig{Bucket: "events", BatchSize: 100, FlushInterval: 10 * time.Millisecond}, zerolog.Nop())
	defer a.Close()

	require.NoError(t, a.Publish(context.Background(), chat("a")))
	require.Eventually(t, func() bool { return s3c.objects() == 1 }, time.Second, time.Millisecond)
}
