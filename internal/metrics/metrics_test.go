package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
	"github.com/Kostaaa1/bililive/pkg/bilibili/live"
)

var room = event.Room{UID: 1, RoomNumber: 5050}

func TestStateGauges(t *testing.T) {
	t.Parallel()

	m := New(WithRegistry(prometheus.NewRegistry()))

	m.StateChanged(room, live.StateInit, live.StateConnecting)
	m.StateChanged(room, live.StateConnecting, live.StateConnected)

	require.Equal(t, 0.0, testutil.ToFloat64(m.connections.WithLabelValues("connecting")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("connected")))

	m.Viewers(room, 321)
	require.Equal(t, 321.0, testutil.ToFloat64(m.viewers.WithLabelValues("5050")))

	m.StateChanged(room, live.StateConnected, live.StateClosing)
	m.StateChanged(room, live.StateClosing, live.StateClosed)
	require.Equal(t, 0.0, testutil.ToFloat64(m.connections.WithLabelValues("connected")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("closed")))
	require.Equal(t, 0, testutil.CollectAndCount(m.viewers))
}

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New(WithRegistry(prometheus.NewRegistry()))

	m.ConnectAttempt(room)
	m.ConnectAttempt(room)
	m.Reconnect(room, live.StateTimeout)
	m.DecodeFailure(event.CmdSendGift)
	m.DecodeFailure("")
	m.QueueLength(4)

	require.Equal(t, 2.0, testutil.ToFloat64(m.connectAttempts))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reconnects.WithLabelValues("timeout")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.decodeFailures.WithLabelValues("SEND_GIFT")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.decodeFailures.WithLabelValues("unknown")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.queueLength))
}

func TestSinkCountsKinds(t *testing.T) {
	t.Parallel()

	m := New(WithRegistry(prometheus.NewRegistry()))

	var got []event.Event
	sink := m.Sink(event.SinkFunc(func(_ context.Context, e event.Event) error {
		got = append(got, e)
		return nil
	}))

	require.NoError(t, sink.Publish(context.Background(), event.LikeCount{Count: 3}))
	require.NoError(t, sink.Publish(context.Background(), event.LikeCount{Count: 4}))
	require.Len(t, got, 2)
	require.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("like_count")))
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New()
	m.ConnectAttempt(room)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "bililive_connect_attempts_total 1")
	require.Contains(t, string(body), `bililive_connections{state="init"} 0`)
}
