package packet

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/andybalholm/brotli"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func rawFrame(h HeaderKind, p PackKind, body []byte) []byte {
	buf := make([]byte, HeaderLen+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.BigEndian.PutUint16(buf[4:6], HeaderLen)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h))
	binary.BigEndian.PutUint32(buf[8:12], uint32(p))
	binary.BigEndian.PutUint32(buf[12:16], 1)
	copy(buf[HeaderLen:], body)
	return buf
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestEncodeLayout(t *testing.T) {
	t.Parallel()

	b, err := Encode(HeaderHeartbeat, PackHeartbeat, []byte("[object Object]"))
	require.NoError(t, err)
	require.Len(t, b, 31)
	require.Equal(t, uint32(31), binary.BigEndian.Uint32(b[0:4]))
	require.Equal(t, uint16(16), binary.BigEndian.Uint16(b[4:6]))
	require.Equal(t, uint16(1), binary.BigEndian.Uint16(b[6:8]))
	require.Equal(t, uint32(2), binary.BigEndian.Uint32(b[8:12]))
	require.Equal(t, uint32(1), binary.BigEndian.Uint32(b[12:16]))
	require.Equal(t, "[object Object]", string(b[16:]))
	require.Equal(t, b, Heartbeat())
}

func TestEncodeRejectsUnsupported(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		header HeaderKind
		pack   PackKind
	}{
		{HeaderRawJSON, PackHeartbeat},
		{HeaderBrotli, PackVerify},
		{HeaderHeartbeat, PackNotice},
		{HeaderHeartbeat, PackHeartbeatAck},
		{HeaderHeartbeat, PackVerifyAck},
	}

	for _, tc := range testCases {
		_, err := Encode(tc.header, tc.pack, []byte("x"))
		require.ErrorIs(t, err, ErrUnsupportedFrame, "%s/%s", tc.header, tc.pack)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	bodies := [][]byte{
		{},
		[]byte("[object Object]"),
		[]byte(`{"uid":1,"roomid":2,"key":"token"}`),
		bytes.Repeat([]byte{0xff}, 4096),
	}

	for _, pack := range []PackKind{PackHeartbeat, PackVerify} {
		for _, body := range bodies {
			b, err := Encode(HeaderHeartbeat, pack, body)
			require.NoError(t, err)

			frames, err := Decode(b)
			require.NoError(t, err)
			require.Len(t, frames, 1)
			require.Equal(t, pack, frames[0].Pack)
			require.Equal(t, body, frames[0].Body)
		}
	}
}

func TestDecodeBatchedNotices(t *testing.T) {
	t.Parallel()

	var batch []byte
	for i := 0; i < 5; i++ {
		body := []byte(`{"cmd":"DANMU_MSG","n":` + string(rune('0'+i)) + `}`)
		batch = append(batch, rawFrame(HeaderRawJSON, PackNotice, body)...)
	}

	frames, err := Decode(batch)
	require.NoError(t, err)
	require.Len(t, frames, 5)
	for i, f := range frames {
		require.Equal(t, PackNotice, f.Pack)
		require.Equal(t, HeaderRawJSON, f.Header)
		require.Contains(t, string(f.Body), `"n":`+string(rune('0'+i)))
	}
}

func TestDecodeBrotliMatchesPlain(t *testing.T) {
	t.Parallel()

	var plain []byte
	for _, cmd := range []string{"LIVE", "SEND_GIFT", "INTERACT_WORD"} {
		body, err := json.Marshal(map[string]string{"cmd": cmd})
		require.NoError(t, err)
		plain = append(plain, rawFrame(HeaderRawJSON, PackNotice, body)...)
	}

	want, err := Decode(plain)
	require.NoError(t, err)

	wrapped := rawFrame(HeaderBrotli, PackNotice, compress(t, plain))
	got, err := Decode(wrapped)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDecodeHeartbeatAck(t *testing.T) {
	t.Parallel()

	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, 1337)

	frames, err := Decode(rawFrame(HeaderHeartbeat, PackHeartbeatAck, body))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	viewers, ok := frames[0].Viewers()
	require.True(t, ok)
	require.Equal(t, uint32(1337), viewers)
}

func TestDecodeEmptyBody(t *testing.T) {
	t.Parallel()

	frames, err := Decode(rawFrame(HeaderRawJSON, PackNotice, nil))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Empty(t, frames[0].Body)

	// the same chunk followed by another one is corrupt
	batch := append(rawFrame(HeaderRawJSON, PackNotice, nil), rawFrame(HeaderRawJSON, PackNotice, []byte(`{}`))...)
	_, err = Decode(batch)
	require.ErrorIs(t, err, ErrCorruptFrame)
}

func TestDecodeCorrupt(t *testing.T) {
	t.Parallel()

	valid := rawFrame(HeaderRawJSON, PackNotice, []byte(`{"cmd":"LIVE"}`))

	overrun := append([]byte(nil), valid...)
	binary.BigEndian.PutUint32(overrun[0:4], uint32(len(valid)+10))

	tooShort := append([]byte(nil), valid...)
	binary.BigEndian.PutUint32(tooShort[0:4], 16)

	trailing := append(append([]byte(nil), valid...), 0, 0, 0)

	stream := compress(t, bytes.Repeat(valid, 20))
	truncated := stream[:len(stream)/2]

	testCases := map[string][]byte{
		"short buffer":      {0, 0, 0, 1},
		"length overrun":    overrun,
		"length not > 16":   tooShort,
		"trailing garbage":  trailing,
		"truncated brotli":  rawFrame(HeaderBrotli, PackNotice, truncated),
		"short ack":         rawFrame(HeaderHeartbeat, PackHeartbeatAck, []byte{1, 2}),
	}

	for name, data := range testCases {
		_, err := Decode(data)
		require.ErrorIs(t, err, ErrCorruptFrame, name)
	}
}

func TestVerifyBody(t *testing.T) {
	t.Parallel()

	b, err := Verify(NewVerifyBody(42, 7734200, "buvid-x", "tok"))
	require.NoError(t, err)

	frames, err := Decode(b)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, PackVerify, frames[0].Pack)

	var got map[string]any
	require.NoError(t, json.Unmarshal(frames[0].Body, &got))
	require.EqualValues(t, 42, got["uid"])
	require.EqualValues(t, 7734200, got["roomid"])
	require.EqualValues(t, 3, got["protover"])
	require.Equal(t, "buvid-x", got["buvid"])
	require.Equal(t, "web", got["platform"])
	require.EqualValues(t, 2, got["type"])
	require.Equal(t, "tok", got["key"])
}
