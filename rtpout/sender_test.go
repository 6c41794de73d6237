package rtpout

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	sent [][]byte
}

func (f *fakeConn) Send(payload []byte) (int, error) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.sent = append(f.sent, cp)
	return len(cp), nil
}

func (f *fakeConn) Close() error { return nil }

func TestSendAudioMarksSilenceTransition(t *testing.T) {
	conn := &fakeConn{}
	s := newSenderWithConn(conn, 11, 12345, S16BE, 48000, nil)

	require.NoError(t, s.SendAudio(make([]float32, 100), false))
	require.NoError(t, s.SendAudio(nil, false))
	require.NoError(t, s.SendAudio(make([]float32, 100), false))

	require.Len(t, conn.sent, 2) // the empty block emits no packet

	var pkt0, pkt2 rtp.Packet
	require.NoError(t, pkt0.Unmarshal(conn.sent[0]))
	require.NoError(t, pkt2.Unmarshal(conn.sent[1]))
	require.False(t, pkt0.Marker) // first packet: no transition yet
	require.True(t, pkt2.Marker)  // silence->audio transition
}

func TestSendAudioTimestampAdvancesByFrameCount(t *testing.T) {
	conn := &fakeConn{}
	s := newSenderWithConn(conn, 11, 1, S16LE, 48000, nil)

	require.NoError(t, s.SendAudio(make([]float32, 50), false))
	require.NoError(t, s.SendAudio(make([]float32, 30), false))

	var first, second rtp.Packet
	require.NoError(t, first.Unmarshal(conn.sent[0]))
	require.NoError(t, second.Unmarshal(conn.sent[1]))
	require.Equal(t, uint32(0), first.Timestamp)
	require.Equal(t, uint32(50), second.Timestamp)
}
