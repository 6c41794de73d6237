package rtpout

import (
	"fmt"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"

	"github.com/ka9q/radiod/mcast"
)

// mtuBudget bounds payload bytes per packet; 1200 leaves headroom under a
// typical 1500-byte Ethernet MTU once IP/UDP/RTP headers are added.
const mtuBudget = 1200

// udpSender is the subset of *mcast.Sender a Sender needs, narrowed
// to an interface so tests can substitute a fake socket.
type udpSender interface {
	Send(payload []byte) (int, error)
	Close() error
}

// Sender packetizes one channel's audio/spectrum output into RTP and
// sends it to the channel's destination multicast group, implementing
// channel.Output.
type Sender struct {
	conn     udpSender
	connDesc string // for log messages only
	pt       uint8
	ssrc     uint32

	seq       uint16
	timestamp uint32
	silentPrev bool
	encoding  Encoding
	sampleRate int

	opus      *OpusEncoder
	rtcp      *RTCPSender

	PacketsSent uint64
	BytesSent   uint64
	SendErrors  uint64
}

// NewSender builds a Sender bound to dest, with pt/ssrc/encoding/rate fixed
// for the channel's lifetime.
func NewSender(conn *mcast.Sender, pt uint8, ssrc uint32, encoding Encoding, sampleRate int, opus *OpusEncoder) *Sender {
	return &Sender{
		conn:       conn,
		connDesc:   conn.Addr.String(),
		pt:         pt,
		ssrc:       ssrc,
		encoding:   encoding,
		sampleRate: sampleRate,
		opus:       opus,
		seq:        uint16(rand.Uint32()),
	}
}

// newSenderWithConn builds a Sender over an arbitrary udpSender,
// bypassing the *mcast.Sender requirement; used by tests.
func newSenderWithConn(conn udpSender, pt uint8, ssrc uint32, encoding Encoding, sampleRate int, opus *OpusEncoder) *Sender {
	return &Sender{
		conn:       conn,
		connDesc:   "test",
		pt:         pt,
		ssrc:       ssrc,
		encoding:   encoding,
		sampleRate: sampleRate,
		opus:       opus,
		seq:        uint16(rand.Uint32()),
	}
}

// SendAudio packetizes and sends one block of audio frames. stereo
// indicates samples are interleaved L/R; otherwise mono.
func (s *Sender) SendAudio(samples []float32, stereo bool) error {
	silent := len(samples) == 0
	marker := silent != s.silentPrev
	s.silentPrev = silent

	frames := len(samples)
	if stereo {
		frames /= 2
	}

	var payload []byte
	if s.encoding == OpusEncoding {
		if s.opus == nil {
			return fmt.Errorf("rtpout: opus encoding selected but no encoder configured")
		}
		pcm := make([]int16, len(samples))
		for i, v := range samples {
			pcm[i] = clampS16(v)
		}
		enc, err := s.opus.Encode(pcm)
		if err != nil {
			return fmt.Errorf("rtpout: opus encode: %w", err)
		}
		payload = enc
		if err := s.sendPacket(payload, marker, uint32(960)); err != nil {
			return err
		}
		return nil
	}

	payload = EncodePCM(samples, s.encoding)
	frameBytes := BytesPerSample(s.encoding)
	if stereo {
		frameBytes *= 2
	}
	if frameBytes == 0 {
		return fmt.Errorf("rtpout: unknown encoding %d", s.encoding)
	}

	framesPerPacket := mtuBudget / frameBytes
	if framesPerPacket < 1 {
		framesPerPacket = 1
	}

	off := 0
	remainingFrames := frames
	first := true
	for remainingFrames > 0 {
		take := framesPerPacket
		if take > remainingFrames {
			take = remainingFrames
		}
		chunk := payload[off : off+take*frameBytes]
		m := marker && first
		if err := s.sendPacket(chunk, m, uint32(take)); err != nil {
			return err
		}
		off += take * frameBytes
		remainingFrames -= take
		first = false
	}
	return nil
}

// AdvanceSilent bumps the RTP timestamp by frames without emitting a
// packet, so a channel squelched for a while still shows the correct
// timestamp gap when it next sends real audio, and the marker bit on
// that first post-silence packet fires correctly.
func (s *Sender) AdvanceSilent(frames int) {
	s.timestamp += uint32(frames)
	s.silentPrev = true
}

// SendSpectrum is a no-op for RTP. It exists so Sender satisfies
// channel.Output for SPECTRUM channels too; the bins passed here are
// dropped, and status.Responder's status packets carry no BIN_DATA.
func (s *Sender) SendSpectrum(bins []float32) error { return nil }

func (s *Sender) sendPacket(payload []byte, marker bool, frameCount uint32) error {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    s.pt,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	buf, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("rtpout: marshal: %w", err)
	}

	s.seq++
	s.timestamp += frameCount

	if _, err := s.conn.Send(buf); err != nil {
		atomic.AddUint64(&s.SendErrors, 1)
		log.Printf("rtpout: send to %s failed: %v", s.connDesc, err)
		return nil // send errors are logged and swallowed, not fatal
	}
	atomic.AddUint64(&s.PacketsSent, 1)
	atomic.AddUint64(&s.BytesSent, uint64(len(buf)))
	return nil
}

// Close releases the underlying multicast socket and stops RTCP.
func (s *Sender) Close() error {
	if s.rtcp != nil {
		s.rtcp.Stop()
	}
	return s.conn.Close()
}

// StartRTCP begins a per-second sender-report goroutine.
func (s *Sender) StartRTCP(conn *mcast.Sender, cname string) {
	s.rtcp = NewRTCPSender(conn, s.ssrc, cname, func() (packets, bytes uint64, rtpTimestamp uint32) {
		return atomic.LoadUint64(&s.PacketsSent), atomic.LoadUint64(&s.BytesSent), s.timestamp
	})
	s.rtcp.Start(time.Second)
}
