package rtpout

import (
	"encoding/binary"
	"time"

	"github.com/ka9q/radiod/mcast"
)

// ntpEpochOffset is the number of seconds between the NTP epoch (1900-01-01)
// and the Unix epoch (1970-01-01), used to build RTCP sender-report NTP
// timestamps.
const ntpEpochOffset = 2208988800

// RTCPSender periodically emits RTCP sender reports for one channel's RTP
// stream.
type RTCPSender struct {
	conn  *mcast.Sender
	ssrc  uint32
	cname string
	stats func() (packets, bytes uint64, rtpTimestamp uint32)

	stop chan struct{}
}

// NewRTCPSender builds an RTCP sender for ssrc, pulling live counters
// from stats on each tick.
func NewRTCPSender(conn *mcast.Sender, ssrc uint32, cname string, stats func() (uint64, uint64, uint32)) *RTCPSender {
	return &RTCPSender{conn: conn, ssrc: ssrc, cname: cname, stats: stats, stop: make(chan struct{})}
}

// Start begins the periodic report goroutine.
func (r *RTCPSender) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				packets, bytes, ts := r.stats()
				pkt := buildSenderReport(r.ssrc, ts, packets, bytes, r.cname)
				_, _ = r.conn.Send(pkt)
			}
		}
	}()
}

// Stop ends the periodic report goroutine.
func (r *RTCPSender) Stop() { close(r.stop) }

// buildSenderReport constructs an RTCP SR packet followed by an SDES
// packet with CNAME/NAME/EMAIL/TOOL items.
func buildSenderReport(ssrc uint32, rtpTimestamp uint32, packets, bytes uint64, cname string) []byte {
	now := time.Now()
	ntpSec := uint32(now.Unix() + ntpEpochOffset)
	ntpFrac := uint32(float64(now.Nanosecond()) / 1e9 * (1 << 32))

	sr := make([]byte, 28)
	sr[0] = 0x80 // version 2, no padding, no reception reports
	sr[1] = 200  // PT=SR
	binary.BigEndian.PutUint16(sr[2:], 6) // length in 32-bit words - 1
	binary.BigEndian.PutUint32(sr[4:], ssrc)
	binary.BigEndian.PutUint32(sr[8:], ntpSec)
	binary.BigEndian.PutUint32(sr[12:], ntpFrac)
	binary.BigEndian.PutUint32(sr[16:], rtpTimestamp)
	binary.BigEndian.PutUint32(sr[20:], uint32(packets))
	binary.BigEndian.PutUint32(sr[24:], uint32(bytes))

	sdes := buildSDES(ssrc, cname)
	return append(sr, sdes...)
}

func buildSDES(ssrc uint32, cname string) []byte {
	items := []struct {
		typ  byte
		text string
	}{
		{1, cname},       // CNAME
		{2, "radiod"},    // NAME
		{3, ""},          // EMAIL
		{6, "radiod/1.0"}, // TOOL
	}

	body := make([]byte, 0, 64)
	body = append(body, make([]byte, 4)...)
	binary.BigEndian.PutUint32(body, ssrc)
	for _, it := range items {
		if it.text == "" {
			continue
		}
		body = append(body, it.typ, byte(len(it.text)))
		body = append(body, []byte(it.text)...)
	}
	body = append(body, 0) // END

	for len(body)%4 != 0 {
		body = append(body, 0)
	}

	header := make([]byte, 4)
	header[0] = 0x81 // version 2, source count = 1
	header[1] = 202  // PT=SDES
	binary.BigEndian.PutUint16(header[2:], uint16(len(body)/4))
	return append(header, body...)
}
