//go:build opus

package rtpout

import (
	"fmt"
	"log"

	opus "gopkg.in/hraban/opus.v2"
)

// OpusEncoder wraps gopkg.in/hraban/opus.v2, adapted from ubersdr's
// opus_support.go OpusEncoderWrapper: same build-tag gate, same
// bitrate/complexity configuration calls, but no PCM fallback — / classify
// "opus requested but unavailable" as a configuration error, since radiod
// (unlike ubersdr, a client with a separate transport to fall back to)
// has nowhere else to send the audio.
type OpusEncoder struct {
	enc         *opus.Encoder
	sampleRate  int
	channels    int
	frameSize   int
	application opus.Application
}

// OpusParams configures the encoder.
type OpusParams struct {
	Bitrate     int
	Application int // maps to opus.Application
	DTX         bool
	FEC         bool
	Complexity  int
}

// NewOpusEncoder builds an encoder for the Opus virtual format, returning an
// error rather than falling back to PCM when initialization fails.
func NewOpusEncoder(p OpusParams) (*OpusEncoder, error) {
	app := opus.AppVoIP
	switch p.Application {
	case 2048:
		app = opus.AppAudio
	case 2051:
		app = opus.AppRestrictedLowdelay
	}

	enc, err := opus.NewEncoder(48000, 2, app)
	if err != nil {
		return nil, fmt.Errorf("rtpout: opus encoder init: %w", err)
	}
	if p.Bitrate > 0 {
		if err := enc.SetBitrate(p.Bitrate); err != nil {
			log.Printf("rtpout: opus set bitrate: %v", err)
		}
	}
	if p.Complexity > 0 {
		if err := enc.SetComplexity(p.Complexity); err != nil {
			log.Printf("rtpout: opus set complexity: %v", err)
		}
	}
	if err := enc.SetDTX(p.DTX); err != nil {
		log.Printf("rtpout: opus set dtx: %v", err)
	}
	if err := enc.SetInBandFEC(p.FEC); err != nil {
		log.Printf("rtpout: opus set fec: %v", err)
	}

	return &OpusEncoder{enc: enc, sampleRate: 48000, channels: 2, frameSize: 960, application: app}, nil
}

// Encode runs one Opus frame over stereo-interleaved int16 PCM, matching
// ubersdr's own int16-in/bytes-out Encode contract.
func (o *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, 4000)
	n, err := o.enc.Encode(pcm, out)
	if err != nil {
		return nil, fmt.Errorf("rtpout: opus encode: %w", err)
	}
	return out[:n], nil
}
