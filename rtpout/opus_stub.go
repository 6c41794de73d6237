//go:build !opus

package rtpout

import "fmt"

// OpusEncoder stub used when built without the opus build tag
// (`go build -tags opus`), matching ubersdr's opus_stub.go split.
type OpusEncoder struct{}

// OpusParams mirrors the real type so callers compile either way.
type OpusParams struct {
	Bitrate     int
	Application int
	DTX         bool
	FEC         bool
	Complexity  int
}

// NewOpusEncoder always fails: radiod treats an OPUS-encoded channel request
// without opus support built in as a configuration error, not a silent PCM
// downgrade.
func NewOpusEncoder(OpusParams) (*OpusEncoder, error) {
	return nil, fmt.Errorf("rtpout: opus support not built in (rebuild with -tags opus)")
}

// Encode never runs; OpusEncoder is never successfully constructed
// without the opus build tag.
func (o *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	return nil, fmt.Errorf("rtpout: opus support not built in")
}
