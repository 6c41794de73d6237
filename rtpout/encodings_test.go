package rtpout

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodePCMByteOrder(t *testing.T) {
	samples := []float32{1.0, -1.0}

	be := EncodePCM(samples, S16BE)
	assert.Equal(t, int16(32767), int16(binary.BigEndian.Uint16(be[0:2])))

	le := EncodePCM(samples, S16LE)
	assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(le[0:2])))
}

func TestEncodePCMF32LERoundTrips(t *testing.T) {
	samples := []float32{0.5, -0.25}
	out := EncodePCM(samples, F32LE)
	assert.Len(t, out, 8)
	bits := binary.LittleEndian.Uint32(out[0:4])
	assert.Equal(t, math.Float32bits(0.5), bits)
}
