package tlv

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutUint(OutputSSRC, 0xdeadbeef)
	w.PutInt(Type(100), -12345)
	w.PutDouble(Type(101), 14074000.5)
	w.PutFloat(Type(102), 3.25)
	w.PutString(Type(103), "usb")
	w.PutByte(Type(104), 1)
	w.PutSocket(Type(105), &net.UDPAddr{IP: net.IPv4(239, 1, 2, 3), Port: 5004})
	w.EOL()

	r := NewReader(w.Bytes())

	f, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, OutputSSRC, f.Type)
	assert.Equal(t, uint64(0xdeadbeef), DecodeUint(f.Value))

	f, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, int64(-12345), DecodeInt(f.Value))

	f, ok = r.Next()
	require.True(t, ok)
	assert.InDelta(t, 14074000.5, DecodeDouble(f.Value), 0.001)

	f, ok = r.Next()
	require.True(t, ok)
	assert.InDelta(t, 3.25, float64(DecodeFloat(f.Value)), 0.001)

	f, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, "usb", DecodeString(f.Value))

	f, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, []byte{1}, f.Value)

	f, ok = r.Next()
	require.True(t, ok)
	addr, err := DecodeSocket(f.Value)
	require.NoError(t, err)
	assert.Equal(t, 5004, addr.Port)
	assert.True(t, addr.IP.Equal(net.IPv4(239, 1, 2, 3)))

	_, ok = r.Next()
	assert.False(t, ok, "reader must stop at EOL")
}

func TestReaderStopsOnMalformedLength(t *testing.T) {
	// A length byte claiming more data than is actually present.
	data := []byte{byte(OutputSSRC), 10, 1, 2, 3}
	r := NewReader(data)
	_, ok := r.Next()
	assert.False(t, ok)
}

func TestPutUintZeroEncodesAsEmptyField(t *testing.T) {
	w := NewWriter()
	w.PutUint(OutputSSRC, 0)
	w.EOL()

	r := NewReader(w.Bytes())
	f, ok := r.Next()
	require.True(t, ok)
	assert.Empty(t, f.Value)
	assert.Equal(t, uint64(0), DecodeUint(f.Value))
}

func TestPutBinDataRoundTrip(t *testing.T) {
	w := NewWriter()
	bins := []float32{1.5, -2.25, 0, 100.125}
	w.PutBinData(Type(110), bins)
	w.EOL()

	r := NewReader(w.Bytes())
	f, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, bins, DecodeBinData(f.Value))
}
