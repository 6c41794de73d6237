package rtpout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpusAlwaysPinned(t *testing.T) {
	tbl := NewPTTable()
	assert.Equal(t, uint8(OpusPT), tbl.PT(PTKey{SampleRate: 48000, Channels: 2, Encoding: OpusEncoding}))
	assert.Equal(t, uint8(OpusPT), tbl.PT(PTKey{SampleRate: 8000, Channels: 1, Encoding: OpusEncoding}))
}

func TestDynamicAllocationAvoidsOpusAndHundred(t *testing.T) {
	tbl := NewPTTable()
	seen := map[uint8]bool{}
	for i := 0; i < 60; i++ {
		key := PTKey{SampleRate: 12000 + i, Channels: 1, Encoding: S16LE}
		pt := tbl.PT(key)
		assert.NotEqual(t, uint8(100), pt)
		assert.NotEqual(t, uint8(OpusPT), pt)
		assert.False(t, seen[pt] && pt != tbl.PT(key)) // stable on repeat
		seen[pt] = true
	}
}

func TestSameKeyReturnsSamePT(t *testing.T) {
	tbl := NewPTTable()
	key := PTKey{SampleRate: 8000, Channels: 2, Encoding: F32LE}
	first := tbl.PT(key)
	second := tbl.PT(key)
	assert.Equal(t, first, second)
}
