package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIniSectionsAndEntries(t *testing.T) {
	src := `
# a comment
[global]
blocktime = 20
overlap = 5

; another comment
[sdrplay]
device = rx888

[20m]
mode = usb
freq 14074000 14070000
`
	f, err := ParseIni(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, []string{"global", "sdrplay", "20m"}, f.Sections())

	v, ok := f.Get("global", "blocktime")
	require.True(t, ok)
	assert.Equal(t, "20", v)

	v, ok = f.Get("sdrplay", "device")
	require.True(t, ok)
	assert.Equal(t, "rx888", v)

	v, ok = f.Get("20m", "freq")
	require.True(t, ok)
	assert.Equal(t, "14074000 14070000", v)
}

func TestParseIniRepeatedKeyReturnsLast(t *testing.T) {
	src := "[global]\nverbose = 0\nverbose = 2\n"
	f, err := ParseIni(strings.NewReader(src))
	require.NoError(t, err)
	v, ok := f.Get("global", "verbose")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestParseIniAllReturnsEveryOccurrence(t *testing.T) {
	src := "[chan]\nfreq0 = 7000000\nfreq0 = 7010000\n"
	f, err := ParseIni(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"7000000", "7010000"}, f.All("chan", "freq0"))
}

func TestParseIniUnterminatedSectionErrors(t *testing.T) {
	_, err := ParseIni(strings.NewReader("[global\nblocktime=20\n"))
	assert.Error(t, err)
}
