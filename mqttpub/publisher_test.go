package mqttpub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ka9q/radiod/channel"
)

func TestModeNameCoversEveryDiscriminant(t *testing.T) {
	assert.Equal(t, "linear", modeName(channel.Linear))
	assert.Equal(t, "fm", modeName(channel.FM))
	assert.Equal(t, "wfm", modeName(channel.WFM))
	assert.Equal(t, "spectrum", modeName(channel.Spectrum))
	assert.Equal(t, "none", modeName(channel.DiscriminantNone))
}

func TestGenerateClientIDIsUniqueAndPrefixed(t *testing.T) {
	a, b := generateClientID(), generateClientID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "radiod_")
}

func TestLoadTLSConfigDisabledReturnsNil(t *testing.T) {
	tc, err := loadTLSConfig(TLSConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, tc)
}

func TestLoadTLSConfigMissingCAFileErrors(t *testing.T) {
	_, err := loadTLSConfig(TLSConfig{Enabled: true, CACert: "/nonexistent/ca.pem"})
	assert.Error(t, err)
}

func TestChannelStatusMarshalsExpectedFields(t *testing.T) {
	status := channelStatus{
		Timestamp:     1000,
		SSRC:          42,
		Frequency:     7040000,
		Mode:          "linear",
		BasebandPower: -30,
	}
	data, err := json.Marshal(status)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(42), decoded["ssrc"])
	assert.Equal(t, "linear", decoded["mode"])
	assert.NotContains(t, decoded, "preset")
}
