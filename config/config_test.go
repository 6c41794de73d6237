package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "radiod.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesGlobalAndChannelSections(t *testing.T) {
	path := writeConfig(t, `
[global]
blocktime = 20
overlap = 5
hardware = rx888
status = radiod-status.local
data = radiod-data.local
update = 25

[rx888]
device = rx888

[20m-usb]
mode = usb
samprate = 12000
low = 50
high = 2850
kaiser-beta = 6.5
freq 14074000 14070000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20.0, cfg.Global.BlocktimeMs)
	assert.Equal(t, 5, cfg.Global.Overlap)
	assert.Equal(t, "rx888", cfg.Global.Hardware)
	assert.Equal(t, 25, cfg.Global.UpdateBlocks)
	require.Len(t, cfg.Hardware, 1)
	assert.Equal(t, "device", cfg.Hardware[0].Key)

	require.Len(t, cfg.Channels, 1)
	ch := cfg.Channels[0]
	assert.Equal(t, "usb", ch.Mode)
	assert.Equal(t, 12000, ch.SampleRate)
	assert.Equal(t, 6.5, ch.KaiserBeta)
	require.Len(t, ch.Frequencies, 2)
	assert.Equal(t, 14074000.0, ch.Frequencies[0].Hz)
	assert.NotEqual(t, ch.Frequencies[0].SSRC, ch.Frequencies[1].SSRC)
}

func TestLoadRequiresHardwareKey(t *testing.T) {
	path := writeConfig(t, "[global]\nblocktime = 20\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadBlocktime(t *testing.T) {
	path := writeConfig(t, "[global]\nblocktime = notanumber\nhardware = x\n[x]\ndevice=x\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestExpandFrequenciesRasterWithExcept(t *testing.T) {
	path := writeConfig(t, `
[global]
hardware = x
[x]
device = x
[cw]
mode = cw
raster 7000000 7005000 1000
except 7002000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Channels, 1)
	freqs := cfg.Channels[0].Frequencies
	var hz []float64
	for _, f := range freqs {
		hz = append(hz, f.Hz)
	}
	assert.Equal(t, []float64{7000000, 7001000, 7003000, 7004000, 7005000}, hz)
}

func TestSSRCCollisionSuffixIncrements(t *testing.T) {
	path := writeConfig(t, `
[global]
hardware = x
[x]
device = x
[dup]
mode = usb
freq 14000000 14000500
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	freqs := cfg.Channels[0].Frequencies
	require.Len(t, freqs, 2)
	assert.NotEqual(t, freqs[0].SSRC, freqs[1].SSRC)
}
