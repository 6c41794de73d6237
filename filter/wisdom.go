package filter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// WisdomEntry records one FFT size this process has already planned,
// so a restart can skip FFTW-style plan warm-up time. gonum's FFT has
// no plan-warm-up cost of its own, but ka9q-radio's wisdom file
// concept is kept as a cache of
// which (N, real/complex) combinations were seen last run, letting
// radiod pre-size its FFT objects at startup instead of on first use
// by a channel.
type WisdomEntry struct {
	N    int  `yaml:"n"`
	Real bool `yaml:"real"`
}

// WisdomManifest is the sidecar file's top-level shape: a version and a
// list of entries. It holds no plan data blob.
type WisdomManifest struct {
	Version int           `yaml:"version"`
	Entries []WisdomEntry `yaml:"entries"`
}

// LoadWisdom reads a wisdom manifest from path. A missing file is not
// an error: it just means no sizes have been recorded yet.
func LoadWisdom(path string) (*WisdomManifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &WisdomManifest{Version: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filter: read wisdom %s: %w", path, err)
	}
	var m WisdomManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("filter: parse wisdom %s: %w", path, err)
	}
	return &m, nil
}

// SaveWisdom writes the manifest back to path, recording which FFT
// sizes are now in active use.
func SaveWisdom(path string, m *WisdomManifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("filter: marshal wisdom: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("filter: mkdir for wisdom: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Record adds (n, real) to the manifest if not already present.
func (m *WisdomManifest) Record(n int, real bool) {
	for _, e := range m.Entries {
		if e.N == n && e.Real == real {
			return
		}
	}
	m.Entries = append(m.Entries, WisdomEntry{N: n, Real: real})
}

// CompressBlob zstd-compresses an arbitrary plan blob for storage
// alongside the manifest (used when a future native FFT backend
// exports real wisdom data; gonum's FFT has none today, so this is
// exercised by tests with synthetic payloads).
func CompressBlob(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("filter: zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// DecompressBlob reverses CompressBlob.
func DecompressBlob(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("filter: zstd reader: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
