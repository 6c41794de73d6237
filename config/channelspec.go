package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelSpec is one `[<channel-section>]` of the config file: a
// template of demodulator/filter parameters plus the frequency
// listings that expand it into one or more concrete channels at
// startup, each keyed by an SSRC derived from its frequency.
type ChannelSpec struct {
	Name string

	Mode         string
	SampleRate   int
	Channels     int
	Low, High    float64
	Shift        float64
	SquelchOpen  float64
	SquelchClose float64
	KaiserBeta   float64
	PLL          bool
	AGC          bool
	Headroom     float64
	RecoveryRate float64
	HangTime     float64
	Threshold    bool
	Gain         float64
	Envelope     bool
	Pacing       bool
	TTL          int
	Encoding     string
	DeemphTC     float64
	DeemphGain   float64
	Tones        [10]float64 // pl/ctcss/tone0..9

	Frequencies []ExpandedFreq
}

// ExpandedFreq is one concrete frequency generated from a channel
// section's freq/raster/except listings, paired with its derived SSRC.
type ExpandedFreq struct {
	Hz   float64
	SSRC uint32
}

func parseChannelSpec(name string, ini *IniFile) (ChannelSpec, error) {
	s := ChannelSpec{Name: name, SampleRate: 48000, KaiserBeta: 5}
	get := func(k string) (string, bool) { return ini.Get(name, k) }

	s.Mode, _ = get("mode")
	if v, ok := get("samprate"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("samprate: %w", err)
		}
		s.SampleRate = n
	}
	if v, ok := get("channels"); ok {
		s.Channels, _ = strconv.Atoi(v)
	}
	if v, ok := get("low"); ok {
		s.Low, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := get("high"); ok {
		s.High, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := get("shift"); ok {
		s.Shift, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := get("squelch-open"); ok {
		s.SquelchOpen, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := get("squelch-close"); ok {
		s.SquelchClose, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := get("kaiser-beta"); ok {
		s.KaiserBeta, _ = strconv.ParseFloat(v, 64)
	}
	s.PLL = boolKey(get("pll"))
	s.AGC = boolKey(get("agc"))
	if v, ok := get("headroom"); ok {
		s.Headroom, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := get("recovery-rate"); ok {
		s.RecoveryRate, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := get("hang-time"); ok {
		s.HangTime, _ = strconv.ParseFloat(v, 64)
	}
	s.Threshold = boolKey(get("threshold"))
	if v, ok := get("gain"); ok {
		s.Gain, _ = strconv.ParseFloat(v, 64)
	}
	s.Envelope = boolKey(get("envelope"))
	s.Pacing = boolKey(get("pacing"))
	if v, ok := get("ttl"); ok {
		s.TTL, _ = strconv.Atoi(v)
	}
	s.Encoding, _ = get("encoding")
	if v, ok := get("deemph-tc"); ok {
		s.DeemphTC, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := get("deemph-gain"); ok {
		s.DeemphGain, _ = strconv.ParseFloat(v, 64)
	}
	for i := 0; i < 10; i++ {
		keys := []string{fmt.Sprintf("tone%d", i)}
		if i == 0 {
			keys = []string{"pl", "ctcss", "tone0"}
		}
		for _, key := range keys {
			if v, ok := get(key); ok {
				s.Tones[i], _ = strconv.ParseFloat(v, 64)
				break
			}
		}
	}

	freqs, err := expandFrequencies(name, ini)
	if err != nil {
		return s, err
	}
	s.Frequencies = freqs
	return s, nil
}

// expandFrequencies builds the concrete frequency set from `freq`,
// `freq0`..`freq9` (space-separated lists), `raster`, `raster0`..`raster9`
// (`start stop step` triples) and `except`, `except0`..`except9`
// (frequencies removed from the generated set), deriving each
// surviving frequency's SSRC from its value in kHz with a collision
// suffix.
func expandFrequencies(section string, ini *IniFile) ([]ExpandedFreq, error) {
	seen := map[uint32]bool{}
	var out []ExpandedFreq

	add := func(hz float64) {
		ssrc := ssrcFromFreq(hz, seen)
		out = append(out, ExpandedFreq{Hz: hz, SSRC: ssrc})
	}

	suffixes := append([]string{""}, indexSuffixes()...)
	for _, suf := range suffixes {
		excepted := map[float64]bool{}
		for _, v := range ini.All(section, "except"+suf) {
			for _, tok := range strings.Fields(v) {
				f, err := strconv.ParseFloat(tok, 64)
				if err != nil {
					return nil, fmt.Errorf("except%s: %w", suf, err)
				}
				excepted[f] = true
			}
		}

		for _, v := range ini.All(section, "freq"+suf) {
			for _, tok := range strings.Fields(v) {
				f, err := strconv.ParseFloat(tok, 64)
				if err != nil {
					return nil, fmt.Errorf("freq%s: %w", suf, err)
				}
				if !excepted[f] {
					add(f)
				}
			}
		}

		for _, v := range ini.All(section, "raster"+suf) {
			fields := strings.Fields(v)
			if len(fields) != 3 {
				return nil, fmt.Errorf("raster%s: expected \"start stop step\", got %q", suf, v)
			}
			start, err1 := strconv.ParseFloat(fields[0], 64)
			stop, err2 := strconv.ParseFloat(fields[1], 64)
			step, err3 := strconv.ParseFloat(fields[2], 64)
			if err1 != nil || err2 != nil || err3 != nil {
				return nil, fmt.Errorf("raster%s: malformed triple %q", suf, v)
			}
			if step <= 0 {
				return nil, fmt.Errorf("raster%s: step must be positive", suf)
			}
			for f := start; f <= stop+1e-9; f += step {
				if !excepted[f] {
					add(f)
				}
			}
		}
	}
	return out, nil
}

func indexSuffixes() []string {
	out := make([]string, 10)
	for i := 0; i < 10; i++ {
		out[i] = strconv.Itoa(i)
	}
	return out
}

// ssrcFromFreq derives an SSRC from a frequency in kHz, resolving
// collisions by incrementing.
func ssrcFromFreq(hz float64, seen map[uint32]bool) uint32 {
	base := uint32(hz / 1000)
	ssrc := base
	for seen[ssrc] {
		ssrc++
	}
	seen[ssrc] = true
	return ssrc
}
