// Package config loads radiod's on-disk configuration: the INI-style
// global/hardware/channel file and the YAML presets bundle (the
// wisdom-cache manifest is handled by package filter, not here).
// Everything is read once at startup into an
// immutable EngineConfig; per-channel mutable knobs (gain, squelch)
// live on channel.Channel itself, not here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FFTPlanLevel mirrors the fftw-style planning effort knob carried in
// [global] for compatibility with existing config files, even though
// gonum's FFT has no plan-warm-up phase to tune.
type FFTPlanLevel int

const (
	PlanEstimate FFTPlanLevel = iota
	PlanMeasure
	PlanPatient
	PlanExhaustive
	PlanWisdomOnly
)

func parsePlanLevel(s string) (FFTPlanLevel, error) {
	switch strings.ToLower(s) {
	case "", "estimate":
		return PlanEstimate, nil
	case "measure":
		return PlanMeasure, nil
	case "patient":
		return PlanPatient, nil
	case "exhaustive":
		return PlanExhaustive, nil
	case "wisdom-only":
		return PlanWisdomOnly, nil
	default:
		return 0, fmt.Errorf("config: unknown fft-plan-level %q", s)
	}
}

// Global holds the [global] section's engine-wide parameters.
type Global struct {
	BlocktimeMs         float64
	Overlap             int
	FFTThreads          int
	FFTInternalThreads  int
	FFTPlanLevel        FFTPlanLevel
	WisdomFile          string
	PresetsFile         string
	Hardware            string
	StatusGroup         string
	DataGroup           string
	Iface               string
	TTL                 int
	TOS                 int
	RTCP                bool
	SAP                 bool
	UpdateBlocks        int
	DNS                 bool
	Static              bool
	Affinity            string
	Verbose             int
	DefaultPreset       string
	Description         string
}

// EngineConfig is the fully-parsed, immutable configuration radiod is
// wired from at startup.
type EngineConfig struct {
	Global    Global
	Hardware  []IniEntry // raw [<hardware-name>] entries, consumed by the driver
	Channels  []ChannelSpec
}

// Load reads and parses an INI config file from path into an
// EngineConfig. It does not load the presets or wisdom files — callers
// fetch those separately via LoadPresets/filter.LoadWisdom once
// Global.PresetsFile/WisdomFile are known.
func Load(path string) (*EngineConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	ini, err := ParseIni(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	g, err := parseGlobal(ini)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	cfg := &EngineConfig{Global: g}
	if g.Hardware != "" {
		cfg.Hardware = ini.Entries(g.Hardware)
	}

	reserved := map[string]bool{"": true, "global": true, g.Hardware: true}
	for _, section := range ini.Sections() {
		if reserved[section] {
			continue
		}
		spec, err := parseChannelSpec(section, ini)
		if err != nil {
			return nil, fmt.Errorf("config: section [%s]: %w", section, err)
		}
		cfg.Channels = append(cfg.Channels, spec)
	}
	return cfg, nil
}

func parseGlobal(ini *IniFile) (Global, error) {
	g := Global{
		BlocktimeMs:  20,
		Overlap:      5,
		TTL:          1,
		UpdateBlocks: 25,
	}
	get := func(k string) (string, bool) { return ini.Get("global", k) }

	if v, ok := get("blocktime"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return g, fmt.Errorf("blocktime: %w", err)
		}
		g.BlocktimeMs = f
	}
	if v, ok := get("overlap"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return g, fmt.Errorf("overlap: %w", err)
		}
		g.Overlap = n
	}
	if v, ok := get("fft-threads"); ok {
		g.FFTThreads, _ = strconv.Atoi(v)
	}
	if v, ok := get("fft-internal-threads"); ok {
		g.FFTInternalThreads, _ = strconv.Atoi(v)
	}
	if v, ok := get("fft-plan-level"); ok {
		lvl, err := parsePlanLevel(v)
		if err != nil {
			return g, err
		}
		g.FFTPlanLevel = lvl
	}
	g.WisdomFile, _ = get("wisdom-file")
	g.PresetsFile, _ = get("presets-file")
	g.Hardware, _ = get("hardware")
	g.StatusGroup, _ = get("status")
	g.DataGroup, _ = get("data")
	g.Iface, _ = get("iface")
	if v, ok := get("ttl"); ok {
		g.TTL, _ = strconv.Atoi(v)
	}
	if v, ok := get("tos"); ok {
		g.TOS, _ = strconv.Atoi(v)
	}
	g.RTCP = boolKey(get("rtcp"))
	g.SAP = boolKey(get("sap"))
	if v, ok := get("update"); ok {
		g.UpdateBlocks, _ = strconv.Atoi(v)
	}
	g.DNS = boolKey(get("dns"))
	g.Static = boolKey(get("static"))
	g.Affinity, _ = get("affinity")
	if v, ok := get("verbose"); ok {
		g.Verbose, _ = strconv.Atoi(v)
	}
	if v, ok := get("mode"); ok {
		g.DefaultPreset = v
	}
	if v, ok := get("preset"); ok {
		g.DefaultPreset = v
	}
	g.Description, _ = get("description")

	if g.Hardware == "" {
		return g, fmt.Errorf("missing required hardware key")
	}
	return g, nil
}

func boolKey(v string, ok bool) bool {
	if !ok {
		return false
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on", "":
		return true
	default:
		return false
	}
}
