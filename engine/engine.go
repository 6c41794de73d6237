// Package engine wires the front end, master filter, ring, channel
// registry and per-channel demod loops into one running radiod
// instance. It is the in-process equivalent of ubersdr's main.go
// orchestration, adapted from "one HTTP server wiring a pile of
// handlers" to "one front end wiring a pile of demodulator channels".
package engine

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ka9q/radiod/channel"
	"github.com/ka9q/radiod/config"
	"github.com/ka9q/radiod/demod"
	"github.com/ka9q/radiod/filter"
	"github.com/ka9q/radiod/frontend"
	"github.com/ka9q/radiod/mcast"
	"github.com/ka9q/radiod/metrics"
	"github.com/ka9q/radiod/ring"
	"github.com/ka9q/radiod/rtpout"
	"github.com/ka9q/radiod/status"
)

// TransitionBins is the Kaiser taper width, in master FFT bins, applied
// to every channel passband edge.
const TransitionBins = 8

// ringDepth is the number of blocks the frequency-domain ring keeps,
// giving a slow channel goroutine a little slack before it must
// resynchronize to the current block.
const ringDepth = 8

// Engine owns every running piece of one radiod process.
type Engine struct {
	cfg      *config.EngineConfig
	presets  map[string]config.Preset
	driver   frontend.Driver
	state    *frontend.State
	master   *filter.Master
	ring     *ring.Ring
	registry *channel.Registry
	ptTable  *rtpout.PTTable
	status   *status.Server
	resp     *status.Responder

	iface *net.Interface

	mu       sync.Mutex
	chanStop map[uint32]context.CancelFunc

	metrics *metrics.Registry

	Terminate bool
}

// New builds an Engine from a loaded configuration and front-end
// driver, but does not yet start streaming; call Start for that.
func New(cfg *config.EngineConfig, presets map[string]config.Preset, driver frontend.Driver) (*Engine, error) {
	state := frontend.NewState()
	if err := driver.Setup(state, iniStringMap(cfg.Hardware)); err != nil {
		return nil, fmt.Errorf("engine: front end setup: %w", err)
	}

	l := int(state.SampleRate * cfg.Global.BlocktimeMs / 1000)
	if l <= 0 {
		l = 960
	}
	m := l/cfg.Global.Overlap + 1
	if m < 2 {
		m = 2
	}

	r := ring.New(ringDepth, l+m-1)
	master, err := filter.NewMaster(state.SampleRate, l, m, state.Format == frontend.Real, r)
	if err != nil {
		return nil, fmt.Errorf("engine: master filter: %w", err)
	}

	registry := channel.NewRegistry(4096)
	ptTable := rtpout.NewPTTable()

	var iface *net.Interface
	if cfg.Global.Iface != "" {
		iface, err = net.InterfaceByName(cfg.Global.Iface)
		if err != nil {
			return nil, fmt.Errorf("engine: interface %s: %w", cfg.Global.Iface, err)
		}
	}

	e := &Engine{
		cfg:      cfg,
		presets:  presets,
		driver:   driver,
		state:    state,
		master:   master,
		ring:     r,
		registry: registry,
		ptTable:  ptTable,
		iface:    iface,
		chanStop: make(map[uint32]context.CancelFunc),
	}

	e.resp = &status.Responder{
		GlobalGroupSend: e.sendGlobalStatus,
		DataGroupSend:   e.sendDataStatus,
	}
	e.status = status.NewServer(registry, e.newChannelFromFactory)
	e.status.Created = func(ch *channel.Channel) {
		if err := e.startChannel(ch, e.defaultSpec()); err != nil {
			log.Printf("engine: start auto-created channel ssrc %d: %v", ch.SSRC, err)
		}
	}

	return e, nil
}

func iniStringMap(entries []config.IniEntry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m
}

// Start begins streaming: front-end driver, status receiver, and one
// goroutine per configured channel.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.driver.Start(ctx, e.state, e.master); err != nil {
		return fmt.Errorf("engine: front end start: %w", err)
	}

	statusAddr, err := mcast.ResolveGroup(e.cfg.Global.StatusGroup)
	if err != nil {
		return fmt.Errorf("engine: status group: %w", err)
	}
	statusConn, err := mcast.NewReceiver(ctx, statusAddr, e.iface, 0)
	if err != nil {
		return fmt.Errorf("engine: status receiver: %w", err)
	}
	go func() {
		if err := e.status.Run(ctx, statusConn); err != nil {
			log.Printf("engine: status server stopped: %v", err)
		}
	}()

	for _, spec := range e.cfg.Channels {
		spec := spec
		for _, f := range spec.Frequencies {
			if _, err := e.createChannel(spec, f.Hz, f.SSRC); err != nil {
				log.Printf("engine: create channel for %.0f Hz: %v", f.Hz, err)
			}
		}
	}

	return nil
}

// Stop closes the ring (waking every blocked channel goroutine) and
// cancels every per-channel context.
func (e *Engine) Stop() {
	e.Terminate = true
	e.ring.Close()
	e.mu.Lock()
	for _, cancel := range e.chanStop {
		cancel()
	}
	e.mu.Unlock()
}

// Registry exposes the channel registry for status/admin consumers
// (mcpapi, wsadmin, mqttpub, metrics).
func (e *Engine) Registry() *channel.Registry { return e.registry }

// AttachMetrics starts a background sampler feeding reg from this
// engine's live state: active channel count, FFT block and front-end
// sample/overrange counters (derived as deltas, since the underlying
// counters are cumulative), and per-channel RTP counters.
func (e *Engine) AttachMetrics(ctx context.Context, reg *metrics.Registry, interval time.Duration) {
	e.metrics = reg
	go func() {
		var lastBlocks uint64
		var lastSamples, lastOverranges uint64
		rtpSeen := make(map[uint32]struct{ packets, bytes, errs uint64 })

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			reg.ActiveChannels.Set(float64(e.registry.ActiveCount()))

			blocks := e.master.BlockNum()
			if blocks > lastBlocks {
				delta := blocks - lastBlocks
				reg.FFTBlocksTotal.Add(float64(delta))
				reg.FFTBlockRate.Set(float64(delta) / interval.Seconds())
				lastBlocks = blocks
			}

			snap := e.state.Snapshot()
			if snap.Samples > lastSamples {
				reg.FrontendSamplesTotal.Add(float64(snap.Samples - lastSamples))
				lastSamples = snap.Samples
			}
			if snap.Overranges > lastOverranges {
				reg.FrontendOverranges.Add(float64(snap.Overranges - lastOverranges))
				lastOverranges = snap.Overranges
			}

			for _, ch := range e.registry.All() {
				sender, ok := ch.Output.(*rtpout.Sender)
				if !ok {
					continue
				}
				label := fmt.Sprintf("%d", ch.SSRC)
				prev := rtpSeen[ch.SSRC]
				packets := atomic.LoadUint64(&sender.PacketsSent)
				bytesSent := atomic.LoadUint64(&sender.BytesSent)
				errs := atomic.LoadUint64(&sender.SendErrors)
				if packets > prev.packets {
					reg.RTPPacketsSent.WithLabelValues(label).Add(float64(packets - prev.packets))
				}
				if bytesSent > prev.bytes {
					reg.RTPBytesSent.WithLabelValues(label).Add(float64(bytesSent - prev.bytes))
				}
				if errs > prev.errs {
					reg.RTPSendErrors.WithLabelValues(label).Add(float64(errs - prev.errs))
				}
				rtpSeen[ch.SSRC] = struct{ packets, bytes, errs uint64 }{packets, bytesSent, errs}
			}
		}
	}()
}

// defaultSpec builds the channel template used when a command
// references an SSRC with no existing channel.
func (e *Engine) defaultSpec() config.ChannelSpec {
	spec := config.ChannelSpec{Mode: e.cfg.Global.DefaultPreset, SampleRate: 48000, Low: 50, High: 2850, KaiserBeta: 5}
	if p, ok := e.presets[e.cfg.Global.DefaultPreset]; ok {
		applyPreset(&spec, p)
	}
	if spec.Mode == "" {
		spec.Mode = "usb"
	}
	return spec
}

// newChannelFromFactory adapts the construct-only half of channel
// creation to status.ChannelFactory. It must not touch the registry:
// it runs synchronously inside Registry.LookupOrCreate, before the
// new channel's SSRC has even been assigned. The Output sender and
// demod goroutine are wired up afterward, from the Created hook.
func (e *Engine) newChannelFromFactory(ssrc uint32) *channel.Channel {
	ch, err := e.constructChannel(e.defaultSpec(), 0)
	if err != nil {
		log.Printf("engine: auto-create channel ssrc %d: %v", ssrc, err)
		return &channel.Channel{}
	}
	return ch
}

// CreateFromMCP builds, registers and starts a new channel from an
// MCP create_channel request, translating it into the same
// config.ChannelSpec path used for a config-file channel, with ssrc 0
// (auto-assign).
func (e *Engine) CreateFromMCP(frequency float64, mode, presetName string, lowEdge, highEdge, kaiserBeta float64) (*channel.Channel, error) {
	spec := config.ChannelSpec{Mode: mode, SampleRate: 48000, KaiserBeta: kaiserBeta}
	if presetName != "" {
		if p, ok := e.presets[presetName]; ok {
			applyPreset(&spec, p)
		}
	}
	if spec.Mode == "" {
		spec.Mode = e.cfg.Global.DefaultPreset
	}
	if lowEdge != 0 {
		spec.Low = lowEdge
	}
	if highEdge != 0 {
		spec.High = highEdge
	}
	if spec.High <= spec.Low {
		spec.Low, spec.High = 50, 2850
	}
	if spec.KaiserBeta == 0 {
		spec.KaiserBeta = 5
	}

	ch, err := e.constructChannel(spec, frequency)
	if err != nil {
		return nil, err
	}
	created, _, err := e.registry.LookupOrCreate(0, func(uint32) *channel.Channel { return ch })
	if err != nil {
		return nil, err
	}
	ch = created
	if err := e.startChannel(ch, spec); err != nil {
		return nil, err
	}
	return ch, nil
}

func applyPreset(spec *config.ChannelSpec, p config.Preset) {
	if p.Mode != "" {
		spec.Mode = p.Mode
	}
	if p.Low != 0 {
		spec.Low = p.Low
	}
	if p.High != 0 {
		spec.High = p.High
	}
	if p.KaiserBeta != 0 {
		spec.KaiserBeta = p.KaiserBeta
	}
	if p.SquelchOpen != 0 {
		spec.SquelchOpen = p.SquelchOpen
	}
	if p.SquelchClose != 0 {
		spec.SquelchClose = p.SquelchClose
	}
	if p.AGC {
		spec.AGC = true
	}
	if p.Headroom != 0 {
		spec.Headroom = p.Headroom
	}
	if p.DeemphTC != 0 {
		spec.DeemphTC = p.DeemphTC
	}
	if p.Encoding != "" {
		spec.Encoding = p.Encoding
	}
}

// createChannel builds, registers and starts a channel from a
// config-file channel section for one expanded frequency.
func (e *Engine) createChannel(spec config.ChannelSpec, freqHz float64, ssrc uint32) (*channel.Channel, error) {
	ch, err := e.constructChannel(spec, freqHz)
	if err != nil {
		return nil, err
	}
	created, _, err := e.registry.LookupOrCreate(ssrc, func(uint32) *channel.Channel { return ch })
	if err != nil {
		return nil, err
	}
	ch = created
	if err := e.startChannel(ch, spec); err != nil {
		return nil, err
	}
	return ch, nil
}

// constructChannel builds an unregistered channel's demodulator and
// filter slot. It performs no registry or network I/O, so it is safe
// to call from inside a Registry.LookupOrCreate callback.
func (e *Engine) constructChannel(spec config.ChannelSpec, freqHz float64) (*channel.Channel, error) {
	demodulator, discriminant, err := newDemodulator(spec)
	if err != nil {
		return nil, err
	}

	sampleRate := float64(spec.SampleRate)
	slot, err := filter.NewSlot(e.state.SampleRate, e.master.N, e.master.V, spec.Low, spec.High, sampleRate, spec.KaiserBeta)
	if err != nil {
		return nil, err
	}

	snap := e.state.Snapshot()
	return &channel.Channel{
		CreatedAt:    time.Now(),
		Discriminant: discriminant,
		PresetName:   spec.Mode,
		Demod:        demodulator,
		Slot:         slot,
		IdleLifetime: e.cfg.Global.UpdateBlocks * 60,
		Tuning:       channel.Tuning{RFFrequency: freqHz, FirstLO: snap.CenterFreq},
		Filter:       channel.FilterGeometry{Low: spec.Low, High: spec.High, KaiserBeta: spec.KaiserBeta, OutputRate: sampleRate},
	}, nil
}

// startChannel builds a channel's RTP output and launches its demod
// and periodic-status goroutines. ch must already be registered (its
// SSRC assigned) before this is called.
func (e *Engine) startChannel(ch *channel.Channel, spec config.ChannelSpec) error {
	sender, err := e.newSender(ch, spec)
	if err != nil {
		return err
	}
	ch.Output = sender
	if e.metrics != nil {
		e.metrics.ChannelsTotal.Inc()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.chanStop[ch.SSRC] = cancel
	e.mu.Unlock()

	go e.runChannel(ctx, ch)
	e.resp.StartPeriodic(ctx.Done(), ch, time.Duration(e.cfg.Global.BlocktimeMs*float64(time.Millisecond)))
	return nil
}

func newDemodulator(spec config.ChannelSpec) (*channel.Demodulator, channel.Discriminant, error) {
	switch spec.Mode {
	case "usb":
		l := demod.NewLinear(demod.ModeUSB)
		l.Squelch.OpenDB, l.Squelch.CloseDB = spec.SquelchOpen, spec.SquelchClose
		return l.Demodulator(), channel.Linear, nil
	case "lsb":
		l := demod.NewLinear(demod.ModeLSB)
		l.Squelch.OpenDB, l.Squelch.CloseDB = spec.SquelchOpen, spec.SquelchClose
		return l.Demodulator(), channel.Linear, nil
	case "cw":
		l := demod.NewLinear(demod.ModeCW)
		l.Squelch.OpenDB, l.Squelch.CloseDB = spec.SquelchOpen, spec.SquelchClose
		return l.Demodulator(), channel.Linear, nil
	case "am":
		l := demod.NewLinear(demod.ModeAM)
		return l.Demodulator(), channel.Linear, nil
	case "dsb":
		l := demod.NewLinear(demod.ModeDSB)
		return l.Demodulator(), channel.Linear, nil
	case "isb":
		l := demod.NewLinear(demod.ModeISB)
		return l.Demodulator(), channel.Linear, nil
	case "fm":
		f := demod.NewFM()
		f.Squelch.OpenDB, f.Squelch.CloseDB = spec.SquelchOpen, spec.SquelchClose
		return f.Demodulator(), channel.FM, nil
	case "wfm":
		w := demod.NewWFM(float64(spec.SampleRate))
		return w.Demodulator(), channel.WFM, nil
	case "spectrum":
		s := demod.NewSpectrum(maxInt(spec.Channels, 64), 1000, 1.0)
		return s.Demodulator(), channel.Spectrum, nil
	default:
		return nil, channel.DiscriminantNone, fmt.Errorf("engine: unknown demodulator mode %q", spec.Mode)
	}
}

func (e *Engine) newSender(ch *channel.Channel, spec config.ChannelSpec) (*rtpout.Sender, error) {
	groupName := fmt.Sprintf("radiod-%d", ch.SSRC)
	addr := mcast.MakeMaddr(groupName)
	udpAddr := &net.UDPAddr{IP: addr, Port: 5004}

	conn, err := mcast.NewSender(udpAddr, e.iface, spec.TTL)
	if err != nil {
		return nil, fmt.Errorf("engine: data sender for ssrc %d: %w", ch.SSRC, err)
	}

	enc := encodingFromName(spec.Encoding)
	channels := 1
	if enc == rtpout.OpusEncoding {
		channels = 2
	}
	pt := e.ptTable.PT(rtpout.PTKey{SampleRate: spec.SampleRate, Channels: channels, Encoding: enc})

	var opusEnc *rtpout.OpusEncoder
	if enc == rtpout.OpusEncoding {
		opusEnc, err = rtpout.NewOpusEncoder(rtpout.OpusParams{Bitrate: 32000})
		if err != nil {
			return nil, fmt.Errorf("engine: opus encoder for ssrc %d: %w", ch.SSRC, err)
		}
	}

	sender := rtpout.NewSender(conn, pt, ch.SSRC, enc, spec.SampleRate, opusEnc)
	sender.StartRTCP(conn, fmt.Sprintf("radiod-%d", ch.SSRC))
	return sender, nil
}

func encodingFromName(name string) rtpout.Encoding {
	switch name {
	case "s16le":
		return rtpout.S16LE
	case "f32le":
		return rtpout.F32LE
	case "f16le":
		return rtpout.F16LE
	case "opus":
		return rtpout.OpusEncoding
	default:
		return rtpout.S16BE
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// runChannel drives one channel's per-block loop: apply any pending
// command, downconvert the next master block, demodulate it, repeat
// until the ring is closed or ctx is canceled.
func (e *Engine) runChannel(ctx context.Context, ch *channel.Channel) {
	defer func() {
		if err := e.registry.Close(ch); err != nil {
			log.Printf("engine: close channel ssrc %d: %v", ch.SSRC, err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if tag, responded := e.resp.ApplyPending(ch); responded {
			if err := e.resp.Respond(ch, tag); err != nil {
				log.Printf("engine: respond ssrc %d: %v", ch.SSRC, err)
			}
		}

		if expired := ch.TickIdle(); expired {
			return
		}

		centerOffset := ch.Tuning.IFFrequency()
		baseband, _, closed, err := ch.Slot.Advance(e.ring, centerOffset, TransitionBins)
		if closed {
			return
		}
		if err != nil {
			log.Printf("engine: channel ssrc %d downconvert: %v", ch.SSRC, err)
			continue
		}

		if ch.Demod != nil && ch.Demod.Process != nil {
			if err := ch.Demod.Process(ch, baseband); err != nil {
				log.Printf("engine: channel ssrc %d demod: %v", ch.SSRC, err)
				return
			}
		}
	}
}

func (e *Engine) sendGlobalStatus(payload []byte) error {
	addr, err := mcast.ResolveGroup(e.cfg.Global.StatusGroup)
	if err != nil {
		return err
	}
	conn, err := mcast.NewSender(addr, e.iface, e.cfg.Global.TTL)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Send(payload)
	return err
}

func (e *Engine) sendDataStatus(ch *channel.Channel, payload []byte) error {
	groupName := fmt.Sprintf("radiod-%d", ch.SSRC)
	addr := mcast.MakeMaddr(groupName)
	conn, err := mcast.NewSender(&net.UDPAddr{IP: addr, Port: 5004}, e.iface, e.cfg.Global.TTL)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Send(payload)
	return err
}
