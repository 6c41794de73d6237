package status

import (
	"math/rand"
	"time"

	"github.com/ka9q/radiod/channel"
	"github.com/ka9q/radiod/demod"
	"github.com/ka9q/radiod/tlv"
)

// Responder applies incoming command TLVs to a channel and builds
// outgoing status packets. It is driven from the channel's own demod
// loop, once per block, so all per-channel mutation happens on that
// single goroutine.
type Responder struct {
	GlobalGroupSend func(payload []byte) error
	DataGroupSend   func(ch *channel.Channel, payload []byte) error
}

// ApplyPending drains the channel's mailbox (if anything is pending)
// and applies every TLV in it, returning the command tag to echo back
// and whether a command was taken from the mailbox.
func (r *Responder) ApplyPending(ch *channel.Channel) (tag uint32, responded bool) {
	raw, ok := ch.Mailbox.Take()
	if !ok {
		return 0, false
	}
	if len(raw) < 1 {
		return 0, false
	}

	reader := tlv.NewReader(raw[1:])
	structuralChanged := false
	for {
		f, ok := reader.Next()
		if !ok {
			break
		}
		switch f.Type {
		case tlv.CommandTag:
			tag = uint32(tlv.DecodeUint(f.Value))
		case tlv.RadioFrequency:
			ch.Tuning.RFFrequency = tlv.DecodeDouble(f.Value)
		case tlv.FirstLOFrequency:
			ch.Tuning.FirstLO = tlv.DecodeDouble(f.Value)
		case tlv.LowEdge:
			ch.Filter.Low = float64(tlv.DecodeFloat(f.Value))
			structuralChanged = true
		case tlv.HighEdge:
			ch.Filter.High = float64(tlv.DecodeFloat(f.Value))
			structuralChanged = true
		case tlv.KaiserBeta:
			ch.Filter.KaiserBeta = float64(tlv.DecodeFloat(f.Value))
		case tlv.OutputSampleRate:
			ch.Filter.OutputRate = float64(tlv.DecodeUint(f.Value))
			structuralChanged = true
		case tlv.DemodType:
			newDemod := tlv.DemodID(tlv.DecodeInt(f.Value))
			if channel.Discriminant(newDemod+1) != ch.Discriminant {
				structuralChanged = true
			}
			ch.Discriminant = discriminantFromID(newDemod)
		case tlv.SquelchOpen:
			setSquelchOpen(ch, float64(tlv.DecodeFloat(f.Value)))
		case tlv.SquelchClose:
			setSquelchClose(ch, float64(tlv.DecodeFloat(f.Value)))
		case tlv.Preset:
			ch.PresetName = tlv.DecodeString(f.Value)
		case tlv.DopplerFrequency:
			ch.Tuning.Doppler = tlv.DecodeDouble(f.Value)
		case tlv.DopplerRate:
			ch.Tuning.DopplerRate = tlv.DecodeDouble(f.Value)
		case tlv.StatusInterval:
			ch.OutputInterval = int(tlv.DecodeUint(f.Value))
		}
	}

	if structuralChanged {
		ch.MarkStructuralChange()
	}
	ch.ResetIdle(ch.IdleLifetime)
	return tag, true
}

func discriminantFromID(id tlv.DemodID) channel.Discriminant {
	switch id {
	case tlv.DemodLinear:
		return channel.Linear
	case tlv.DemodFM:
		return channel.FM
	case tlv.DemodWFM:
		return channel.WFM
	case tlv.DemodSpectrum:
		return channel.Spectrum
	default:
		return channel.DiscriminantNone
	}
}

// setSquelchOpen/setSquelchClose reach into the concrete demodulator's
// squelch state; they're no-ops for demod types without one (e.g.
// WFM, SPECTRUM).
func setSquelchOpen(ch *channel.Channel, db float64) {
	if l, ok := demodAs[*demod.Linear](ch); ok {
		l.Squelch.OpenDB = db
	}
	if f, ok := demodAs[*demod.FM](ch); ok {
		f.Squelch.OpenDB = db
	}
}

func setSquelchClose(ch *channel.Channel, db float64) {
	if l, ok := demodAs[*demod.Linear](ch); ok {
		l.Squelch.CloseDB = db
	}
	if f, ok := demodAs[*demod.FM](ch); ok {
		f.Squelch.CloseDB = db
	}
}

// BuildStatus encodes a full status packet for ch, carrying tuning, filter
// geometry, signal estimates and output parameters.
func BuildStatus(ch *channel.Channel, tag uint32) []byte {
	w := tlv.NewWriter()
	w.PutUint(tlv.CommandTag, uint64(tag))
	w.PutUint(tlv.OutputSSRC, uint64(ch.SSRC))
	w.PutDouble(tlv.RadioFrequency, ch.Tuning.RFFrequency)
	w.PutDouble(tlv.FirstLOFrequency, ch.Tuning.FirstLO)
	w.PutFloat(tlv.LowEdge, float32(ch.Filter.Low))
	w.PutFloat(tlv.HighEdge, float32(ch.Filter.High))
	w.PutFloat(tlv.KaiserBeta, float32(ch.Filter.KaiserBeta))
	w.PutUint(tlv.OutputSampleRate, uint64(ch.Filter.OutputRate))
	w.PutInt(tlv.DemodType, int64(idFromDiscriminant(ch.Discriminant)))
	w.PutFloat(tlv.BasebandPower, float32(ch.Estimates.BasebandPower))
	w.PutFloat(tlv.NoiseDensity, float32(ch.Estimates.N0))
	w.PutFloat(tlv.PeakDeviation, float32(ch.Estimates.PeakDeviation))
	w.PutFloat(tlv.PLTone, float32(ch.Estimates.PLToneHz))
	if ch.Estimates.PLLLocked {
		w.PutUint(tlv.PLLLock, 1)
	}
	w.EOL()
	out := make([]byte, 1+len(w.Bytes()))
	out[0] = byte(tlv.PacketStatus)
	copy(out[1:], w.Bytes())
	return out
}

func idFromDiscriminant(d channel.Discriminant) tlv.DemodID {
	switch d {
	case channel.Linear:
		return tlv.DemodLinear
	case channel.FM:
		return tlv.DemodFM
	case channel.WFM:
		return tlv.DemodWFM
	case channel.Spectrum:
		return tlv.DemodSpectrum
	default:
		return tlv.DemodNone
	}
}

// demodAs is a small type-assertion helper: a channel's Demodulator
// carries only Process/Close closures (to avoid the channel package
// depending on demod), so reaching the concrete type for squelch
// tuning goes through a side-channel pointer stashed by the demod
// constructors.
func demodAs[T any](ch *channel.Channel) (T, bool) {
	var zero T
	if ch.Demod == nil {
		return zero, false
	}
	v, ok := ch.Demod.Concrete.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Respond sends the status packet to the global group and the
// channel's own data group.
func (r *Responder) Respond(ch *channel.Channel, tag uint32) error {
	payload := BuildStatus(ch, tag)
	if r.GlobalGroupSend != nil {
		if err := r.GlobalGroupSend(payload); err != nil {
			return err
		}
	}
	if r.DataGroupSend != nil {
		return r.DataGroupSend(ch, payload)
	}
	return nil
}

// StartPeriodic spawns a goroutine emitting a status packet for ch
// every OutputInterval blocks' worth of wall-clock time (approximated
// here by a ticker derived from the block duration, since the
// responder doesn't see block boundaries directly outside the demod
// loop calling DueForStatus).
func (r *Responder) StartPeriodic(stop <-chan struct{}, ch *channel.Channel, blockDur time.Duration) {
	go func() {
		jitter := time.Duration(rand.Int63n(int64(blockDur)))
		time.Sleep(jitter)
		ticker := time.NewTicker(blockDur)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if ch.DueForStatus() {
					_ = r.Respond(ch, 0)
				}
			}
		}
	}()
}
