// Package tlv implements the type-length-value status/command encoding
// shared by radiod's control and status multicast groups.
package tlv

// Type is a TLV tag, as carried on the status/command wire format.
// Tag numbers below 128 are pinned to match the ones ubersdr's own
// client (radiod_status.go, radiod.go) already decodes/encodes
// bit-for-bit; the rest are assigned our own non-colliding values.
type Type byte

const (
	EOL        Type = 0
	CommandTag Type = 1
	CmdCount   Type = 2
	GPSTime    Type = 3
	Description Type = 4

	// Output/destination
	OutputDataDestSocket Type = 15
	OutputSSRC           Type = 18
	OutputTTL            Type = 19
	OutputSampleRate     Type = 20
	OutputChannels       Type = 21
	OutputEncoding       Type = 22

	// Front-end / gain chain
	LNAGain          Type = 30
	MixerGain        Type = 31
	IFGain           Type = 32
	IFPower          Type = 47
	BasebandPower    Type = 48
	NoiseDensity     Type = 49
	RFAtten          Type = 96
	RFGain           Type = 97
	RFAGC            Type = 98
	ADOver           Type = 103
	SamplesSinceOver Type = 107

	// Tuning / filter geometry
	RadioFrequency   Type = 33
	FirstLOFrequency Type = 34
	LowEdge          Type = 39
	HighEdge         Type = 40
	KaiserBeta       Type = 41
	FilterBlocksize  Type = 42
	FilterFIRLength  Type = 43
	DopplerFrequency Type = 44
	DopplerRate      Type = 45
	Shift            Type = 46

	// Demod type and per-mode state
	DemodType    Type = 50
	PLLEnable    Type = 55
	PLLLock      Type = 56
	PLLBW        Type = 57
	PLLPhase     Type = 58
	PLLSquare    Type = 59
	EnvelopeMode Type = 60
	ISBMode      Type = 61

	AGCEnable       Type = 65
	Headroom        Type = 66
	AGCHangTime     Type = 67
	AGCRecoveryRate Type = 68
	AGCThreshold    Type = 69
	Gain            Type = 70

	SquelchOpen  Type = 83
	SquelchClose Type = 84
	SNRSquelch   Type = 92

	DeemphTC       Type = 71
	DeemphGain     Type = 72
	FMThreshExtend Type = 73
	PLTone         Type = 74
	PLDeviation    Type = 75
	PeakDeviation  Type = 76

	Preset Type = 85

	BinCount         Type = 94
	BinData          Type = 95
	NoncoherentBinBW Type = 93
	SpectrumWindow   Type = 99
	SpectrumShape    Type = 100
	Crossover        Type = 101

	OpusBitRate    Type = 102
	OpusApplication Type = 104
	OpusDTX        Type = 105
	OpusFEC        Type = 108

	SetOpts        Type = 109
	ClearOpts      Type = 110
	Filter2        Type = 111
	MinPacket      Type = 112
	StatusInterval Type = 106

	// Signal estimates not already listed
	PLLSNR Type = 113
)

// Encoding is the payload sample format carried in the OutputEncoding TLV.
type Encoding byte

const (
	EncodingNone  Encoding = 0
	EncodingS16LE Encoding = 1
	EncodingS16BE Encoding = 2
	EncodingOpus  Encoding = 3
	EncodingF32LE Encoding = 4
	EncodingAX25  Encoding = 5
	EncodingF16LE Encoding = 6
)

// DemodID identifies which demodulator a channel is running.
type DemodID int32

const (
	DemodLinear   DemodID = 0
	DemodFM       DemodID = 1
	DemodWFM      DemodID = 2
	DemodSpectrum DemodID = 3
	// DemodNone tells a channel to stop processing and close.
	DemodNone DemodID = -1
)

// PacketKind is the first byte of every status/command packet.
type PacketKind byte

const (
	PacketStatus  PacketKind = 0
	PacketCommand PacketKind = 1
)
