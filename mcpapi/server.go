// Package mcpapi exposes radiod's channel table over the Model
// Context Protocol: list/inspect channels, create one on a frequency,
// retune, and adjust squelch, each translated into a channel.Registry
// call or a TLV command posted to a channel's mailbox.
//
// Grounded in ubersdr's mcp_server.go, which wraps a mark3labs/mcp-go
// server.MCPServer behind a StreamableHTTPServer the same way; the
// tool set here is radiod's own (channel control) rather than
// ubersdr's propagation/decoder tools.
package mcpapi

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ka9q/radiod/channel"
	"github.com/ka9q/radiod/tlv"
)

// commandTag derives a 32-bit command tag from a fresh UUID, echoed
// back in the channel's next status packet so a caller can correlate
// its command with the response.
func commandTag() uint32 {
	id := uuid.New()
	return binary.BigEndian.Uint32(id[:4])
}

// CreateRequest describes a new channel as requested through
// create_channel, before SSRC assignment and construction.
type CreateRequest struct {
	Frequency  float64
	Mode       string
	Preset     string
	LowEdge    float64
	HighEdge   float64
	KaiserBeta float64
}

// Factory builds and registers a runnable channel for req, wiring its
// demodulator, filter slot and output the way the engine's main
// wiring does for a config-file channel. It's injected rather than
// implemented here because constructing a channel needs the running
// engine's front end and master filter, which this package never
// references directly.
type Factory func(req CreateRequest) (*channel.Channel, error)

// Server is the MCP tool server for one running radiod instance.
type Server struct {
	registry   *channel.Registry
	newChannel Factory

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// NewServer builds the MCP server and registers its tool set.
func NewServer(registry *channel.Registry, newChannel Factory) *Server {
	s := &Server{registry: registry, newChannel: newChannel}

	s.mcpServer = server.NewMCPServer(
		"radiod",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
	return s
}

// ServeHTTP mounts the MCP server's streamable HTTP transport.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.ServeHTTP(w, r)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("list_channels",
			mcp.WithDescription("List every channel currently in use, with its SSRC, tuned frequency, demodulator mode and passband edges. Use this before tune_channel or set_squelch to find the SSRC of the channel you want to act on."),
		),
		s.handleListChannels,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_channel_status",
			mcp.WithDescription("Get full status for one channel: tuning, filter geometry, demodulator mode and the current signal estimates (baseband power, noise density, PLL lock, peak deviation)."),
			mcp.WithNumber("ssrc",
				mcp.Description("SSRC of the channel to inspect, as returned by list_channels."),
				mcp.Required(),
			),
		),
		s.handleGetChannelStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("create_channel",
			mcp.WithDescription("Create a new channel tuned to a frequency. Returns the assigned SSRC. Use a named preset for typical modes (e.g. 'ssb-voice', 'am-broadcast') or specify mode/low/high directly."),
			mcp.WithNumber("frequency_hz",
				mcp.Description("RF frequency in Hz."),
				mcp.Required(),
			),
			mcp.WithString("mode",
				mcp.Description("Demodulator mode: usb, lsb, cwu, cwl, am, fm, wfm, or spectrum. Ignored if preset is set."),
			),
			mcp.WithString("preset",
				mcp.Description("Named preset to apply instead of mode/low/high."),
			),
			mcp.WithNumber("low_hz",
				mcp.Description("Low passband edge in Hz, relative to the carrier."),
			),
			mcp.WithNumber("high_hz",
				mcp.Description("High passband edge in Hz, relative to the carrier."),
			),
		),
		s.handleCreateChannel,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("tune_channel",
			mcp.WithDescription("Retune an existing channel to a new RF frequency without recreating it."),
			mcp.WithNumber("ssrc",
				mcp.Description("SSRC of the channel to retune."),
				mcp.Required(),
			),
			mcp.WithNumber("frequency_hz",
				mcp.Description("New RF frequency in Hz."),
				mcp.Required(),
			),
		),
		s.handleTuneChannel,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("set_squelch",
			mcp.WithDescription("Adjust squelch open/close thresholds, in dB SNR, for a channel running a demodulator with squelch (linear or FM). No-op for WFM or spectrum channels."),
			mcp.WithNumber("ssrc",
				mcp.Description("SSRC of the channel to adjust."),
				mcp.Required(),
			),
			mcp.WithNumber("open_db",
				mcp.Description("Squelch-open threshold in dB SNR."),
				mcp.Required(),
			),
			mcp.WithNumber("close_db",
				mcp.Description("Squelch-close threshold in dB SNR. Defaults to open_db - 3 if omitted."),
			),
		),
		s.handleSetSquelch,
	)
}

type channelSummary struct {
	SSRC        uint32  `json:"ssrc"`
	Frequency   float64 `json:"frequency_hz"`
	Mode        string  `json:"mode"`
	Low         float64 `json:"low_hz"`
	High        float64 `json:"high_hz"`
	Preset      string  `json:"preset,omitempty"`
	SampleRate  float64 `json:"output_sample_rate"`
	BasebandPwr float64 `json:"baseband_power_db"`
}

func summarize(ch *channel.Channel) channelSummary {
	return channelSummary{
		SSRC:        ch.SSRC,
		Frequency:   ch.Tuning.RFFrequency,
		Mode:        modeName(ch.Discriminant),
		Low:         ch.Filter.Low,
		High:        ch.Filter.High,
		Preset:      ch.PresetName,
		SampleRate:  ch.Filter.OutputRate,
		BasebandPwr: ch.Estimates.BasebandPower,
	}
}

func modeName(d channel.Discriminant) string {
	switch d {
	case channel.Linear:
		return "linear"
	case channel.FM:
		return "fm"
	case channel.WFM:
		return "wfm"
	case channel.Spectrum:
		return "spectrum"
	default:
		return "none"
	}
}

func (s *Server) handleListChannels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chans := s.registry.All()
	out := make([]channelSummary, 0, len(chans))
	for _, ch := range chans {
		out = append(out, summarize(ch))
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetChannelStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ssrc := uint32(request.GetFloat("ssrc", 0))
	ch, ok := s.registry.Lookup(ssrc)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no channel with ssrc %d", ssrc)), nil
	}
	data, err := json.MarshalIndent(struct {
		channelSummary
		Estimates channel.Estimates `json:"estimates"`
	}{summarize(ch), ch.Estimates}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleCreateChannel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.newChannel == nil {
		return mcp.NewToolResultError("channel creation is not available on this instance"), nil
	}
	req := CreateRequest{
		Frequency:  request.GetFloat("frequency_hz", 0),
		Mode:       request.GetString("mode", "usb"),
		Preset:     request.GetString("preset", ""),
		LowEdge:    request.GetFloat("low_hz", 0),
		HighEdge:   request.GetFloat("high_hz", 0),
		KaiserBeta: 5,
	}
	if req.Frequency == 0 {
		return mcp.NewToolResultError("frequency_hz is required and must be nonzero"), nil
	}
	ch, err := s.newChannel(req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create_channel: %v", err)), nil
	}
	data, _ := json.MarshalIndent(summarize(ch), "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleTuneChannel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ssrc := uint32(request.GetFloat("ssrc", 0))
	freq := request.GetFloat("frequency_hz", 0)
	ch, ok := s.registry.Lookup(ssrc)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no channel with ssrc %d", ssrc)), nil
	}

	w := tlv.NewWriter()
	tag := commandTag()
	w.PutUint(tlv.CommandTag, uint64(tag))
	w.PutDouble(tlv.RadioFrequency, freq)
	w.EOL()
	payload := append([]byte{byte(tlv.PacketCommand)}, w.Bytes()...)
	ch.Mailbox.Post(payload)

	return mcp.NewToolResultText(fmt.Sprintf("retune of ssrc %d to %.0f Hz queued (tag %d)", ssrc, freq, tag)), nil
}

func (s *Server) handleSetSquelch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ssrc := uint32(request.GetFloat("ssrc", 0))
	open := request.GetFloat("open_db", 0)
	closeDB := request.GetFloat("close_db", open-3)
	ch, ok := s.registry.Lookup(ssrc)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no channel with ssrc %d", ssrc)), nil
	}

	w := tlv.NewWriter()
	tag := commandTag()
	w.PutUint(tlv.CommandTag, uint64(tag))
	w.PutFloat(tlv.SquelchOpen, float32(open))
	w.PutFloat(tlv.SquelchClose, float32(closeDB))
	w.EOL()
	payload := append([]byte{byte(tlv.PacketCommand)}, w.Bytes()...)
	ch.Mailbox.Post(payload)

	return mcp.NewToolResultText(fmt.Sprintf("squelch update for ssrc %d queued (open %.1f dB, close %.1f dB)", ssrc, open, closeDB)), nil
}
