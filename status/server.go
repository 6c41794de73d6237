// Package status runs radiod's TLV status/command receiver and the
// per-channel periodic/on-demand status emitter, each on its own
// goroutine.
//
// Grounded in ubersdr's radiod.go (sendCommand/buildCommand) and
// radiod_status.go (decode dispatch loop) — the client-side half of this
// exact protocol; here it is inverted to the receiving/producing side.
package status

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/ka9q/radiod/channel"
	"github.com/ka9q/radiod/tlv"
)

// BroadcastSSRC is the reserved "all channels" target.
const BroadcastSSRC = 0xFFFFFFFF

// broadcastDelaySpread bounds the randomized deferred delay applied to
// broadcast command responses so many channels don't all answer in the same
// instant.
const broadcastDelaySpread = 250 * time.Millisecond

// ChannelFactory builds a new channel for an SSRC that doesn't exist
// yet, from the process's default template.
type ChannelFactory func(ssrc uint32) *channel.Channel

// Server is the status/command receiver goroutine: it reads TLV packets from
// the control multicast group, resolves or creates the target channel via
// the registry, and posts the raw command bytes into that channel's mailbox.
type Server struct {
	Registry *channel.Registry
	NewChan  ChannelFactory
	// Created, if set, is invoked after a command auto-creates a new
	// channel (one not requested via the config file), so the engine
	// can finish wiring it (output sender, demod goroutine) once its
	// SSRC has been assigned by the registry.
	Created func(ch *channel.Channel)
	rng     *rand.Rand
}

// NewServer returns a Server bound to reg, creating channels via newChan.
func NewServer(reg *channel.Registry, newChan ChannelFactory) *Server {
	return &Server{Registry: reg, NewChan: newChan, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Run reads packets from conn until ctx is canceled, dispatching each
// to the appropriate channel mailbox (or all channels, for a
// broadcast command).
func (s *Server) Run(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("status: read: %w", err)
		}
		s.handlePacket(buf[:n])
	}
}

func (s *Server) handlePacket(data []byte) {
	if len(data) < 1 {
		return
	}
	kind := tlv.PacketKind(data[0])
	if kind != tlv.PacketCommand {
		return // status packets from other processes are ignored
	}

	r := tlv.NewReader(data[1:])
	var ssrc uint32
	var haveSSRC bool
	for {
		f, ok := r.Next()
		if !ok {
			break
		}
		if f.Type == tlv.OutputSSRC {
			ssrc = uint32(tlv.DecodeUint(f.Value))
			haveSSRC = true
			break
		}
	}
	if !haveSSRC {
		log.Printf("status: command packet missing OUTPUT_SSRC, dropped")
		return
	}

	if ssrc == BroadcastSSRC {
		for _, ch := range s.Registry.All() {
			ch := ch
			delay := time.Duration(s.rng.Int63n(int64(broadcastDelaySpread)))
			time.AfterFunc(delay, func() { ch.Mailbox.Post(data) })
		}
		return
	}

	ch, created, err := s.Registry.LookupOrCreate(ssrc, func(assigned uint32) *channel.Channel {
		return s.NewChan(assigned)
	})
	if err != nil {
		log.Printf("status: resolve ssrc %d: %v", ssrc, err)
		return
	}
	if created && s.Created != nil {
		s.Created(ch)
	}
	ch.ResetIdle(ch.IdleLifetime)
	ch.Mailbox.Post(data)
}
