// Package mcast sets up the multicast sockets radiod's status, data
// and RTCP groups are carried on, and resolves a group name to an
// address the way ka9q-radio does when mDNS can't.
//
// Grounded in ubersdr's radiod.go (NewRadiodController,
// setupControlSocket, resolveMulticastAddr, fnv1hash, makeMaddr) —
// that file is the client-side half of exactly this wire contract;
// here it is adapted for the producing side (joining for send *and*
// receive, arbitrary TTL instead of the client's fixed TTL=1).
package mcast

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// FNV1Hash implements the FNV-1 (not FNV-1a) hash, matching
// ka9q-radio's fnv1hash() in misc.c.
func FNV1Hash(data []byte) uint32 {
	hash := uint32(0x811c9dc5)
	for _, b := range data {
		hash *= 0x01000193
		hash ^= uint32(b)
	}
	return hash
}

// MakeMaddr derives a deterministic 239.0.0.0/8 multicast address from
// a group name, avoiding the two /24 subranges that alias reserved
// Ethernet multicast MAC blocks.
func MakeMaddr(name string) net.IP {
	hash := FNV1Hash([]byte(name))
	addr := (uint32(239) << 24) | (hash & 0xffffff)

	if (addr & 0x007fff00) == 0 {
		addr |= (addr & 0xff) << 8
	}
	if (addr & 0x007fff00) == 0 {
		addr |= 0x00100000
	}

	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

// ResolveGroup resolves "name:port" via DNS/mDNS, falling back to
// MakeMaddr when resolution fails.
func ResolveGroup(addrStr string) (*net.UDPAddr, error) {
	if addr, err := net.ResolveUDPAddr("udp", addrStr); err == nil {
		return addr, nil
	}

	parts := strings.SplitN(addrStr, ":", 2)
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("mcast: invalid address %q", addrStr)
	}
	hostname := parts[0]
	port := "5004"
	if len(parts) > 1 {
		port = parts[1]
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("mcast: invalid port in %q: %w", addrStr, err)
	}

	ip := MakeMaddr(hostname)
	return &net.UDPAddr{IP: ip, Port: portNum}, nil
}

// DefaultInterface returns the first up, multicast-capable,
// non-loopback interface.
func DefaultInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		return &iface, nil
	}
	return nil, fmt.Errorf("mcast: no suitable interface found")
}

func loopbackInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			return &iface, nil
		}
	}
	return nil, fmt.Errorf("mcast: loopback interface not found")
}

// Sender is a UDP socket used to transmit to a multicast group (RTP
// data, RTCP, status, commands).
type Sender struct {
	Conn *net.UDPConn
	Addr *net.UDPAddr
}

// NewSender creates an outbound multicast socket with TTL, loopback
// delivery and outbound-interface options set the way ka9q-radio's
// connect_mcast()/output_mcast() do in multicast.c.
func NewSender(addr *net.UDPAddr, iface *net.Interface, ttl int) (*Sender, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("mcast: socket: %w", err)
	}

	rawConn, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("mcast: raw conn: %w", err)
	}

	var sockErr error
	err = rawConn.Control(func(fd uintptr) {
		if e := syscall.SetsockoptInt(int(fd), syscall.IPPROTO_IP, syscall.IP_MULTICAST_LOOP, 1); e != nil {
			sockErr = fmt.Errorf("IP_MULTICAST_LOOP: %w", e)
			return
		}
		if e := syscall.SetsockoptInt(int(fd), syscall.IPPROTO_IP, syscall.IP_MULTICAST_TTL, ttl); e != nil {
			sockErr = fmt.Errorf("IP_MULTICAST_TTL: %w", e)
			return
		}
		if iface != nil {
			mreqn := syscall.IPMreqn{Ifindex: int32(iface.Index)}
			if e := syscall.SetsockoptIPMreqn(int(fd), syscall.IPPROTO_IP, syscall.IP_MULTICAST_IF, &mreqn); e != nil {
				sockErr = fmt.Errorf("IP_MULTICAST_IF: %w", e)
				return
			}
		}
		if e := unix.SetNonblock(int(fd), true); e != nil {
			sockErr = fmt.Errorf("SetNonblock: %w", e)
		}
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("mcast: control: %w", err)
	}
	if sockErr != nil {
		conn.Close()
		return nil, sockErr
	}

	p := ipv4.NewPacketConn(conn)
	if iface != nil {
		if e := p.JoinGroup(iface, addr); e != nil {
			conn.Close()
			return nil, fmt.Errorf("mcast: join on %s: %w", iface.Name, e)
		}
	}
	if loop, e := loopbackInterface(); e == nil && loop != nil {
		_ = p.JoinGroup(loop, addr)
	}

	return &Sender{Conn: conn, Addr: addr}, nil
}

// Send writes a UDP datagram to the group, logging nothing on success.
func (s *Sender) Send(payload []byte) (int, error) {
	return s.Conn.WriteTo(payload, s.Addr)
}

// Close releases the underlying socket.
func (s *Sender) Close() error { return s.Conn.Close() }

// NewReceiver opens a socket bound to a multicast group for receiving,
// with SO_REUSEADDR/SO_REUSEPORT so several radiod processes (or a
// radiod process and an out-of-process monitor) can share the group,
// matching ubersdr's StartStatusListener/setupDataSocket.
func NewReceiver(ctx context.Context, addr *net.UDPAddr, iface *net.Interface, readBufBytes int) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
					opErr = e
					return
				}
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
					opErr = e
				}
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("mcast: listen %s: %w", addr, err)
	}
	conn := pc.(*net.UDPConn)

	if readBufBytes > 0 {
		_ = conn.SetReadBuffer(readBufBytes)
	}

	p := ipv4.NewPacketConn(conn)
	if iface != nil {
		if e := p.JoinGroup(iface, addr); e != nil {
			conn.Close()
			return nil, fmt.Errorf("mcast: join on %s: %w", iface.Name, e)
		}
	}
	if loop, e := loopbackInterface(); e == nil && loop != nil {
		_ = p.JoinGroup(loop, addr)
	}

	return conn, nil
}
