//go:build linux

package pipeline

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// unixRawSender sends IP_HDRINCL packets on a raw socket, mirroring the
// raw-socket setup the rest of the codebase already assumes (one socket per
// address family; IP_HDRINCL so internal/codec's fully-framed IP header is
// sent to the wire verbatim, with the kernel only consulting the
// destination address for routing).
type unixRawSender struct {
	fd     int
	family int
}

func newRawSenderV4() (rawSender, error) {
	return newUnixRawSender(unix.AF_INET)
}

func newRawSenderV6() (rawSender, error) {
	return newUnixRawSender(unix.AF_INET6)
}

func newUnixRawSender(family int) (rawSender, error) {
	fd, err := unix.Socket(family, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return nil, fmt.Errorf("raw socket: %w", err)
	}
	if family == unix.AF_INET {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("IP_HDRINCL: %w", err)
		}
	}
	return &unixRawSender{fd: fd, family: family}, nil
}

func (s *unixRawSender) sockaddr(dst net.IP) (unix.Sockaddr, error) {
	if s.family == unix.AF_INET {
		addr := dst.To4()
		if addr == nil {
			return nil, fmt.Errorf("not an IPv4 address: %s", dst)
		}
		var sa unix.SockaddrInet4
		copy(sa.Addr[:], addr)
		return &sa, nil
	}
	addr := dst.To16()
	if addr == nil {
		return nil, fmt.Errorf("not an IPv6 address: %s", dst)
	}
	var sa unix.SockaddrInet6
	copy(sa.Addr[:], addr)
	return &sa, nil
}

func (s *unixRawSender) Send(dst net.IP, packet []byte) error {
	sa, err := s.sockaddr(dst)
	if err != nil {
		return err
	}
	return unix.Sendto(s.fd, packet, 0, sa)
}

// SendBatch issues one Sendto per packet over the same raw socket. A true
// sendmmsg(2) path would save one syscall per batch, but building its
// per-message raw sockaddr buffers needs unix package internals that aren't
// part of its exported API; the per-packet loop is the verifiably correct
// alternative and still avoids a fresh socket per packet.
func (s *unixRawSender) SendBatch(dsts []net.IP, packets [][]byte) (int, error) {
	for i, pkt := range packets {
		if err := s.Send(dsts[i], pkt); err != nil {
			return i, err
		}
	}
	return len(packets), nil
}

func (s *unixRawSender) Close() error {
	return unix.Close(s.fd)
}
