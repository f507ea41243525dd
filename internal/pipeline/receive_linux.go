//go:build linux

package pipeline

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"scancore/internal/codec"
)

type unixRawReceiver struct {
	fd     int
	family int
}

func newRawReceiver(family codec.Family) (rawReceiver, error) {
	fam := unix.AF_INET
	proto := unix.IPPROTO_TCP
	if family == codec.V6 {
		fam = unix.AF_INET6
	}
	// IPPROTO_TCP catches TCP replies only. The pipeline opens no second
	// socket, so ICMP replies (unreachables included) are not received.
	fd, err := unix.Socket(fam, unix.SOCK_RAW, proto)
	if err != nil {
		return nil, fmt.Errorf("raw receive socket: %w", err)
	}
	return &unixRawReceiver{fd: fd, family: fam}, nil
}

func (r *unixRawReceiver) ReadFrom(buf []byte) (int, net.IP, error) {
	n, from, err := unix.Recvfrom(r.fd, buf, 0)
	if err != nil {
		return 0, nil, err
	}
	switch sa := from.(type) {
	case *unix.SockaddrInet4:
		return n, net.IP(sa.Addr[:]), nil
	case *unix.SockaddrInet6:
		return n, net.IP(sa.Addr[:]), nil
	default:
		return n, nil, nil
	}
}

func (r *unixRawReceiver) Close() error {
	return unix.Close(r.fd)
}
