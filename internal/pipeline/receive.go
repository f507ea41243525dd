package pipeline

import (
	"net"

	"scancore/internal/codec"
)

// Receiver reads reply packets off a raw socket and parses them, feeding
// the probe correlator. A Run opens one Receiver for its address family and
// hands every parsed reply to its single correlator.
type Receiver struct {
	r rawReceiver
}

// rawReceiver is the OS-specific capture handle, implemented in
// receive_linux.go (raw socket recvfrom loop) and receive_other.go.
type rawReceiver interface {
	ReadFrom(buf []byte) (n int, src net.IP, err error)
	Close() error
}

// NewReceiver opens a raw listening socket for the given family (V4 or V6,
// per internal/codec.Family).
func NewReceiver(family codec.Family) (*Receiver, error) {
	r, err := newRawReceiver(family)
	if err != nil {
		return nil, err
	}
	return &Receiver{r: r}, nil
}

// Reply is one parsed inbound packet together with the source address the
// kernel reported it arrived from (independent of whatever source the
// packet's own IP header claims, useful for spoofed-reply detection).
type Reply struct {
	Packet *codec.ParsedPacket
	Src    net.IP
}

// Next blocks until a packet arrives, parses it, and returns it. A parse
// failure (malformed or uninteresting traffic sharing the same raw socket)
// is not fatal — the caller should loop and call Next again.
func (r *Receiver) Next(buf []byte) (*Reply, error) {
	n, src, err := r.r.ReadFrom(buf)
	if err != nil {
		return nil, err
	}
	pkt, err := codec.Parse(buf[:n])
	if err != nil {
		return nil, err
	}
	return &Reply{Packet: pkt, Src: src}, nil
}

// Close releases the underlying socket.
func (r *Receiver) Close() error {
	return r.r.Close()
}
