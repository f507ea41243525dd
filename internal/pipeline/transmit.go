package pipeline

import (
	"net"

	"scancore/internal/pkg/resource"
)

// Transmitter sends fully-framed packets (as produced by internal/codec)
// out a raw socket. SendBatch hands a batch to the raw sender when
// resource.Capabilities.BatchIOAvail is set and loops Send otherwise; the
// Linux raw sender issues one sendto per packet either way, and there is no
// sendmmsg path.
type Transmitter struct {
	v4 rawSender
	v6 rawSender
	caps resource.Capabilities
}

// rawSender is the OS-specific raw-socket handle; implemented in
// transmit_linux.go (IP_HDRINCL, one sendto per packet) and
// transmit_other.go (unsupported stub).
type rawSender interface {
	Send(dst net.IP, packet []byte) error
	SendBatch(dsts []net.IP, packets [][]byte) (sent int, err error)
	Close() error
}

// NewTransmitter opens the raw sockets needed for the given capabilities.
// v6 is opened lazily (nil until first IPv6 send) since most runs are v4.
func NewTransmitter(caps resource.Capabilities) (*Transmitter, error) {
	v4, err := newRawSenderV4()
	if err != nil {
		return nil, err
	}
	t := &Transmitter{v4: v4, caps: caps}
	return t, nil
}

func (t *Transmitter) ensureV6() error {
	if t.v6 != nil {
		return nil
	}
	v6, err := newRawSenderV6()
	if err != nil {
		return err
	}
	t.v6 = v6
	return nil
}

// Send transmits a single already-framed IP packet.
func (t *Transmitter) Send(dst net.IP, packet []byte) error {
	if dst.To4() == nil {
		if err := t.ensureV6(); err != nil {
			return err
		}
		return t.v6.Send(dst, packet)
	}
	return t.v4.Send(dst, packet)
}

// SendBatch transmits a same-family batch of packets in one shot when
// caps.BatchIOAvail allows it, clamping batch size via
// caps.ClampBatchSize; it degrades to Send-in-a-loop otherwise.
func (t *Transmitter) SendBatch(dsts []net.IP, packets [][]byte) (int, error) {
	if len(dsts) == 0 {
		return 0, nil
	}
	clamped := t.caps.ClampBatchSize(len(dsts))
	dsts, packets = dsts[:clamped], packets[:clamped]

	v6 := dsts[0].To4() == nil
	if v6 {
		if err := t.ensureV6(); err != nil {
			return 0, err
		}
		if !t.caps.BatchIOAvail {
			return t.sendLoop(t.v6, dsts, packets)
		}
		return t.v6.SendBatch(dsts, packets)
	}
	if !t.caps.BatchIOAvail {
		return t.sendLoop(t.v4, dsts, packets)
	}
	return t.v4.SendBatch(dsts, packets)
}

func (t *Transmitter) sendLoop(s rawSender, dsts []net.IP, packets []([]byte)) (int, error) {
	for i, dst := range dsts {
		if err := s.Send(dst, packets[i]); err != nil {
			return i, err
		}
	}
	return len(dsts), nil
}

// Close releases both raw sockets.
func (t *Transmitter) Close() error {
	var err error
	if t.v4 != nil {
		err = t.v4.Close()
	}
	if t.v6 != nil {
		if e := t.v6.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
