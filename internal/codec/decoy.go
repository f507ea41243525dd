package codec

import (
	"crypto/rand"
	"net"
)

// DecoySet is a fixed ordering of source addresses a probe train rotates
// through (-D RND:N or an explicit list), with meAt marking which slot is
// this host's real address so the correlator still accepts replies sent
// to a decoy address that happen to come back to us.
type DecoySet struct {
	Addrs []net.IP
	MeAt  int
}

// NewRandomDecoySet fabricates n random public-looking IPv4 decoys plus the
// real address at a random position, for -D RND:N.
func NewRandomDecoySet(real net.IP, n int) (*DecoySet, error) {
	addrs := make([]net.IP, n+1)
	mePos := 0
	if n > 0 {
		buf := make([]byte, 1)
		if _, err := rand.Read(buf); err != nil {
			return nil, &BuildError{"decoy", err.Error()}
		}
		mePos = int(buf[0]) % (n + 1)
	}
	for i := range addrs {
		if i == mePos {
			addrs[i] = real
			continue
		}
		addrs[i] = randomPublicIPv4()
	}
	return &DecoySet{Addrs: addrs, MeAt: mePos}, nil
}

// NewDecoySet wraps an explicit list of decoy addresses, inserting real at
// position meAt for the "ME" token in -D.
func NewDecoySet(explicit []net.IP, real net.IP, meAt int) *DecoySet {
	addrs := make([]net.IP, len(explicit)+1)
	copy(addrs[:meAt], explicit[:meAt])
	addrs[meAt] = real
	copy(addrs[meAt+1:], explicit[meAt:])
	return &DecoySet{Addrs: addrs, MeAt: meAt}
}

func randomPublicIPv4() net.IP {
	b := make([]byte, 4)
	rand.Read(b)
	for b[0] == 0 || b[0] == 10 || b[0] == 127 || b[0] >= 224 {
		b[0] = b[0]%223 + 1
	}
	return net.IPv4(b[0], b[1], b[2], b[3])
}
