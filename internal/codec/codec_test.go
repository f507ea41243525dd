package codec

import (
	"bytes"
	"net"
	"testing"
)

var (
	testSrcV4 = net.ParseIP("192.0.2.1")
	testDstV4 = net.ParseIP("192.0.2.2")
	testSrcV6 = net.ParseIP("2001:db8::1")
	testDstV6 = net.ParseIP("2001:db8::2")
)

func TestChecksumZeroOnSelf(t *testing.T) {
	data := []byte{0x45, 0x00, 0x00, 0x28, 0x1c, 0x46, 0x40, 0x00, 0x40, 0x06}
	csum := Checksum(data)
	data = append(data, byte(csum>>8), byte(csum))
	// Appending the checksum as the next 16-bit word and recomputing over
	// the whole buffer must fold to zero (RFC 1071 self-verification).
	if got := Checksum(data); got != 0 {
		t.Errorf("self-check checksum = %#x, want 0", got)
	}
}

func TestBuildTCPRoundTrip(t *testing.T) {
	h := TCPHeader{
		SrcPort: 40000,
		DstPort: 443,
		Seq:     1000,
		Ack:     0,
		Flags:   FlagSYN,
		Window:  65535,
		Options: []TCPOption{
			{Kind: OptMSS, Data: []byte{0x05, 0xb4}},
			{Kind: OptNOP},
			{Kind: OptWScale, Data: []byte{0x06}},
		},
	}
	seg, err := BuildTCP(V4, testSrcV4, testDstV4, h)
	if err != nil {
		t.Fatalf("BuildTCP: %v", err)
	}
	parsed, err := parseTCP(seg)
	if err != nil {
		t.Fatalf("parseTCP: %v", err)
	}
	if parsed.SrcPort != h.SrcPort || parsed.DstPort != h.DstPort {
		t.Errorf("port mismatch: got %d/%d", parsed.SrcPort, parsed.DstPort)
	}
	if parsed.Flags != FlagSYN {
		t.Errorf("flags = %#x, want SYN", parsed.Flags)
	}
	if len(parsed.Options) != 3 {
		t.Fatalf("options count = %d, want 3", len(parsed.Options))
	}

	csum := l4Checksum(V4, testSrcV4, testDstV4, protoTCP, seg)
	if csum != 0 {
		t.Errorf("checksum of own segment = %#x, want 0", csum)
	}
}

func TestBuildTCPBadSumCorrupts(t *testing.T) {
	h := TCPHeader{SrcPort: 1, DstPort: 2, Flags: FlagSYN, Window: 1024}
	good, _ := BuildTCP(V4, testSrcV4, testDstV4, h)
	h.BadSum = true
	bad, _ := BuildTCP(V4, testSrcV4, testDstV4, h)
	if bytes.Equal(good[16:18], bad[16:18]) {
		t.Error("BadSum did not change the checksum field")
	}
}

func TestBuildTCPOptionsOverflow(t *testing.T) {
	opts := make([]TCPOption, 15)
	for i := range opts {
		opts[i] = TCPOption{Kind: OptTimestamp, Data: []byte{0, 0, 0, 0, 0, 0, 0, 0}}
	}
	_, err := BuildTCP(V4, testSrcV4, testDstV4, TCPHeader{Options: opts})
	if err == nil {
		t.Fatal("expected error for oversized options")
	}
}

func TestBuildUDPRoundTrip(t *testing.T) {
	payload := []byte("probe")
	seg, err := BuildUDP(V4, testSrcV4, testDstV4, 53000, 53, payload)
	if err != nil {
		t.Fatalf("BuildUDP: %v", err)
	}
	parsed, err := parseUDP(seg)
	if err != nil {
		t.Fatalf("parseUDP: %v", err)
	}
	if !bytes.Equal(parsed.Payload, payload) {
		t.Errorf("payload = %q, want %q", parsed.Payload, payload)
	}
	if csum := l4Checksum(V4, testSrcV4, testDstV4, protoUDP, seg); csum != 0 {
		t.Errorf("checksum of own datagram = %#x, want 0", csum)
	}
}

func TestBuildUDPRoundTripV6(t *testing.T) {
	payload := []byte("probe6")
	seg, err := BuildUDP(V6, testSrcV6, testDstV6, 53000, 53, payload)
	if err != nil {
		t.Fatalf("BuildUDP: %v", err)
	}
	if csum := l4Checksum(V6, testSrcV6, testDstV6, protoUDP, seg); csum != 0 {
		t.Errorf("checksum of own v6 datagram = %#x, want 0", csum)
	}
}

func TestBuildICMPEchoRoundTrip(t *testing.T) {
	seg := BuildICMPEcho(true, 0xbeef, 1, []byte("ping"))
	parsed, err := parseICMP(seg)
	if err != nil {
		t.Fatalf("parseICMP: %v", err)
	}
	if parsed.ID != 0xbeef || parsed.Seq != 1 {
		t.Errorf("id/seq = %d/%d, want beef/1", parsed.ID, parsed.Seq)
	}
	if Checksum(seg) != 0 {
		t.Error("icmp echo self-checksum should fold to zero")
	}
}

func TestBuildICMPv6EchoUsesPseudoHeader(t *testing.T) {
	seg := BuildICMPv6Echo(testSrcV6, testDstV6, true, 1, 1, nil)
	if csum := l4Checksum(V6, testSrcV6, testDstV6, protoICMPv6, seg); csum != 0 {
		t.Errorf("icmpv6 checksum = %#x, want 0", csum)
	}
}

func TestIPv4FramingRoundTrip(t *testing.T) {
	tcpSeg, _ := BuildTCP(V4, testSrcV4, testDstV4, TCPHeader{SrcPort: 1, DstPort: 2, Flags: FlagSYN, Window: 1024})
	pkt, err := BuildIPv4(IPv4Header{ID: 42, TTL: 64, Src: testSrcV4, Dst: testDstV4}, protoTCP, tcpSeg)
	if err != nil {
		t.Fatalf("BuildIPv4: %v", err)
	}
	parsed, err := Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Family != V4 || parsed.Kind != L4TCP {
		t.Fatalf("parsed family/kind = %v/%v", parsed.Family, parsed.Kind)
	}
	if parsed.IPv4.ID != 42 || parsed.IPv4.TTL != 64 {
		t.Errorf("ip header fields lost: %+v", parsed.IPv4)
	}
	if parsed.TCP.DstPort != 2 {
		t.Errorf("tcp dst port = %d, want 2", parsed.TCP.DstPort)
	}
}

func TestIPv6FramingRoundTrip(t *testing.T) {
	udpSeg, _ := BuildUDP(V6, testSrcV6, testDstV6, 1000, 53, []byte("x"))
	pkt, err := BuildIPv6(IPv6Header{HopLimit: 64, Src: testSrcV6, Dst: testDstV6}, protoUDP, udpSeg)
	if err != nil {
		t.Fatalf("BuildIPv6: %v", err)
	}
	parsed, err := Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Family != V6 || parsed.Kind != L4UDP {
		t.Fatalf("parsed family/kind = %v/%v", parsed.Family, parsed.Kind)
	}
	if parsed.UDP.DstPort != 53 {
		t.Errorf("udp dst port = %d, want 53", parsed.UDP.DstPort)
	}
}

func TestFragmentIPv4OffsetsAreEightByteAligned(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 2000)
	frags, err := FragmentIPv4(IPv4Header{ID: 7, TTL: 64, Src: testSrcV4, Dst: testDstV4}, protoUDP, payload, 576)
	if err != nil {
		t.Fatalf("FragmentIPv4: %v", err)
	}
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(frags))
	}
	for i, f := range frags {
		parsed, err := parseIPv4(f)
		if err != nil {
			t.Fatalf("fragment %d parse: %v", i, err)
		}
		if parsed.ID != 7 {
			t.Errorf("fragment %d lost shared ID: got %d", i, parsed.ID)
		}
		if i < len(frags)-1 && !parsed.MoreFrag {
			t.Errorf("fragment %d missing MoreFrag", i)
		}
	}
	last, _ := parseIPv4(frags[len(frags)-1])
	if last.MoreFrag {
		t.Error("final fragment must not set MoreFrag")
	}
}

func TestDecoySetPlacesRealAddress(t *testing.T) {
	real := testSrcV4
	set, err := NewRandomDecoySet(real, 4)
	if err != nil {
		t.Fatalf("NewRandomDecoySet: %v", err)
	}
	if len(set.Addrs) != 5 {
		t.Fatalf("len(Addrs) = %d, want 5", len(set.Addrs))
	}
	if !set.Addrs[set.MeAt].Equal(real) {
		t.Error("real address not present at MeAt")
	}
}

func TestParseRejectsTruncated(t *testing.T) {
	if _, err := Parse([]byte{0x45}); err == nil {
		t.Fatal("expected parse error on truncated packet")
	}
}
