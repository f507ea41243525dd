package detection

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	zx509 "github.com/zmap/zcrypto/x509"
)

// TLSInfo is what the TLS inspection step learns about a port that
// completed a handshake: the negotiated parameters plus the leaf
// certificate parsed with zcrypto's x509, which (unlike the standard
// library's parser) tolerates the malformed/legacy certificates internet
// sweeps routinely run into instead of discarding the whole handshake.
type TLSInfo struct {
	Version     uint16
	CipherSuite uint16
	ALPN        string
	Cert        *zx509.Certificate
}

// InspectTLS dials addr:port with TLS verification disabled (a scanner
// inspects whatever certificate a host presents; it does not validate
// trust), negotiating ALPN for http/1.1 and h2 so an HTTPS service probe
// can tell which it's talking to.
func InspectTLS(addr net.IP, port uint16, timeout time.Duration) (*TLSInfo, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(addr.String(), fmt.Sprint(port)), &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"h2", "http/1.1"},
		MinVersion:         tls.VersionSSL30,
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	state := conn.ConnectionState()
	info := &TLSInfo{
		Version:     state.Version,
		CipherSuite: state.CipherSuite,
		ALPN:        state.NegotiatedProtocol,
	}
	if len(state.PeerCertificates) > 0 {
		if cert, err := zx509.ParseCertificate(state.PeerCertificates[0].Raw); err == nil {
			info.Cert = cert
		}
	}
	return info, nil
}

// Subject returns a short human label for the certificate's leaf subject,
// falling back to an empty string when no certificate parsed.
func (t *TLSInfo) Subject() string {
	if t == nil || t.Cert == nil {
		return ""
	}
	return t.Cert.Subject.CommonName
}
