package netconn

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/lightningnetwork/lnd/cert"
)

// selfSignedCertValidity is generous since this is a fallback for
// EnableTLS=true without an operator-supplied certificate, not a
// production PKI story.
const selfSignedCertValidity = 14 * 24 * time.Hour

// selfSignedTLSConfig generates an ephemeral self-signed certificate and
// wraps it in a server-side tls.Config, used when EnableTLS is set but the
// embedder hasn't supplied its own certificate.
func selfSignedTLSConfig() (*tls.Config, error) {
	certBytes, keyBytes, err := cert.GenCertPair(
		"karyon autogenerated cert",
		[]string{"localhost"},
		[]net.IP{net.ParseIP("127.0.0.1")},
		nil,
		false,
		selfSignedCertValidity,
	)
	if err != nil {
		return nil, err
	}

	tlsCert, err := tls.X509KeyPair(certBytes, keyBytes)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
	}, nil
}
