// Package tlsengine wraps crypto/tls with the two handshake shapes the TLS
// orchestrator drives: a client-facing handshake (this process acts as the
// TLS server towards the real client) and a server-facing handshake (this
// process acts as the TLS client towards the real upstream server). It is
// the concrete "TLS engine" collaborator spec §6 treats as an external
// interface.
package tlsengine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
)

// HandshakeError wraps any failure from either handshake direction — the
// tls_generic class spec §6/§7 describes. The orchestrator re-raises it
// under whichever of client_handshake/tls_protocol fits the call site.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string { return e.Err.Error() }
func (e *HandshakeError) Unwrap() error  { return e.Err }

// VerificationError mirrors ssl_verification_error: a non-fatal record
// describing why the upstream certificate chain failed to verify, without
// aborting the handshake. Depth is always 0 (the leaf): crypto/tls reports
// a chain failure as a whole, without the depth at which it occurred.
type VerificationError struct {
	Depth int
	Err   error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("certificate verification failed at depth %d: %v", e.Depth, e.Err)
}

// ClientSideOptions configures the handshake this process performs as the
// TLS server towards the real client.
type ClientSideOptions struct {
	Cert tls.Certificate

	MinVersion uint16
	MaxVersion uint16

	// CipherSuites restricts the negotiated cipher suite set. Nil lets
	// crypto/tls choose its own default ordering.
	CipherSuites []uint16

	// NextProtos is the full ALPN preference list already computed by
	// the orchestrator's ALPN-select rule (spec §4.C): the server's
	// already-negotiated upstream ALPN (if any) first, then "http/1.1",
	// then the client's own offered list verbatim. crypto/tls's
	// stock ALPN negotiation picks the first entry here that also
	// appears in the client's ClientHello list, which reproduces the
	// "first match wins" rule without a custom callback hook.
	NextProtos []string
}

// EstablishWithClient performs the client-facing TLS handshake over conn
// and returns the established *tls.Conn. The caller (internal/orchestrator)
// is responsible for the post-handshake single-byte peek spec §4.C/§9
// describes.
func EstablishWithClient(ctx context.Context, conn net.Conn, opts ClientSideOptions) (*tls.Conn, error) {
	cfg := &tls.Config{
		Certificates: []tls.Certificate{opts.Cert},
		MinVersion:   opts.MinVersion,
		MaxVersion:   opts.MaxVersion,
		CipherSuites: opts.CipherSuites,
		NextProtos:   opts.NextProtos,
	}

	tlsConn := tls.Server(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, &HandshakeError{Err: err}
	}
	return tlsConn, nil
}

// ServerSideOptions configures the handshake this process performs as the
// TLS client towards the real upstream server.
type ServerSideOptions struct {
	// ServerName is the effective SNI to send, or "" to send none.
	ServerName string

	// ClientCertificates presents a client certificate for mutual TLS,
	// when the upstream server requires one.
	ClientCertificates []tls.Certificate

	MinVersion uint16
	MaxVersion uint16
	CipherSuites []uint16
	ALPNProtos   []string

	// RootCAs is the trust anchor set to verify the upstream chain
	// against. Nil means the system pool.
	RootCAs *x509.CertPool

	// VerifyUpstream selects fatal vs. non-fatal handling of a failed
	// upstream chain verification: true raises invalid_certificate via
	// the returned error; false reports the failure through the
	// returned *VerificationError and still completes the handshake.
	VerifyUpstream bool
}

// EstablishWithServer performs the server-facing TLS handshake over conn.
// It returns the established connection, a non-fatal verification error
// when VerifyUpstream is false and the chain didn't validate, and a fatal
// error (invalid_certificate territory) when VerifyUpstream is true and
// verification failed, or any other handshake failure occurred.
func EstablishWithServer(ctx context.Context, conn net.Conn, opts ServerSideOptions) (*tls.Conn, *VerificationError, error) {
	var nonFatal *VerificationError
	var fatal *VerificationError

	cfg := &tls.Config{
		ServerName:         opts.ServerName,
		Certificates:       opts.ClientCertificates,
		MinVersion:         opts.MinVersion,
		MaxVersion:         opts.MaxVersion,
		CipherSuites:       opts.CipherSuites,
		NextProtos:         opts.ALPNProtos,
		RootCAs:            opts.RootCAs,
		InsecureSkipVerify: true, // verification happens in VerifyConnection below, so it can be non-fatal
		VerifyConnection: func(cs tls.ConnectionState) error {
			err := verifyChain(cs, opts.RootCAs)
			if err == nil {
				return nil
			}
			if opts.VerifyUpstream {
				fatal = &VerificationError{Depth: 0, Err: err}
				return fatal
			}
			nonFatal = &VerificationError{Depth: 0, Err: err}
			return nil
		},
	}

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		// A handshake aborted by our own VerifyConnection hook is an
		// invalid_certificate-class failure, distinct from every other
		// handshake failure (protocol mismatch, reset, timeout, ...),
		// which the caller treats as tls_protocol instead.
		if fatal != nil {
			return nil, nil, fatal
		}
		return nil, nil, &HandshakeError{Err: err}
	}
	return tlsConn, nonFatal, nil
}

// verifyChain builds and verifies the peer's certificate chain against
// roots, replicating the verification crypto/tls would have performed had
// InsecureSkipVerify been false — done manually here so a failure can be
// demoted to non-fatal per ServerSideOptions.VerifyUpstream.
func verifyChain(cs tls.ConnectionState, roots *x509.CertPool) error {
	if len(cs.PeerCertificates) == 0 {
		return fmt.Errorf("no certificate presented by upstream server")
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		DNSName:       cs.ServerName,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}

	_, err := cs.PeerCertificates[0].Verify(opts)
	return err
}

// NegotiatedALPN returns the ALPN protocol negotiated on an established
// connection, or "" if none was.
func NegotiatedALPN(conn *tls.Conn) string {
	return conn.ConnectionState().NegotiatedProtocol
}
