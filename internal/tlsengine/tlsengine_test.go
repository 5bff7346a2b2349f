package tlsengine

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"testing"
	"time"
)

// selfSignedCert builds a throwaway leaf certificate and returns both the
// tls.Certificate form and the parsed x509.Certificate, so tests can use it
// both as a handshake credential and as a trust root.
func selfSignedCert(t *testing.T, name string) (tls.Certificate, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: name},
		DNSNames:              []string{name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}

	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate() error = %v", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, parsed
}

func TestEstablishWithClient(t *testing.T) {
	cert, _ := selfSignedCert(t, "client-facing.test")
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := EstablishWithClient(context.Background(), serverConn, ClientSideOptions{
			Cert:       cert,
			NextProtos: []string{"http/1.1"},
		})
		errCh <- err
	}()

	clientCfg := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"http/1.1"}}
	clientTLS := tls.Client(clientConn, clientCfg)
	if err := clientTLS.HandshakeContext(context.Background()); err != nil {
		t.Fatalf("client Handshake() error = %v", err)
	}
	defer clientTLS.Close()

	if err := <-errCh; err != nil {
		t.Fatalf("EstablishWithClient() error = %v", err)
	}
}

func TestEstablishWithServer_VerifiedUpstream(t *testing.T) {
	cert, parsed := selfSignedCert(t, "upstream.test")
	roots := x509.NewCertPool()
	roots.AddCert(parsed)

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()

	go func() {
		tlsServer := tls.Server(serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
		_ = tlsServer.HandshakeContext(context.Background())
	}()

	_, verifyErr, err := EstablishWithServer(context.Background(), clientConn, ServerSideOptions{
		ServerName:     "upstream.test",
		RootCAs:        roots,
		VerifyUpstream: true,
	})
	if err != nil {
		t.Fatalf("EstablishWithServer() error = %v", err)
	}
	if verifyErr != nil {
		t.Errorf("EstablishWithServer() verifyErr = %v, want nil for a trusted chain", verifyErr)
	}
}

func TestEstablishWithServer_UntrustedNonFatal(t *testing.T) {
	cert, _ := selfSignedCert(t, "upstream.test")
	emptyRoots := x509.NewCertPool() // deliberately does not trust cert

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()

	go func() {
		tlsServer := tls.Server(serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
		_ = tlsServer.HandshakeContext(context.Background())
	}()

	_, verifyErr, err := EstablishWithServer(context.Background(), clientConn, ServerSideOptions{
		ServerName:     "upstream.test",
		RootCAs:        emptyRoots,
		VerifyUpstream: false,
	})
	if err != nil {
		t.Fatalf("EstablishWithServer() unexpected fatal error = %v", err)
	}
	if verifyErr == nil {
		t.Fatal("EstablishWithServer() expected a non-fatal verification error, got nil")
	}
}

func TestEstablishWithServer_UntrustedFatal(t *testing.T) {
	cert, _ := selfSignedCert(t, "upstream.test")
	emptyRoots := x509.NewCertPool()

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()

	go func() {
		tlsServer := tls.Server(serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
		_ = tlsServer.HandshakeContext(context.Background())
	}()

	// net.Pipe is unbuffered: the client's bad_certificate alert cannot be
	// written while the server is still blocked writing its own flight, so
	// a deadline keeps the handshake from waiting on that write forever.
	clientConn.SetDeadline(time.Now().Add(2 * time.Second))

	_, _, err := EstablishWithServer(context.Background(), clientConn, ServerSideOptions{
		ServerName:     "upstream.test",
		RootCAs:        emptyRoots,
		VerifyUpstream: true,
	})
	if err == nil {
		t.Fatal("EstablishWithServer() expected a fatal error for an untrusted chain, got nil")
	}
	// The error must be distinguishable as a verification failure (not a
	// generic *HandshakeError) so the caller can raise invalid_certificate
	// instead of tls_protocol for it.
	var verifyErr *VerificationError
	if !errors.As(err, &verifyErr) {
		t.Fatalf("EstablishWithServer() error = %v (%T), want *VerificationError", err, err)
	}
}
