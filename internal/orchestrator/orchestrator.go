// Package orchestrator implements the TLS interception state machine: it
// decides the ordering between client-side and server-side TLS
// establishment, drives both crypto/tls handshakes, negotiates ALPN
// symmetrically between them, derives the certificate to forge via
// internal/certselect and internal/certstore, and translates handshake
// failures into the typed error taxonomy in errors.go.
package orchestrator

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/fnzv/mitmproxy/internal/certselect"
	"github.com/fnzv/mitmproxy/internal/certstore"
	"github.com/fnzv/mitmproxy/internal/clienthello"
	"github.com/fnzv/mitmproxy/internal/config"
	"github.com/fnzv/mitmproxy/internal/layerctx"
	"github.com/fnzv/mitmproxy/internal/logging"
	"github.com/fnzv/mitmproxy/internal/record"
	"github.com/fnzv/mitmproxy/internal/tlsengine"
)

// ServerAddress is the upstream endpoint an Orchestrator connects to.
type ServerAddress struct {
	// Host is the bare host name or IP, used for SNI and certificate
	// derivation.
	Host string
	// Addr is the dial address (host:port).
	Addr string
}

// bufferedConn lets a *bufio.Reader's buffered-but-unconsumed bytes feed
// back into something that still satisfies net.Conn, so a peek performed
// for inspection doesn't take those bytes away from whatever reads the
// connection next (the TLS handshake, or the layer after this one).
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }

// Orchestrator drives one proxied connection's TLS interception. It is not
// safe for concurrent use by more than one goroutine at a time; each
// accepted connection gets its own Orchestrator.
type Orchestrator struct {
	cfg   *config.Config
	store *certstore.Store
	dialer net.Dialer

	server ServerAddress

	clientConn net.Conn // raw to start; becomes the TLS conn once established
	serverConn net.Conn // nil until connect() runs; becomes the TLS conn once established

	clientTLS bool
	serverTLS bool

	clientSNI     string
	clientALPN    []string
	clientCiphers []uint16

	sniOverride layerctx.SNIOverride

	negotiatedUpstreamALPN string
	upstreamVerifyErr      *tlsengine.VerificationError
}

// New creates an Orchestrator for one accepted client connection bound for
// the given upstream server.
func New(cfg *config.Config, store *certstore.Store, clientConn net.Conn, server ServerAddress) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		clientConn:  clientConn,
		server:      server,
		clientTLS:   cfg.TLS.ClientTLS,
		serverTLS:   cfg.TLS.ServerTLS,
		sniOverride: layerctx.NoSNIOverride(),
	}
}

// String reproduces the original TlsLayer.__repr__: a three-way summary of
// which sides have TLS active, useful for debug logging.
func (o *Orchestrator) String() string {
	switch {
	case o.clientTLS && o.serverTLS:
		return "Orchestrator(client and server)"
	case o.clientTLS:
		return "Orchestrator(client)"
	case o.serverTLS:
		return "Orchestrator(server)"
	default:
		return "Orchestrator(inactive)"
	}
}

// Run enters the state machine (spec §4.C run()): ParseHello, then branch
// on ordering, then hand off to whatever layer follows. It satisfies
// layerctx.Layer so the orchestrator is itself a layer in the composition
// chain, exactly as the original TlsLayer was one layer among others.
func (o *Orchestrator) Run(lctx *layerctx.Context) error {
	ctx := context.Background()

	o.clientConn = lctx.Client
	if lctx.Server != nil {
		o.serverConn = lctx.Server
	}

	requiresServerCert := o.cfg.ClientTLSRequiresServerCert()

	if o.clientTLS {
		o.parseHello()
	}

	switch {
	case requiresServerCert:
		if err := o.serverFirst(ctx); err != nil {
			return err
		}
	case o.clientTLS:
		if err := o.establishWithClient(ctx); err != nil {
			return err
		}
	}

	lctx.Client = o.clientConn
	lctx.Server = o.serverConn
	lctx.Connect = o.Connect

	next, err := lctx.Next(o)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return next.Run(lctx)
}

// parseHello runs the Record Peeker and ClientHello Parser (components A
// and B) over the client's buffered input. A failure here is logged and
// swallowed: TLS establishment may still succeed without SNI/ALPN
// knowledge (spec §4.C step 1).
func (o *Orchestrator) parseHello() {
	buffered := bufio.NewReaderSize(o.clientConn, 32*1024)
	o.clientConn = &bufferedConn{Conn: o.clientConn, r: buffered}

	raw, err := record.PeekClientHello(buffered)
	if err != nil {
		logging.Error("cannot read raw client hello", "error", err)
		return
	}

	hello, err := clienthello.Parse(raw)
	if err != nil {
		logging.Error("cannot parse client hello", "error", err)
		return
	}

	o.clientSNI = hello.ServerName
	o.clientALPN = hello.ALPNProtocols
	o.clientCiphers = hello.CipherSuites
}

// connect ensures the upstream TCP connection exists, dialing it if
// necessary, and drives the server handshake if server-side TLS is
// requested and not yet established. This is spec §4.C's connect()
// operation, exposed both internally (ServerFirst) and to later layers via
// layerctx.Context.Connect for lazy server-side establishment.
func (o *Orchestrator) Connect(ctx context.Context) (net.Conn, error) {
	if o.serverConn == nil {
		conn, err := o.dialer.DialContext(ctx, "tcp", o.server.Addr)
		if err != nil {
			return nil, &TLSProtocolError{Msg: fmt.Sprintf("cannot connect to %s", o.server.Addr), Cause: err}
		}
		o.serverConn = conn
	}

	if o.serverTLS {
		if _, ok := o.serverConn.(*tls.Conn); !ok {
			if err := o.establishWithServer(ctx); err != nil {
				return nil, err
			}
		}
	}

	return o.serverConn, nil
}

// serverFirst implements ServerFirst (spec §4.C): connect, handshake with
// the server, and — on failure — make a best-effort attempt to still
// deliver a clean TLS error to the client before re-raising the original
// failure, so the client sees a TLS alert rather than a bare TCP reset.
func (o *Orchestrator) serverFirst(ctx context.Context) error {
	if _, err := o.Connect(ctx); err != nil {
		if clientErr := o.establishWithClient(ctx); clientErr != nil {
			logging.Debug("best-effort client handshake after server failure also failed", "error", clientErr)
		}
		return err
	}
	return o.establishWithClient(ctx)
}

// establishWithClient implements _establish_tls_with_client (spec §4.C).
func (o *Orchestrator) establishWithClient(ctx context.Context) error {
	logging.Debug("establish TLS with client")

	host, sans := certselect.Select(o.certSelectRequest())
	cert, _, err := o.store.GetCert(host, sans)
	if err != nil {
		return &ClientHandshakeError{Context: o.clientHandshakeContext(), Cause: err}
	}

	opts := tlsengine.ClientSideOptions{
		Cert:       cert,
		NextProtos: o.alpnPreference(),
	}

	tlsConn, err := tlsengine.EstablishWithClient(ctx, o.clientConn, opts)
	if err != nil {
		return &ClientHandshakeError{Context: o.clientHandshakeContext(), Cause: err}
	}

	// Some TLS stacks defer a handshake error (or an immediate close by
	// the client) to the first read after Handshake() reports success.
	// A single peeked byte forces that detection now rather than letting
	// it surface as a confusing failure deep inside the next layer.
	peeked := bufio.NewReaderSize(tlsConn, 1)
	if _, err := peeked.Peek(1); err != nil && err != io.EOF {
		return &ClientHandshakeError{Context: o.clientHandshakeContext(), Cause: err}
	} else if err == io.EOF {
		return &ClientHandshakeError{Context: o.clientHandshakeContext(), Cause: fmt.Errorf("client closed connection immediately after handshake")}
	}

	o.clientConn = &bufferedConn{Conn: tlsConn, r: peeked}
	return nil
}

// establishWithServer implements _establish_tls_with_server (spec §4.C).
func (o *Orchestrator) establishWithServer(ctx context.Context) error {
	logging.Debug("establish TLS with server")

	var clientCerts []tls.Certificate
	if o.cfg.TLS.ClientCertFile != "" && o.cfg.TLS.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.cfg.TLS.ClientCertFile, o.cfg.TLS.ClientKeyFile)
		if err != nil {
			return &TLSProtocolError{Msg: "cannot load client certificate for mutual TLS", Cause: err}
		}
		clientCerts = []tls.Certificate{cert}
	}

	roots, err := o.trustedRoots()
	if err != nil {
		return &TLSProtocolError{Msg: "cannot load trusted CA material", Cause: err}
	}

	sni, _ := o.sniForServerConnection()

	opts := tlsengine.ServerSideOptions{
		ServerName:         sni,
		ClientCertificates: clientCerts,
		ALPNProtos:         o.upstreamALPN(),
		RootCAs:            roots,
		VerifyUpstream:     o.cfg.TLS.VerifyUpstream,
	}

	tlsConn, verifyErr, err := tlsengine.EstablishWithServer(ctx, o.serverConn, opts)
	if err != nil {
		var fatalVerifyErr *tlsengine.VerificationError
		if errors.As(err, &fatalVerifyErr) {
			return &InvalidCertificateError{Address: o.server.Addr, SNI: sni, Cause: err}
		}
		return &TLSProtocolError{
			Msg:   fmt.Sprintf("cannot establish TLS with %s (sni: %s)", o.server.Addr, sni),
			Cause: err,
		}
	}

	if verifyErr != nil {
		logging.Error("TLS verification failed for upstream server",
			"depth", verifyErr.Depth, "error", verifyErr.Err)
		logging.Error("ignoring server verification error, continuing with connection")
		o.upstreamVerifyErr = verifyErr
	}

	o.serverConn = tlsConn
	o.negotiatedUpstreamALPN = tlsengine.NegotiatedALPN(tlsConn)
	logging.Debug("ALPN selected by server", "alpn", o.negotiatedUpstreamALPN)
	return nil
}

// alpnPreference computes the client-facing ALPN preference list: the
// already-negotiated upstream ALPN first (if any), then "http/1.1", then
// the client's own offered list verbatim. crypto/tls's ALPN negotiation
// picks the first entry here also present in the client's ClientHello,
// reproducing the first-match-wins rule from spec §4.C without a custom
// callback.
func (o *Orchestrator) alpnPreference() []string {
	seen := make(map[string]bool)
	var prefs []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		prefs = append(prefs, p)
	}

	add(o.negotiatedUpstreamALPN)
	add("http/1.1")
	for _, p := range o.clientALPN {
		add(p)
	}
	return prefs
}

// upstreamALPN implements the upstream ALPN projection (spec §4.C
// ServerSide): drop deprecated HTTP/2 variants, then drop "h2" if HTTP/2 is
// disabled in config. A client that sent no ALPN extension yields nil.
func (o *Orchestrator) upstreamALPN() []string {
	if len(o.clientALPN) == 0 {
		return nil
	}

	var alpn []string
	for _, p := range o.clientALPN {
		if strings.HasPrefix(p, "h2-") || strings.HasPrefix(p, "spdy") {
			continue
		}
		alpn = append(alpn, p)
	}

	if !o.cfg.TLS.HTTP2 {
		filtered := alpn[:0]
		for _, p := range alpn {
			if p != "h2" {
				filtered = append(filtered, p)
			}
		}
		alpn = filtered
	}

	return alpn
}

// upstreamCipherString computes the OpenSSL-style cipher list that would be
// sent upstream: the configured override verbatim, or the client's offered
// ciphers projected through the cipher-id table. It is exposed for
// diagnostics/tests; crypto/tls has no OpenSSL cipher-string input, so it
// is not fed back into the handshake itself (see DESIGN.md).
func (o *Orchestrator) upstreamCipherString() string {
	if o.cfg.TLS.CiphersServer != "" {
		return o.cfg.TLS.CiphersServer
	}
	return clienthello.OpenSSLCipherList(o.clientCiphers)
}

// sniForServerConnection implements the sni_for_server_connection derived
// property (spec §4.C).
func (o *Orchestrator) sniForServerConnection() (string, bool) {
	return o.sniOverride.Resolve(o.clientSNI)
}

// certSelectRequest assembles a certselect.Request from the orchestrator's
// current state for CertificateSelection (spec §4.C _find_cert).
func (o *Orchestrator) certSelectRequest() certselect.Request {
	var upstreamCert *x509.Certificate
	if tlsConn, ok := o.serverConn.(*tls.Conn); ok {
		if cs := tlsConn.ConnectionState(); len(cs.PeerCertificates) > 0 {
			upstreamCert = cs.PeerCertificates[0]
		}
	}

	return certselect.Request{
		Host:           o.server.Host,
		UpstreamCert:   upstreamCert,
		NoUpstreamCert: o.cfg.TLS.NoUpstreamCert,
		ClientSNI:      o.clientSNI,
		SNIOverride:    o.sniOverride,
	}
}

// clientHandshakeContext is the diagnostic context spec §7 requires:
// client SNI when present, else the upstream address.
func (o *Orchestrator) clientHandshakeContext() string {
	if o.clientSNI != "" {
		return o.clientSNI
	}
	return o.server.Addr
}

// trustedRoots loads the configured trust anchors for verifying the
// upstream chain, or nil for the system pool when none are configured.
func (o *Orchestrator) trustedRoots() (*x509.CertPool, error) {
	if o.cfg.TLS.TrustedCAFile == "" && o.cfg.TLS.TrustedCADir == "" {
		return nil, nil
	}

	pool := x509.NewCertPool()
	if o.cfg.TLS.TrustedCAFile != "" {
		pem, err := os.ReadFile(o.cfg.TLS.TrustedCAFile)
		if err != nil {
			return nil, err
		}
		pool.AppendCertsFromPEM(pem)
	}

	if o.cfg.TLS.TrustedCADir != "" {
		entries, err := os.ReadDir(o.cfg.TLS.TrustedCADir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			pem, err := os.ReadFile(filepath.Join(o.cfg.TLS.TrustedCADir, entry.Name()))
			if err != nil {
				return nil, err
			}
			pool.AppendCertsFromPEM(pem)
		}
	}

	return pool, nil
}

// SetServer implements spec §4.C's set_server(address, server_tls?, sni?):
// redirect the upstream endpoint a later layer (e.g. an HTTP CONNECT
// handler) decides to use, optionally updating whether TLS applies to it
// and what SNI to present.
func (o *Orchestrator) SetServer(server ServerAddress, serverTLS *bool, sni layerctx.SNIOverride) {
	if serverTLS != nil {
		o.serverTLS = *serverTLS
	}
	o.sniOverride = sni
	o.server = server
	o.serverConn = nil
}
