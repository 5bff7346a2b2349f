// Package passthrough is the simplest possible layer that can follow the
// TLS orchestrator in the composition chain (spec §9): once both sides of
// a connection are in whatever state the orchestrator left them (plaintext
// or newly-established TLS), this layer just shuttles bytes between them
// until either side closes. A real deployment would put a protocol-aware
// layer here instead (e.g. one that inspects HTTP requests), but tunneling
// is what's left once TLS has been peeled back and nothing downstream
// wants to look inside.
package passthrough

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/fnzv/mitmproxy/internal/layerctx"
	"github.com/fnzv/mitmproxy/internal/logging"
)

// Tunnel is a layerctx.Layer that copies bytes bidirectionally between
// ctx.Client and ctx.Server, connecting the server side lazily through
// ctx.Connect when the orchestrator deferred it (client-TLS-only
// configurations, spec §4.C). IdleTimeout, when positive, ends each
// direction of the copy once that direction has gone that long without
// data; Run returns when both directions have ended.
type Tunnel struct {
	IdleTimeout time.Duration
}

// Run implements layerctx.Layer. It always collects transfer stats (from
// the shared proxyTCP loop) so the byte counts can go to the debug log once
// the tunnel ends — the orchestrator has no other way to observe how much
// traffic a connection carried. Both connections are closed when Run
// returns.
func (t Tunnel) Run(ctx *layerctx.Context) error {
	defer ctx.Client.Close()

	server := ctx.Server
	if server == nil {
		if ctx.Connect == nil {
			return errors.New("passthrough: no server connection and no way to establish one")
		}
		conn, err := ctx.Connect(context.Background())
		if err != nil {
			return err
		}
		server = conn
	}
	defer server.Close()

	logging.Debug("tunneling connection", "idle_timeout", t.IdleTimeout)

	result := proxyTCP(ctx.Client, server, t.IdleTimeout)
	logging.Debug("tunnel closed",
		"client_to_server", result.ClientToBackend,
		"server_to_client", result.BackendToClient)
	return result.Error
}

// ProxyTCP copies data bidirectionally between client and backend connections.
// It handles half-close scenarios properly and waits for both directions to complete.
// Returns nil on successful completion, or an error if either direction fails.
func ProxyTCP(client, backend net.Conn) error {
	return proxyTCP(client, backend, 0).Error
}

// ProxyTCPWithTimeout copies data bidirectionally with a per-direction idle
// timeout: a direction whose source sends nothing for idleTimeout ends with
// a timeout error, which is returned. The connections are not closed here.
func ProxyTCPWithTimeout(client, backend net.Conn, idleTimeout time.Duration) error {
	return proxyTCP(client, backend, idleTimeout).Error
}

// ProxyTCPWithStats copies data bidirectionally and returns statistics.
func ProxyTCPWithStats(client, backend net.Conn) ProxyResult {
	return proxyTCP(client, backend, 0)
}

// proxyTCP is the shared bidirectional copy loop behind ProxyTCP,
// ProxyTCPWithTimeout, ProxyTCPWithStats, and Tunnel.Run. idleTimeout of
// zero disables the read deadline entirely.
func proxyTCP(client, backend net.Conn, idleTimeout time.Duration) ProxyResult {
	var wg sync.WaitGroup
	wg.Add(2)

	var result ProxyResult
	var clientErr, backendErr error

	// Client -> Backend
	go func() {
		defer wg.Done()
		result.ClientToBackend, clientErr = copyStream(backend, client, idleTimeout)
		// Signal half-close to backend
		closeWrite(backend)
	}()

	// Backend -> Client
	go func() {
		defer wg.Done()
		result.BackendToClient, backendErr = copyStream(client, backend, idleTimeout)
		// Signal half-close to client
		closeWrite(client)
	}()

	wg.Wait()

	// The client->backend error takes precedence over the backend->client
	// one, ignoring EOF and similar normal closes.
	if clientErr != nil && !isNormalClose(clientErr) {
		result.Error = clientErr
	} else if backendErr != nil && !isNormalClose(backendErr) {
		result.Error = backendErr
	}

	return result
}

// copyStream copies from src to dst, resetting src's read deadline before
// every read when idleTimeout is positive.
func copyStream(dst io.Writer, src net.Conn, idleTimeout time.Duration) (int64, error) {
	buf := make([]byte, 32*1024) // 32KB buffer
	var total int64

	for {
		if idleTimeout > 0 {
			if err := src.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
				return total, err
			}
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			written, writeErr := dst.Write(buf[:n])
			total += int64(written)
			if writeErr != nil {
				return total, writeErr
			}
			if written != n {
				return total, io.ErrShortWrite
			}
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

// closeWrite performs a half-close on the connection if it supports it.
// This signals to the peer that no more data will be sent, while still
// allowing data to be received.
func closeWrite(conn net.Conn) {
	// Try TCP half-close
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.CloseWrite()
		return
	}

	// Try to unwrap and find a TCP connection
	if wrapper, ok := conn.(interface{ NetConn() net.Conn }); ok {
		if tcpConn, ok := wrapper.NetConn().(*net.TCPConn); ok {
			_ = tcpConn.CloseWrite()
			return
		}
	}

	// For TLS connections, we can't do half-close, so just let it be
	// The full close will happen when the connection is closed
}

// isNormalClose returns true if the error represents a normal connection close.
func isNormalClose(err error) bool {
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	// Check for network closed errors
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Err.Error() == "use of closed network connection" {
			return true
		}
	}

	return false
}

// ProxyResult reports how much data a tunnel carried in each direction and
// a non-normal-close error, if any: the client->backend direction's when it
// has one, otherwise the backend->client direction's.
type ProxyResult struct {
	ClientToBackend int64 // Bytes copied from client to backend
	BackendToClient int64 // Bytes copied from backend to client
	Error           error // Non-normal-close error, client->backend first
}
