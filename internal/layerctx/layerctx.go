// Package layerctx replaces the subclass-polymorphism layer composition of
// the original proxy with an explicit context value: a mutable connection
// pair plus a next_layer(current) function, so a layer is a plain value
// that owns an outward-pointing reference instead of a cyclic subclass
// hierarchy (see spec §9, "Replacing dynamic dispatch on layers").
package layerctx

import (
	"context"
	"errors"
	"net"
)

// ErrNoNextLayer is returned by Context.Next when no NextLayer function was
// configured — a programmer error in how the context was constructed, not
// a connection-level failure.
var ErrNoNextLayer = errors.New("layerctx: no next-layer function configured")

// Layer is the minimal behavior the orchestrator hands off to once both
// sides of the connection (or neither) have finished TLS establishment.
type Layer interface {
	// Run drives whatever protocol this layer implements using the
	// connection pair carried on ctx. It owns ctx.Client/ctx.Server for
	// its duration and is responsible for closing them on exit.
	Run(ctx *Context) error
}

// Context carries the state a layer needs without a back-reference into a
// class hierarchy: the connection pair as it currently stands, and a
// lookup function for what comes after the calling layer. The relation
// between a Layer and its Context is a plain function call, never a
// stored cyclic pointer — each layer receives the Context it needs for the
// duration of its Run call and nothing longer.
type Context struct {
	Client net.Conn
	Server net.Conn

	// NextLayer resolves what runs after current. It is supplied by
	// whatever assembled the layer stack for this connection (the
	// CLI's serve command, in this module) and may return a Layer with
	// no further NextLayer of its own.
	NextLayer func(current Layer) (Layer, error)

	// Connect, when non-nil, lazily ensures (and returns) the upstream
	// connection — dialing it and driving server-side TLS if that
	// hasn't happened yet. A layer that only needs the server socket
	// once it has something to send calls this instead of assuming
	// Server is already populated and connected (spec §4.C connect()).
	Connect func(ctx context.Context) (net.Conn, error)
}

// Next looks up and returns the layer that follows current.
func (c *Context) Next(current Layer) (Layer, error) {
	if c.NextLayer == nil {
		return nil, ErrNoNextLayer
	}
	return c.NextLayer(current)
}

// SNIOverride is the tri-state spec.md §3 assigns to sni_override: unset
// (the composition framework never touched it), explicit-none (a redirect
// wants no SNI sent at all), or an explicit host name.
type SNIOverride struct {
	state sniState
	value string
}

type sniState int

const (
	sniUnset sniState = iota
	sniExplicitNone
	sniExplicitValue
)

// NoSNIOverride returns the zero, "unset" override.
func NoSNIOverride() SNIOverride { return SNIOverride{state: sniUnset} }

// ExplicitNoSNI returns an override that suppresses SNI entirely.
func ExplicitNoSNI() SNIOverride { return SNIOverride{state: sniExplicitNone} }

// ExplicitSNI returns an override naming a specific host.
func ExplicitSNI(host string) SNIOverride {
	return SNIOverride{state: sniExplicitValue, value: host}
}

// IsUnset reports whether the composition framework never set an override.
func (o SNIOverride) IsUnset() bool { return o.state == sniUnset }

// IsExplicitNone reports whether SNI was explicitly suppressed.
func (o SNIOverride) IsExplicitNone() bool { return o.state == sniExplicitNone }

// Value returns the explicit host name and true, or "" and false when the
// override is unset or explicit-none.
func (o SNIOverride) Value() (string, bool) {
	if o.state == sniExplicitValue {
		return o.value, true
	}
	return "", false
}

// Resolve implements the sni_for_server_connection derived property
// (spec.md §4.C): if the override explicitly suppresses SNI, the result is
// "", false; else the override value if set; else fallback (the parsed
// client SNI).
func (o SNIOverride) Resolve(fallback string) (string, bool) {
	if o.IsExplicitNone() {
		return "", false
	}
	if v, ok := o.Value(); ok {
		return v, true
	}
	if fallback == "" {
		return "", false
	}
	return fallback, true
}
