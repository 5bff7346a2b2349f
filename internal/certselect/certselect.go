// Package certselect implements the TLS orchestrator's CertificateSelection
// step (spec §4.C, "_find_cert"): deriving the host name and SAN set a
// forged leaf certificate must cover, before handing that pair to the
// certstore for issuance.
package certselect

import (
	"crypto/x509"

	"github.com/fnzv/mitmproxy/internal/layerctx"
	"golang.org/x/net/idna"
)

// Request carries everything CertificateSelection needs to derive a
// (host, sans) pair for the forged client-facing certificate.
type Request struct {
	// Host is the upstream server address's host name, before any
	// upstream-CN substitution below.
	Host string

	// UpstreamCert is the verified upstream leaf, when a server-side TLS
	// connection has already been established and NoUpstreamCert is
	// false. Nil means no upstream certificate is available yet.
	UpstreamCert *x509.Certificate

	// NoUpstreamCert mirrors the config flag of the same name: when
	// true, UpstreamCert is ignored even if present.
	NoUpstreamCert bool

	// ClientSNI is the SNI the client offered, if any.
	ClientSNI string

	// SNIOverride is the composition framework's tri-state redirect
	// override.
	SNIOverride layerctx.SNIOverride
}

// Select computes the (host, sans) pair the certstore should issue a leaf
// for, following spec §4.C steps 1-4:
//  1. host = server address host, sans = {}
//  2. if an upstream cert is available and not suppressed, fold in its
//     SANs, and if it carries a common name, preserve the original host as
//     a SAN and replace host with the upstream CN converted UTF-8 → IDNA.
//  3. add the client SNI, if present.
//  4. add the SNI override value, if explicitly set.
func Select(req Request) (host string, sans []string) {
	host = req.Host
	set := make(map[string]struct{})

	useUpstreamCert := req.UpstreamCert != nil && !req.NoUpstreamCert
	if useUpstreamCert {
		for _, san := range req.UpstreamCert.DNSNames {
			addName(set, san)
		}
		if cn := req.UpstreamCert.Subject.CommonName; cn != "" {
			addName(set, host)
			if ascii, err := idna.ToASCII(cn); err == nil {
				host = ascii
			} else {
				host = cn
			}
		}
	}

	if req.ClientSNI != "" {
		addName(set, req.ClientSNI)
	}
	if v, ok := req.SNIOverride.Value(); ok && v != "" {
		addName(set, v)
	}

	sans = make([]string, 0, len(set))
	for name := range set {
		sans = append(sans, name)
	}
	return host, sans
}

func addName(set map[string]struct{}, name string) {
	if name == "" {
		return
	}
	set[name] = struct{}{}
}
