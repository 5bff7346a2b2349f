// Package clienthello parses a raw TLS ClientHello handshake message to
// recover the fields the TLS orchestrator needs before any cryptographic
// handshake takes place: the offered cipher suites, the SNI server name,
// and the ALPN protocol list.
package clienthello

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/cryptobyte"
)

const (
	typeClientHello     uint8  = 1
	extensionServerName uint16 = 0
	extensionALPN       uint16 = 16
)

// ClientHello holds the subset of a ClientHello message the orchestrator
// reads to make routing and certificate decisions.
type ClientHello struct {
	CipherSuites  []uint16
	ServerName    string
	ALPNProtocols []string
}

// String renders the diagnostic summary used in debug logging, the
// Go-idiomatic equivalent of the original parser's
// `TlsClientHello.__repr__`.
func (ch *ClientHello) String() string {
	return fmt.Sprintf("ClientHello(sni: %s, alpn_protocols: %v, cipher_suites: %v)",
		ch.ServerName, ch.ALPNProtocols, ch.CipherSuites)
}

// ParseError reports that a ClientHello could not be decoded. The orchestrator
// logs it at error level and carries on without the hello's SNI, ALPN and
// cipher suites.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse ClientHello: %s", e.Reason)
}

// Parse decodes raw, the concatenated handshake-message bytes returned by
// record.PeekClientHello (message type + 24-bit length + body), into a
// ClientHello. Unknown extensions are skipped; only truncation or malformed
// length prefixes are treated as fatal.
func Parse(raw []byte) (*ClientHello, error) {
	s := cryptobyte.String(raw)

	var msgType uint8
	if !s.ReadUint8(&msgType) {
		return nil, &ParseError{Reason: "truncated before message type"}
	}
	if msgType != typeClientHello {
		return nil, &ParseError{Reason: fmt.Sprintf("unexpected handshake message type %d", msgType)}
	}

	var length uint32
	if !readUint24(&s, &length) {
		return nil, &ParseError{Reason: "truncated before length"}
	}
	if uint32(len(s)) != length {
		return nil, &ParseError{Reason: "handshake length mismatch"}
	}

	var version uint16
	var random []byte
	var sessionID cryptobyte.String
	if !s.ReadUint16(&version) ||
		!s.ReadBytes(&random, 32) ||
		!s.ReadUint8LengthPrefixed(&sessionID) {
		return nil, &ParseError{Reason: "truncated client random or session id"}
	}

	var cipherSuites cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&cipherSuites) {
		return nil, &ParseError{Reason: "truncated cipher suites"}
	}
	ch := &ClientHello{}
	for !cipherSuites.Empty() {
		var suite uint16
		if !cipherSuites.ReadUint16(&suite) {
			return nil, &ParseError{Reason: "malformed cipher suite list"}
		}
		ch.CipherSuites = append(ch.CipherSuites, suite)
	}

	var compressionMethods cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&compressionMethods) {
		return nil, &ParseError{Reason: "truncated compression methods"}
	}

	if s.Empty() {
		// Extensions are optional; a ClientHello without them is valid.
		return ch, nil
	}

	var extensions cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&extensions) || !s.Empty() {
		return nil, &ParseError{Reason: "trailing bytes after extensions"}
	}

	for !extensions.Empty() {
		var extType uint16
		var extData cryptobyte.String
		if !extensions.ReadUint16(&extType) || !extensions.ReadUint16LengthPrefixed(&extData) {
			return nil, &ParseError{Reason: "malformed extension header"}
		}

		switch extType {
		case extensionServerName:
			name, err := parseServerName(extData)
			if err != nil {
				return nil, err
			}
			ch.ServerName = name
		case extensionALPN:
			protos, err := parseALPN(extData)
			if err != nil {
				return nil, err
			}
			ch.ALPNProtocols = protos
		default:
			// Unknown extensions are tolerated; we only need SNI and ALPN.
		}
	}

	return ch, nil
}

// parseServerName applies the same rule as client_sni in the original
// implementation: the server_name extension only yields a name when its
// list holds exactly one entry and that entry is host_name-typed. Any other
// shape (zero entries, multiple entries, a single non-host_name entry)
// means SNI is absent — it is never a reason to fail the whole ClientHello
// parse, since cipher_suites/ALPN are still perfectly readable.
func parseServerName(data cryptobyte.String) (string, error) {
	var nameList cryptobyte.String
	if !data.ReadUint16LengthPrefixed(&nameList) {
		return "", &ParseError{Reason: "malformed server_name extension"}
	}

	var nameTypes []uint8
	var names []string
	for !nameList.Empty() {
		var nameType uint8
		var serverName cryptobyte.String
		if !nameList.ReadUint8(&nameType) || !nameList.ReadUint16LengthPrefixed(&serverName) {
			return "", &ParseError{Reason: "malformed server_name entry"}
		}
		nameTypes = append(nameTypes, nameType)
		names = append(names, string(serverName))
	}

	if len(nameTypes) != 1 || nameTypes[0] != 0 { // host_name
		return "", nil
	}
	return strings.TrimSuffix(names[0], "."), nil
}

func parseALPN(data cryptobyte.String) ([]string, error) {
	var protoList cryptobyte.String
	if !data.ReadUint16LengthPrefixed(&protoList) || protoList.Empty() {
		return nil, &ParseError{Reason: "malformed alpn extension"}
	}

	var protos []string
	for !protoList.Empty() {
		var proto cryptobyte.String
		if !protoList.ReadUint8LengthPrefixed(&proto) || proto.Empty() {
			return nil, &ParseError{Reason: "malformed alpn protocol entry"}
		}
		protos = append(protos, string(proto))
	}
	return protos, nil
}

// readUint24 reads a big-endian 24-bit length field, the size TLS uses for
// the handshake message length.
func readUint24(s *cryptobyte.String, out *uint32) bool {
	var b []byte
	if !s.ReadBytes(&b, 3) {
		return false
	}
	*out = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return true
}
