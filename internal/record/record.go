// Package record implements the TLS record-layer peek used to reassemble a
// client's initial handshake message without consuming it from the
// underlying transport, so higher layers can still read it in full.
package record

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// recordHeaderLen is the size of a TLS record header: content-type (1),
// version-major (1), version-minor (1), length (2, big-endian).
const recordHeaderLen = 5

// TLS content types relevant to the opening handshake.
const (
	contentTypeHandshake = 0x16
)

// ProtocolError is returned for structural failures while reassembling the
// initial handshake: a bad record header or a short read. It carries the
// offending bytes for diagnostics.
type ProtocolError struct {
	Msg   string
	Bytes []byte
}

func (e *ProtocolError) Error() string {
	if len(e.Bytes) == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, hex.EncodeToString(e.Bytes))
}

// IsTLSRecordMagic reports whether b starts with the TLS record magic bytes
// for a handshake record: content-type 0x16, version 0x03, and a minor
// version in {0x00, 0x01, 0x02, 0x03}. Comparisons are against numeric byte
// values throughout, never strings or runes.
func IsTLSRecordMagic(b []byte) bool {
	if len(b) < 3 {
		return false
	}
	if b[0] != contentTypeHandshake || b[1] != 0x03 {
		return false
	}
	switch b[2] {
	case 0x00, 0x01, 0x02, 0x03:
		return true
	default:
		return false
	}
}

// Peeker is the minimal socket capability the reassembly loop needs: a
// non-destructive peek-by-prefix-length over buffered client input. A
// *bufio.Reader satisfies it directly, as long as its buffer is large
// enough to hold the full reassembled handshake.
type Peeker interface {
	Peek(n int) ([]byte, error)
}

// compile-time assertion that the common case needs no adapter.
var _ Peeker = (*bufio.Reader)(nil)

// PeekClientHello reassembles and returns the concatenated bodies of every
// TLS record that together contain one complete initial handshake message,
// with record headers stripped. Nothing is consumed from p: every byte
// returned remains available to a subsequent Read on the same underlying
// reader.
//
// Some clients split the ClientHello across several records; others send
// one oversized record. The loop below handles both uniformly by growing
// its notion of the target size, helloSize, once enough of the handshake
// header has been reassembled to read the real length.
func PeekClientHello(p Peeker) ([]byte, error) {
	hello := make([]byte, 0, 512)
	helloSize := 1 // unknown placeholder, greater than zero so the loop runs at least once
	offset := 0

	for len(hello) < helloSize {
		header, err := peekRecordHeader(p, offset)
		if err != nil {
			return nil, err
		}

		recordSize := int(binary.BigEndian.Uint16(header[3:5])) + recordHeaderLen

		buf, err := p.Peek(offset + recordSize)
		if err != nil {
			return nil, &ProtocolError{Msg: "Unexpected EOF in TLS handshake"}
		}
		body := buf[offset+recordHeaderLen : offset+recordSize]
		if len(body) != recordSize-recordHeaderLen {
			return nil, &ProtocolError{Msg: "Unexpected EOF in TLS handshake", Bytes: body}
		}

		hello = append(hello, body...)
		offset += recordSize

		if len(hello) >= 4 {
			helloSize = int(hello[1])<<16 | int(hello[2])<<8 | int(hello[3]) + 4
		}
	}

	return hello, nil
}

// peekRecordHeader peeks the next 5-byte record header starting at offset
// and validates it against the TLS handshake magic.
func peekRecordHeader(p Peeker, offset int) ([]byte, error) {
	buf, err := p.Peek(offset + recordHeaderLen)
	if err != nil || len(buf) != offset+recordHeaderLen {
		got := buf
		if offset < len(got) {
			got = got[offset:]
		} else {
			got = nil
		}
		return nil, &ProtocolError{Msg: "Expected TLS record, got short read", Bytes: got}
	}

	header := buf[offset : offset+recordHeaderLen]
	if !IsTLSRecordMagic(header) {
		return nil, &ProtocolError{Msg: "Expected TLS record, got non-TLS bytes", Bytes: header}
	}
	return header, nil
}
