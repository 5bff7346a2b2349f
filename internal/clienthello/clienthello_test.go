package clienthello

import (
	"reflect"
	"strings"
	"testing"
)

// buildClientHello assembles a minimal but well-formed ClientHello
// handshake message body (including the 4-byte handshake header) for a
// given cipher suite list, SNI host name, and ALPN protocol list.
func buildClientHello(t *testing.T, ciphers []uint16, sni string, alpn []string) []byte {
	t.Helper()

	var body []byte
	body = append(body, 0x03, 0x03)           // client_version: TLS 1.2
	body = append(body, make([]byte, 32)...)  // random
	body = append(body, 0x00)                 // session_id length 0

	var cs []byte
	for _, c := range ciphers {
		cs = append(cs, byte(c>>8), byte(c))
	}
	body = append(body, byte(len(cs)>>8), byte(len(cs)))
	body = append(body, cs...)

	body = append(body, 0x01, 0x00) // compression methods: length 1, null

	var extensions []byte
	if sni != "" {
		nameList := append([]byte{0x00}, encodeUint16Len([]byte(sni))...)
		serverNameExt := encodeUint16Len(nameList)
		extensions = append(extensions, 0x00, 0x00) // extension type: server_name
		extensions = append(extensions, byte(len(serverNameExt)>>8), byte(len(serverNameExt)))
		extensions = append(extensions, serverNameExt...)
	}
	if len(alpn) > 0 {
		var protoList []byte
		for _, p := range alpn {
			protoList = append(protoList, byte(len(p)))
			protoList = append(protoList, p...)
		}
		alpnBody := encodeUint16Len(protoList)
		extensions = append(extensions, 0x00, 0x10) // extension type: alpn
		extensions = append(extensions, byte(len(alpnBody)>>8), byte(len(alpnBody)))
		extensions = append(extensions, alpnBody...)
	}

	if len(extensions) > 0 {
		body = append(body, byte(len(extensions)>>8), byte(len(extensions)))
		body = append(body, extensions...)
	}

	msg := []byte{typeClientHello, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}
	msg = append(msg, body...)
	return msg
}

// encodeUint16Len wraps data with a 2-byte big-endian length prefix,
// matching the "opaque <0..2^16-1>" encoding TLS uses for name lists.
func encodeUint16Len(data []byte) []byte {
	out := []byte{byte(len(data) >> 8), byte(len(data))}
	return append(out, data...)
}

// serverNameEntry is one (type, name) pair in a server_name extension's
// ServerNameList.
type serverNameEntry struct {
	nameType byte
	name     string
}

// buildClientHelloWithServerNameEntries builds a ClientHello whose
// server_name extension carries an arbitrary list of entries, to exercise
// shapes buildClientHello's single-host_name shortcut can't produce.
func buildClientHelloWithServerNameEntries(t *testing.T, ciphers []uint16, entries []serverNameEntry, alpn []string) []byte {
	t.Helper()

	var body []byte
	body = append(body, 0x03, 0x03)
	body = append(body, make([]byte, 32)...)
	body = append(body, 0x00)

	var cs []byte
	for _, c := range ciphers {
		cs = append(cs, byte(c>>8), byte(c))
	}
	body = append(body, byte(len(cs)>>8), byte(len(cs)))
	body = append(body, cs...)

	body = append(body, 0x01, 0x00)

	var nameList []byte
	for _, e := range entries {
		nameList = append(nameList, e.nameType)
		nameList = append(nameList, encodeUint16Len([]byte(e.name))...)
	}
	serverNameExt := encodeUint16Len(nameList)

	var extensions []byte
	extensions = append(extensions, 0x00, 0x00)
	extensions = append(extensions, byte(len(serverNameExt)>>8), byte(len(serverNameExt)))
	extensions = append(extensions, serverNameExt...)

	if len(alpn) > 0 {
		var protoList []byte
		for _, p := range alpn {
			protoList = append(protoList, byte(len(p)))
			protoList = append(protoList, p...)
		}
		alpnBody := encodeUint16Len(protoList)
		extensions = append(extensions, 0x00, 0x10)
		extensions = append(extensions, byte(len(alpnBody)>>8), byte(len(alpnBody)))
		extensions = append(extensions, alpnBody...)
	}

	body = append(body, byte(len(extensions)>>8), byte(len(extensions)))
	body = append(body, extensions...)

	msg := []byte{typeClientHello, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}
	msg = append(msg, body...)
	return msg
}

func TestParse_FullClientHello(t *testing.T) {
	raw := buildClientHello(t, []uint16{0xc02b, 0xc02f, 0x009c}, "example.com", []string{"h2", "http/1.1"})

	ch, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ch.ServerName != "example.com" {
		t.Errorf("ServerName = %q, want %q", ch.ServerName, "example.com")
	}
	wantCiphers := []uint16{0xc02b, 0xc02f, 0x009c}
	if !reflect.DeepEqual(ch.CipherSuites, wantCiphers) {
		t.Errorf("CipherSuites = %v, want %v", ch.CipherSuites, wantCiphers)
	}
	wantALPN := []string{"h2", "http/1.1"}
	if !reflect.DeepEqual(ch.ALPNProtocols, wantALPN) {
		t.Errorf("ALPNProtocols = %v, want %v", ch.ALPNProtocols, wantALPN)
	}
}

func TestParse_NoExtensions(t *testing.T) {
	raw := buildClientHello(t, []uint16{0x009c}, "", nil)

	ch, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ch.ServerName != "" {
		t.Errorf("ServerName = %q, want empty", ch.ServerName)
	}
	if ch.ALPNProtocols != nil {
		t.Errorf("ALPNProtocols = %v, want nil", ch.ALPNProtocols)
	}
}

func TestParse_TrailingDotStripped(t *testing.T) {
	raw := buildClientHello(t, []uint16{0x009c}, "example.com.", nil)

	ch, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ch.ServerName != "example.com" {
		t.Errorf("ServerName = %q, want %q", ch.ServerName, "example.com")
	}
}

func TestParse_WrongMessageType(t *testing.T) {
	raw := buildClientHello(t, []uint16{0x009c}, "example.com", nil)
	raw[0] = 0x02 // ServerHello, not ClientHello

	_, err := Parse(raw)
	if err == nil {
		t.Fatal("Parse() expected error for wrong message type, got nil")
	}
}

func TestParse_Truncated(t *testing.T) {
	raw := buildClientHello(t, []uint16{0x009c}, "example.com", []string{"h2"})

	_, err := Parse(raw[:len(raw)-10])
	if err == nil {
		t.Fatal("Parse() expected error for truncated input, got nil")
	}
}

func TestParse_ServerNameListWithTwoHostNameEntries_YieldsAbsentSNI(t *testing.T) {
	raw := buildClientHelloWithServerNameEntries(t, []uint16{0xc02b, 0x009c}, []serverNameEntry{
		{nameType: 0, name: "a.example.com"},
		{nameType: 0, name: "b.example.com"},
	}, []string{"h2"})

	ch, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil (multi-entry server_name must not abort the whole parse)", err)
	}
	if ch.ServerName != "" {
		t.Errorf("ServerName = %q, want empty for a multi-entry server_name list", ch.ServerName)
	}
	wantCiphers := []uint16{0xc02b, 0x009c}
	if !reflect.DeepEqual(ch.CipherSuites, wantCiphers) {
		t.Errorf("CipherSuites = %v, want %v (must still be parsed)", ch.CipherSuites, wantCiphers)
	}
	wantALPN := []string{"h2"}
	if !reflect.DeepEqual(ch.ALPNProtocols, wantALPN) {
		t.Errorf("ALPNProtocols = %v, want %v (must still be parsed)", ch.ALPNProtocols, wantALPN)
	}
}

func TestParse_ServerNameListWithOneNonHostNameEntry_YieldsAbsentSNI(t *testing.T) {
	raw := buildClientHelloWithServerNameEntries(t, []uint16{0x009c}, []serverNameEntry{
		{nameType: 1, name: "not-a-host-name"},
	}, nil)

	ch, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
	if ch.ServerName != "" {
		t.Errorf("ServerName = %q, want empty for a single non-host_name entry", ch.ServerName)
	}
}

func TestOpenSSLCipherList(t *testing.T) {
	got := OpenSSLCipherList([]uint16{0xc02b, 0xc02f, 0xffff})
	want := "ECDHE-ECDSA-AES128-GCM-SHA256:ECDHE-RSA-AES128-GCM-SHA256"
	if got != want {
		t.Errorf("OpenSSLCipherList() = %q, want %q", got, want)
	}
}

func TestOpenSSLCipherList_Empty(t *testing.T) {
	if got := OpenSSLCipherList(nil); got != "" {
		t.Errorf("OpenSSLCipherList(nil) = %q, want empty", got)
	}
}

func TestClientHello_String(t *testing.T) {
	ch := &ClientHello{
		ServerName:    "example.com",
		ALPNProtocols: []string{"h2", "http/1.1"},
		CipherSuites:  []uint16{0xc02b, 0xc02f},
	}
	got := ch.String()
	for _, want := range []string{"example.com", "h2", "http/1.1", "49195", "49199"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, expected it to contain %q", got, want)
		}
	}
}
