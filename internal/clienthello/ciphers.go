package clienthello

// cipherIDName maps a TLS cipher suite ID to its OpenSSL name, so that a
// client's offered cipher list can be translated into an OpenSSL-style
// cipher string for the upstream-facing handshake when the operator hasn't
// configured one explicitly. Sourced from https://testssl.sh/openssl-rfc.mapping.html.
var cipherIDName = map[uint16]string{
	0x0000: "NULL-MD5",
	0x0001: "NULL-MD5",
	0x0002: "NULL-SHA",
	0x0003: "EXP-RC4-MD5",
	0x0004: "RC4-MD5",
	0x0005: "RC4-SHA",
	0x0006: "EXP-RC2-CBC-MD5",
	0x0007: "IDEA-CBC-SHA",
	0x0008: "EXP-DES-CBC-SHA",
	0x0009: "DES-CBC-SHA",
	0x000a: "DES-CBC3-SHA",
	0x000b: "EXP-DH-DSS-DES-CBC-SHA",
	0x000c: "DH-DSS-DES-CBC-SHA",
	0x000d: "DH-DSS-DES-CBC3-SHA",
	0x000e: "EXP-DH-RSA-DES-CBC-SHA",
	0x000f: "DH-RSA-DES-CBC-SHA",
	0x0010: "DH-RSA-DES-CBC3-SHA",
	0x0011: "EXP-EDH-DSS-DES-CBC-SHA",
	0x0012: "EDH-DSS-DES-CBC-SHA",
	0x0013: "EDH-DSS-DES-CBC3-SHA",
	0x0014: "EXP-EDH-RSA-DES-CBC-SHA",
	0x0015: "EDH-RSA-DES-CBC-SHA",
	0x0016: "EDH-RSA-DES-CBC3-SHA",
	0x0017: "EXP-ADH-RC4-MD5",
	0x0018: "ADH-RC4-MD5",
	0x0019: "EXP-ADH-DES-CBC-SHA",
	0x001a: "ADH-DES-CBC-SHA",
	0x001b: "ADH-DES-CBC3-SHA",
	0x001e: "KRB5-DES-CBC-SHA",
	0x001f: "KRB5-DES-CBC3-SHA",
	0x0020: "KRB5-RC4-SHA",
	0x0021: "KRB5-IDEA-CBC-SHA",
	0x0022: "KRB5-DES-CBC-MD5",
	0x0023: "KRB5-DES-CBC3-MD5",
	0x0024: "KRB5-RC4-MD5",
	0x0025: "KRB5-IDEA-CBC-MD5",
	0x0026: "EXP-KRB5-DES-CBC-SHA",
	0x0027: "EXP-KRB5-RC2-CBC-SHA",
	0x0028: "EXP-KRB5-RC4-SHA",
	0x0029: "EXP-KRB5-DES-CBC-MD5",
	0x002a: "EXP-KRB5-RC2-CBC-MD5",
	0x002b: "EXP-KRB5-RC4-MD5",
	0x002f: "AES128-SHA",
	0x0030: "DH-DSS-AES128-SHA",
	0x0031: "DH-RSA-AES128-SHA",
	0x0032: "DHE-DSS-AES128-SHA",
	0x0033: "DHE-RSA-AES128-SHA",
	0x0034: "ADH-AES128-SHA",
	0x0035: "AES256-SHA",
	0x0036: "DH-DSS-AES256-SHA",
	0x0037: "DH-RSA-AES256-SHA",
	0x0038: "DHE-DSS-AES256-SHA",
	0x0039: "DHE-RSA-AES256-SHA",
	0x003a: "ADH-AES256-SHA",
	0x003b: "NULL-SHA256",
	0x003c: "AES128-SHA256",
	0x003d: "AES256-SHA256",
	0x003e: "DH-DSS-AES128-SHA256",
	0x003f: "DH-RSA-AES128-SHA256",
	0x0040: "DHE-DSS-AES128-SHA256",
	0x0041: "CAMELLIA128-SHA",
	0x0042: "DH-DSS-CAMELLIA128-SHA",
	0x0043: "DH-RSA-CAMELLIA128-SHA",
	0x0044: "DHE-DSS-CAMELLIA128-SHA",
	0x0045: "DHE-RSA-CAMELLIA128-SHA",
	0x0046: "ADH-CAMELLIA128-SHA",
	0x0062: "EXP1024-DES-CBC-SHA",
	0x0063: "EXP1024-DHE-DSS-DES-CBC-SHA",
	0x0064: "EXP1024-RC4-SHA",
	0x0065: "EXP1024-DHE-DSS-RC4-SHA",
	0x0066: "DHE-DSS-RC4-SHA",
	0x0067: "DHE-RSA-AES128-SHA256",
	0x0068: "DH-DSS-AES256-SHA256",
	0x0069: "DH-RSA-AES256-SHA256",
	0x006a: "DHE-DSS-AES256-SHA256",
	0x006b: "DHE-RSA-AES256-SHA256",
	0x006c: "ADH-AES128-SHA256",
	0x006d: "ADH-AES256-SHA256",
	0x0080: "GOST94-GOST89-GOST89",
	0x0081: "GOST2001-GOST89-GOST89",
	0x0082: "GOST94-NULL-GOST94",
	0x0083: "GOST2001-GOST89-GOST89",
	0x0084: "CAMELLIA256-SHA",
	0x0085: "DH-DSS-CAMELLIA256-SHA",
	0x0086: "DH-RSA-CAMELLIA256-SHA",
	0x0087: "DHE-DSS-CAMELLIA256-SHA",
	0x0088: "DHE-RSA-CAMELLIA256-SHA",
	0x0089: "ADH-CAMELLIA256-SHA",
	0x008a: "PSK-RC4-SHA",
	0x008b: "PSK-3DES-EDE-CBC-SHA",
	0x008c: "PSK-AES128-CBC-SHA",
	0x008d: "PSK-AES256-CBC-SHA",
	0x0096: "SEED-SHA",
	0x0097: "DH-DSS-SEED-SHA",
	0x0098: "DH-RSA-SEED-SHA",
	0x0099: "DHE-DSS-SEED-SHA",
	0x009a: "DHE-RSA-SEED-SHA",
	0x009b: "ADH-SEED-SHA",
	0x009c: "AES128-GCM-SHA256",
	0x009d: "AES256-GCM-SHA384",
	0x009e: "DHE-RSA-AES128-GCM-SHA256",
	0x009f: "DHE-RSA-AES256-GCM-SHA384",
	0x00a0: "DH-RSA-AES128-GCM-SHA256",
	0x00a1: "DH-RSA-AES256-GCM-SHA384",
	0x00a2: "DHE-DSS-AES128-GCM-SHA256",
	0x00a3: "DHE-DSS-AES256-GCM-SHA384",
	0x00a4: "DH-DSS-AES128-GCM-SHA256",
	0x00a5: "DH-DSS-AES256-GCM-SHA384",
	0x00a6: "ADH-AES128-GCM-SHA256",
	0x00a7: "ADH-AES256-GCM-SHA384",
	0x5600: "TLS_FALLBACK_SCSV",
	0xc001: "ECDH-ECDSA-NULL-SHA",
	0xc002: "ECDH-ECDSA-RC4-SHA",
	0xc003: "ECDH-ECDSA-DES-CBC3-SHA",
	0xc004: "ECDH-ECDSA-AES128-SHA",
	0xc005: "ECDH-ECDSA-AES256-SHA",
	0xc006: "ECDHE-ECDSA-NULL-SHA",
	0xc007: "ECDHE-ECDSA-RC4-SHA",
	0xc008: "ECDHE-ECDSA-DES-CBC3-SHA",
	0xc009: "ECDHE-ECDSA-AES128-SHA",
	0xc00a: "ECDHE-ECDSA-AES256-SHA",
	0xc00b: "ECDH-RSA-NULL-SHA",
	0xc00c: "ECDH-RSA-RC4-SHA",
	0xc00d: "ECDH-RSA-DES-CBC3-SHA",
	0xc00e: "ECDH-RSA-AES128-SHA",
	0xc00f: "ECDH-RSA-AES256-SHA",
	0xc010: "ECDHE-RSA-NULL-SHA",
	0xc011: "ECDHE-RSA-RC4-SHA",
	0xc012: "ECDHE-RSA-DES-CBC3-SHA",
	0xc013: "ECDHE-RSA-AES128-SHA",
	0xc014: "ECDHE-RSA-AES256-SHA",
	0xc015: "AECDH-NULL-SHA",
	0xc016: "AECDH-RC4-SHA",
	0xc017: "AECDH-DES-CBC3-SHA",
	0xc018: "AECDH-AES128-SHA",
	0xc019: "AECDH-AES256-SHA",
	0xc01a: "SRP-3DES-EDE-CBC-SHA",
	0xc01b: "SRP-RSA-3DES-EDE-CBC-SHA",
	0xc01c: "SRP-DSS-3DES-EDE-CBC-SHA",
	0xc01d: "SRP-AES-128-CBC-SHA",
	0xc01e: "SRP-RSA-AES-128-CBC-SHA",
	0xc01f: "SRP-DSS-AES-128-CBC-SHA",
	0xc020: "SRP-AES-256-CBC-SHA",
	0xc021: "SRP-RSA-AES-256-CBC-SHA",
	0xc022: "SRP-DSS-AES-256-CBC-SHA",
	0xc023: "ECDHE-ECDSA-AES128-SHA256",
	0xc024: "ECDHE-ECDSA-AES256-SHA384",
	0xc025: "ECDH-ECDSA-AES128-SHA256",
	0xc026: "ECDH-ECDSA-AES256-SHA384",
	0xc027: "ECDHE-RSA-AES128-SHA256",
	0xc028: "ECDHE-RSA-AES256-SHA384",
	0xc029: "ECDH-RSA-AES128-SHA256",
	0xc02a: "ECDH-RSA-AES256-SHA384",
	0xc02b: "ECDHE-ECDSA-AES128-GCM-SHA256",
	0xc02c: "ECDHE-ECDSA-AES256-GCM-SHA384",
	0xc02d: "ECDH-ECDSA-AES128-GCM-SHA256",
	0xc02e: "ECDH-ECDSA-AES256-GCM-SHA384",
	0xc02f: "ECDHE-RSA-AES128-GCM-SHA256",
	0xc030: "ECDHE-RSA-AES256-GCM-SHA384",
	0xc031: "ECDH-RSA-AES128-GCM-SHA256",
	0xc032: "ECDH-RSA-AES256-GCM-SHA384",
	0xcc13: "ECDHE-RSA-CHACHA20-POLY1305",
	0xcc14: "ECDHE-ECDSA-CHACHA20-POLY1305",
	0xcc15: "DHE-RSA-CHACHA20-POLY1305",
	0xff00: "GOST-MD5",
	0xff01: "GOST-GOST94",
	0xff02: "GOST-GOST89MAC",
	0xff03: "GOST-GOST89STREAM",
}

// OpenSSLCipherList translates a client's offered cipher suite IDs into a
// colon-separated OpenSSL cipher-list string, skipping any suite ID with
// no known OpenSSL name. Order is preserved, matching the client's stated
// preference.
func OpenSSLCipherList(suites []uint16) string {
	names := make([]string, 0, len(suites))
	for _, id := range suites {
		if name, ok := cipherIDName[id]; ok {
			names = append(names, name)
		}
	}
	return joinColon(names)
}

func joinColon(names []string) string {
	if len(names) == 0 {
		return ""
	}
	total := len(names) - 1
	for _, n := range names {
		total += len(n)
	}
	buf := make([]byte, 0, total)
	for i, n := range names {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, n...)
	}
	return string(buf)
}
