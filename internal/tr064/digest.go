package tr064

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// challenge holds a parsed WWW-Authenticate digest challenge (RFC 2617).
// FRITZ!OS issues MD5 challenges with qop="auth".
type challenge struct {
	realm     string
	nonce     string
	qop       string
	opaque    string
	algorithm string
}

func parseChallenge(header string) (challenge, error) {
	const prefix = "Digest "
	if !strings.HasPrefix(header, prefix) {
		return challenge{}, fmt.Errorf("not a digest challenge: %q", header)
	}

	var ch challenge
	for _, part := range splitParams(header[len(prefix):]) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), `"`)
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "realm":
			ch.realm = v
		case "nonce":
			ch.nonce = v
		case "qop":
			// qop may list several values; auth is the only one supported
			if strings.Contains(v, "auth") {
				ch.qop = "auth"
			}
		case "opaque":
			ch.opaque = v
		case "algorithm":
			ch.algorithm = v
		}
	}
	if ch.realm == "" || ch.nonce == "" {
		return challenge{}, fmt.Errorf("incomplete digest challenge: %q", header)
	}
	return ch, nil
}

// splitParams splits a comma-separated parameter list, ignoring commas
// inside quoted values.
func splitParams(s string) []string {
	var parts []string
	var b strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			b.WriteRune(r)
		case r == ',' && !quoted:
			parts = append(parts, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		parts = append(parts, strings.TrimSpace(b.String()))
	}
	return parts
}

// authorize builds the Authorization header value for one request.
func (ch challenge) authorize(method, uri, username, password string, nc int, cnonce string) string {
	ha1 := md5hex(username + ":" + ch.realm + ":" + password)
	ha2 := md5hex(method + ":" + uri)
	ncField := fmt.Sprintf("%08x", nc)

	var response string
	if ch.qop == "" {
		response = md5hex(ha1 + ":" + ch.nonce + ":" + ha2)
	} else {
		response = md5hex(strings.Join([]string{ha1, ch.nonce, ncField, cnonce, ch.qop, ha2}, ":"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username=%q, realm=%q, nonce=%q, uri=%q, response=%q`,
		username, ch.realm, ch.nonce, uri, response)
	if ch.qop != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce=%q`, ch.qop, ncField, cnonce)
	}
	if ch.opaque != "" {
		fmt.Fprintf(&b, `, opaque=%q`, ch.opaque)
	}
	b.WriteString(`, algorithm=MD5`)
	return b.String()
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newCnonce() string {
	var buf [8]byte
	rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
