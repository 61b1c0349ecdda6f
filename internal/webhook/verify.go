// Package webhook authorizes inbound payment-event notifications. The
// billing provider may present its credential as a plain shared token
// (header, query string, or body field) or as an HMAC-SHA256 signature of
// the raw request body.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Credentials carries every candidate credential found on a request.
// Empty fields mean the request didn't supply that form.
type Credentials struct {
	HeaderToken string // X-Webhook-Token or Authorization bearer value
	Signature   string // X-Webhook-Signature value
	QueryToken  string // ?token= query parameter
	BodyToken   string // token / webhook_token body field
}

// Verifier decides whether a request is authorized to mutate subscription
// state. With no secret configured every request passes — open mode, a
// documented deployment hazard for local development only.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Open reports whether the verifier accepts unauthenticated requests.
func (v *Verifier) Open() bool {
	return v.secret == ""
}

// Authorized checks the candidate credentials against the shared secret.
// The checks are a logical OR in fixed order: plain token equality, the
// signature value matching the secret directly, then HMAC-SHA256 of the
// raw body compared in hex and base64. HMAC comparisons are constant-time.
func (v *Verifier) Authorized(body []byte, creds Credentials) bool {
	if v.secret == "" {
		return true
	}

	for _, token := range []string{creds.HeaderToken, creds.QueryToken, creds.BodyToken} {
		if token != "" && token == v.secret {
			return true
		}
	}

	sig := normalizeSignature(creds.Signature)
	if sig == "" {
		return false
	}
	if hmac.Equal([]byte(sig), []byte(v.secret)) {
		return true
	}

	// Signature-based verification needs a body to sign.
	if len(body) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write(body)
	sum := mac.Sum(nil)

	if hmac.Equal([]byte(hex.EncodeToString(sum)), []byte(sig)) {
		return true
	}
	if hmac.Equal([]byte(base64.StdEncoding.EncodeToString(sum)), []byte(strings.TrimSpace(creds.Signature))) {
		return true
	}
	return false
}

// normalizeSignature trims whitespace, strips an optional "sha256=" prefix,
// and lowercases hex-looking values so signatures survive provider quirks.
func normalizeSignature(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "sha256=")
	if isHex(s) {
		return strings.ToLower(s)
	}
	return s
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
