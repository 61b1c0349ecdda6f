package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

const testSecret = "whsec_test_123"

func signHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func signBase64(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestOpenModeAcceptsEverything(t *testing.T) {
	v := NewVerifier("")
	if !v.Open() {
		t.Error("verifier with no secret should report open")
	}
	if !v.Authorized([]byte(`{"any": "thing"}`), Credentials{}) {
		t.Error("open mode should authorize a bare request")
	}
	if !v.Authorized(nil, Credentials{Signature: "garbage"}) {
		t.Error("open mode should authorize regardless of credentials")
	}
}

func TestPlainTokenMatch(t *testing.T) {
	v := NewVerifier(testSecret)
	body := []byte(`{"event": "paid"}`)

	tests := []struct {
		name  string
		creds Credentials
		want  bool
	}{
		{"header token", Credentials{HeaderToken: testSecret}, true},
		{"query token", Credentials{QueryToken: testSecret}, true},
		{"body token", Credentials{BodyToken: testSecret}, true},
		{"wrong header token", Credentials{HeaderToken: "nope"}, false},
		{"empty credentials", Credentials{}, false},
		{"prefix is not a match", Credentials{HeaderToken: testSecret + "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.Authorized(body, tt.creds); got != tt.want {
				t.Errorf("Authorized = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignatureEqualsSecret(t *testing.T) {
	v := NewVerifier(testSecret)
	body := []byte(`{"event": "paid"}`)

	if !v.Authorized(body, Credentials{Signature: testSecret}) {
		t.Error("signature equal to the secret should authorize")
	}
	if !v.Authorized(body, Credentials{Signature: "  " + testSecret + " "}) {
		t.Error("surrounding whitespace should be trimmed")
	}
	if !v.Authorized(body, Credentials{Signature: "sha256=" + testSecret}) {
		t.Error("sha256= prefix should be stripped")
	}
}

func TestHexSecretSignatureCaseInsensitive(t *testing.T) {
	// A hex-looking secret must match a signature differing only in case.
	v := NewVerifier("deadbeef01")
	if !v.Authorized([]byte("x"), Credentials{Signature: "DEADBEEF01"}) {
		t.Error("hex signatures should compare case-insensitively")
	}
}

func TestHMACSignature(t *testing.T) {
	v := NewVerifier(testSecret)
	body := []byte(`{"event": "compra aprovada", "email": "a@b.com"}`)

	if !v.Authorized(body, Credentials{Signature: signHex(testSecret, body)}) {
		t.Error("valid hex HMAC should authorize")
	}
	if !v.Authorized(body, Credentials{Signature: "sha256=" + signHex(testSecret, body)}) {
		t.Error("valid hex HMAC with sha256= prefix should authorize")
	}
	if !v.Authorized(body, Credentials{Signature: signBase64(testSecret, body)}) {
		t.Error("valid base64 HMAC should authorize")
	}
	if v.Authorized(body, Credentials{Signature: signHex("wrong-secret", body)}) {
		t.Error("HMAC under the wrong key should be rejected")
	}
}

func TestHMACBodyTamperInvalidates(t *testing.T) {
	v := NewVerifier(testSecret)
	body := []byte(`{"event": "compra aprovada", "email": "a@b.com"}`)
	sig := signHex(testSecret, body)

	tampered := append([]byte(nil), body...)
	tampered[0] ^= 0x01

	if v.Authorized(tampered, Credentials{Signature: sig}) {
		t.Error("flipping one body byte must invalidate the signature")
	}
}

func TestEmptyBodySignatureFails(t *testing.T) {
	v := NewVerifier(testSecret)
	// HMAC of an empty body is computable, but the verifier refuses to
	// sign nothing: an empty body with only a signature cannot pass.
	if v.Authorized(nil, Credentials{Signature: signHex(testSecret, nil)}) {
		t.Error("empty body must not be signable")
	}
	if v.Authorized([]byte{}, Credentials{Signature: "sha256=abcdef"}) {
		t.Error("empty body with bogus signature must fail")
	}
}

func TestStructurallyPlausibleButWrongSignature(t *testing.T) {
	v := NewVerifier(testSecret)
	body := []byte(`{"event": "paid"}`)
	wrong := "sha256=" + signHex(testSecret, []byte("different body"))
	if v.Authorized(body, Credentials{Signature: wrong}) {
		t.Error("signature of a different body must be rejected")
	}
}
