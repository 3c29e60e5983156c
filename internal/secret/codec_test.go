package secret

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, KeySize)
	c, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RejectsBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := New(make([]byte, n)); err == nil {
			t.Errorf("New with %d-byte key: expected error", n)
		}
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := testCodec(t)

	for _, plain := range []string{"", "sk-test-1234567890", "unicode: héllo 世界", strings.Repeat("x", 4096)} {
		p, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		got, err := c.Decrypt(p)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", plain, err)
		}
		if got != plain {
			t.Errorf("round trip = %q, want %q", got, plain)
		}
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	c := testCodec(t)

	p1, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	p2, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if p1.IV == p2.IV {
		t.Error("nonce reused across Encrypt calls")
	}
	if p1.Ciphertext == p2.Ciphertext {
		t.Error("identical ciphertext for two encryptions")
	}
}

func TestDecrypt_TamperedTagFails(t *testing.T) {
	c := testCodec(t)

	p, err := c.Encrypt("sk-live-abcdef123456")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tag, _ := base64.StdEncoding.DecodeString(p.AuthTag)
	tag[0] ^= 0xff
	p.AuthTag = base64.StdEncoding.EncodeToString(tag)

	if _, err := c.Decrypt(p); err == nil {
		t.Fatal("expected decrypt to fail with tampered auth tag")
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	c1 := testCodec(t)
	c2, err := New(bytes.Repeat([]byte{0x13}, KeySize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p, err := c1.Encrypt("secret-value-1234")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c2.Decrypt(p); err == nil {
		t.Fatal("expected decrypt under wrong key to fail")
	}
}

func TestRedact(t *testing.T) {
	secret := "sk-ant-REDACTED"
	msg := "provider rejected key sk-ant-REDACTED (status 401): sk-ant-REDACTED invalid"

	got := Redact(msg, secret)
	if strings.Contains(got, secret) {
		t.Errorf("redacted message still contains secret: %q", got)
	}
	if !strings.Contains(got, redactionMark) {
		t.Errorf("expected placeholder in %q", got)
	}
}

func TestRedact_ShortSecretLeftAlone(t *testing.T) {
	// Secrets under 8 chars are intentionally not replaced.
	msg := "the key abc is bad"
	if got := Redact(msg, "abc"); got != msg {
		t.Errorf("Redact = %q, want unchanged", got)
	}
}

func TestLastFour(t *testing.T) {
	if got := LastFour("sk-test-abcd1234"); got != "****1234" {
		t.Errorf("LastFour = %q, want ****1234", got)
	}
	if got := LastFour("ab"); got != "****" {
		t.Errorf("LastFour short = %q, want ****", got)
	}
}
