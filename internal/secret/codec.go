// Package secret encrypts stored provider credentials with AES-256-GCM and
// provides the redaction helpers used on every error path that might echo
// credential material.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the required length of the process-wide encryption key.
const KeySize = 32

// gcmTagSize is the length of the GCM authentication tag, stored separately
// from the ciphertext so tampering with either is detectable.
const gcmTagSize = 16

// redactionMark replaces literal credential occurrences in error text.
const redactionMark = "[REDACTED]"

// minRedactLen is the shortest secret Redact will touch. Replacing shorter
// strings would mangle unrelated text (e.g. a 3-char key matching "the").
// Secrets below this length are left as-is; real provider keys are far longer.
const minRedactLen = 8

// Payload is the at-rest form of an encrypted credential. All fields are
// base64 (std encoding).
type Payload struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"auth_tag"`
}

// Codec encrypts and decrypts credential payloads with a fixed process-wide
// key. Construct one at startup via New; a bad key aborts startup rather than
// surfacing on first use.
type Codec struct {
	key []byte
}

// New validates the key length and returns a Codec. The key is copied so the
// caller's slice can be zeroed.
func New(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes, got %d", KeySize, len(key))
	}
	c := &Codec{key: make([]byte, KeySize)}
	copy(c.key, key)
	return c, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the
// ciphertext, nonce, and authentication tag as separate base64 fields.
func (c *Codec) Encrypt(plaintext string) (Payload, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return Payload{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Payload{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Payload{}, err
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(sealed) - gcmTagSize
	return Payload{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:split]),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[split:]),
	}, nil
}

// Decrypt opens a payload, verifying the authentication tag. Tampering with
// any field (or decrypting under the wrong key) returns an error rather than
// corrupted plaintext.
func (c *Codec) Decrypt(p Payload) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(p.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(p.IV)
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(p.AuthTag)
	if err != nil {
		return "", fmt.Errorf("decode auth tag: %w", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", errors.New("invalid nonce length")
	}
	plain, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return string(plain), nil
}

// Redact replaces every literal occurrence of secret in text with a fixed
// placeholder. Secrets shorter than minRedactLen are left unredacted; this is
// a documented limitation, not a bug.
func Redact(text, secret string) string {
	if len(secret) < minRedactLen {
		return text
	}
	return strings.ReplaceAll(text, secret, redactionMark)
}

// LastFour returns a display form of a secret: its final four characters
// behind a fixed mask. Never reversible.
func LastFour(secret string) string {
	if len(secret) < 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
