// Package session manages encrypted credential and session material for
// scraping identities: an authenticated symmetric cipher with a fixed
// envelope format, cookie normalization, and expiry governance.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	keyBytes     = 32
	gcmTagBytes  = 16
	envelopeSeps = 2
)

// Cipher encrypts and decrypts opaque strings using AES-256-GCM. The
// envelope format is "nonce:tag:ciphertext", each segment hex-encoded.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a hex-encoded key. The key must decode to
// exactly 32 bytes; anything else fails fast.
func NewCipher(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, eris.Wrap(err, "session: decode encryption key")
	}
	if len(key) != keyBytes {
		return nil, eris.Errorf("session: encryption key must be %d bytes, got %d", keyBytes, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, eris.Wrap(err, "session: create cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, eris.Wrap(err, "session: create gcm")
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns the
// hex envelope.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", eris.Wrap(err, "session: generate nonce")
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-gcmTagBytes]
	tag := sealed[len(sealed)-gcmTagBytes:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens an envelope produced by Encrypt. A malformed envelope,
// wrong key, or tampered ciphertext returns an error, never a wrong
// plaintext.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != envelopeSeps+1 {
		return "", eris.Errorf("session: malformed envelope: expected 3 segments, got %d", len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", eris.Wrap(err, "session: decode nonce")
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", eris.Errorf("session: bad nonce length %d", len(nonce))
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", eris.Wrap(err, "session: decode tag")
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", eris.Wrap(err, "session: decode ciphertext")
	}

	plaintext, err := c.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", eris.Wrap(err, "session: decrypt")
	}
	return string(plaintext), nil
}
