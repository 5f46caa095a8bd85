package vaultcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nonceSize = 12 // 96-bit GCM nonce
	tagSize   = 16
)

var (
	// ErrMissingSecret indicates the master encryption secret is not configured.
	ErrMissingSecret = errors.New("vaultcrypt: master secret is not configured")
	// ErrIntegrity indicates the ciphertext or tag failed authentication.
	ErrIntegrity = errors.New("vaultcrypt: integrity check failed")
	// ErrMalformedEnvelope indicates iv/tag fields have the wrong size.
	ErrMalformedEnvelope = errors.New("vaultcrypt: malformed envelope")
)

// Envelope holds one encrypted payload together with the parameters
// required to open it. It is replaced, never mutated, on edit.
type Envelope struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
}

// StringEnvelope is an Envelope with base64-encoded fields for storage in
// text columns.
type StringEnvelope struct {
	Payload string
	IV      string
	Tag     string
}

// Cipher encrypts and decrypts vault payloads with AES-256-GCM.
//
// The same nonce must never be reused with the same key; every Encrypt call
// draws a fresh random nonce from crypto/rand.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the AES key as SHA-256(secret||salt) and returns a ready
// Cipher. An empty secret is a configuration error and fails immediately.
func New(secret, salt string) (*Cipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}

	key := sha256.Sum256([]byte(secret + salt))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("vaultcrypt: aes init failed: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vaultcrypt: gcm init failed: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// EncryptBytes seals plaintext and returns an envelope with a fresh nonce.
// Empty plaintext is valid; the envelope then carries only the tag.
func (c *Cipher) EncryptBytes(plaintext []byte) (Envelope, error) {
	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Envelope{}, fmt.Errorf("vaultcrypt: nonce generation failed: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, plaintext, nil)

	// Seal appends the tag to the ciphertext; split them so the envelope
	// matches the stored column layout.
	cut := len(sealed) - tagSize

	return Envelope{
		Ciphertext: sealed[:cut],
		IV:         iv,
		Tag:        sealed[cut:],
	}, nil
}

// DecryptBytes opens an envelope. Any bit flip in ciphertext, iv or tag
// yields ErrIntegrity; no partial plaintext is ever returned.
func (c *Cipher) DecryptBytes(env Envelope) ([]byte, error) {
	if len(env.IV) != nonceSize || len(env.Tag) != tagSize {
		return nil, ErrMalformedEnvelope
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+tagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plain, err := c.aead.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}

	return plain, nil
}

// EncryptString seals a UTF-8 string and base64-encodes the envelope fields.
func (c *Cipher) EncryptString(value string) (StringEnvelope, error) {
	env, err := c.EncryptBytes([]byte(value))
	if err != nil {
		return StringEnvelope{}, err
	}

	return StringEnvelope{
		Payload: base64.StdEncoding.EncodeToString(env.Ciphertext),
		IV:      base64.StdEncoding.EncodeToString(env.IV),
		Tag:     base64.StdEncoding.EncodeToString(env.Tag),
	}, nil
}

// DecryptString decodes a base64 envelope and opens it.
func (c *Cipher) DecryptString(env StringEnvelope) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return "", ErrMalformedEnvelope
	}

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return "", ErrMalformedEnvelope
	}

	tag, err := base64.StdEncoding.DecodeString(env.Tag)
	if err != nil {
		return "", ErrMalformedEnvelope
	}

	plain, err := c.DecryptBytes(Envelope{Ciphertext: payload, IV: iv, Tag: tag})
	if err != nil {
		return "", err
	}

	return string(plain), nil
}
