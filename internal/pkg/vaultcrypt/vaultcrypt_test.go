package vaultcrypt

import (
	"bytes"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("MissingSecret", func(t *testing.T) {
		if _, err := New("", "salt"); !errors.Is(err, ErrMissingSecret) {
			t.Fatalf("expected ErrMissingSecret, got %v", err)
		}
	})

	t.Run("BlankSecret", func(t *testing.T) {
		if _, err := New("   ", ""); !errors.Is(err, ErrMissingSecret) {
			t.Fatalf("expected ErrMissingSecret, got %v", err)
		}
	})

	t.Run("SaltOptional", func(t *testing.T) {
		if _, err := New("master-secret", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := New("master-secret", "pepper")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payloads := map[string][]byte{
		"Empty":      {},
		"Short":      []byte("hello"),
		"SingleByte": {0x00},
		"MultiBlock": bytes.Repeat([]byte{0xAB, 0xCD}, 4096),
	}

	for name, plaintext := range payloads {
		t.Run(name, func(t *testing.T) {
			env, err := c.EncryptBytes(plaintext)
			if err != nil {
				t.Fatalf("encrypt: %v", err)
			}
			if len(env.IV) != 12 {
				t.Fatalf("expected 96-bit iv, got %d bytes", len(env.IV))
			}
			if len(env.Tag) != 16 {
				t.Fatalf("expected 16-byte tag, got %d bytes", len(env.Tag))
			}

			got, err := c.DecryptBytes(env)
			if err != nil {
				t.Fatalf("decrypt: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Fatalf("round trip mismatch")
			}
		})
	}
}

func TestCipherFreshNoncePerCall(t *testing.T) {
	c, err := New("master-secret", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plaintext := []byte("the same secret twice")

	first, err := c.EncryptBytes(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	second, err := c.EncryptBytes(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if bytes.Equal(first.IV, second.IV) {
		t.Fatalf("iv reused across calls")
	}
	if bytes.Equal(first.Ciphertext, second.Ciphertext) {
		t.Fatalf("identical ciphertexts for repeated encryption")
	}

	for _, env := range []Envelope{first, second} {
		got, err := c.DecryptBytes(env)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip mismatch")
		}
	}
}

func TestCipherTamperDetection(t *testing.T) {
	c, err := New("master-secret", "salt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env, err := c.EncryptBytes([]byte("payload under protection"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	flip := func(src []byte, pos int) []byte {
		out := make([]byte, len(src))
		copy(out, src)
		out[pos] ^= 0x01
		return out
	}

	t.Run("CiphertextBitFlip", func(t *testing.T) {
		for pos := range env.Ciphertext {
			tampered := Envelope{Ciphertext: flip(env.Ciphertext, pos), IV: env.IV, Tag: env.Tag}
			if _, err := c.DecryptBytes(tampered); !errors.Is(err, ErrIntegrity) {
				t.Fatalf("bit flip at %d not detected: %v", pos, err)
			}
		}
	})

	t.Run("TagBitFlip", func(t *testing.T) {
		for pos := range env.Tag {
			tampered := Envelope{Ciphertext: env.Ciphertext, IV: env.IV, Tag: flip(env.Tag, pos)}
			if _, err := c.DecryptBytes(tampered); !errors.Is(err, ErrIntegrity) {
				t.Fatalf("tag flip at %d not detected: %v", pos, err)
			}
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		other, err := New("different-secret", "salt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := other.DecryptBytes(env); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("expected ErrIntegrity, got %v", err)
		}
	})

	t.Run("SaltChangesKey", func(t *testing.T) {
		other, err := New("master-secret", "other-salt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := other.DecryptBytes(env); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("expected ErrIntegrity, got %v", err)
		}
	})
}

func TestCipherMalformedEnvelope(t *testing.T) {
	c, err := New("master-secret", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := c.DecryptBytes(Envelope{Ciphertext: []byte("x"), IV: []byte("short"), Tag: make([]byte, 16)}); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
	if _, err := c.DecryptBytes(Envelope{Ciphertext: []byte("x"), IV: make([]byte, 12), Tag: []byte("short")}); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
}

func TestCipherStringEnvelope(t *testing.T) {
	c, err := New("master-secret", "salt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("RoundTrip", func(t *testing.T) {
		env, err := c.EncryptString("значение в хранилище")
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}

		got, err := c.DecryptString(env)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if got != "значение в хранилище" {
			t.Fatalf("round trip mismatch: %q", got)
		}
	})

	t.Run("BadBase64", func(t *testing.T) {
		env, err := c.EncryptString("value")
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		env.Payload = "%%%not-base64%%%"

		if _, err := c.DecryptString(env); !errors.Is(err, ErrMalformedEnvelope) {
			t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
		}
	})
}
