package vault

import (
	"bytes"
	"errors"
	"testing"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

func TestEncryptDecrypt(t *testing.T) {
	t.Run("Roundtrip", func(t *testing.T) {
		plaintext := []byte("social security number 078-05-1120")

		payload, err := Encrypt(plaintext, testKey)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}

		decrypted, err := Decrypt(payload, testKey)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if !bytes.Equal(decrypted, plaintext) {
			t.Errorf("roundtrip mismatch: got %q, want %q", decrypted, plaintext)
		}
	})

	t.Run("KeySizes", func(t *testing.T) {
		for _, size := range []int{16, 24, 32} {
			key := bytes.Repeat([]byte{0x01}, size)
			if _, err := Encrypt([]byte("x"), key); err != nil {
				t.Errorf("key size %d rejected: %v", size, err)
			}
		}

		for _, size := range []int{0, 15, 17, 31, 33, 64} {
			key := bytes.Repeat([]byte{0x01}, size)
			_, err := Encrypt([]byte("x"), key)
			if !errors.Is(err, ErrInvalidKeySize) {
				t.Errorf("key size %d: expected ErrInvalidKeySize, got %v", size, err)
			}
		}
	})

	t.Run("FreshIVPerCall", func(t *testing.T) {
		plaintext := []byte("same input")

		first, err := Encrypt(plaintext, testKey)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		second, err := Encrypt(plaintext, testKey)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}

		if bytes.Equal(first.IV, second.IV) {
			t.Error("IV reused across calls")
		}
		if bytes.Equal(first.Ciphertext, second.Ciphertext) {
			t.Error("identical ciphertexts for repeated encryption")
		}
	})

	t.Run("TamperDetection", func(t *testing.T) {
		payload, err := Encrypt([]byte("tamper target"), testKey)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}

		fields := map[string][]byte{
			"ciphertext": payload.Ciphertext,
			"iv":         payload.IV,
			"auth_tag":   payload.AuthTag,
		}
		for name, field := range fields {
			t.Run(name, func(t *testing.T) {
				// Flip a single bit, verify, flip it back.
				field[0] ^= 0x01
				defer func() { field[0] ^= 0x01 }()

				plaintext, err := Decrypt(payload, testKey)
				if !errors.Is(err, ErrAuthentication) {
					t.Fatalf("expected ErrAuthentication, got %v", err)
				}
				if plaintext != nil {
					t.Error("plaintext returned despite failed authentication")
				}
			})
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		payload, err := Encrypt([]byte("secret"), testKey)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}

		other := bytes.Repeat([]byte{0x43}, 32)
		if _, err := Decrypt(payload, other); !errors.Is(err, ErrAuthentication) {
			t.Errorf("expected ErrAuthentication with wrong key, got %v", err)
		}
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		payload, err := Encrypt([]byte("secret"), testKey)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}

		payload.AuthTag = payload.AuthTag[:8]
		if _, err := Decrypt(payload, testKey); !errors.Is(err, ErrPayloadShort) {
			t.Errorf("expected ErrPayloadShort, got %v", err)
		}
	})
}

func TestHash(t *testing.T) {
	t.Run("FreshSaltWhenOmitted", func(t *testing.T) {
		first, err := Hash([]byte("value"), nil)
		if err != nil {
			t.Fatalf("Hash failed: %v", err)
		}
		second, err := Hash([]byte("value"), nil)
		if err != nil {
			t.Fatalf("Hash failed: %v", err)
		}

		if len(first.Salt) != saltLen {
			t.Errorf("expected %d-byte salt, got %d", saltLen, len(first.Salt))
		}
		if bytes.Equal(first.Salt, second.Salt) {
			t.Error("salt reused across calls")
		}
		if bytes.Equal(first.Sum, second.Sum) {
			t.Error("different salts produced identical digests")
		}
	})

	t.Run("DeterministicWithSalt", func(t *testing.T) {
		salt := bytes.Repeat([]byte{0x07}, saltLen)

		first, err := Hash([]byte("value"), salt)
		if err != nil {
			t.Fatalf("Hash failed: %v", err)
		}
		second, err := Hash([]byte("value"), salt)
		if err != nil {
			t.Fatalf("Hash failed: %v", err)
		}

		if !bytes.Equal(first.Sum, second.Sum) {
			t.Error("same value and salt produced different digests")
		}
	})
}

func TestPseudonymize(t *testing.T) {
	key := []byte("pseudonym-hmac-key")

	t.Run("Deterministic", func(t *testing.T) {
		first := Pseudonymize(key, "user-1", "analytics")
		second := Pseudonymize(key, "user-1", "analytics")
		if first != second {
			t.Errorf("identical inputs produced %q and %q", first, second)
		}
	})

	t.Run("ContextSeparation", func(t *testing.T) {
		analytics := Pseudonymize(key, "user-1", "analytics")
		billing := Pseudonymize(key, "user-1", "billing")
		if analytics == billing {
			t.Error("different contexts produced the same pseudonym")
		}
	})

	t.Run("SeparatorUnambiguous", func(t *testing.T) {
		// "ab"+"c" and "a"+"bc" must not collide.
		first := Pseudonymize(key, "ab", "c")
		second := Pseudonymize(key, "a", "bc")
		if first == second {
			t.Error("id/context boundary ambiguity")
		}
	})

	t.Run("DistinctIDs", func(t *testing.T) {
		if Pseudonymize(key, "user-1", "ctx") == Pseudonymize(key, "user-2", "ctx") {
			t.Error("different ids produced the same pseudonym")
		}
	})
}
