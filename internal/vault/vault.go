// Package vault provides the reversible protection primitives of the
// privacy engine: authenticated encryption for fields that must be
// recoverable, and one-way hashing/pseudonymization for fields that
// must not be.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Errors returned by the crypto unit.
var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrAuthentication = errors.New("authentication failed")
	ErrPayloadShort   = errors.New("payload too short")
)

// Argon2id parameters for salted hashing, matching the recommended
// interactive settings.
const (
	hashTime    = 1
	hashMemory  = 64 * 1024
	hashThreads = 4
	hashKeyLen  = 32
	saltLen     = 16
)

// EncryptedPayload carries the three parts of an AES-GCM encryption.
// All three are required for decryption; tampering with any of them
// causes ErrAuthentication, never silent corruption.
type EncryptedPayload struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	AuthTag    []byte `json:"auth_tag"`
}

// Digest is the output of Hash: the digest bytes plus the salt needed
// to verify it later.
type Digest struct {
	Sum  []byte `json:"sum"`
	Salt []byte `json:"salt"`
}

// ValidateKey checks that key is a legal AES key length. Keys must be
// exactly 16, 24 or 32 bytes; anything else is rejected rather than
// truncated or padded.
func ValidateKey(key []byte) error {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return fmt.Errorf("%w: must be 16, 24, or 32 bytes, got %d", ErrInvalidKeySize, len(key))
	}
	return nil
}

// newGCM validates the key and builds the AEAD.
func newGCM(key []byte) (cipher.AEAD, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under key with AES-GCM, generating a fresh
// random IV for every call. The GCM tag is split out of the sealed
// output so the payload carries ciphertext, iv and tag separately.
func Encrypt(plaintext, key []byte) (*EncryptedPayload, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()

	return &EncryptedPayload{
		Ciphertext: sealed[:tagStart],
		IV:         iv,
		AuthTag:    sealed[tagStart:],
	}, nil
}

// Decrypt opens a payload produced by Encrypt. A payload whose
// ciphertext, iv or tag has been altered in any way fails with
// ErrAuthentication; no plaintext is ever returned on failure.
func Decrypt(payload *EncryptedPayload, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(payload.IV) != gcm.NonceSize() || len(payload.AuthTag) != gcm.Overhead() {
		return nil, fmt.Errorf("%w: iv or tag has wrong length", ErrPayloadShort)
	}

	sealed := make([]byte, 0, len(payload.Ciphertext)+len(payload.AuthTag))
	sealed = append(sealed, payload.Ciphertext...)
	sealed = append(sealed, payload.AuthTag...)

	plaintext, err := gcm.Open(nil, payload.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return plaintext, nil
}

// Hash derives a one-way Argon2id digest of value. When salt is nil a
// fresh random salt is generated and returned with the digest; callers
// that need to re-derive the same digest later must supply the salt
// explicitly.
func Hash(value, salt []byte) (*Digest, error) {
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
	}

	sum := argon2.IDKey(value, salt, hashTime, hashMemory, hashThreads, hashKeyLen)
	return &Digest{Sum: sum, Salt: salt}, nil
}

// Pseudonymize maps an identifier to a stable, non-invertible
// substitute scoped by context: the same (id, context) pair always
// yields the same pseudonym, while different contexts produce
// unlinkable values. Implemented as HMAC-SHA256 over id and context,
// never as reversible encryption.
func Pseudonymize(key []byte, id, context string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	mac.Write([]byte{0x1f}) // unit separator keeps (id, context) unambiguous
	mac.Write([]byte(context))
	return hex.EncodeToString(mac.Sum(nil))
}
