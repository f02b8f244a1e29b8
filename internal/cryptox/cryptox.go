package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// NonceSize is the GCM nonce length.
	NonceSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
	// SaltSize is the length of a per-transfer random salt ("Key A").
	SaltSize = 16
	// Iterations is the PBKDF2 iteration count.
	Iterations = 100000

	// FixedSalt is the legacy shared salt. Weaker than a per-transfer
	// random salt; kept for compatibility behind SALT_MODE=fixed.
	FixedSalt = "SecDropSalt"
)

// ErrAuthentication is returned when a GCM tag does not verify. No
// plaintext is ever released alongside it.
var ErrAuthentication = errors.New("chunk authentication failed")

// DeriveKey stretches a passphrase into a 32-byte AES key with
// PBKDF2-HMAC-SHA256. Deterministic: the recipient re-derives the same
// key from the same passphrase and salt without the server storing either.
func DeriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, Iterations, KeySize, sha256.New)
}

// GenerateKey returns a fresh random AES-256 key.
func GenerateKey() ([]byte, error) {
	return randomBytes(KeySize)
}

// GenerateSalt returns a fresh per-transfer salt.
func GenerateSalt() ([]byte, error) {
	return randomBytes(SaltSize)
}

// EncryptChunk seals one chunk under key with a fresh random nonce.
// The authentication tag is appended to the ciphertext.
func EncryptChunk(key, plaintext []byte) (sealed, nonce []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = randomBytes(NonceSize)
	if err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// DecryptChunk opens one sealed chunk. The tag is verified before any
// plaintext is returned; on mismatch the result is ErrAuthentication and
// no bytes.
func DecryptChunk(key, sealed, nonce []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("bad nonce length %d", len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// SealDetached encrypts plaintext and returns the tag separately, for the
// whole-file path where the tag is stored on the transfer record rather
// than inline with the ciphertext.
func SealDetached(key, plaintext []byte) (ciphertext, nonce, tag []byte, err error) {
	sealed, nonce, err := EncryptChunk(key, plaintext)
	if err != nil {
		return nil, nil, nil, err
	}
	split := len(sealed) - TagSize
	return sealed[:split], nonce, sealed[split:], nil
}

// OpenDetached reverses SealDetached.
func OpenDetached(key, ciphertext, nonce, tag []byte) ([]byte, error) {
	if len(tag) != TagSize {
		return nil, ErrAuthentication
	}
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	return DecryptChunk(key, sealed, nonce)
}

// GenerateOTP returns a numeric one-time code of the given length drawn
// from a uniform random source.
func GenerateOTP(length int) (string, error) {
	code := make([]byte, length)
	ten := big.NewInt(10)
	for i := range code {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
