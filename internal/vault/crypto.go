package vault

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id parameters for passphrase key derivation.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024 // KiB
	kdfThreads = 4
	keySize    = chacha20poly1305.KeySize
	saltSize   = 16
)

// deriveKey stretches a passphrase into an AEAD key.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, keySize)
}

// newSalt returns a fresh random KDF salt.
func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// seal encrypts plaintext with XChaCha20-Poly1305, prefixing the nonce.
func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a nonce-prefixed ciphertext produced by seal.
func open(key, box []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	if len(box) < aead.NonceSize() {
		return nil, ErrBadPassphrase
	}
	nonce, ciphertext := box[:aead.NonceSize()], box[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return plaintext, nil
}

// Wipe overwrites sensitive bytes in place.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
