// Package crypt wraps the primitives the protocol needs: an AEAD keyed by a
// per message id, ed25519 signatures and secure random bytes.
package crypt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrDecrypt is returned for every ciphertext that fails authentication.
	ErrDecrypt = errors.New("decryption failed")

	ErrInvalidKey = errors.New("invalid key")
)

const (
	KeySize       = chacha20poly1305.KeySize
	Overhead      = chacha20poly1305.Overhead
	SignatureSize = ed25519.SignatureSize
)

// Key is a symmetric AEAD key.
type Key [KeySize]byte

// PublicKey verifies signatures of the token authority.
type PublicKey [ed25519.PublicKeySize]byte

// SecretKey signs connect tokens.
type SecretKey [ed25519.PrivateKeySize]byte

// Signature is an ed25519 signature.
type Signature [SignatureSize]byte

// RandomBytes fills b with cryptographically secure random data.
func RandomBytes(b []byte) error {
	_, err := rand.Read(b)
	if err != nil {
		return fmt.Errorf("failed to read random bytes: %w", err)
	}
	return nil
}

// GenerateKey creates a new random symmetric key.
func GenerateKey() (Key, error) {
	var k Key
	err := RandomBytes(k[:])
	return k, err
}

// GenerateSigningKeys creates a new authority key pair.
func GenerateSigningKeys() (PublicKey, SecretKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, SecretKey{}, fmt.Errorf("failed to generate signing keys: %w", err)
	}
	var (
		pk PublicKey
		sk SecretKey
	)
	copy(pk[:], pub)
	copy(sk[:], priv)
	return pk, sk, nil
}

// Public derives the public key from the secret key.
func (sk SecretKey) Public() PublicKey {
	var pk PublicKey
	copy(pk[:], ed25519.PrivateKey(sk[:]).Public().(ed25519.PublicKey))
	return pk
}

// Sign signs message with sk.
func Sign(sk SecretKey, message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(sk[:]), message))
	return sig
}

// Verify reports whether sig is a valid signature of message by pk.
func Verify(pk PublicKey, message []byte, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk[:]), message, sig)
}

func nonce(msgID uint64) [chacha20poly1305.NonceSize]byte {
	var n [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(n[4:], msgID)
	return n
}

// Seal encrypts plaintext and appends the ciphertext including the
// authentication tag to dst. msgID must never repeat for the same key.
// dst may be plaintext[:0] for in place encryption.
func Seal(key *Key, msgID uint64, ad, plaintext, dst []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	n := nonce(msgID)
	return aead.Seal(dst, n[:], plaintext, ad), nil
}

// Open authenticates and decrypts ciphertext and appends the plaintext to dst.
// dst may be ciphertext[:0] for in place decryption.
func Open(key *Key, msgID uint64, ad, ciphertext, dst []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	n := nonce(msgID)
	plain, err := aead.Open(dst, n[:], ciphertext, ad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}
