// Package sealedbox wraps the NaCl sealed-box construct: a sender encrypts
// to a recipient's public key without authenticating its own key pair to the
// recipient. Ciphertext travels as base64 text. All operations are pure and
// safe for concurrent use on independent inputs.
package sealedbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// KeySize is the length of a Curve25519 key in bytes.
const KeySize = 32

// Overhead is the minimum length of a sealed box: the sender's ephemeral
// public key plus the Poly1305 authenticator.
const Overhead = box.AnonymousOverhead

// ErrDecryptionFailed reports ciphertext that is malformed, too short, or
// fails authentication. Callers must not distinguish the three cases.
var ErrDecryptionFailed = errors.New("sealedbox: decryption failed")

// KeyPair holds a recipient's asymmetric encryption keys. The private key is
// borrowed from the session keychain; it is never persisted or logged.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair produces a fresh random key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	return KeyPair{Public: *pub, Private: *priv}, nil
}

// Seal encrypts plaintext to the recipient's public key and returns the
// sealed box as base64 text.
func Seal(plaintext []byte, recipientPublic [KeySize]byte) (string, error) {
	sealed, err := box.SealAnonymous(nil, plaintext, &recipientPublic, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decodes base64 ciphertext and opens the sealed box with the recipient
// key pair, returning the plaintext.
func Open(sealed string, kp KeyPair) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", ErrDecryptionFailed)
	}
	if len(raw) < Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	plaintext, ok := box.OpenAnonymous(nil, raw, &kp.Public, &kp.Private)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// ParseKey decodes a base64-encoded key.
func ParseKey(s string) ([KeySize]byte, error) {
	var key [KeySize]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("parse key: %w", err)
	}
	if len(raw) != KeySize {
		return key, fmt.Errorf("parse key: got %d bytes, want %d", len(raw), KeySize)
	}
	copy(key[:], raw)
	return key, nil
}

// EncodeKey returns the base64 encoding of a key.
func EncodeKey(key [KeySize]byte) string {
	return base64.StdEncoding.EncodeToString(key[:])
}
