// Package crypto provides the two primitives the relay itself needs:
// Ed25519 signature verification against base64-encoded key material, and
// CSPRNG-backed nonce generation for the login challenge. Everything else
// cryptographic happens on clients.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// NonceSize is the number of random bytes in a login challenge nonce.
// Hex encoding doubles it on the wire.
const NonceSize = 32

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature encoding")
)

// VerifySignature checks an Ed25519 signature over the UTF-8 bytes of
// payload. Both the public key and the signature are base64-encoded. The
// error distinguishes malformed inputs from a failed verification only for
// logging; callers must render both identically to clients.
func VerifySignature(publicKeyB64, payload, signatureB64 string) (bool, error) {
	publicKey, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPublicKey, len(publicKey), ed25519.PublicKeySize)
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(signature) != ed25519.SignatureSize {
		return false, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSignature, len(signature), ed25519.SignatureSize)
	}

	return ed25519.Verify(ed25519.PublicKey(publicKey), []byte(payload), signature), nil
}

// GenerateNonce returns a hex-encoded nonce of NonceSize random bytes.
func GenerateNonce() (string, error) {
	buf := make([]byte, NonceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
