// Package sv2noise implements the Noise_NX handshake and ChaCha20-
// Poly1305 transport sealing used by every SV2 connection before the
// role-specific message loop begins. Grounded on
// chimera-pool-chimera-pool-core's internal/stratum/v2/noise package
// (same NX pattern, same golang.org/x/crypto/chacha20poly1305 +
// curve25519 stack), simplified to lean on stdlib crypto/sha256 and
// golang.org/x/crypto/hkdf instead of that package's hand-rolled
// SHA-256/HMAC (no reason to reimplement what the standard library
// and the same x/crypto module already provide).
package sv2noise

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	ProtocolName = "Noise_NX_25519_ChaChaPoly_SHA256"

	DHKeySize  = 32
	SymKeySize = 32
	NonceSize  = chacha20poly1305.NonceSize
	TagSize    = 16
	maxNonce   = ^uint64(0) - 1
)

var (
	ErrHandshakeFailed  = errors.New("sv2noise: handshake failed")
	ErrInvalidMessage   = errors.New("sv2noise: invalid handshake message")
	ErrNonceOverflow    = errors.New("sv2noise: nonce overflow, rekey required")
	ErrDecryptionFailed = errors.New("sv2noise: decryption failed")
	ErrNotEstablished   = errors.New("sv2noise: secure channel not established")
	ErrInvalidPublicKey = errors.New("sv2noise: invalid public key (all-zero DH output)")
)

// KeyPair is an X25519 key pair: the responder's long-term static key,
// or either side's ephemeral handshake key.
type KeyPair struct {
	Private [DHKeySize]byte
	Public  [DHKeySize]byte
}

// GenerateKeyPair draws a fresh X25519 key pair from crypto/rand.
func GenerateKeyPair() (*KeyPair, error) {
	kp := &KeyPair{}
	if _, err := io.ReadFull(rand.Reader, kp.Private[:]); err != nil {
		return nil, err
	}
	kp.Private[0] &= 248
	kp.Private[31] &= 127
	kp.Private[31] |= 64
	curve25519.ScalarBaseMult(&kp.Public, &kp.Private)
	return kp, nil
}

// KeyPairFromPrivate derives the public half of a previously generated
// private key, for operators who persist the pool's/mint's static
// key across restarts instead of calling GenerateKeyPair fresh each time
// (which would change the Noise identity every restart).
func KeyPairFromPrivate(private [DHKeySize]byte) *KeyPair {
	kp := &KeyPair{Private: private}
	kp.Private[0] &= 248
	kp.Private[31] &= 127
	kp.Private[31] |= 64
	curve25519.ScalarBaseMult(&kp.Public, &kp.Private)
	return kp
}

func (kp *KeyPair) dh(theirPublic [DHKeySize]byte) ([DHKeySize]byte, error) {
	var shared [DHKeySize]byte
	curve25519.ScalarMult(&shared, &kp.Private, &theirPublic)
	zero := true
	for _, b := range shared {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return shared, ErrInvalidPublicKey
	}
	return shared, nil
}

func sha256Hash(data ...[]byte) [32]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// hkdfDerive expands two 32-byte keys from salt/ikm the way Noise's
// MixKey requires, via golang.org/x/crypto/hkdf (already part of the
// same x/crypto module as chacha20poly1305/curve25519).
func hkdfDerive(salt, ikm []byte) (k1, k2 [32]byte, err error) {
	r := hkdf.New(sha256.New, ikm, salt, nil)
	if _, err = io.ReadFull(r, k1[:]); err != nil {
		return
	}
	_, err = io.ReadFull(r, k2[:])
	return
}
