package sv2noise

import (
	"crypto/cipher"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherState is one direction's AEAD key plus its strictly-increasing
// nonce counter, matching Noise's CipherState object.
type CipherState struct {
	mu    sync.Mutex
	aead  cipher.AEAD
	nonce uint64
}

func NewCipherState(key [SymKeySize]byte) (*CipherState, error) {
	a, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return &CipherState{aead: a}, nil
}

func littleEndianNonce(n uint64) []byte {
	b := make([]byte, NonceSize)
	for i := 0; i < 8 && i < NonceSize; i++ {
		b[i] = byte(n >> (8 * i))
	}
	return b
}

func (cs *CipherState) Encrypt(plaintext, ad []byte) ([]byte, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.nonce >= maxNonce {
		return nil, ErrNonceOverflow
	}
	out := cs.aead.Seal(nil, littleEndianNonce(cs.nonce), plaintext, ad)
	cs.nonce++
	return out, nil
}

func (cs *CipherState) Decrypt(ciphertext, ad []byte) ([]byte, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.nonce >= maxNonce {
		return nil, ErrNonceOverflow
	}
	out, err := cs.aead.Open(nil, littleEndianNonce(cs.nonce), ciphertext, ad)
	cs.nonce++
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return out, nil
}
