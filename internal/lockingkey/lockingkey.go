// Package lockingkey parses and validates the 33-byte compressed
// secp256k1 public key a miner binds to a channel at open time, used by
// the mint to lock issued ehash to the submitting miner. Grounded on
// other_examples/breez-lightninglib's use of *btcec.PublicKey to carry
// compressed keys through channel-level state (lnwallet/reservation.go's
// FirstCommitmentPoint field).
package lockingkey

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Key wraps a parsed, on-curve compressed secp256k1 public key.
type Key struct {
	pub *btcec.PublicKey
	raw [33]byte
}

// Parse validates that raw is a well-formed compressed secp256k1 point
// on the curve and returns the parsed Key.
func Parse(raw [33]byte) (Key, error) {
	pub, err := btcec.ParsePubKey(raw[:])
	if err != nil {
		return Key{}, fmt.Errorf("lockingkey: invalid compressed public key: %w", err)
	}
	return Key{pub: pub, raw: raw}, nil
}

// Bytes returns the 33-byte compressed wire form.
func (k Key) Bytes() [33]byte {
	return k.raw
}

// String returns the lowercase hex encoding, suitable for logs and for
// keying the policy blacklist.
func (k Key) String() string {
	return fmt.Sprintf("%x", k.raw[:])
}

// IsZero reports whether k is the zero value (no locking key parsed).
func (k Key) IsZero() bool {
	return k.pub == nil
}
