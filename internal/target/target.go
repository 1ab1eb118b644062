// Package target implements SV2 U256 target arithmetic: hash-rate to
// target conversion, leading-zero-bit counting for the ehash admission
// filter, and nbits (compact) decoding for network-difficulty block
// detection. Grounded on the teacher's internal/util/difficulty.go,
// generalized from TOS's fixed difficulty-1 constant to the SV2
// formula in terms of nominal hash-rate and shares-per-minute.
package target

import "math/big"

// Max is the maximum SV2 target: 2^256 - 1, corresponding to Bitcoin
// difficulty 1. A target of Max accepts every possible hash.
var Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// two256 is 2^256, used by HashRateToTarget.
var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// HashRateToTarget computes T = (2^256 - s*h) / (s*h + 1), where h is
// the nominal hash-rate in H/s and s = 60/sharesPerMinute. The result is
// always in [0, 2^256-1] for any h >= 0 and sharesPerMinute > 0.
//
// sharesPerMinute <= 0 is a configuration error; callers must validate
// it before calling this function (it is not recoverable here without
// silently producing a nonsensical target).
func HashRateToTarget(hashRate float64, sharesPerMinute float64) *big.Int {
	if hashRate < 0 {
		hashRate = 0
	}
	s := 60.0 / sharesPerMinute

	// Work in a rational approximation: s*h can be a very large float64
	// (nominal hash-rate can exceed 2^63), so compute s*h as a big.Float
	// and convert to big.Int before the final division to avoid float64
	// precision loss dominating the result at high hash-rates.
	sh := new(big.Float).Mul(big.NewFloat(s), big.NewFloat(hashRate))
	shInt, _ := sh.Int(nil)

	if shInt.Sign() <= 0 {
		return new(big.Int).Set(Max)
	}

	numerator := new(big.Int).Sub(two256, shInt)
	if numerator.Sign() < 0 {
		numerator = big.NewInt(0)
	}
	denominator := new(big.Int).Add(shInt, big.NewInt(1))

	t := new(big.Int).Div(numerator, denominator)
	if t.Sign() < 0 {
		return big.NewInt(0)
	}
	if t.Cmp(Max) > 0 {
		return new(big.Int).Set(Max)
	}
	return t
}

// FromU256LE interprets a 32-byte little-endian wire value as a
// big-endian numeric target.
func FromU256LE(le [32]byte) *big.Int {
	be := reverse(le)
	return new(big.Int).SetBytes(be[:])
}

// ToU256LE renders a numeric target (0 <= t <= 2^256-1) as a 32-byte
// little-endian wire value.
func ToU256LE(t *big.Int) [32]byte {
	var be [32]byte
	b := t.Bytes()
	copy(be[32-len(b):], b)
	return reverse(be)
}

func reverse(in [32]byte) [32]byte {
	var out [32]byte
	for i := 0; i < 32; i++ {
		out[i] = in[31-i]
	}
	return out
}

// HashMeetsTarget reports whether a 32-byte hash (big-endian numeric
// interpretation) satisfies target, i.e. hash <= target.
func HashMeetsTarget(hashBE [32]byte, t *big.Int) bool {
	h := new(big.Int).SetBytes(hashBE[:])
	return h.Cmp(t) <= 0
}

// LeadingZeroBits returns the number of leading zero bits in the
// big-endian 256-bit interpretation of hash. A hash of all zero bytes
// returns 256.
func LeadingZeroBits(hashBE [32]byte) int {
	count := 0
	for _, b := range hashBE {
		if b == 0 {
			count += 8
			continue
		}
		for bit := 7; bit >= 0; bit-- {
			if b&(1<<uint(bit)) != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// ToDifficulty converts a numeric target back to a difficulty-1-relative
// value (Max / target), the form SV1 mining.set_difficulty and vardiff
// logging expect. A zero target reports difficulty 0.
func ToDifficulty(t *big.Int) uint64 {
	if t.Sign() == 0 {
		return 0
	}
	return new(big.Int).Div(Max, t).Uint64()
}

// CompactToTarget decodes a Bitcoin-style compact "nbits" encoding into
// a numeric target, used to derive the network target for block-solution
// detection.
func CompactToTarget(nbits uint32) *big.Int {
	exponent := nbits >> 24
	mantissa := nbits & 0x007fffff

	t := big.NewInt(int64(mantissa))
	if exponent <= 3 {
		t.Rsh(t, 8*uint(3-exponent))
	} else {
		t.Lsh(t, 8*uint(exponent-3))
	}
	return t
}
