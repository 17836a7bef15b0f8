// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainkd

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// hGenerator is the second Pedersen generator H = h*G, for a
// nothing-up-my-sleeve scalar h derived by hashing a fixed label. Real
// Mimblewimble implementations use a generator with provably unknown
// discrete log; here the crypto primitives are a black box and this
// is a faithful stand-in for the commitment algebra the rest of the engine
// depends on.
var hGenerator = func() Point {
	sum := sha256.Sum256([]byte("mwwallet/chainkd/pedersen-h"))
	var s secp256k1.ModNScalar
	s.SetByteSlice(sum[:])
	return ScalarBaseMult(Scalar{s: s})
}()

// Commitment is a Pedersen commitment C = blind*G + value*H.
type Commitment struct {
	Point Point
}

// Commit builds a Pedersen commitment to value under the given blinding
// factor.
func Commit(value uint64, blind Scalar) Commitment {
	// SetInt only takes a uint32; build the scalar for a uint64 value by
	// composing the high and low 32-bit words.
	hi := uint32(value >> 32)
	lo := uint32(value)
	var hiScalar, loScalar secp256k1.ModNScalar
	hiScalar.SetInt(hi)
	loScalar.SetInt(lo)
	var shift secp256k1.ModNScalar
	shift.SetByteSlice(shiftBy32)
	hiScalar.Mul(&shift)
	hiScalar.Add(&loScalar)

	valuePoint := ScalarMult(Scalar{s: hiScalar}, hGenerator)
	blindPoint := ScalarBaseMult(blind)
	return Commitment{Point: blindPoint.Add(valuePoint)}
}

// shiftBy32 is the 32-byte big-endian encoding of 2^32, used to assemble a
// 64-bit value scalar from two 32-bit halves (ModNScalar.SetInt only
// accepts uint32).
var shiftBy32 = func() []byte {
	b := make([]byte, 32)
	b[27] = 0x01
	return b
}()

// Sum adds two commitments together (homomorphic combination of the
// underlying blinding factors and values).
func (c Commitment) Sum(other Commitment) Commitment {
	return Commitment{Point: c.Point.Add(other.Point)}
}
