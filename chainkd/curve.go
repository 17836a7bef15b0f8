// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainkd

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ErrNotOnCurve is returned by PointFromBytes when the encoded bytes do not
// describe a point on the curve.
var ErrNotOnCurve = errors.New("chainkd: point is not on curve")

// ScalarSize and PointSize are the canonical wire sizes: scalars are
// 32-byte big-endian integers, points are 33-byte compressed encodings.
const (
	ScalarSize = 32
	PointSize = 33
)

// Scalar is an element of the secp256k1 scalar field, used for blinding
// factors, nonces and partial signature values.
type Scalar struct {
	s secp256k1.ModNScalar
}

// ScalarFromBytes decodes a 32-byte big-endian scalar.
func ScalarFromBytes(b []byte) (Scalar, error) {
	if len(b) != ScalarSize {
		return Scalar{}, fmt.Errorf("chainkd: scalar must be %d bytes, got %d", ScalarSize, len(b))
	}
	var s secp256k1.ModNScalar
	overflow := s.SetByteSlice(b)
	if overflow {
		return Scalar{}, fmt.Errorf("chainkd: scalar overflows the field")
	}
	return Scalar{s: s}, nil
}

// Bytes encodes the scalar as 32-byte big-endian.
func (s Scalar) Bytes() []byte {
	b := s.s.Bytes()
	out := make([]byte, ScalarSize)
	copy(out, b[:])
	return out
}

// Add returns s + other mod n.
func (s Scalar) Add(other Scalar) Scalar {
	var out secp256k1.ModNScalar
	out.Set(&s.s)
	out.Add(&other.s)
	return Scalar{s: out}
}

// Sub returns s - other mod n.
func (s Scalar) Sub(other Scalar) Scalar {
	var neg secp256k1.ModNScalar
	neg.Set(&other.s)
	neg.Negate()
	var out secp256k1.ModNScalar
	out.Set(&s.s)
	out.Add(&neg)
	return Scalar{s: out}
}

// Negate returns -s mod n.
func (s Scalar) Negate() Scalar {
	var out secp256k1.ModNScalar
	out.Set(&s.s)
	out.Negate()
	return Scalar{s: out}
}

// IsZero reports whether s is the additive identity.
func (s Scalar) IsZero() bool {
	return s.s.IsZero()
}

// Equal reports whether s and other represent the same field element.
func (s Scalar) Equal(other Scalar) bool {
	return s.s.Equals(&other.s)
}

// Mul returns s * other mod n.
func (s Scalar) Mul(other Scalar) Scalar {
	var out secp256k1.ModNScalar
	out.Set(&s.s)
	out.Mul(&other.s)
	return Scalar{s: out}
}

// Point is a compressed-form point on secp256k1.
type Point struct {
	pub *secp256k1.PublicKey
}

// PointFromBytes decodes a 33-byte compressed point.
func PointFromBytes(b []byte) (Point, error) {
	if len(b) != PointSize {
		return Point{}, fmt.Errorf("chainkd: point must be %d bytes, got %d", PointSize, len(b))
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrNotOnCurve, err)
	}
	return Point{pub: pub}, nil
}

// Bytes encodes the point as a 33-byte compressed point.
func (p Point) Bytes() []byte {
	if p.pub == nil {
		return make([]byte, PointSize)
	}
	return p.pub.SerializeCompressed()
}

func (p Point) String() string {
	return hex.EncodeToString(p.Bytes())
}

func toJacobian(p Point) secp256k1.JacobianPoint {
	var j secp256k1.JacobianPoint
	p.pub.AsJacobian(&j)
	return j
}

func fromJacobian(j secp256k1.JacobianPoint) Point {
	j.ToAffine()
	pub := secp256k1.NewPublicKey(&j.X, &j.Y)
	return Point{pub: pub}
}

// Add returns p + other, the group operation.
func (p Point) Add(other Point) Point {
	if p.pub == nil {
		return other
	}
	if other.pub == nil {
		return p
	}
	a, b := toJacobian(p), toJacobian(other)
	var sum secp256k1.JacobianPoint
	secp256k1.AddNonConst(&a, &b, &sum)
	return fromJacobian(sum)
}

// ScalarBaseMult returns s*G, the generator point.
func ScalarBaseMult(s Scalar) Point {
	var result secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s.s, &result)
	return fromJacobian(result)
}

// ScalarMult returns s*p.
func ScalarMult(s Scalar, p Point) Point {
	j := toJacobian(p)
	var result secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&s.s, &j, &result)
	return fromJacobian(result)
}
