// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainkd

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// Signature is one party's Schnorr value over the multisig kernel message,
// or the sum of both parties' values once finalized.
type Signature struct {
	s Scalar
}

// SignatureFromBytes decodes a 32-byte big-endian partial-signature scalar.
func SignatureFromBytes(b []byte) (Signature, error) {
	s, err := ScalarFromBytes(b)
	if err != nil {
		return Signature{}, err
	}
	return Signature{s: s}, nil
}

// Bytes encodes the signature scalar.
func (sig Signature) Bytes() []byte { return sig.s.Bytes() }

// challenge computes the Schnorr challenge e = H(pubNonce || message) used
// by both PartialSign and VerifyPartial; keeping it in one place is what
// makes the two sides of the protocol actually agree on what was signed.
func challenge(pubNonce Point, message []byte) Scalar {
	h := sha256.New()
	h.Write(pubNonce.Bytes())
	h.Write(message)
	sum := h.Sum(nil)
	s, _ := ScalarFromBytes(sum) // sha256 output always fits the field width
	return s
}

// GenerateNonceSeed returns a fresh random seed. It stores nothing: the
// caller persists the seed once as MyNonce and derives the multisig nonce
// from it with NonceFromSeed on every later call, so retries are
// deterministic.
func GenerateNonceSeed() (Scalar, error) {
	b := make([]byte, ScalarSize)
	if _, err := rand.Read(b); err != nil {
		return Scalar{}, fmt.Errorf("chainkd: generate nonce seed: %w", err)
	}
	// A uniformly random 32 bytes overflows the field with negligible
	// probability; on the rare overflow, hash down into range.
	s, err := ScalarFromBytes(b)
	if err != nil {
		sum := sha256.Sum256(b)
		return ScalarFromBytes(sum[:])
	}
	return s, nil
}

// NonceFromSeed deterministically re-derives the per-attempt multisig
// nonce scalar from the persisted seed, so that re-entering Update() after
// a crash reuses the exact same nonce rather than generating a fresh one.
func NonceFromSeed(seed Scalar) Scalar {
	sum := sha256.Sum256(append([]byte("mwwallet/chainkd/nonce"), seed.Bytes()...))
	s, _ := ScalarFromBytes(sum[:])
	return s
}

// PartialSign produces this party's Schnorr contribution over message
// under the joint public nonce pubNonce = G*nonce + peerPubNonce, per the
// partial-Schnorr equation:
//
//	s = nonce + e*excess, e = H(pubNonce || message)
func PartialSign(message []byte, nonce, excess Scalar, pubNonce Point) Signature {
	e := challenge(pubNonce, message)
	return Signature{s: nonce.Add(e.Mul(excess))}
}

// VerifyPartial checks that sig is the partial signature a peer with
// public excess pubExcess and public nonce pubNonce would have produced
// over message under the joint public nonce jointPubNonce:
//
//	G*s == pubNonce + e*pubExcess
func VerifyPartial(message []byte, sig Signature, pubNonce, pubExcess, jointPubNonce Point) bool {
	e := challenge(jointPubNonce, message)
	lhs := ScalarBaseMult(sig.s)
	rhs := pubNonce.Add(ScalarMult(e, pubExcess))
	return string(lhs.Bytes()) == string(rhs.Bytes())
}

// SumSignatures combines two partial Schnorr values into the final kernel
// signature.
func SumSignatures(a, b Signature) Signature {
	return Signature{s: a.s.Add(b.s)}
}

// FixedSignature is a complete single-party Schnorr signature: the public
// nonce commitment travels alongside the response scalar, so a verifier
// needs nothing beyond the signer's public key and this value. This is
// PartialSign/VerifyPartial with no peer contribution — the nonce point
// can't be fixed to the identity the way a zero peer excess can, since a
// public, deterministic challenge point turns s = e*priv into a
// private-key-disclosure oracle; it has to be a real secret nonce chosen
// fresh per signature and carried on the wire instead of exchanged ahead
// of time.
type FixedSignature struct {
	Nonce Point
	S     Signature
}

// Bytes encodes the nonce point followed by the response scalar.
func (sig FixedSignature) Bytes() []byte {
	return append(sig.Nonce.Bytes(), sig.S.Bytes()...)
}

// FixedSignatureFromBytes decodes the wire form produced by Bytes.
func FixedSignatureFromBytes(b []byte) (FixedSignature, error) {
	if len(b) != PointSize+ScalarSize {
		return FixedSignature{}, fmt.Errorf("chainkd: fixed signature must be %d bytes, got %d", PointSize+ScalarSize, len(b))
	}
	nonce, err := PointFromBytes(b[:PointSize])
	if err != nil {
		return FixedSignature{}, err
	}
	s, err := SignatureFromBytes(b[PointSize:])
	if err != nil {
		return FixedSignature{}, err
	}
	return FixedSignature{Nonce: nonce, S: s}, nil
}

// SignFixed produces a single-party Schnorr signature over message under
// priv: a fresh secret nonce is generated for this signature alone and its
// public commitment travels in the result alongside the response scalar.
func SignFixed(message []byte, priv Scalar) (FixedSignature, error) {
	nonce, err := GenerateNonceSeed()
	if err != nil {
		return FixedSignature{}, fmt.Errorf("chainkd: sign fixed: %w", err)
	}
	pubNonce := ScalarBaseMult(nonce)
	return FixedSignature{Nonce: pubNonce, S: PartialSign(message, nonce, priv, pubNonce)}, nil
}

// VerifyFixed checks a signature produced by SignFixed against
// pub = G*priv.
func VerifyFixed(message []byte, sig FixedSignature, pub Point) bool {
	return VerifyPartial(message, sig.S, sig.Nonce, pub, sig.Nonce)
}
