// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainkd

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for the master-key PBKDF "derived from user
// passphrase via a PBKDF with fixed parameters".
const (
	scryptN   = 1 << 15
	scryptR   = 8
	scryptP   = 1
	scryptKeyLen = 32
	saltSize   = 16
)

// KeyType distinguishes the purpose a derived child key is used for
// (change outputs get KeyTypeChange, kernel excess gets KeyTypeKerW).
type KeyType uint8

const (
	KeyTypeRegular KeyType = iota
	KeyTypeChange
	KeyTypeKernel
	KeyTypeKerW
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeRegular:
		return "regular"
	case KeyTypeChange:
		return "change"
	case KeyTypeKernel:
		return "kernel"
	case KeyTypeKerW:
		return "kerw"
	default:
		return fmt.Sprintf("KeyType(%d)", t)
	}
}

// KeyID identifies a derived child key: an index minted by
// store.AllocateKidRange, an optional sub-index, and a type tag. Key-id
// ranges are issued monotonically and never reused.
type KeyID struct {
	Idx  uint64
	SubIdx uint32
	Type  KeyType
}

// MasterKey is the root of the wallet's key-derivation tree, held only by
// the Wallet Store.
type MasterKey struct {
	salt []byte
	seed []byte
	net *chaincfg.Params
}

// NewMasterKey derives a MasterKey from a user passphrase and a random
// salt via scrypt with the package's fixed parameters.
func NewMasterKey(passphrase []byte) (*MasterKey, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("chainkd: generate salt: %w", err)
	}
	return newMasterKeyWithSalt(passphrase, salt)
}

// OpenMasterKey re-derives a MasterKey from a passphrase and the salt that
// was persisted when the store was created.
func OpenMasterKey(passphrase, salt []byte) (*MasterKey, error) {
	return newMasterKeyWithSalt(passphrase, salt)
}

func newMasterKeyWithSalt(passphrase, salt []byte) (*MasterKey, error) {
	seed, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("chainkd: scrypt derive: %w", err)
	}
	return &MasterKey{salt: salt, seed: seed, net: &chaincfg.MainNetParams}, nil
}

// Salt returns the PBKDF salt, to be persisted alongside the store so the
// same MasterKey can be re-derived from the passphrase on re-open.
func (m *MasterKey) Salt() []byte {
	return append([]byte(nil), m.salt...)
}

// ChildKey is a key derived from the master key for one KeyID. It is a
// path-free derivation: the child depends only on (Idx, SubIdx, Type), not
// on a BIP32-style path.
type ChildKey struct {
	id   KeyID
	scalar Scalar
}

// DeriveChild derives the child key for id. Derivation is deterministic:
// re-deriving the same id from the same MasterKey always yields the same
// scalar, which is what lets a builder retry a half-finished Update() call
// without re-selecting inputs.
func (m *MasterKey) DeriveChild(id KeyID) (ChildKey, error) {
	ext, err := hdkeychain.NewMaster(m.seed, m.net)
	if err != nil {
		return ChildKey{}, fmt.Errorf("chainkd: derive master extended key: %w", err)
	}
	// Path-free derivation folds the three KeyID components into three
	// successive hardened derivation steps. Each step takes only the low
	// 31 bits of its component, so triples that differ only in higher
	// bits of Idx or SubIdx derive the same key.
	for _, component := range [3]uint32{
		uint32(id.Idx) | hdkeychain.HardenedKeyStart,
		id.SubIdx | hdkeychain.HardenedKeyStart,
		uint32(id.Type) | hdkeychain.HardenedKeyStart,
	} {
		ext, err = ext.Derive(component)
		if err != nil {
			return ChildKey{}, fmt.Errorf("chainkd: derive child: %w", err)
		}
	}
	priv, err := ext.ECPrivKey()
	if err != nil {
		return ChildKey{}, fmt.Errorf("chainkd: extract private key: %w", err)
	}
	s, err := ScalarFromBytes(priv.Serialize())
	if err != nil {
		return ChildKey{}, fmt.Errorf("chainkd: child scalar: %w", err)
	}
	// Canonicalize to an even-y public point (negating the scalar flips
	// the point's y without changing anything it's used for downstream,
	// since every consumer always derives the same KeyID the same way).
	// This lets a WalletID — which carries only the x coordinate — always
	// reconstruct the right point by assuming an even y.
	if ScalarBaseMult(s).Bytes()[0] == 0x03 {
		s = s.Negate()
	}
	return ChildKey{id: id, scalar: s}, nil
}

// ID returns the KeyID this child was derived for.
func (c ChildKey) ID() KeyID { return c.id }

// PrivateScalar returns the child's blinding scalar.
func (c ChildKey) PrivateScalar() Scalar { return c.scalar }

// PublicPoint returns the public point G*scalar for the child key.
func (c ChildKey) PublicPoint() Point { return ScalarBaseMult(c.scalar) }

// Commitment builds the Pedersen commitment to value under this child's
// blinding factor, input/output commitment construction.
func (c ChildKey) Commitment(value uint64) Commitment {
	return Commit(value, c.scalar)
}
