// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package address implements the wallet's public-identity type and the
// wallet ID encoding used to address peers.
package address

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/mwallet/mwwallet/chainkd"
)

// WalletID is a 32-byte public key serialized as hex, the identity under
// which a party is addressed during negotiation.
type WalletID [chainkd.PointSize - 1]byte

// FromHex parses a wallet ID. It rejects strings that are not exactly 64
// hex chars or whose point is not on curve.
func FromHex(s string) (WalletID, error) {
	var id WalletID
	if len(s) != hex.EncodedLen(len(id)) {
		return WalletID{}, fmt.Errorf("address: wallet id must be %d hex chars, got %d", hex.EncodedLen(len(id)), len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return WalletID{}, fmt.Errorf("address: invalid hex: %w", err)
	}
	// A WalletID is the x-only half of a compressed point; reconstitute
	// the 0x02-prefixed compressed form to validate curve membership.
	compressed := append([]byte{0x02}, b...)
	if _, err := chainkd.PointFromBytes(compressed); err != nil {
		return WalletID{}, fmt.Errorf("address: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

// String renders the wallet ID as lowercase hex.
func (id WalletID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value (no identity assigned).
func (id WalletID) IsZero() bool {
	return id == WalletID{}
}

// Category groups addresses for display purposes; the store treats this
// as an opaque label, grouping/search UX is out of scope.
type Category string

// WalletAddress is a public identity the wallet knows about: either one of
// its own receiving identities or a peer's.
type WalletAddress struct {
	ID       WalletID
	Label    string
	Category Category

	CreateTime time.Time
	Duration   time.Duration // 0 means never expires

	// OwnID is non-zero when this party controls the secret behind ID.
	OwnID uint64
}

// IsExpired reports whether the address has outlived its duration.
func (a *WalletAddress) IsExpired(now time.Time) bool {
	if a.Duration == 0 {
		return false
	}
	return now.After(a.CreateTime.Add(a.Duration))
}

// IsOwn reports whether this party controls the secret behind the address.
func (a *WalletAddress) IsOwn() bool {
	return a.OwnID != 0
}

// SetLabel edits the address's display label.
func (a *WalletAddress) SetLabel(label string) {
	a.Label = label
}

// SetCategory edits the address's display category.
func (a *WalletAddress) SetCategory(category Category) {
	a.Category = category
}

// SetExpiration edits how long the address remains valid from its
// creation time; zero means it never expires.
func (a *WalletAddress) SetExpiration(d time.Duration) {
	a.Duration = d
}
