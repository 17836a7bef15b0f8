// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coin defines the owned-output type and its lifecycle.
package coin

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mwallet/mwwallet/chainkd"
)

// Status is the lifecycle state of a Coin.
type Status uint8

const (
	StatusUnavailable Status = iota
	StatusAvailable
	StatusMaturing
	StatusOutgoing
	StatusIncoming
	StatusSpent
)

func (s Status) String() string {
	switch s {
	case StatusUnavailable:
		return "Unavailable"
	case StatusAvailable:
		return "Available"
	case StatusMaturing:
		return "Maturing"
	case StatusOutgoing:
		return "Outgoing"
	case StatusIncoming:
		return "Incoming"
	case StatusSpent:
		return "Spent"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// TxID identifies a negotiated transaction, shared with package negotiate
// and package store.
type TxID string

// Coin is an owned unspent (or about-to-be) output.
type Coin struct {
	ID chainkd.KeyID

	Value uint64
	Status Status

	CreateHeight  uint64
	MaturityHeight uint64
	ConfirmHeight uint64
	LockedHeight  uint64

	// CreatingTxID is set while this coin is an output of a tx we built
	// (status Incoming until the kernel proof lands).
	CreatingTxID *TxID
	// SpendingTxID is set while this coin is an input of a tx we built
	// (status Outgoing until the kernel proof lands).
	SpendingTxID *TxID

	// Session is the coin-session token under which a selected coin is
	// considered locked for one builder's use.
	Session *uuid.UUID
}

// Key returns the canonical map/storage key for the coin, "idx:subIdx:type".
func (c *Coin) Key() string {
	return fmt.Sprintf("%d:%d:%d", c.ID.Idx, c.ID.SubIdx, c.ID.Type)
}

// Clone returns a deep copy safe for a caller to mutate independently of
// the original.
func (c *Coin) Clone() *Coin {
	cp := *c
	if c.CreatingTxID != nil {
		id := *c.CreatingTxID
		cp.CreatingTxID = &id
	}
	if c.SpendingTxID != nil {
		id := *c.SpendingTxID
		cp.SpendingTxID = &id
	}
	if c.Session != nil {
		s := *c.Session
		cp.Session = &s
	}
	return &cp
}

// MarkSpending reserves the coin as an input of tx: its spentTxId is set
// and its status flips to Outgoing.
func (c *Coin) MarkSpending(tx TxID) {
	id := tx
	c.SpendingTxID = &id
	c.Status = StatusOutgoing
}

// MarkCreating records the coin as a not-yet-confirmed output of tx.
func (c *Coin) MarkCreating(tx TxID) {
	id := tx
	c.CreatingTxID = &id
	c.Status = StatusIncoming
}

// ConfirmSpent promotes an Outgoing coin to Spent once the kernel proof for
// its spending tx has landed.
func (c *Coin) ConfirmSpent() error {
	if c.Status != StatusOutgoing {
		return fmt.Errorf("coin: cannot confirm-spend coin in status %s", c.Status)
	}
	c.Status = StatusSpent
	return nil
}

// ConfirmCreated promotes an Incoming coin to Available once the kernel
// proof for its creating tx has landed, recording the confirmation height
// and the resulting maturity height (confirmHeight + maturityWindow).
func (c *Coin) ConfirmCreated(confirmHeight, maturityWindow uint64) error {
	if c.Status != StatusIncoming {
		return fmt.Errorf("coin: cannot confirm-create coin in status %s", c.Status)
	}
	c.ConfirmHeight = confirmHeight
	c.MaturityHeight = confirmHeight + maturityWindow
	if c.MaturityHeight > confirmHeight {
		c.Status = StatusMaturing
	} else {
		c.Status = StatusAvailable
	}
	return nil
}

// Matured reports whether a Maturing coin has reached its maturity height
// and flips it to Available if so.
func (c *Coin) Matured(tip uint64) bool {
	if c.Status == StatusMaturing && tip >= c.MaturityHeight {
		c.Status = StatusAvailable
		return true
	}
	return false
}

// RollbackSpending undoes MarkSpending, returning the coin to Available.
func (c *Coin) RollbackSpending() {
	c.SpendingTxID = nil
	c.Status = StatusAvailable
}
