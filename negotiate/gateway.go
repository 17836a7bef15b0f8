// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package negotiate

import (
	"github.com/mwallet/mwwallet/address"
	"github.com/mwallet/mwwallet/coin"
	"github.com/mwallet/mwwallet/txbuilder"
	"github.com/mwallet/mwwallet/txparams"
)

// ParamUpdate is a batch of peer-supplied parameters delivered for one
// txID, the shape of a SendTxParams message on the wire.
type ParamUpdate struct {
	TxID   coin.TxID
	Values map[txparams.ID][]byte
}

// ChainTip is the chain height/id pair Gateway.GetTip reports.
type ChainTip struct {
	Height uint64
	ID     []byte
}

// Gateway is the abstract boundary a SimpleTransaction uses to talk to
// the outside world: the peer messaging channel, the node's
// transaction-registration and kernel-proof-confirmation paths, and the
// current chain tip. The gateway outlives every transaction that uses it.
//
// Delivery is at-least-once: the gateway guarantees it will call Update
// at least once on the owning SimpleTransaction for every inbound
// parameter update or tip change, but duplicate and out-of-order
// delivery are both expected and tolerated by the state machine.
type Gateway interface {
	// SendTxParams sends msg to peerID. Best-effort: the gateway may drop,
	// duplicate, or reorder sends; SimpleTransaction does not rely on any
	// particular delivery semantics beyond eventual at-least-once.
	SendTxParams(peerID address.WalletID, msg ParamUpdate) error

	// RegisterTx submits tx to the node for on-chain registration. The
	// gateway eventually sets TransactionRegistered=true in txID's
	// parameter bag once the node accepts it; a false value is treated
	// the same as an absent one.
	RegisterTx(txID coin.TxID, tx txbuilder.Transaction) error

	// ConfirmKernel requests a proof that kernel has landed on-chain. The
	// gateway eventually sets KernelProofHeight in txID's parameter bag.
	ConfirmKernel(txID coin.TxID, kernel txbuilder.Kernel) error

	// GetTip returns the gateway's current view of the chain tip. ok is
	// false if no tip is known yet (e.g. node still syncing).
	GetTip() (tip ChainTip, ok bool)

	// OnTxCompleted is the terminal signal that txID has reached
	// Completed, Failed, or Cancelled and should be removed from the
	// caller's active set.
	OnTxCompleted(txID coin.TxID)
}
