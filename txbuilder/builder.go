// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mwallet/mwwallet/chainkd"
	"github.com/mwallet/mwwallet/coin"
	"github.com/mwallet/mwwallet/store"
)

// ErrNoInputs is returned when coin selection cannot cover the requested
// amount plus fee.
var ErrNoInputs = errors.New("txbuilder: no inputs available to cover amount")

// ErrInvalidPeerSignature is returned when the peer's partial Schnorr
// contribution does not satisfy the verification equation.
var ErrInvalidPeerSignature = errors.New("txbuilder: invalid peer signature")

// Builder assembles one side of a transaction. It is constructed fresh
// for a single Update() call and discarded afterward; nothing it holds
// outlives that call except what has been flushed to the store.
type Builder struct {
	st    *store.Store
	txID  coin.TxID
	lockSession uuid.UUID

	fee       uint64
	minHeight uint64
	maxHeight uint64

	inputs     []Input
	outputs    []Output
	spentCoins []*coin.Coin

	offset chainkd.Scalar

	kernelKeyID chainkd.KeyID
	excess      chainkd.Scalar

	nonceSeed chainkd.Scalar
	nonce     chainkd.Scalar

	kernel Kernel
}

// New constructs a Builder bound to one transaction negotiation.
func New(st *store.Store, txID coin.TxID, lockSession uuid.UUID) *Builder {
	return &Builder{st: st, txID: txID, lockSession: lockSession}
}

// SelectInputs chooses Available coins covering amount+fee, accumulates
// their blinding factors into the offset, and marks each as spent by
// this transaction. The change amount (total selected minus amount and
// fee) is returned so the caller can create a change output for it.
func (b *Builder) SelectInputs(amount, fee uint64) (change uint64, err error) {
	b.fee = fee
	coins, err := b.st.SelectCoins(amount+fee, b.lockSession)
	if err != nil {
		if errors.Is(err, store.ErrNoInputs) {
			return 0, ErrNoInputs
		}
		return 0, err
	}
	var total uint64
	for _, c := range coins {
		child, err := b.st.DeriveChildKey(c.ID)
		if err != nil {
			return 0, fmt.Errorf("txbuilder: derive input key: %w", err)
		}
		b.inputs = append(b.inputs, Input{Commitment: child.Commitment(c.Value)})
		b.offset = b.offset.Add(child.PrivateScalar())
		total += c.Value
	}
	for _, c := range coins {
		c.MarkSpending(b.txID)
	}
	if err := b.st.SaveCoins(coins); err != nil {
		return 0, err
	}
	b.spentCoins = coins
	return total - (amount + fee), nil
}

// AddOutput mints a fresh key id for value, persists a new Incoming coin
// for it, derives its commitment, and subtracts its blinding factor from
// the offset. isChange controls the minted key's type, which affects
// nothing cryptographically but lets the wallet tell its own change
// apart from payments when listing coins later.
func (b *Builder) AddOutput(value uint64, isChange bool) (Output, error) {
	firstKid, err := b.st.AllocateKidRange(1)
	if err != nil {
		return Output{}, fmt.Errorf("txbuilder: allocate output key id: %w", err)
	}
	keyType := chainkd.KeyTypeRegular
	if isChange {
		keyType = chainkd.KeyTypeChange
	}
	id := chainkd.KeyID{Idx: firstKid, Type: keyType}
	child, err := b.st.DeriveChildKey(id)
	if err != nil {
		return Output{}, fmt.Errorf("txbuilder: derive output key: %w", err)
	}
	out := Output{Commitment: child.Commitment(value)}
	b.outputs = append(b.outputs, out)
	b.offset = b.offset.Sub(child.PrivateScalar())

	c := &coin.Coin{ID: id, Value: value}
	c.MarkCreating(b.txID)
	if err := b.st.SaveCoin(c); err != nil {
		return Output{}, err
	}
	return out, nil
}

// BuildKernel allocates a KerW-typed key id for the blinding excess,
// negates it per the transaction offset convention, and either
// generates a fresh nonce seed (first call) or re-derives the same
// multisig nonce from a previously persisted seed (retry after crash).
func (b *Builder) BuildKernel(minHeight, maxHeight uint64, existingNonceSeed *chainkd.Scalar) error {
	b.minHeight, b.maxHeight = minHeight, maxHeight

	firstKid, err := b.st.AllocateKidRange(1)
	if err != nil {
		return fmt.Errorf("txbuilder: allocate kernel key id: %w", err)
	}
	b.kernelKeyID = chainkd.KeyID{Idx: firstKid, Type: chainkd.KeyTypeKerW}
	child, err := b.st.DeriveChildKey(b.kernelKeyID)
	if err != nil {
		return fmt.Errorf("txbuilder: derive kernel key: %w", err)
	}
	b.excess = child.PrivateScalar().Negate()
	b.offset = b.offset.Sub(b.excess)

	if existingNonceSeed != nil {
		b.nonceSeed = *existingNonceSeed
	} else {
		seed, err := chainkd.GenerateNonceSeed()
		if err != nil {
			return fmt.Errorf("txbuilder: generate nonce seed: %w", err)
		}
		b.nonceSeed = seed
	}
	b.nonce = chainkd.NonceFromSeed(b.nonceSeed)

	b.kernel = Kernel{Fee: b.fee, MinHeight: minHeight, MaxHeight: maxHeight}
	return nil
}

// NonceSeed returns the seed to persist as MyNonce so a retry after a
// crash re-derives the identical multisig nonce instead of a fresh one.
func (b *Builder) NonceSeed() chainkd.Scalar { return b.nonceSeed }

// Outputs returns the outputs this builder has added so far, for a caller
// that needs to hand them to its peer directly (e.g. a receiver with no
// inputs of its own to send alongside them).
func (b *Builder) Outputs() []Output { return append([]Output{}, b.outputs...) }

// Offset returns this party's accumulated offset contribution, the half a
// receiver sends as PeerOffset so the sender's Finalize call can sum both
// halves into the transaction's final offset.
func (b *Builder) Offset() chainkd.Scalar { return b.offset }

// PublicExcess returns this party's public blinding excess, G*excess.
func (b *Builder) PublicExcess() chainkd.Point { return chainkd.ScalarBaseMult(b.excess) }

// PublicNonce returns this party's public multisig nonce contribution,
// G*nonce.
func (b *Builder) PublicNonce() chainkd.Point { return chainkd.ScalarBaseMult(b.nonce) }

// PartialSign combines this party's excess/nonce with the peer's public
// contributions to produce the kernel commitment, the joint public
// nonce, and this party's partial Schnorr signature over the kernel
// message.
func (b *Builder) PartialSign(peerPublicExcess, peerPublicNonce chainkd.Point) chainkd.Signature {
	b.kernel.Excess = b.PublicExcess().Add(peerPublicExcess)
	jointNonce := b.PublicNonce().Add(peerPublicNonce)
	message := b.kernel.Message()
	return chainkd.PartialSign(message, b.nonce, b.excess, jointNonce)
}

// VerifyPeerSignature checks the peer's partial signature against their
// claimed public excess and nonce under the same joint nonce and kernel
// message this party signed over.
func (b *Builder) VerifyPeerSignature(peerSig chainkd.Signature, peerPublicExcess, peerPublicNonce chainkd.Point) error {
	jointNonce := b.PublicNonce().Add(peerPublicNonce)
	message := b.kernel.Message()
	if !chainkd.VerifyPartial(message, peerSig, peerPublicNonce, peerPublicExcess, jointNonce) {
		return ErrInvalidPeerSignature
	}
	return nil
}

// KernelID returns the kernel identifier for the joint excess computed by
// the most recent PartialSign call. Both parties compute the same value
// independently, since the joint excess they sum over is symmetric — this
// lets the receiver sign a payment confirmation over the eventual kernel
// id without waiting for the sender to finalize the transaction.
func (b *Builder) KernelID() []byte { return b.kernel.ID() }

// Finalize sums this party's partial signature with the peer's, appends
// the peer's inputs/outputs and offset to this party's own, and returns
// the fully assembled, canonically ordered Transaction.
func (b *Builder) Finalize(mySig chainkd.Signature, peerSig chainkd.Signature, peerInputs []Input, peerOutputs []Output, peerOffset chainkd.Scalar) Transaction {
	b.kernel.Signature = chainkd.SumSignatures(mySig, peerSig)

	tx := Transaction{
		Inputs:  append(append([]Input{}, b.inputs...), peerInputs...),
		Outputs: append(append([]Output{}, b.outputs...), peerOutputs...),
		Offset:  b.offset.Add(peerOffset),
		Kernel:  b.kernel,
	}
	tx.canonicalize()
	return tx
}

// Abort releases the coins this builder had reserved without marking
// them spent, used when input selection succeeded but a later step in
// the same Update() call failed before any parameters were persisted.
func (b *Builder) Abort() error {
	if len(b.spentCoins) == 0 {
		return nil
	}
	return b.st.ReleaseCoins(b.spentCoins)
}
