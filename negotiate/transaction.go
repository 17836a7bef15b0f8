// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package negotiate

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mwallet/mwwallet/address"
	"github.com/mwallet/mwwallet/chainkd"
	"github.com/mwallet/mwwallet/coin"
	"github.com/mwallet/mwwallet/store"
	"github.com/mwallet/mwwallet/txbuilder"
	"github.com/mwallet/mwwallet/txparams"
)

// protoVersion is this build's negotiation protocol version, sent as
// PeerProtoVersion so a peer on an older build knows to fall back to the
// InvitationConfirmation wait rather than the single-round jump.
const protoVersion = 1

// SimpleTransaction drives one negotiated transaction from Initial to a
// terminal status. It carries only identifiers and references; every
// other piece of its state lives in the store's parameter bag, so a
// freshly constructed SimpleTransaction picking up an existing txID
// resumes exactly where the previous instance left off.
type SimpleTransaction struct {
	txID coin.TxID
	st   *store.Store
	gw   Gateway
}

// Open binds a SimpleTransaction to an already-negotiated txID, for
// resuming a transaction whose parameters already exist in the bag.
func Open(st *store.Store, gw Gateway, txID coin.TxID) *SimpleTransaction {
	return &SimpleTransaction{txID: txID, st: st, gw: gw}
}

// InitSender creates a brand-new outgoing transaction: its own txID,
// Pending status, Initial state, and the parameters the sender side
// needs before the first Update().
func InitSender(st *store.Store, gw Gateway, myID, peerID address.WalletID, amount, fee, minHeight, maxHeight uint64) (*SimpleTransaction, error) {
	txID := coin.TxID(uuid.New().String())
	t := &SimpleTransaction{txID: txID, st: st, gw: gw}
	now := time.Now()
	if err := st.SetParams(txID, map[txparams.ID][]byte{
		txparams.IsSender:    txparams.PutBool(true),
		txparams.IsInitiator: txparams.PutBool(true),
		txparams.Amount:      txparams.PutUint64(amount),
		txparams.Fee:         txparams.PutUint64(fee),
		txparams.MinHeight:   txparams.PutUint64(minHeight),
		txparams.MaxHeight:   txparams.PutUint64(maxHeight),
		txparams.MyID:        myID[:],
		txparams.PeerID:      peerID[:],
		txparams.Status:      txparams.PutUint64(uint64(StatusPending)),
		txparams.State:       txparams.PutUint64(uint64(StateInitial)),
		txparams.CreateTime:  txparams.PutUint64(uint64(now.Unix())),
		txparams.ModifyTime:  txparams.PutUint64(uint64(now.Unix())),
	}); err != nil {
		return nil, fmt.Errorf("negotiate: init sender: %w", err)
	}
	if err := t.saveHistory(amount, fee, myID, peerID, true, StatusPending, now, now); err != nil {
		return nil, err
	}
	return t, nil
}

// InitReceiver creates a new incoming transaction from a sender's
// Invitation message. msg carries the parameters the sender sent, keyed
// exactly as they arrived on the wire.
func InitReceiver(st *store.Store, gw Gateway, myID, peerID address.WalletID, myAddressID uint64, msg ParamUpdate) (*SimpleTransaction, error) {
	t := &SimpleTransaction{txID: msg.TxID, st: st, gw: gw}
	now := time.Now()
	values := map[txparams.ID][]byte{
		txparams.IsSender:     txparams.PutBool(false),
		txparams.IsInitiator:  txparams.PutBool(false),
		txparams.MyID:         myID[:],
		txparams.PeerID:       peerID[:],
		txparams.MyAddressID:  txparams.PutUint64(myAddressID),
		txparams.Status:       txparams.PutUint64(uint64(StatusPending)),
		txparams.State:        txparams.PutUint64(uint64(StateInitial)),
		txparams.CreateTime:   txparams.PutUint64(uint64(now.Unix())),
		txparams.ModifyTime:   txparams.PutUint64(uint64(now.Unix())),
	}
	for id, v := range msg.Values {
		values[id] = v
	}
	if err := st.SetParams(t.txID, values); err != nil {
		return nil, fmt.Errorf("negotiate: init receiver: %w", err)
	}
	amount, _, _ := t.getUint64(txparams.Amount)
	fee, _, _ := t.getUint64(txparams.Fee)
	if err := t.saveHistory(amount, fee, myID, peerID, false, StatusPending, now, now); err != nil {
		return nil, err
	}
	return t, nil
}

// TxID returns the transaction's identifier.
func (t *SimpleTransaction) TxID() coin.TxID { return t.txID }

// Update is the single entry point, invoked whenever a parameter this
// transaction cares about changed or the chain tip advanced. It is
// idempotent, advances at most one state edge, and never blocks.
func (t *SimpleTransaction) Update() error {
	status, err := t.getStatus()
	if err != nil {
		return fmt.Errorf("negotiate: read status: %w", err)
	}
	if status == StatusCompleted || status == StatusFailed || status == StatusCancelled {
		return nil
	}

	if reason, ok, err := t.getFailureReason(); err != nil {
		return err
	} else if ok && reason != FailureNone && status == StatusInProgress {
		return t.OnFailed(reason, false)
	}

	if tip, ok := t.gw.GetTip(); ok {
		if maxHeight, hasMax, err := t.getUint64(txparams.MaxHeight); err != nil {
			return err
		} else if hasMax && maxHeight > 0 && tip.Height > maxHeight {
			return t.OnFailed(FailureTransactionExpired, true)
		}
	}

	state, err := t.getState()
	if err != nil {
		return fmt.Errorf("negotiate: read state: %w", err)
	}

	isSender, err := t.isSender()
	if err != nil {
		return err
	}

	switch state {
	case StateInitial:
		if isSender {
			return t.senderInitial()
		}
		return t.receiverInitial()
	case StateInvitation:
		return t.senderOnPeerConfirmation()
	case StateInvitationConfirmation:
		return t.receiverOnRegistrationNotice()
	case StateRegistration:
		return t.onTransactionRegistered()
	case StateKernelConfirmation:
		return t.onKernelProof()
	default:
		return nil
	}
}

func (t *SimpleTransaction) senderInitial() error {
	amount, _, err := t.getUint64(txparams.Amount)
	if err != nil {
		return err
	}
	fee, _, err := t.getUint64(txparams.Fee)
	if err != nil {
		return err
	}
	minHeight, _, _ := t.getUint64(txparams.MinHeight)
	maxHeight, _, _ := t.getUint64(txparams.MaxHeight)

	isSelf, err := t.isSelfTransaction()
	if err != nil {
		return err
	}
	if isSelf {
		return t.senderInitialSelf(amount, fee, minHeight, maxHeight)
	}

	session := uuid.New()
	b := txbuilder.New(t.st, t.txID, session)
	change, err := b.SelectInputs(amount, fee)
	if err != nil {
		if err == txbuilder.ErrNoInputs {
			return t.OnFailed(FailureNoInputs, true)
		}
		return err
	}
	if change > 0 {
		if _, err := b.AddOutput(change, true); err != nil {
			_ = b.Abort()
			return err
		}
	}
	if err := b.BuildKernel(minHeight, maxHeight, nil); err != nil {
		_ = b.Abort()
		return err
	}

	if err := t.persistBuilderState(b); err != nil {
		return err
	}

	peerID, err := t.peerID()
	if err != nil {
		return err
	}
	if err := t.setState(StateInvitation); err != nil {
		return err
	}
	if err := t.setStatus(StatusInProgress); err != nil {
		return err
	}
	return t.sendParams(peerID, map[txparams.ID][]byte{
		txparams.Amount:           txparams.PutUint64(amount),
		txparams.Fee:              txparams.PutUint64(fee),
		txparams.MinHeight:        txparams.PutUint64(minHeight),
		txparams.MaxHeight:        txparams.PutUint64(maxHeight),
		txparams.IsSender:         txparams.PutBool(false), // from the peer's point of view, we are not the sender of what they see
		txparams.PeerProtoVersion: txparams.PutUint64(protoVersion),
		txparams.PeerPublicExcess: b.PublicExcess().Bytes(),
		txparams.PeerPublicNonce:  b.PublicNonce().Bytes(),
	})
}

func (t *SimpleTransaction) persistBuilderState(b *txbuilder.Builder) error {
	if err := t.setScalar(txparams.MyNonce, b.NonceSeed()); err != nil {
		return err
	}
	return nil
}

// senderInitialSelf builds and registers a self-transaction: the peer
// address is one of this store's own, so there is no second party to
// exchange invitation parameters with. One Builder plays both roles —
// selecting inputs and creating the change output the way a sender would,
// then creating the payment output a receiver would have created — and
// signs the kernel alone (a zero peer excess/nonce is simply the identity
// point, so PartialSign degenerates to an ordinary single-party Schnorr
// signature) instead of summing a partial signature with a peer's.
func (t *SimpleTransaction) senderInitialSelf(amount, fee, minHeight, maxHeight uint64) error {
	session := uuid.New()
	b := txbuilder.New(t.st, t.txID, session)
	change, err := b.SelectInputs(amount, fee)
	if err != nil {
		if err == txbuilder.ErrNoInputs {
			return t.OnFailed(FailureNoInputs, true)
		}
		return err
	}
	if change > 0 {
		if _, err := b.AddOutput(change, true); err != nil {
			_ = b.Abort()
			return err
		}
	}
	if _, err := b.AddOutput(amount, false); err != nil {
		_ = b.Abort()
		return err
	}
	if err := b.BuildKernel(minHeight, maxHeight, nil); err != nil {
		_ = b.Abort()
		return err
	}
	if err := t.persistBuilderState(b); err != nil {
		return err
	}

	mySig := b.PartialSign(chainkd.Point{}, chainkd.Point{})
	kernelID := b.KernelID()
	if err := t.setBytes(txparams.KernelID, kernelID); err != nil {
		return err
	}

	tx := b.Finalize(mySig, chainkd.Signature{}, nil, nil, chainkd.Scalar{})
	if err := tx.Validate(); err != nil {
		log.Warnf("negotiate: %s: self-transaction failed structural validation: %v", t.txID, err)
		return t.OnFailed(FailureInvalidTransaction, true)
	}

	if err := t.setPoint(txparams.BlindingExcess, tx.Kernel.Excess); err != nil {
		return err
	}
	if err := t.setState(StateRegistration); err != nil {
		return err
	}
	if err := t.setStatus(StatusInProgress); err != nil {
		return err
	}
	if err := t.gw.RegisterTx(t.txID, tx); err != nil {
		return fmt.Errorf("negotiate: register tx: %w", err)
	}
	return nil
}

func (t *SimpleTransaction) senderOnPeerConfirmation() error {
	peerExcess, ok, err := t.getPoint(txparams.PeerPublicExcess)
	if err != nil {
		return err
	}
	if !ok {
		return nil // peer hasn't responded yet
	}
	peerNonce, _, err := t.getPoint(txparams.PeerPublicNonce)
	if err != nil {
		return err
	}
	peerSig, _, err := t.getSignature(txparams.PeerSignature)
	if err != nil {
		return err
	}

	nonceSeed, _, err := t.getScalar(txparams.MyNonce)
	if err != nil {
		return err
	}
	minHeight, _, _ := t.getUint64(txparams.MinHeight)
	maxHeight, _, _ := t.getUint64(txparams.MaxHeight)

	b := txbuilder.New(t.st, t.txID, uuid.Nil)
	if err := b.BuildKernel(minHeight, maxHeight, &nonceSeed); err != nil {
		return err
	}

	if err := b.VerifyPeerSignature(peerSig, peerExcess, peerNonce); err != nil {
		return t.OnFailed(FailureInvalidPeerSignature, true)
	}

	mySig := b.PartialSign(peerExcess, peerNonce)

	// The joint excess PartialSign just computed is symmetric, so the
	// kernel id it determines is already knowable here, the same value
	// the receiver computed when it signed its payment confirmation.
	kernelID := b.KernelID()
	if err := t.setBytes(txparams.KernelID, kernelID); err != nil {
		return err
	}

	isSelf, err := t.isSelfTransaction()
	if err != nil {
		return err
	}
	if !isSelf {
		if confirmErr := t.verifyPaymentConfirmation(); confirmErr != nil {
			peerProtoVersion, hasProto, _ := t.getUint64(txparams.PeerProtoVersion)
			if hasProto && peerProtoVersion >= 1 {
				return t.OnFailed(FailureInvalidPeerSignature, true)
			}
			log.Warnf("negotiate: %s: payment confirmation check failed on a pre-v1 peer, proceeding: %v", t.txID, confirmErr)
		}
	}

	peerInputs, _ := t.getInputs(txparams.PeerInputs)
	peerOutputs, _ := t.getOutputs(txparams.PeerOutputs)
	peerOffset, _, _ := t.getScalar(txparams.PeerOffset)

	tx := b.Finalize(mySig, peerSig, peerInputs, peerOutputs, peerOffset)
	if err := tx.Validate(); err != nil {
		log.Warnf("negotiate: %s: finalized transaction failed structural validation: %v", t.txID, err)
		return t.OnFailed(FailureInvalidTransaction, true)
	}

	if err := t.setPoint(txparams.BlindingExcess, tx.Kernel.Excess); err != nil {
		return err
	}
	if err := t.setState(StateRegistration); err != nil {
		return err
	}
	if err := t.gw.RegisterTx(t.txID, tx); err != nil {
		return fmt.Errorf("negotiate: register tx: %w", err)
	}
	return nil
}

// verifyPaymentConfirmation checks the receiver's signature over
// (KernelID, Amount, SenderPublicKey) against the receiver's wallet ID,
// treating the ID itself as the receiver's public key.
func (t *SimpleTransaction) verifyPaymentConfirmation() error {
	sig, ok, err := t.getFixedSignature(txparams.PaymentConfirmation)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("negotiate: no payment confirmation from peer")
	}
	peerID, err := t.peerID()
	if err != nil {
		return err
	}
	peerIDPoint, err := pointFromWalletID(peerID)
	if err != nil {
		return err
	}
	kernelID, _, err := t.getBytes(txparams.KernelID)
	if err != nil {
		return err
	}
	amount, _, _ := t.getUint64(txparams.Amount)
	myID, err := t.myID()
	if err != nil {
		return err
	}
	message := paymentConfirmationMessage(kernelID, amount, myID)
	if !chainkd.VerifyFixed(message, sig, peerIDPoint) {
		return fmt.Errorf("negotiate: payment confirmation signature does not verify")
	}
	return nil
}

func (t *SimpleTransaction) receiverInitial() error {
	amount, _, err := t.getUint64(txparams.Amount)
	if err != nil {
		return err
	}

	b := txbuilder.New(t.st, t.txID, uuid.Nil)
	if _, err := b.AddOutput(amount, false); err != nil {
		return err
	}

	minHeight, _, _ := t.getUint64(txparams.MinHeight)
	maxHeight, _, _ := t.getUint64(txparams.MaxHeight)
	if err := b.BuildKernel(minHeight, maxHeight, nil); err != nil {
		return err
	}
	if err := t.persistBuilderState(b); err != nil {
		return err
	}

	peerExcess, _, err := t.getPoint(txparams.PeerPublicExcess)
	if err != nil {
		return err
	}
	peerNonce, _, err := t.getPoint(txparams.PeerPublicNonce)
	if err != nil {
		return err
	}
	mySig := b.PartialSign(peerExcess, peerNonce)

	// The joint excess PartialSign just computed is symmetric, so the
	// kernel id it determines is already knowable here without waiting
	// for the sender to finalize the transaction.
	kernelID := b.KernelID()
	if err := t.setBytes(txparams.KernelID, kernelID); err != nil {
		return err
	}

	peerID, err := t.peerID()
	if err != nil {
		return err
	}

	// isSelfTransaction is never true here in practice: a self-transaction
	// is fully handled by senderInitialSelf without ever reaching
	// InitReceiver, since there is no second store to receive an
	// invitation. The check stays defensive/symmetric with
	// senderOnPeerConfirmation's own isSelf guard.
	isSelf, err := t.isSelfTransaction()
	if err != nil {
		return err
	}

	values := map[txparams.ID][]byte{
		txparams.PeerPublicExcess: b.PublicExcess().Bytes(),
		txparams.PeerPublicNonce:  b.PublicNonce().Bytes(),
		txparams.PeerSignature:    mySig.Bytes(),
		txparams.PeerOutputs:      txbuilder.MarshalOutputs(b.Outputs()),
		txparams.PeerOffset:       b.Offset().Bytes(),
		txparams.PeerProtoVersion: txparams.PutUint64(protoVersion),
	}
	if !isSelf {
		confirmation, err := t.signPaymentConfirmation(kernelID, amount)
		if err != nil {
			return err
		}
		values[txparams.PaymentConfirmation] = confirmation.Bytes()
	}

	_, peerHasProto, err := t.getUint64(txparams.PeerProtoVersion)
	if err != nil {
		return err
	}
	if err := t.setUint64(txparams.PeerProtoVersion, protoVersion); err != nil {
		return err
	}
	if peerHasProto {
		if err := t.setBool(txparams.TransactionRegistered, true); err != nil {
			return err
		}
		if err := t.setState(StateKernelConfirmation); err != nil {
			return err
		}
	} else {
		if err := t.setState(StateInvitationConfirmation); err != nil {
			return err
		}
	}
	if err := t.setStatus(StatusInProgress); err != nil {
		return err
	}
	return t.sendParams(peerID, values)
}

// signPaymentConfirmation signs (KernelID, Amount, SenderPublicKey) with
// the private key behind this party's own wallet ID, under a fresh secret
// nonce generated for this signature alone — never reused, and never
// derived from anything persistent, so observing this signature teaches
// an observer nothing about the address's private key.
func (t *SimpleTransaction) signPaymentConfirmation(kernelID []byte, amount uint64) (chainkd.FixedSignature, error) {
	myAddressID, _, err := t.getUint64(txparams.MyAddressID)
	if err != nil {
		return chainkd.FixedSignature{}, err
	}
	child, err := t.st.DeriveChildKey(chainkd.KeyID{Idx: myAddressID})
	if err != nil {
		return chainkd.FixedSignature{}, err
	}
	peerID, err := t.peerID()
	if err != nil {
		return chainkd.FixedSignature{}, err
	}
	message := paymentConfirmationMessage(kernelID, amount, peerID)
	return chainkd.SignFixed(message, child.PrivateScalar())
}

func paymentConfirmationMessage(kernelID []byte, amount uint64, senderID address.WalletID) []byte {
	msg := make([]byte, 0, len(kernelID)+8+len(senderID))
	msg = append(msg, kernelID...)
	var amt [8]byte
	for i := range amt {
		amt[i] = byte(amount >> (8 * i))
	}
	msg = append(msg, amt[:]...)
	msg = append(msg, senderID[:]...)
	return msg
}

func pointFromWalletID(id address.WalletID) (chainkd.Point, error) {
	return chainkd.PointFromBytes(append([]byte{0x02}, id[:]...))
}

func (t *SimpleTransaction) receiverOnRegistrationNotice() error {
	registered, ok, err := t.getBool(txparams.TransactionRegistered)
	if err != nil {
		return err
	}
	if !ok || !registered {
		return nil
	}
	return t.setState(StateKernelConfirmation)
}

func (t *SimpleTransaction) onTransactionRegistered() error {
	registered, ok, err := t.getBool(txparams.TransactionRegistered)
	if err != nil {
		return err
	}
	if !ok || !registered {
		return nil
	}
	fee, _, _ := t.getUint64(txparams.Fee)
	minHeight, _, _ := t.getUint64(txparams.MinHeight)
	maxHeight, _, _ := t.getUint64(txparams.MaxHeight)
	excess, _, err := t.getPoint(txparams.BlindingExcess)
	if err != nil {
		return err
	}
	kernel := txbuilder.Kernel{Fee: fee, MinHeight: minHeight, MaxHeight: maxHeight, Excess: excess}
	if err := t.setState(StateKernelConfirmation); err != nil {
		return err
	}
	if err := t.setStatus(StatusRegistered); err != nil {
		return err
	}

	isSelf, err := t.isSelfTransaction()
	if err != nil {
		return err
	}
	if !isSelf {
		peerID, err := t.peerID()
		if err != nil {
			return err
		}
		// A pre-v1 receiver parked in StateInvitationConfirmation waiting on
		// exactly this notification (receiverOnRegistrationNotice); a
		// same-version peer already jumped straight to
		// StateKernelConfirmation on its own and just ignores it.
		if err := t.sendParams(peerID, map[txparams.ID][]byte{
			txparams.TransactionRegistered: txparams.PutBool(true),
		}); err != nil {
			return err
		}
	}

	if err := t.gw.ConfirmKernel(t.txID, kernel); err != nil {
		return fmt.Errorf("negotiate: confirm kernel: %w", err)
	}
	return nil
}

func (t *SimpleTransaction) onKernelProof() error {
	proofHeight, ok, err := t.getUint64(txparams.KernelProofHeight)
	if err != nil {
		return err
	}
	if !ok || proofHeight == 0 {
		return nil
	}

	if err := t.promoteCoins(proofHeight); err != nil {
		return err
	}
	if err := t.setStatus(StatusCompleted); err != nil {
		return err
	}
	t.gw.OnTxCompleted(t.txID)
	return nil
}

// promoteCoins walks every coin this transaction touched and promotes
// own outputs Incoming -> Available and own inputs Outgoing -> Spent. A
// regular payment's outputs are spendable as soon as the kernel proof
// lands, so they use a zero maturity window; nothing in this wallet ever
// mints a coin with a positive window, so coin.Matured is never reached
// from here.
func (t *SimpleTransaction) promoteCoins(proofHeight uint64) error {
	const maturityWindow = 0
	var toSave []*coin.Coin
	err := t.st.VisitCoins(func(c *coin.Coin) bool {
		if c.CreatingTxID != nil && *c.CreatingTxID == t.txID && c.Status == coin.StatusIncoming {
			_ = c.ConfirmCreated(proofHeight, maturityWindow)
			toSave = append(toSave, c)
		}
		if c.SpendingTxID != nil && *c.SpendingTxID == t.txID && c.Status == coin.StatusOutgoing {
			_ = c.ConfirmSpent()
			toSave = append(toSave, c)
		}
		return true
	})
	if err != nil {
		return err
	}
	if len(toSave) == 0 {
		return nil
	}
	return t.st.SaveCoins(toSave)
}

// Cancel requests the transaction stop. A Pending transaction is deleted
// outright; any other non-terminal transaction notifies the peer (if it
// has one to notify) and rolls back via OnFailed. Calling Cancel on an
// already-terminal transaction is a no-op.
func (t *SimpleTransaction) Cancel() error {
	status, err := t.getStatus()
	if err != nil {
		return err
	}
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return nil
	case StatusPending:
		if err := t.st.DeleteParams(t.txID); err != nil {
			return err
		}
		return t.st.DeleteTxDescription(t.txID)
	default:
		return t.OnFailed(FailureCancelled, true)
	}
}

// OnFailed is the terminal failure sequence: log, optionally notify the
// peer, set the final status, roll back every coin this transaction
// touched, and signal the gateway that the transaction is done.
func (t *SimpleTransaction) OnFailed(reason FailureReason, notifyPeer bool) error {
	log.Infof("negotiate: %s: failing with reason %s (notifyPeer=%v)", t.txID, reason, notifyPeer)

	if notifyPeer {
		isSelf, _ := t.isSelfTransaction()
		if peerID, err := t.peerID(); err == nil && !peerID.IsZero() && !isSelf {
			_ = t.sendParams(peerID, map[txparams.ID][]byte{
				txparams.FailureReason: txparams.PutUint64(uint64(reason)),
			})
		}
	}

	finalStatus := StatusFailed
	if reason == FailureCancelled {
		finalStatus = StatusCancelled
	}
	if err := t.setStatus(finalStatus); err != nil {
		return err
	}
	if err := t.setFailureReason(reason); err != nil {
		return err
	}
	if err := t.st.RollbackTx(t.txID); err != nil {
		return err
	}
	t.gw.OnTxCompleted(t.txID)
	return nil
}

// Resume replays the "recovered transaction" check a freshly constructed
// SimpleTransaction performs on process restart: if both BlindingExcess
// and Offset halves are already present in the bag, the kernel was
// already built before the crash and Update() is safe to call without
// regenerating a new nonce. Resume is read-only: it never mutates the
// bag itself, only logs what it found.
func (t *SimpleTransaction) Resume() error {
	_, hasExcess, err := t.getPoint(txparams.BlindingExcess)
	if err != nil {
		return err
	}
	_, hasOffset, err := t.getScalar(txparams.Offset)
	if err != nil {
		return err
	}
	if hasExcess && hasOffset {
		log.Infof("negotiate: %s: recovered transaction, kernel already built", t.txID)
	}
	return nil
}

func (t *SimpleTransaction) sendParams(peerID address.WalletID, values map[txparams.ID][]byte) error {
	if err := t.st.SetParams(t.txID, values); err != nil {
		return err
	}
	return t.gw.SendTxParams(peerID, ParamUpdate{TxID: t.txID, Values: values})
}

func (t *SimpleTransaction) syncHistoryStatus(status Status) error {
	d, err := t.st.GetTxDescription(t.txID)
	if err != nil {
		return err
	}
	if d == nil {
		return nil
	}
	d.Status = store.HistoryStatus(status)
	d.ModifyTime = time.Now()
	if kernelID, ok, err := t.getBytes(txparams.KernelID); err == nil && ok {
		d.KernelID = kernelID
	}
	return t.st.SaveTxDescription(d)
}

func (t *SimpleTransaction) saveHistory(amount, fee uint64, myID, peerID address.WalletID, isSender bool, status Status, created, modified time.Time) error {
	return t.st.SaveTxDescription(&store.TxDescription{
		TxID:       t.txID,
		Amount:     amount,
		Fee:        fee,
		MyID:       myID,
		PeerID:     peerID,
		IsSender:   isSender,
		Status:     store.HistoryStatus(status),
		CreateTime: created,
		ModifyTime: modified,
	})
}
