// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package negotiate

import (
	"path/filepath"
	"testing"

	"github.com/mwallet/mwwallet/address"
	"github.com/mwallet/mwwallet/chainkd"
	"github.com/mwallet/mwwallet/coin"
	"github.com/mwallet/mwwallet/store"
	"github.com/mwallet/mwwallet/txbuilder"
	"github.com/mwallet/mwwallet/txparams"
)

// party bundles one side's store with the wallet id it is known to its
// peer under and the SimpleTransaction driving its half of a negotiation.
// tx is nil until the first message arrives (receiver) or InitSender runs
// (sender).
type party struct {
	st *store.Store
	id address.WalletID
	tx *SimpleTransaction

	// addressKid is the key-id this party signs payment confirmations
	// with; only meaningful on the receiving side.
	addressKid uint64
}

// loopbackGateway is the in-process Gateway two SimpleTransactions talk to
// each other through directly, with no wire encoding and no real chain:
// SendTxParams applies values straight into the peer's bag and drives its
// Update, and RegisterTx/ConfirmKernel synthesize an instant node response
// rather than waiting on anything external.
type loopbackGateway struct {
	self *party
	peer *party

	// omitProtoVersion simulates a pre-v1 sender whose invitation never
	// carried PeerProtoVersion, so the receiver takes the
	// StateInvitationConfirmation wait-for-registration-notice branch
	// instead of jumping straight to StateKernelConfirmation.
	omitProtoVersion bool

	// tamperPeerSignature flips a byte of PeerSignature on its way through
	// this gateway, simulating a corrupted or forged signature arriving at
	// the other party.
	tamperPeerSignature bool

	// tip/hasTip back GetTip; zero value reports no known tip, matching
	// the original all-happy-path behavior.
	tip    ChainTip
	hasTip bool

	// expireAfterInvitation flips hasTip on once this gateway has sent its
	// first message, simulating a chain tip that advances past MaxHeight
	// while the invitation is in flight to the peer. Since the whole
	// negotiation cascades through reentrant Update() calls inside a
	// single top-level call, this is the only way to make the expiry
	// check trip on a later step instead of before the transaction's
	// input is even reserved.
	expireAfterInvitation bool
}

func (g *loopbackGateway) SendTxParams(_ address.WalletID, msg ParamUpdate) error {
	if g.expireAfterInvitation {
		g.hasTip = true
	}
	if g.tamperPeerSignature {
		if sig, ok := msg.Values[txparams.PeerSignature]; ok {
			tampered := append([]byte{}, sig...)
			tampered[0] ^= 0xff
			values := make(map[txparams.ID][]byte, len(msg.Values))
			for id, v := range msg.Values {
				values[id] = v
			}
			values[txparams.PeerSignature] = tampered
			msg = ParamUpdate{TxID: msg.TxID, Values: values}
		}
	}
	if g.peer.tx == nil {
		if g.omitProtoVersion {
			values := make(map[txparams.ID][]byte, len(msg.Values))
			for id, v := range msg.Values {
				if id != txparams.PeerProtoVersion {
					values[id] = v
				}
			}
			msg = ParamUpdate{TxID: msg.TxID, Values: values}
		}
		tx, err := InitReceiver(g.peer.st, &loopbackGateway{self: g.peer, peer: g.self, omitProtoVersion: g.omitProtoVersion, tamperPeerSignature: g.tamperPeerSignature}, g.peer.id, g.self.id, g.peer.addressKid, msg)
		if err != nil {
			return err
		}
		g.peer.tx = tx
		return g.peer.tx.Update()
	}
	if err := g.peer.st.SetParams(msg.TxID, msg.Values); err != nil {
		return err
	}
	return g.peer.tx.Update()
}

func (g *loopbackGateway) RegisterTx(txID coin.TxID, _ txbuilder.Transaction) error {
	if err := g.self.st.SetParam(txID, txparams.TransactionRegistered, txparams.PutBool(true)); err != nil {
		return err
	}
	return g.self.tx.Update()
}

const loopbackProofHeight = 1000

func (g *loopbackGateway) ConfirmKernel(txID coin.TxID, _ txbuilder.Kernel) error {
	if err := g.self.st.SetParam(txID, txparams.KernelProofHeight, txparams.PutUint64(loopbackProofHeight)); err != nil {
		return err
	}
	if g.peer.tx != nil {
		if err := g.peer.st.SetParam(txID, txparams.KernelProofHeight, txparams.PutUint64(loopbackProofHeight)); err != nil {
			return err
		}
	}
	if err := g.self.tx.Update(); err != nil {
		return err
	}
	if g.peer.tx != nil {
		return g.peer.tx.Update()
	}
	return nil
}

func (g *loopbackGateway) GetTip() (ChainTip, bool) { return g.tip, g.hasTip }

func (g *loopbackGateway) OnTxCompleted(coin.TxID) {}

// newParty opens a fresh store at dir/name.db, allocates one key id for an
// owned coin and one for the party's receiving address, and derives the
// address's real WalletID from the store's own master key so that
// payment-confirmation signatures verify against the identity the peer is
// actually told about.
func newParty(t *testing.T, dir, name string) *party {
	t.Helper()
	st, err := store.Create(filepath.Join(dir, name+".db"), []byte("passphrase-"+name))
	if err != nil {
		t.Fatalf("create store %s: %v", name, err)
	}
	t.Cleanup(func() { st.Close() })

	firstKid, err := st.AllocateKidRange(2)
	if err != nil {
		t.Fatalf("allocate kid range: %v", err)
	}
	addressKid := firstKid + 1

	child, err := st.DeriveChildKey(chainkd.KeyID{Idx: addressKid})
	if err != nil {
		t.Fatalf("derive address key: %v", err)
	}
	pub := child.PublicPoint().Bytes()
	var id address.WalletID
	copy(id[:], pub[1:])

	return &party{st: st, id: id, addressKid: addressKid}
}

// fundCoin gives a party one Available coin of value under key-id kid.
func fundCoin(t *testing.T, p *party, kid, value uint64) {
	t.Helper()
	c := &coin.Coin{
		ID:     chainkd.KeyID{Idx: kid},
		Value:  value,
		Status: coin.StatusAvailable,
	}
	if err := p.st.SaveCoin(c); err != nil {
		t.Fatalf("fund coin: %v", err)
	}
}

// TestLoopbackCompletesEndToEnd wires a sender and receiver together
// through loopbackGateway and drives the whole negotiation from a single
// Update call on the sender, the way the reentrant Update chain is meant
// to cascade: invitation, peer confirmation, registration, kernel proof.
func TestLoopbackCompletesEndToEnd(t *testing.T) {
	dir := t.TempDir()
	sender := newParty(t, dir, "sender")
	receiver := newParty(t, dir, "receiver")

	fundCoin(t, sender, sender.addressKid+100, 8000)

	const amount = 5000
	const fee = 100

	senderGw := &loopbackGateway{self: sender, peer: receiver}
	senderTx, err := InitSender(sender.st, senderGw, sender.id, receiver.id, amount, fee, 0, 0)
	if err != nil {
		t.Fatalf("init sender: %v", err)
	}
	sender.tx = senderTx

	if err := sender.tx.Update(); err != nil {
		t.Fatalf("drive negotiation: %v", err)
	}

	if receiver.tx == nil {
		t.Fatalf("receiver side never started")
	}

	senderStatus, err := sender.tx.getStatus()
	if err != nil {
		t.Fatalf("read sender status: %v", err)
	}
	if senderStatus != StatusCompleted {
		t.Fatalf("sender status = %s, want Completed", senderStatus)
	}

	receiverStatus, err := receiver.tx.getStatus()
	if err != nil {
		t.Fatalf("read receiver status: %v", err)
	}
	if receiverStatus != StatusCompleted {
		t.Fatalf("receiver status = %s, want Completed", receiverStatus)
	}

	var receiverGotCoin bool
	err = receiver.st.VisitCoins(func(c *coin.Coin) bool {
		if c.CreatingTxID != nil && *c.CreatingTxID == senderTx.TxID() && c.Value == amount {
			receiverGotCoin = c.Status == coin.StatusAvailable
		}
		return true
	})
	if err != nil {
		t.Fatalf("visit receiver coins: %v", err)
	}
	if !receiverGotCoin {
		t.Fatalf("receiver never recorded the incoming payment output")
	}

	var senderSpentInput bool
	err = sender.st.VisitCoins(func(c *coin.Coin) bool {
		if c.SpendingTxID != nil && *c.SpendingTxID == senderTx.TxID() && c.Status == coin.StatusSpent {
			senderSpentInput = true
		}
		return true
	})
	if err != nil {
		t.Fatalf("visit sender coins: %v", err)
	}
	if !senderSpentInput {
		t.Fatalf("sender never confirmed its spent input")
	}
}

// TestLoopbackPreV1PeerCompletesViaRegistrationNotice drives a negotiation
// where the sender's invitation omits PeerProtoVersion, simulating a
// pre-v1 peer. The receiver must park in StateInvitationConfirmation
// until the sender's onTransactionRegistered step notifies it that the
// transaction registered, rather than getting stuck there forever.
func TestLoopbackPreV1PeerCompletesViaRegistrationNotice(t *testing.T) {
	dir := t.TempDir()
	sender := newParty(t, dir, "sender")
	receiver := newParty(t, dir, "receiver")

	fundCoin(t, sender, sender.addressKid+100, 8000)

	const amount = 5000
	const fee = 100

	senderGw := &loopbackGateway{self: sender, peer: receiver, omitProtoVersion: true}
	senderTx, err := InitSender(sender.st, senderGw, sender.id, receiver.id, amount, fee, 0, 0)
	if err != nil {
		t.Fatalf("init sender: %v", err)
	}
	sender.tx = senderTx

	if err := sender.tx.Update(); err != nil {
		t.Fatalf("drive negotiation: %v", err)
	}

	if receiver.tx == nil {
		t.Fatalf("receiver side never started")
	}

	receiverState, err := receiver.tx.getState()
	if err != nil {
		t.Fatalf("read receiver state: %v", err)
	}
	if receiverState != StateKernelConfirmation {
		t.Fatalf("receiver state = %s, want KernelConfirmation (registration notice never arrived)", receiverState)
	}

	senderStatus, err := sender.tx.getStatus()
	if err != nil {
		t.Fatalf("read sender status: %v", err)
	}
	if senderStatus != StatusCompleted {
		t.Fatalf("sender status = %s, want Completed", senderStatus)
	}

	receiverStatus, err := receiver.tx.getStatus()
	if err != nil {
		t.Fatalf("read receiver status: %v", err)
	}
	if receiverStatus != StatusCompleted {
		t.Fatalf("receiver status = %s, want Completed", receiverStatus)
	}
}

// TestLoopbackInvalidPeerSignatureFailsAndRollsBackInputs drives a
// negotiation where the receiver's partial signature is tampered with
// before the sender verifies it, and checks the documented failure
// contract: Failed/InvalidPeerSignature, the peer notified, and the
// sender's reserved input released back to Available instead of staying
// locked.
func TestLoopbackInvalidPeerSignatureFailsAndRollsBackInputs(t *testing.T) {
	dir := t.TempDir()
	sender := newParty(t, dir, "sender")
	receiver := newParty(t, dir, "receiver")

	fundCoin(t, sender, sender.addressKid+100, 8000)

	const amount = 5000
	const fee = 100

	// tamperPeerSignature flips a byte of the receiver's partial signature
	// as it travels back to the sender, simulating corruption or forgery
	// in transit; the sender's single Update() call cascades through the
	// whole exchange, so the tampering has to happen at the transport
	// seam rather than between two separate Update() calls.
	senderGw := &loopbackGateway{self: sender, peer: receiver, tamperPeerSignature: true}
	senderTx, err := InitSender(sender.st, senderGw, sender.id, receiver.id, amount, fee, 0, 0)
	if err != nil {
		t.Fatalf("init sender: %v", err)
	}
	sender.tx = senderTx

	if err := sender.tx.Update(); err != nil {
		t.Fatalf("drive negotiation: %v", err)
	}
	if receiver.tx == nil {
		t.Fatalf("receiver side never started")
	}

	status, err := sender.tx.getStatus()
	if err != nil {
		t.Fatalf("read sender status: %v", err)
	}
	if status != StatusFailed {
		t.Fatalf("sender status = %s, want Failed", status)
	}
	reason, ok, err := sender.tx.getFailureReason()
	if err != nil {
		t.Fatalf("read failure reason: %v", err)
	}
	if !ok || reason != FailureInvalidPeerSignature {
		t.Fatalf("failure reason = %s (ok=%v), want FailureInvalidPeerSignature", reason, ok)
	}

	receiverReason, ok, err := receiver.tx.getFailureReason()
	if err != nil {
		t.Fatalf("read receiver failure reason: %v", err)
	}
	if !ok || receiverReason != FailureInvalidPeerSignature {
		t.Fatalf("receiver never learned of the failure (ok=%v, reason=%s)", ok, receiverReason)
	}

	var inputReleased bool
	err = sender.st.VisitCoins(func(c *coin.Coin) bool {
		if c.SpendingTxID == nil && c.Status == coin.StatusAvailable && c.Value == 8000 {
			inputReleased = true
		}
		return true
	})
	if err != nil {
		t.Fatalf("visit sender coins: %v", err)
	}
	if !inputReleased {
		t.Fatalf("sender's reserved input was never rolled back to Available")
	}
}

// TestLoopbackExpiryFailsAndRollsBackInputs drives a negotiation whose
// sender sees a chain tip past MaxHeight on its next Update, and checks
// it fails with TransactionExpired, notifies the peer, and rolls its
// reserved input back to Available.
func TestLoopbackExpiryFailsAndRollsBackInputs(t *testing.T) {
	dir := t.TempDir()
	sender := newParty(t, dir, "sender")
	receiver := newParty(t, dir, "receiver")

	fundCoin(t, sender, sender.addressKid+100, 8000)

	const amount = 5000
	const fee = 100
	const maxHeight = 500

	// expireAfterInvitation lets the invitation actually go out and reserve
	// the sender's input before the tip trips past maxHeight, rather than
	// failing before there's anything to roll back: the whole negotiation
	// cascades through reentrant Update() calls inside this one top-level
	// call, so the tip has to flip partway through rather than before it.
	senderGw := &loopbackGateway{self: sender, peer: receiver, tip: ChainTip{Height: maxHeight + 1}, expireAfterInvitation: true}
	senderTx, err := InitSender(sender.st, senderGw, sender.id, receiver.id, amount, fee, 0, maxHeight)
	if err != nil {
		t.Fatalf("init sender: %v", err)
	}
	sender.tx = senderTx

	if err := sender.tx.Update(); err != nil {
		t.Fatalf("drive negotiation: %v", err)
	}
	if receiver.tx == nil {
		t.Fatalf("receiver side never started")
	}

	status, err := sender.tx.getStatus()
	if err != nil {
		t.Fatalf("read sender status: %v", err)
	}
	if status != StatusFailed {
		t.Fatalf("sender status = %s, want Failed", status)
	}
	reason, ok, err := sender.tx.getFailureReason()
	if err != nil {
		t.Fatalf("read failure reason: %v", err)
	}
	if !ok || reason != FailureTransactionExpired {
		t.Fatalf("failure reason = %s (ok=%v), want FailureTransactionExpired", reason, ok)
	}

	receiverReason, ok, err := receiver.tx.getFailureReason()
	if err != nil {
		t.Fatalf("read receiver failure reason: %v", err)
	}
	if !ok || receiverReason != FailureTransactionExpired {
		t.Fatalf("receiver never learned of the expiry (ok=%v, reason=%s)", ok, receiverReason)
	}

	var inputReleased bool
	err = sender.st.VisitCoins(func(c *coin.Coin) bool {
		if c.SpendingTxID == nil && c.Status == coin.StatusAvailable && c.Value == 8000 {
			inputReleased = true
		}
		return true
	})
	if err != nil {
		t.Fatalf("visit sender coins: %v", err)
	}
	if !inputReleased {
		t.Fatalf("sender's reserved input was never rolled back to Available")
	}
}

// selfGateway drives a single party's own SimpleTransaction the way
// loopbackGateway drives two, except there is only ever one side: a
// self-transaction never sends anything to a peer, so SendTxParams fails
// the test outright if it is ever called.
type selfGateway struct {
	t    *testing.T
	self *party
}

func (g *selfGateway) SendTxParams(address.WalletID, ParamUpdate) error {
	g.t.Fatalf("self-transaction must never exchange parameters with a peer")
	return nil
}

func (g *selfGateway) RegisterTx(txID coin.TxID, _ txbuilder.Transaction) error {
	if err := g.self.st.SetParam(txID, txparams.TransactionRegistered, txparams.PutBool(true)); err != nil {
		return err
	}
	return g.self.tx.Update()
}

func (g *selfGateway) ConfirmKernel(txID coin.TxID, _ txbuilder.Kernel) error {
	if err := g.self.st.SetParam(txID, txparams.KernelProofHeight, txparams.PutUint64(loopbackProofHeight)); err != nil {
		return err
	}
	return g.self.tx.Update()
}

func (g *selfGateway) GetTip() (ChainTip, bool) { return ChainTip{}, false }

func (g *selfGateway) OnTxCompleted(coin.TxID) {}

// TestSelfTransactionSkipsPeerExchange drives a transaction whose peer
// address is one of the sender's own, saved with a non-zero OwnID, and
// checks it completes using a single Builder and without ever calling
// SendTxParams.
func TestSelfTransactionSkipsPeerExchange(t *testing.T) {
	dir := t.TempDir()
	wallet := newParty(t, dir, "wallet")

	fundCoin(t, wallet, wallet.addressKid+200, 8000)

	ownAddr := &address.WalletAddress{ID: wallet.id, OwnID: wallet.addressKid}
	if err := wallet.st.SaveAddress(ownAddr); err != nil {
		t.Fatalf("save own address: %v", err)
	}

	const amount = 3000
	const fee = 50

	gw := &selfGateway{t: t, self: wallet}
	tx, err := InitSender(wallet.st, gw, wallet.id, wallet.id, amount, fee, 0, 0)
	if err != nil {
		t.Fatalf("init sender: %v", err)
	}
	wallet.tx = tx

	if err := tx.Update(); err != nil {
		t.Fatalf("drive self-transaction: %v", err)
	}

	status, err := tx.getStatus()
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != StatusCompleted {
		t.Fatalf("status = %s, want Completed", status)
	}

	var gotPaymentOutput bool
	err = wallet.st.VisitCoins(func(c *coin.Coin) bool {
		if c.CreatingTxID != nil && *c.CreatingTxID == tx.TxID() && c.Value == amount {
			gotPaymentOutput = c.Status == coin.StatusAvailable
		}
		return true
	})
	if err != nil {
		t.Fatalf("visit coins: %v", err)
	}
	if !gotPaymentOutput {
		t.Fatalf("self-transaction never recorded its own payment output as available")
	}
}

// TestLoopbackInsufficientFunds checks that a sender with no usable coins
// fails fast with FailureNoInputs instead of ever sending an invitation.
func TestLoopbackInsufficientFunds(t *testing.T) {
	dir := t.TempDir()
	sender := newParty(t, dir, "sender")
	receiver := newParty(t, dir, "receiver")

	senderGw := &loopbackGateway{self: sender, peer: receiver}
	senderTx, err := InitSender(sender.st, senderGw, sender.id, receiver.id, 5000, 100, 0, 0)
	if err != nil {
		t.Fatalf("init sender: %v", err)
	}
	sender.tx = senderTx

	if err := sender.tx.Update(); err != nil {
		t.Fatalf("drive negotiation: %v", err)
	}

	status, err := sender.tx.getStatus()
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != StatusFailed {
		t.Fatalf("status = %s, want Failed", status)
	}
	reason, ok, err := sender.tx.getFailureReason()
	if err != nil {
		t.Fatalf("read failure reason: %v", err)
	}
	if !ok || reason != FailureNoInputs {
		t.Fatalf("failure reason = %s (ok=%v), want FailureNoInputs", reason, ok)
	}
	if receiver.tx != nil {
		t.Fatalf("receiver should never have been contacted")
	}
}
