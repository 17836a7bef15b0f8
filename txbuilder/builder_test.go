// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mwallet/mwwallet/chainkd"
	"github.com/mwallet/mwwallet/coin"
	"github.com/mwallet/mwwallet/store"
)

func newTestStoreWithFunds(t *testing.T, value uint64) *store.Store {
	t.Helper()
	st, err := store.Create(filepath.Join(t.TempDir(), "wallet.db"), []byte("passphrase"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	firstKid, err := st.AllocateKidRange(1)
	require.NoError(t, err)
	c := &coin.Coin{ID: chainkd.KeyID{Idx: firstKid, Type: chainkd.KeyTypeRegular}, Value: value, Status: coin.StatusAvailable}
	require.NoError(t, st.SaveCoin(c))
	return st
}

func TestSelectInputsCoversAmountAndComputesChange(t *testing.T) {
	st := newTestStoreWithFunds(t, 10000)
	b := New(st, coin.TxID("tx-1"), uuid.New())

	change, err := b.SelectInputs(6000, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(3990), change)
	require.Len(t, b.inputs, 1)
	require.Len(t, b.spentCoins, 1)
}

func TestSelectInputsFailsWhenInsufficientFunds(t *testing.T) {
	st := newTestStoreWithFunds(t, 100)
	b := New(st, coin.TxID("tx-2"), uuid.New())

	_, err := b.SelectInputs(6000, 10)
	require.ErrorIs(t, err, ErrNoInputs)
}

func TestAddOutputPersistsIncomingCoin(t *testing.T) {
	st := newTestStoreWithFunds(t, 0)
	b := New(st, coin.TxID("tx-3"), uuid.New())

	out, err := b.AddOutput(5000, false)
	require.NoError(t, err)
	require.NotEqual(t, chainkd.Point{}, out.Commitment.Point)
	require.Len(t, b.Outputs(), 1)
}

func TestAbortReleasesSelectedCoins(t *testing.T) {
	st := newTestStoreWithFunds(t, 10000)
	session := uuid.New()
	b := New(st, coin.TxID("tx-4"), session)

	_, err := b.SelectInputs(5000, 10)
	require.NoError(t, err)
	require.NoError(t, b.Abort())

	for _, c := range b.spentCoins {
		got, err := st.GetCoin(c.ID)
		require.NoError(t, err)
		require.Nil(t, got.Session)
	}
}

func TestAbortIsNoOpWithoutSelection(t *testing.T) {
	st := newTestStoreWithFunds(t, 0)
	b := New(st, coin.TxID("tx-5"), uuid.New())
	require.NoError(t, b.Abort())
}

// twoPartyExchange drives two Builders through a full sender/receiver
// negotiation and returns the resulting finalized transactions, which
// must be byte-identical.
func twoPartyExchange(t *testing.T) (Transaction, Transaction) {
	t.Helper()

	senderSt := newTestStoreWithFunds(t, 10000)
	receiverSt := newTestStoreWithFunds(t, 0)

	sender := New(senderSt, coin.TxID("tx-exchange"), uuid.New())
	change, err := sender.SelectInputs(4000, 10)
	require.NoError(t, err)
	_, err = sender.AddOutput(change, true)
	require.NoError(t, err)
	require.NoError(t, sender.BuildKernel(0, 0, nil))

	receiver := New(receiverSt, coin.TxID("tx-exchange"), uuid.New())
	_, err = receiver.AddOutput(4000, false)
	require.NoError(t, err)
	require.NoError(t, receiver.BuildKernel(0, 0, nil))

	senderSig := sender.PartialSign(receiver.PublicExcess(), receiver.PublicNonce())
	receiverSig := receiver.PartialSign(sender.PublicExcess(), sender.PublicNonce())

	require.Equal(t, sender.KernelID(), receiver.KernelID())

	require.NoError(t, sender.VerifyPeerSignature(receiverSig, receiver.PublicExcess(), receiver.PublicNonce()))
	require.NoError(t, receiver.VerifyPeerSignature(senderSig, sender.PublicExcess(), sender.PublicNonce()))

	senderTx := sender.Finalize(senderSig, receiverSig, nil, receiver.Outputs(), receiver.offset)
	receiverTx := receiver.Finalize(receiverSig, senderSig, sender.inputs, sender.Outputs(), sender.offset)

	return senderTx, receiverTx
}

func TestTwoPartyExchangeProducesIdenticalTransactions(t *testing.T) {
	senderTx, receiverTx := twoPartyExchange(t)

	require.Equal(t, MarshalInputs(senderTx.Inputs), MarshalInputs(receiverTx.Inputs))
	require.Equal(t, MarshalOutputs(senderTx.Outputs), MarshalOutputs(receiverTx.Outputs))
	require.Equal(t, senderTx.Kernel.ID(), receiverTx.Kernel.ID())
}

func TestVerifyPeerSignatureRejectsTamperedExcess(t *testing.T) {
	senderSt := newTestStoreWithFunds(t, 10000)
	receiverSt := newTestStoreWithFunds(t, 0)

	sender := New(senderSt, coin.TxID("tx-tamper"), uuid.New())
	_, err := sender.SelectInputs(4000, 10)
	require.NoError(t, err)
	require.NoError(t, sender.BuildKernel(0, 0, nil))

	receiver := New(receiverSt, coin.TxID("tx-tamper"), uuid.New())
	_, err = receiver.AddOutput(4000, false)
	require.NoError(t, err)
	require.NoError(t, receiver.BuildKernel(0, 0, nil))

	receiverSig := receiver.PartialSign(sender.PublicExcess(), sender.PublicNonce())

	otherExcess := chainkd.ScalarBaseMult(mustScalar(t))
	err = sender.VerifyPeerSignature(receiverSig, otherExcess, receiver.PublicNonce())
	require.ErrorIs(t, err, ErrInvalidPeerSignature)
}

func mustScalar(t *testing.T) chainkd.Scalar {
	t.Helper()
	s, err := chainkd.GenerateNonceSeed()
	require.NoError(t, err)
	return s
}

func TestBuildKernelRetryReusesPersistedNonceSeed(t *testing.T) {
	st := newTestStoreWithFunds(t, 10000)
	b1 := New(st, coin.TxID("tx-retry"), uuid.New())
	_, err := b1.SelectInputs(1000, 10)
	require.NoError(t, err)
	require.NoError(t, b1.BuildKernel(0, 0, nil))
	seed := b1.NonceSeed()

	b2 := New(st, coin.TxID("tx-retry"), uuid.New())
	require.NoError(t, b2.BuildKernel(0, 0, &seed))

	require.Equal(t, b1.PublicNonce().Bytes(), b2.PublicNonce().Bytes())
}

func TestMarshalUnmarshalInputsRoundTrip(t *testing.T) {
	st := newTestStoreWithFunds(t, 10000)
	b := New(st, coin.TxID("tx-marshal"), uuid.New())
	_, err := b.SelectInputs(1000, 10)
	require.NoError(t, err)

	wire := MarshalInputs(b.inputs)
	got, err := UnmarshalInputs(wire)
	require.NoError(t, err)
	require.Equal(t, MarshalInputs(b.inputs), MarshalInputs(got))
}

func TestUnmarshalInputsRejectsTruncatedBlob(t *testing.T) {
	_, err := UnmarshalInputs([]byte{1, 0, 0})
	require.Error(t, err)
}

func TestUnmarshalOutputsRejectsLengthMismatch(t *testing.T) {
	wire := MarshalOutputs(nil)
	wire[0] = 5
	_, err := UnmarshalOutputs(wire)
	require.Error(t, err)
}

func TestKernelIDStableAcrossSignatureChanges(t *testing.T) {
	k1 := Kernel{Fee: 10, MinHeight: 1, MaxHeight: 2}
	k2 := k1
	k2.Signature = chainkd.Signature{}

	require.Equal(t, k1.ID(), k2.ID())
}

func TestKernelMessageExcludesExcessAndSignature(t *testing.T) {
	excess := chainkd.ScalarBaseMult(mustScalar(t))
	k1 := Kernel{Fee: 10, MinHeight: 1, MaxHeight: 2, Excess: excess}
	k2 := Kernel{Fee: 10, MinHeight: 1, MaxHeight: 2}

	require.Equal(t, k1.Message(), k2.Message())
	require.NotEqual(t, k1.ID(), k2.ID())
}

func TestFinalizeProducesATransactionThatValidates(t *testing.T) {
	senderTx, receiverTx := twoPartyExchange(t)

	require.NoError(t, senderTx.Validate())
	require.NoError(t, receiverTx.Validate())
}

func TestValidateRejectsTamperedOutput(t *testing.T) {
	senderTx, _ := twoPartyExchange(t)

	senderTx.Outputs[0].Commitment.Point = chainkd.ScalarBaseMult(mustScalar(t))
	require.Error(t, senderTx.Validate())
}

func TestValidateRejectsEmptyTransaction(t *testing.T) {
	var tx Transaction
	require.Error(t, tx.Validate())
}

func TestTransactionCanonicalizeIsOrderIndependent(t *testing.T) {
	pa := chainkd.ScalarBaseMult(mustScalar(t))
	pb := chainkd.ScalarBaseMult(mustScalar(t))

	tx1 := Transaction{Outputs: []Output{{Commitment: chainkd.Commitment{Point: pa}}, {Commitment: chainkd.Commitment{Point: pb}}}}
	tx2 := Transaction{Outputs: []Output{{Commitment: chainkd.Commitment{Point: pb}}, {Commitment: chainkd.Commitment{Point: pa}}}}

	tx1.canonicalize()
	tx2.canonicalize()

	require.Equal(t, MarshalOutputs(tx1.Outputs), MarshalOutputs(tx2.Outputs))
}
