// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwallet/mwwallet/coin"
)

func TestRollbackTxDeletesCreatedOutputsAndReleasesSpentInputs(t *testing.T) {
	st := newTestStore(t)
	txID := coin.TxID("tx-rollback")

	created := newCoin(t, st, 500, coin.StatusIncoming)
	created.MarkCreating(txID)
	require.NoError(t, st.SaveCoin(created))

	spent := newCoin(t, st, 1000, coin.StatusOutgoing)
	spent.MarkSpending(txID)
	require.NoError(t, st.SaveCoin(spent))

	unrelated := newCoin(t, st, 1, coin.StatusAvailable)
	require.NoError(t, st.SaveCoin(unrelated))

	require.NoError(t, st.RollbackTx(txID))

	gotCreated, err := st.GetCoin(created.ID)
	require.NoError(t, err)
	require.Nil(t, gotCreated, "a coin this tx was creating must be deleted on rollback")

	gotSpent, err := st.GetCoin(spent.ID)
	require.NoError(t, err)
	require.Equal(t, coin.StatusAvailable, gotSpent.Status)
	require.Nil(t, gotSpent.SpendingTxID)

	gotUnrelated, err := st.GetCoin(unrelated.ID)
	require.NoError(t, err)
	require.Equal(t, coin.StatusAvailable, gotUnrelated.Status)
}

func TestRollbackConfirmedUTXORewindsAboveHeight(t *testing.T) {
	st := newTestStore(t)

	stillGood := newCoin(t, st, 100, coin.StatusAvailable)
	stillGood.ConfirmHeight = 10
	require.NoError(t, st.SaveCoin(stillGood))

	reorgedOut := newCoin(t, st, 200, coin.StatusMaturing)
	reorgedOut.ConfirmHeight = 20
	reorgedOut.MaturityHeight = 25
	require.NoError(t, st.SaveCoin(reorgedOut))

	require.NoError(t, st.RollbackConfirmedUTXO(15))

	gotGood, err := st.GetCoin(stillGood.ID)
	require.NoError(t, err)
	require.Equal(t, coin.StatusAvailable, gotGood.Status)

	gotReorged, err := st.GetCoin(reorgedOut.ID)
	require.NoError(t, err)
	require.Equal(t, coin.StatusIncoming, gotReorged.Status)
	require.Equal(t, uint64(0), gotReorged.ConfirmHeight)
	require.Equal(t, uint64(0), gotReorged.MaturityHeight)
}

func TestRollbackConfirmedUTXONoOpWhenNothingAffected(t *testing.T) {
	st := newTestStore(t)
	c := newCoin(t, st, 100, coin.StatusAvailable)
	c.ConfirmHeight = 5
	require.NoError(t, st.SaveCoin(c))

	require.NoError(t, st.RollbackConfirmedUTXO(100))

	got, err := st.GetCoin(c.ID)
	require.NoError(t, err)
	require.Equal(t, coin.StatusAvailable, got.Status)
}
