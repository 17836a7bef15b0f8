// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mwallet/mwwallet/coin"
)

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	st := newTestStore(t)
	var calls int
	h := st.SubscribeCoinsChanged(func(action ChangeAction, coins []*coin.Coin) {
		calls++
	})

	require.NoError(t, st.SaveCoin(newCoin(t, st, 1, coin.StatusAvailable)))
	require.Equal(t, 1, calls)

	st.Unsubscribe(h)
	require.NoError(t, st.SaveCoin(newCoin(t, st, 2, coin.StatusAvailable)))
	require.Equal(t, 1, calls, "callback must not fire again after Unsubscribe")
}

func TestUnsubscribeUnknownHandleIsNoOp(t *testing.T) {
	st := newTestStore(t)
	require.NotPanics(t, func() { st.Unsubscribe(SubscriptionHandle(999)) })
}

func TestMultipleSubscribersAllReceiveNotification(t *testing.T) {
	st := newTestStore(t)
	var a, b int
	st.SubscribeCoinsChanged(func(action ChangeAction, coins []*coin.Coin) { a++ })
	st.SubscribeCoinsChanged(func(action ChangeAction, coins []*coin.Coin) { b++ })

	require.NoError(t, st.SaveCoin(newCoin(t, st, 1, coin.StatusAvailable)))
	require.Equal(t, 1, a)
	require.Equal(t, 1, b)
}

func TestSubscriptionHandlesAreIndependentAcrossCallbackKinds(t *testing.T) {
	st := newTestStore(t)
	var coinsFired, txFired bool
	st.SubscribeCoinsChanged(func(action ChangeAction, coins []*coin.Coin) { coinsFired = true })
	st.SubscribeTxChanged(func(action ChangeAction, txID coin.TxID) { txFired = true })

	require.NoError(t, st.SaveCoin(newCoin(t, st, 1, coin.StatusAvailable)))
	require.True(t, coinsFired)
	require.False(t, txFired)
}
