// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"sync"

	"github.com/mwallet/mwwallet/address"
	"github.com/mwallet/mwwallet/coin"
)

// ChangeAction describes what happened to an item reported by a
// change-notification callback.
type ChangeAction uint8

const (
	changeAdded ChangeAction = iota
	changeRemoved
	changeUpdated
	changeReset
)

// CoinsChangedCallback is invoked whenever one or more coins are added,
// removed, or updated. The store never reports changeReset for coins: a
// reorg rollback reports each rewound coin as updated.
type CoinsChangedCallback func(action ChangeAction, coins []*coin.Coin)

// TxChangedCallback is invoked whenever a transaction's entry in history
// changes.
type TxChangedCallback func(action ChangeAction, txID coin.TxID)

// SystemStateChangedCallback is invoked whenever the store's notion of the
// chain tip advances or is reset.
type SystemStateChangedCallback func(height uint64, stateID []byte)

// AddressChangedCallback is invoked whenever a wallet address entry is
// added or its metadata is updated.
type AddressChangedCallback func(action ChangeAction, addr *address.WalletAddress)

// SubscriptionHandle identifies a registered callback so the caller can
// later Unsubscribe it.
type SubscriptionHandle uint64

type notifySet struct {
	mu sync.Mutex

	next uint64

	coins     map[uint64]CoinsChangedCallback
	txs       map[uint64]TxChangedCallback
	sysState  map[uint64]SystemStateChangedCallback
	addresses map[uint64]AddressChangedCallback
}

func (n *notifySet) init() {
	if n.coins == nil {
		n.coins = make(map[uint64]CoinsChangedCallback)
		n.txs = make(map[uint64]TxChangedCallback)
		n.sysState = make(map[uint64]SystemStateChangedCallback)
		n.addresses = make(map[uint64]AddressChangedCallback)
	}
}

// SubscribeCoinsChanged registers fn to be called on every coin set
// change, returning a handle for Unsubscribe.
func (s *Store) SubscribeCoinsChanged(fn CoinsChangedCallback) SubscriptionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs.init()
	s.subs.next++
	id := s.subs.next
	s.subs.coins[id] = fn
	return SubscriptionHandle(id)
}

// SubscribeTxChanged registers fn to be called on every history change.
func (s *Store) SubscribeTxChanged(fn TxChangedCallback) SubscriptionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs.init()
	s.subs.next++
	id := s.subs.next
	s.subs.txs[id] = fn
	return SubscriptionHandle(id)
}

// SubscribeSystemStateChanged registers fn to be called whenever the tip
// changes.
func (s *Store) SubscribeSystemStateChanged(fn SystemStateChangedCallback) SubscriptionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs.init()
	s.subs.next++
	id := s.subs.next
	s.subs.sysState[id] = fn
	return SubscriptionHandle(id)
}

// SubscribeAddressChanged registers fn to be called on address changes.
func (s *Store) SubscribeAddressChanged(fn AddressChangedCallback) SubscriptionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs.init()
	s.subs.next++
	id := s.subs.next
	s.subs.addresses[id] = fn
	return SubscriptionHandle(id)
}

// Unsubscribe removes a previously registered callback of any kind. It is
// a no-op if h is not currently registered.
func (s *Store) Unsubscribe(h SubscriptionHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs.init()
	id := uint64(h)
	delete(s.subs.coins, id)
	delete(s.subs.txs, id)
	delete(s.subs.sysState, id)
	delete(s.subs.addresses, id)
}

func (s *Store) notifyCoinsChanged(action ChangeAction, coins ...*coin.Coin) {
	s.mu.Lock()
	cbs := make([]CoinsChangedCallback, 0, len(s.subs.coins))
	for _, cb := range s.subs.coins {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(action, coins)
	}
}

func (s *Store) notifyTxChanged(action ChangeAction, txID coin.TxID) {
	s.mu.Lock()
	cbs := make([]TxChangedCallback, 0, len(s.subs.txs))
	for _, cb := range s.subs.txs {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(action, txID)
	}
}

func (s *Store) notifySystemStateChanged(height uint64, stateID []byte) {
	s.mu.Lock()
	cbs := make([]SystemStateChangedCallback, 0, len(s.subs.sysState))
	for _, cb := range s.subs.sysState {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(height, stateID)
	}
}

func (s *Store) notifyAddressChanged(action ChangeAction, addr *address.WalletAddress) {
	s.mu.Lock()
	cbs := make([]AddressChangedCallback, 0, len(s.subs.addresses))
	for _, cb := range s.subs.addresses {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(action, addr)
	}
}
