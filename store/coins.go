// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/mwallet/mwwallet/chainkd"
	"github.com/mwallet/mwwallet/coin"
	"github.com/mwallet/mwwallet/walletdb"
)

// ErrNoInputs is returned by SelectCoins when the available balance of
// Available coins cannot satisfy the requested amount.
var ErrNoInputs = fmt.Errorf("store: insufficient funds for selection")

// SaveCoin persists c, creating or overwriting the entry keyed by its id.
func (s *Store) SaveCoin(c *coin.Coin) error {
	err := s.db.Update(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketCoins)
		return b.Put([]byte(c.Key()), serializeCoin(c))
	})
	if err != nil {
		return err
	}
	s.notifyCoinsChanged(changeUpdated, c)
	return nil
}

// GetCoin looks up a coin by id, returning nil if it is not known.
func (s *Store) GetCoin(id chainkd.KeyID) (*coin.Coin, error) {
	var c *coin.Coin
	err := s.db.View(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketCoins)
		v := b.Get([]byte(coinKey(id)))
		if v == nil {
			return nil
		}
		var err error
		c, err = deserializeCoin(v)
		return err
	})
	return c, err
}

// DeleteCoin removes a coin entirely, used when an unconfirmed creating
// output is rolled back.
func (s *Store) DeleteCoin(id chainkd.KeyID) error {
	key := coinKey(id)
	var removed *coin.Coin
	err := s.db.Update(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketCoins)
		v := b.Get([]byte(key))
		if v != nil {
			removed, _ = deserializeCoin(v)
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return err
	}
	if removed != nil {
		s.notifyCoinsChanged(changeRemoved, removed)
	}
	return nil
}

// VisitCoins calls fn for every coin in the store, stopping early if fn
// returns false.
func (s *Store) VisitCoins(fn func(*coin.Coin) bool) error {
	err := s.db.View(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketCoins)
		return b.ForEach(func(k, v []byte) error {
			c, err := deserializeCoin(v)
			if err != nil {
				return err
			}
			if !fn(c) {
				return errStopVisit
			}
			return nil
		})
	})
	if err == errStopVisit {
		err = nil
	}
	return err
}

// errStopVisit is a sentinel returned from a ForEach callback to stop
// iteration early without surfacing an error to the caller.
var errStopVisit = fmt.Errorf("store: stop visit")

func (s *Store) allCoins() ([]*coin.Coin, error) {
	var out []*coin.Coin
	err := s.VisitCoins(func(c *coin.Coin) bool {
		out = append(out, c)
		return true
	})
	if err == errStopVisit {
		err = nil
	}
	return out, err
}

// SelectCoins chooses a set of Available coins whose combined value is at
// least amount, reserving them under session so a concurrent selection
// cannot double-spend them. Coins are selected largest-first, with ties
// broken by key id: this is an
// unspecified policy decision documented alongside the rest of this
// package's open choices, and it minimizes the number of inputs (and thus
// kernel size) at the cost of worse long-run UTXO fragmentation than a
// smallest-first strategy would give.
func (s *Store) SelectCoins(amount uint64, session uuid.UUID) ([]*coin.Coin, error) {
	all, err := s.allCoins()
	if err != nil {
		return nil, err
	}
	var candidates []*coin.Coin
	for _, c := range all {
		if c.Status == coinAvailableStatus() {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if a.ID.Idx != b.ID.Idx {
			return a.ID.Idx < b.ID.Idx
		}
		if a.ID.SubIdx != b.ID.SubIdx {
			return a.ID.SubIdx < b.ID.SubIdx
		}
		return a.ID.Type < b.ID.Type
	})
	var selected []*coin.Coin
	var total uint64
	for _, c := range candidates {
		if total >= amount {
			break
		}
		selected = append(selected, c)
		total += c.Value
	}
	if total < amount {
		return nil, ErrNoInputs
	}
	sess := session
	for _, c := range selected {
		c.Session = &sess
	}
	if err := s.saveCoins(selected); err != nil {
		return nil, err
	}
	return selected, nil
}

// ReleaseCoins clears the session lock on coins, making them selectable
// again. Used when a transaction negotiation is cancelled or fails before
// the coins are marked Outgoing.
func (s *Store) ReleaseCoins(coins []*coin.Coin) error {
	for _, c := range coins {
		c.Session = nil
	}
	return s.saveCoins(coins)
}

// SaveCoins persists a batch of coins in a single transaction.
func (s *Store) SaveCoins(coins []*coin.Coin) error {
	return s.saveCoins(coins)
}

func (s *Store) saveCoins(coins []*coin.Coin) error {
	err := s.db.Update(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketCoins)
		for _, c := range coins {
			if err := b.Put([]byte(c.Key()), serializeCoin(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range coins {
		s.notifyCoinsChanged(changeUpdated, c)
	}
	return nil
}

func coinAvailableStatus() coin.Status { return coin.StatusAvailable }

func coinKey(id chainkd.KeyID) string {
	return fmt.Sprintf("%d:%d:%d", id.Idx, id.SubIdx, id.Type)
}

func serializeCoin(c *coin.Coin) []byte {
	buf := make([]byte, 0, 96)
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:], c.ID.Idx)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:4], c.ID.SubIdx)
	buf = append(buf, tmp[:4]...)
	buf = append(buf, byte(c.ID.Type))

	binary.LittleEndian.PutUint64(tmp[:], c.Value)
	buf = append(buf, tmp[:]...)
	buf = append(buf, byte(c.Status))

	for _, h := range []uint64{c.CreateHeight, c.MaturityHeight, c.ConfirmHeight, c.LockedHeight} {
		binary.LittleEndian.PutUint64(tmp[:], h)
		buf = append(buf, tmp[:]...)
	}

	buf = appendOptionalTxID(buf, c.CreatingTxID)
	buf = appendOptionalTxID(buf, c.SpendingTxID)

	if c.Session == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		sessionBytes, _ := c.Session.MarshalBinary()
		buf = append(buf, sessionBytes...)
	}
	return buf
}

func appendOptionalTxID(buf []byte, id *coin.TxID) []byte {
	if id == nil {
		return append(buf, 0)
	}
	raw := []byte(*id)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(raw)))
	buf = append(buf, 1)
	buf = append(buf, lenBuf[:]...)
	return append(buf, raw...)
}

func deserializeCoin(b []byte) (*coin.Coin, error) {
	const fixedLen = 8 + 4 + 1 + 8 + 1 + 8*4
	if len(b) < fixedLen {
		return nil, fmt.Errorf("store: truncated coin record")
	}
	c := &coin.Coin{}
	off := 0
	c.ID.Idx = binary.LittleEndian.Uint64(b[off:])
	off += 8
	c.ID.SubIdx = binary.LittleEndian.Uint32(b[off:])
	off += 4
	c.ID.Type = chainkd.KeyType(b[off])
	off++
	c.Value = binary.LittleEndian.Uint64(b[off:])
	off += 8
	c.Status = coin.Status(b[off])
	off++
	heights := []*uint64{&c.CreateHeight, &c.MaturityHeight, &c.ConfirmHeight, &c.LockedHeight}
	for _, h := range heights {
		*h = binary.LittleEndian.Uint64(b[off:])
		off += 8
	}

	var err error
	c.CreatingTxID, off, err = readOptionalTxID(b, off)
	if err != nil {
		return nil, err
	}
	c.SpendingTxID, off, err = readOptionalTxID(b, off)
	if err != nil {
		return nil, err
	}

	if off >= len(b) {
		return nil, fmt.Errorf("store: truncated coin record: missing session flag")
	}
	if b[off] == 1 {
		off++
		if off+16 > len(b) {
			return nil, fmt.Errorf("store: truncated coin record: session")
		}
		var session uuid.UUID
		if err := session.UnmarshalBinary(b[off : off+16]); err != nil {
			return nil, err
		}
		c.Session = &session
	}
	return c, nil
}

func readOptionalTxID(b []byte, off int) (*coin.TxID, int, error) {
	if off >= len(b) {
		return nil, off, fmt.Errorf("store: truncated coin record: txid flag")
	}
	present := b[off]
	off++
	if present == 0 {
		return nil, off, nil
	}
	if off+2 > len(b) {
		return nil, off, fmt.Errorf("store: truncated coin record: txid length")
	}
	n := int(binary.LittleEndian.Uint16(b[off:]))
	off += 2
	if off+n > len(b) {
		return nil, off, fmt.Errorf("store: truncated coin record: txid bytes")
	}
	id := coin.TxID(b[off : off+n])
	off += n
	return &id, off, nil
}
