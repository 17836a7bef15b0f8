// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"github.com/mwallet/mwwallet/walletdb"
)

// AllocateKidRange mints n fresh, never-reused key indices and returns
// the first one; the caller owns [firstKid, firstKid+n).
func (s *Store) AllocateKidRange(n uint64) (firstKid uint64, err error) {
	err = s.db.Update(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketKidRange)
		v := b.Get([]byte(keyNextKid))
		next := decodeUint64(v)
		firstKid = next
		return b.Put([]byte(keyNextKid), encodeUint64(next+n))
	})
	return firstKid, err
}

// SystemState is the store's record of chain-sync progress: the height
// the wallet has processed up to, and an opaque identifier for the block
// at that height used to detect a reorg on resume.
type SystemState struct {
	Height uint64
	ID     []byte
}

// GetSystemState returns the store's last-recorded chain position.
func (s *Store) GetSystemState() (SystemState, error) {
	var st SystemState
	err := s.db.View(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketSysState)
		h := b.Get([]byte("height"))
		if h != nil {
			st.Height = decodeUint64(h)
		}
		id := b.Get([]byte(keySysStateID))
		if id != nil {
			st.ID = append([]byte(nil), id...)
		}
		return nil
	})
	return st, err
}

// SetSystemState persists the wallet's chain position and notifies
// subscribers.
func (s *Store) SetSystemState(st SystemState) error {
	err := s.db.Update(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketSysState)
		if err := b.Put([]byte("height"), encodeUint64(st.Height)); err != nil {
			return err
		}
		return b.Put([]byte(keySysStateID), st.ID)
	})
	if err != nil {
		return err
	}
	s.notifySystemStateChanged(st.Height, st.ID)
	return nil
}

// SaveHeader records a block header's id at height, forming the chain of
// trust a kernel proof's height is validated against.
func (s *Store) SaveHeader(height uint64, id []byte) error {
	return s.db.Update(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketHeaders)
		return b.Put(encodeUint64(height), id)
	})
}

// GetHeader returns the header id recorded at height, or nil if none is
// known.
func (s *Store) GetHeader(height uint64) ([]byte, error) {
	var id []byte
	err := s.db.View(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketHeaders)
		v := b.Get(encodeUint64(height))
		if v != nil {
			id = append([]byte(nil), v...)
		}
		return nil
	})
	return id, err
}

// PruneHeaders discards every header at or below height, keeping the
// history bucket from growing without bound once those heights can no
// longer be reorged past.
func (s *Store) PruneHeaders(height uint64) error {
	var toDelete [][]byte
	err := s.db.View(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketHeaders)
		return b.ForEach(func(k, v []byte) error {
			if len(k) == 8 && decodeUint64(k) <= height {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	if len(toDelete) == 0 {
		return nil
	}
	return s.db.Update(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketHeaders)
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
