// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"github.com/mwallet/mwwallet/coin"
	"github.com/mwallet/mwwallet/txparams"
	"github.com/mwallet/mwwallet/walletdb"
)

// SetParam writes a single parameter value into txID's parameter bag,
// creating the bag's bucket if this is its first parameter. The write is
// committed before this call returns, satisfying the negotiation state
// machine's requirement that a parameter change survive a crash
// immediately after Update() reports success.
func (s *Store) SetParam(txID coin.TxID, id txparams.ID, value []byte) error {
	return s.db.Update(func(tx walletdb.Tx) error {
		root := tx.RootBucket().Bucket(bucketParams)
		bag, err := root.CreateBucketIfNotExists([]byte(txID))
		if err != nil {
			return err
		}
		return bag.Put([]byte{byte(id)}, value)
	})
}

// SetParams writes several parameters for txID atomically.
func (s *Store) SetParams(txID coin.TxID, values map[txparams.ID][]byte) error {
	return s.db.Update(func(tx walletdb.Tx) error {
		root := tx.RootBucket().Bucket(bucketParams)
		bag, err := root.CreateBucketIfNotExists([]byte(txID))
		if err != nil {
			return err
		}
		for id, v := range values {
			if err := bag.Put([]byte{byte(id)}, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetParam reads a single parameter, returning ok=false if it has never
// been set for txID.
func (s *Store) GetParam(txID coin.TxID, id txparams.ID) (value []byte, ok bool, err error) {
	err = s.db.View(func(tx walletdb.Tx) error {
		root := tx.RootBucket().Bucket(bucketParams)
		bag := root.Bucket([]byte(txID))
		if bag == nil {
			return nil
		}
		v := bag.Get([]byte{byte(id)})
		if v != nil {
			value = append([]byte(nil), v...)
			ok = true
		}
		return nil
	})
	return value, ok, err
}

// VisitParams calls fn for every parameter currently set on txID.
func (s *Store) VisitParams(txID coin.TxID, fn func(id txparams.ID, value []byte) bool) error {
	err := s.db.View(func(tx walletdb.Tx) error {
		root := tx.RootBucket().Bucket(bucketParams)
		bag := root.Bucket([]byte(txID))
		if bag == nil {
			return nil
		}
		return bag.ForEach(func(k, v []byte) error {
			if len(k) != 1 {
				return nil
			}
			if !fn(txparams.ID(k[0]), v) {
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

// DeleteParams removes every parameter recorded for txID, used once a
// negotiation has reached a terminal state and its bag is no longer
// needed.
func (s *Store) DeleteParams(txID coin.TxID) error {
	return s.db.Update(func(tx walletdb.Tx) error {
		root := tx.RootBucket().Bucket(bucketParams)
		if root.Bucket([]byte(txID)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(txID))
	})
}

// ListTxIDs returns every transaction ID with at least one stored
// parameter.
func (s *Store) ListTxIDs() ([]coin.TxID, error) {
	var out []coin.TxID
	err := s.db.View(func(tx walletdb.Tx) error {
		root := tx.RootBucket().Bucket(bucketParams)
		return root.ForEach(func(k, v []byte) error {
			if v == nil {
				out = append(out, coin.TxID(k))
			}
			return nil
		})
	})
	return out, err
}
