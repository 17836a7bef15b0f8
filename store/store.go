// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package store implements the keyed persistence layer described for the
// wallet: coins, addresses, the per-transaction parameter bag, transaction
// history, block-header history, and key-id allocation, plus a
// change-notification fan-out. It is the only owner of this state; every
// other package reaches it through *Store.
package store

import (
	"fmt"
	"sync"

	"github.com/mwallet/mwwallet/chainkd"
	"github.com/mwallet/mwwallet/walletdb"
	"github.com/mwallet/mwwallet/walletdb/bdb"
)

var (
	bucketCoins      = []byte("coins")
	bucketAddresses  = []byte("addresses")
	bucketParams     = []byte("txparams")
	bucketHistory    = []byte("txhistory")
	bucketHeaders    = []byte("headers")
	bucketSysState   = []byte("sysstate")
	bucketKidRange   = []byte("kidrange")
)

const keyMasterSalt = "mastersalt"
const keyNextKid = "nextkid"
const keySysStateID = "id"

// Store is the wallet's keyed persistence layer.
type Store struct {
	db     walletdb.DB
	master *chainkd.MasterKey

	mu   sync.Mutex
	subs notifySet
}

// Create initializes a brand-new store file at path under passphrase, and
// provisions a fresh master key.
func Create(path string, passphrase []byte) (*Store, error) {
	db, err := bdb.Create(path, passphrase)
	if err != nil {
		return nil, fmt.Errorf("store: create: %w", err)
	}
	master, err := chainkd.NewMasterKey(passphrase)
	if err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db, master: master}
	err = db.Update(func(tx walletdb.Tx) error {
		root := tx.RootBucket()
		for _, name := range [][]byte{bucketCoins, bucketAddresses, bucketParams,
			bucketHistory, bucketHeaders, bucketSysState, bucketKidRange} {
			if _, err := root.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		kidBucket, err := root.CreateBucketIfNotExists(bucketKidRange)
		if err != nil {
			return err
		}
		if err := kidBucket.Put([]byte(keyNextKid), encodeUint64(0)); err != nil {
			return err
		}
		sysBucket, err := root.CreateBucketIfNotExists(bucketSysState)
		if err != nil {
			return err
		}
		return sysBucket.Put([]byte(keyMasterSalt), master.Salt())
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: provision buckets: %w", err)
	}
	return s, nil
}

// Open opens an existing store file at path under passphrase.
func Open(path string, passphrase []byte) (*Store, error) {
	db, err := bdb.Open(path, passphrase)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	var salt []byte
	err = db.View(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketSysState)
		if b == nil {
			return fmt.Errorf("store: missing sysstate bucket")
		}
		salt = append([]byte(nil), b.Get([]byte(keyMasterSalt))...)
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	master, err := chainkd.OpenMasterKey(passphrase, salt)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, master: master}, nil
}

// Close releases the store's file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ChangePassword re-encrypts the store under newPassphrase. Either the
// whole store uses the new password on next open, or the operation fails
// and the old password still opens it, per the underlying database's
// Rekey guarantee.
func (s *Store) ChangePassword(newPassphrase []byte) error {
	if err := s.db.Rekey(newPassphrase); err != nil {
		return err
	}
	master, err := chainkd.NewMasterKey(newPassphrase)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.master = master
	s.mu.Unlock()
	return s.db.Update(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketSysState)
		return b.Put([]byte(keyMasterSalt), master.Salt())
	})
}

// MasterKeyHandle returns the store's master key-derivation handle.
func (s *Store) MasterKeyHandle() *chainkd.MasterKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master
}

// DeriveChildKey derives the child key for id from the master handle.
func (s *Store) DeriveChildKey(id chainkd.KeyID) (chainkd.ChildKey, error) {
	return s.MasterKeyHandle().DeriveChild(id)
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
