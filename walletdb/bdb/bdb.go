// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bdb implements walletdb.DB on top of go.etcd.io/bbolt, with
// values sealed under a passphrase-derived key so that the file on disk
// is opaque without the wallet's passphrase.
package bdb

import (
	"fmt"
	"os"

	"github.com/mwallet/mwwallet/internal/secretkey"
	"github.com/mwallet/mwwallet/walletdb"
	bolt "go.etcd.io/bbolt"
)

const paramsKeyName = "__bdb_secretkey_params__"

// metaBucketName names the bucket holding bookkeeping that must never itself be sealed (the
// secretkey parameters needed to derive the key that seals everything
// else).
var metaBucketName = []byte("__meta__")

type db struct {
	bolt *bolt.DB
	key  *secretkey.Key
}

// Create initializes a new database file at path, deriving a fresh
// symmetric key from passphrase.
func Create(path string, passphrase []byte) (walletdb.DB, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("bdb: %s already exists", path)
	}
	bb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("bdb: open: %w", err)
	}
	key, err := secretkey.New(passphrase)
	if err != nil {
		bb.Close()
		return nil, err
	}
	err = bb.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucketName)
		if err != nil {
			return err
		}
		return b.Put([]byte(paramsKeyName), key.Marshal())
	})
	if err != nil {
		bb.Close()
		return nil, fmt.Errorf("bdb: persist key params: %w", err)
	}
	return &db{bolt: bb, key: key}, nil
}

// Open opens an existing database file at path, deriving the symmetric
// key from passphrase and validating it against the stored check value.
func Open(path string, passphrase []byte) (walletdb.DB, error) {
	bb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("bdb: open: %w", err)
	}
	var paramsBlob []byte
	err = bb.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucketName)
		if b == nil {
			return fmt.Errorf("bdb: missing meta bucket")
		}
		v := b.Get([]byte(paramsKeyName))
		if v == nil {
			return fmt.Errorf("bdb: missing key params")
		}
		paramsBlob = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		bb.Close()
		return nil, err
	}
	key, err := secretkey.Unmarshal(paramsBlob)
	if err != nil {
		bb.Close()
		return nil, err
	}
	if err := key.DeriveKey(passphrase); err != nil {
		bb.Close()
		return nil, err
	}
	return &db{bolt: bb, key: key}, nil
}

func (d *db) Update(fn func(walletdb.Tx) error) error {
	return d.bolt.Update(func(btx *bolt.Tx) error {
		return fn(&tx{btx: btx, key: d.key})
	})
}

func (d *db) View(fn func(walletdb.Tx) error) error {
	return d.bolt.View(func(btx *bolt.Tx) error {
		return fn(&tx{btx: btx, key: d.key})
	})
}

// Rekey re-derives a new symmetric key from newPassphrase and, within a
// single bbolt write transaction, re-seals every value currently in the
// database under it. Because the write transaction either commits in
// full or not at all, this is atomic: a failure partway through leaves
// the old key and old ciphertext untouched on disk.
func (d *db) Rekey(newPassphrase []byte) error {
	newKey, err := secretkey.New(newPassphrase)
	if err != nil {
		return err
	}
	err = d.bolt.Update(func(btx *bolt.Tx) error {
		return btx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if string(name) == string(metaBucketName) {
				return b.Put([]byte(paramsKeyName), newKey.Marshal())
			}
			return reseal(b, d.key, newKey)
		})
	})
	if err != nil {
		return fmt.Errorf("bdb: rekey: %w", err)
	}
	d.key.Zero()
	d.key = newKey
	return nil
}

func reseal(b *bolt.Bucket, oldKey, newKey *secretkey.Key) error {
	type kv struct{ k, v []byte }
	var pending []kv
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v == nil {
			continue // nested bucket; recursed into separately below
		}
		plain, err := oldKey.Open(v)
		if err != nil {
			return err
		}
		sealed, err := newKey.Seal(plain)
		if err != nil {
			return err
		}
		pending = append(pending, kv{append([]byte(nil), k...), sealed})
	}
	for _, e := range pending {
		if err := b.Put(e.k, e.v); err != nil {
			return err
		}
	}
	return b.ForEachBucket(func(name []byte) error {
		nested := b.Bucket(name)
		return reseal(nested, oldKey, newKey)
	})
}

func (d *db) Close() error {
	d.key.Zero()
	return d.bolt.Close()
}

type tx struct {
	btx *bolt.Tx
	key *secretkey.Key
}

func (t *tx) RootBucket() walletdb.Bucket {
	// bolt is left nil: the root has no *bolt.Bucket of its own, only
	// the top-level named buckets reachable through (*bolt.Tx).Bucket.
	return &bucket{btx: t.btx, bolt: nil, key: t.key}
}

type bucket struct {
	btx  *bolt.Tx
	bolt *bolt.Bucket // nil for the implicit root
	key  *secretkey.Key
}

func (b *bucket) child(name []byte) *bolt.Bucket {
	if b.bolt == nil {
		return b.btx.Bucket(name)
	}
	return b.bolt.Bucket(name)
}

func (b *bucket) Bucket(key []byte) walletdb.Bucket {
	child := b.child(key)
	if child == nil {
		return nil
	}
	return &bucket{btx: b.btx, bolt: child, key: b.key}
}

func (b *bucket) CreateBucketIfNotExists(key []byte) (walletdb.Bucket, error) {
	var child *bolt.Bucket
	var err error
	if b.bolt == nil {
		child, err = b.btx.CreateBucketIfNotExists(key)
	} else {
		child, err = b.bolt.CreateBucketIfNotExists(key)
	}
	if err != nil {
		return nil, err
	}
	return &bucket{btx: b.btx, bolt: child, key: b.key}, nil
}

func (b *bucket) DeleteBucket(key []byte) error {
	if b.bolt == nil {
		return b.btx.DeleteBucket(key)
	}
	return b.bolt.DeleteBucket(key)
}

func (b *bucket) Get(key []byte) []byte {
	v := b.bolt.Get(key)
	if v == nil {
		return nil
	}
	plain, err := b.key.Open(v)
	if err != nil {
		return nil
	}
	return plain
}

func (b *bucket) Put(key, value []byte) error {
	sealed, err := b.key.Seal(value)
	if err != nil {
		return err
	}
	return b.bolt.Put(key, sealed)
}

func (b *bucket) Delete(key []byte) error {
	return b.bolt.Delete(key)
}

func (b *bucket) ForEach(fn func(k, v []byte) error) error {
	return b.bolt.ForEach(func(k, v []byte) error {
		if v == nil {
			return fn(k, nil)
		}
		plain, err := b.key.Open(v)
		if err != nil {
			return err
		}
		return fn(k, plain)
	})
}
