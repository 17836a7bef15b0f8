// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletdb defines a minimal transactional key/value database
// interface the wallet store is built on, independent of the concrete
// backend. This interface was inspired by the excellent boltdb project.
package walletdb

import "errors"

var (
	// ErrBucketNotFound indicates an operation tried to access a bucket
	// that does not exist.
	ErrBucketNotFound = errors.New("walletdb: bucket not found")

	// ErrBucketExists indicates an operation tried to create a bucket
	// that already exists.
	ErrBucketExists = errors.New("walletdb: bucket already exists")

	// ErrTxNotWritable indicates an operation that requires write access
	// was attempted against a read-only transaction.
	ErrTxNotWritable = errors.New("walletdb: tx is not writable")
)

// Bucket represents a collection of key/value pairs.
type Bucket interface {
	// Bucket retrieves a nested bucket by key, or nil if it does not
	// exist.
	Bucket(key []byte) Bucket

	// CreateBucketIfNotExists creates and returns a nested bucket.
	CreateBucketIfNotExists(key []byte) (Bucket, error)

	// DeleteBucket removes a nested bucket.
	DeleteBucket(key []byte) error

	// Get returns the value for key, or nil if it does not exist. The
	// returned slice is only valid for the lifetime of the transaction.
	Get(key []byte) []byte

	// Put sets the value for key, overwriting any existing value.
	Put(key, value []byte) error

	// Delete removes key. Deleting a key that does not exist is not an
	// error.
	Delete(key []byte) error

	// ForEach invokes fn for every key/value pair directly in the
	// bucket (not recursing into nested buckets, for which value is
	// nil).
	ForEach(fn func(k, v []byte) error) error
}

// Tx is a database transaction, read-only or read-write, providing a root
// bucket all reads and writes occur against.
type Tx interface {
	// RootBucket returns the top-level bucket for the transaction.
	RootBucket() Bucket
}

// DB is the handle to an open wallet database.
type DB interface {
	// Update runs fn inside a single read-write transaction, committing
	// the transaction if fn returns nil and rolling back otherwise.
	Update(fn func(tx Tx) error) error

	// View runs fn inside a single read-only transaction.
	View(fn func(tx Tx) error) error

	// Rekey re-encrypts the database under a new passphrase-derived key.
	// The implementation must guarantee the update is atomic: either the
	// whole store uses the new key on the next open, or the operation
	// fails and the old key still opens it.
	Rekey(newKey []byte) error

	// Close releases the underlying file handle.
	Close() error
}
