// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mwallet/mwwallet/address"
	"github.com/mwallet/mwwallet/walletdb"
)

// SaveAddress persists addr, creating or overwriting the entry keyed by
// its wallet ID.
func (s *Store) SaveAddress(addr *address.WalletAddress) error {
	action := changeUpdated
	err := s.db.Update(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketAddresses)
		if b.Get(addr.ID[:]) == nil {
			action = changeAdded
		}
		return b.Put(addr.ID[:], serializeAddress(addr))
	})
	if err != nil {
		return err
	}
	s.notifyAddressChanged(action, addr)
	return nil
}

// GetAddress looks up a known address by wallet ID, returning nil if it
// is not known.
func (s *Store) GetAddress(id address.WalletID) (*address.WalletAddress, error) {
	var a *address.WalletAddress
	err := s.db.View(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketAddresses)
		v := b.Get(id[:])
		if v == nil {
			return nil
		}
		var err error
		a, err = deserializeAddress(id, v)
		return err
	})
	return a, err
}

// VisitAddresses calls fn for every known address, stopping early if fn
// returns false.
func (s *Store) VisitAddresses(fn func(*address.WalletAddress) bool) error {
	err := s.db.View(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketAddresses)
		return b.ForEach(func(k, v []byte) error {
			var id address.WalletID
			copy(id[:], k)
			a, err := deserializeAddress(id, v)
			if err != nil {
				return err
			}
			if !fn(a) {
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

func serializeAddress(a *address.WalletAddress) []byte {
	labelBytes := []byte(a.Label)
	categoryBytes := []byte(a.Category)

	buf := make([]byte, 0, 8+8+2+len(labelBytes)+2+len(categoryBytes)+8)
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:], uint64(a.CreateTime.UnixNano()))
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(a.Duration))
	buf = append(buf, tmp[:]...)

	buf = appendLengthPrefixed(buf, labelBytes)
	buf = appendLengthPrefixed(buf, categoryBytes)

	binary.LittleEndian.PutUint64(tmp[:], a.OwnID)
	buf = append(buf, tmp[:]...)
	return buf
}

func deserializeAddress(id address.WalletID, b []byte) (*address.WalletAddress, error) {
	if len(b) < 16 {
		return nil, fmt.Errorf("store: truncated address record")
	}
	a := &address.WalletAddress{ID: id}
	off := 0
	a.CreateTime = time.Unix(0, int64(binary.LittleEndian.Uint64(b[off:]))).UTC()
	off += 8
	a.Duration = time.Duration(binary.LittleEndian.Uint64(b[off:]))
	off += 8

	var label, category []byte
	var err error
	label, off, err = readLengthPrefixed(b, off)
	if err != nil {
		return nil, err
	}
	category, off, err = readLengthPrefixed(b, off)
	if err != nil {
		return nil, err
	}
	a.Label = string(label)
	a.Category = address.Category(category)

	if off+8 > len(b) {
		return nil, fmt.Errorf("store: truncated address record: ownid")
	}
	a.OwnID = binary.LittleEndian.Uint64(b[off:])
	return a, nil
}

func appendLengthPrefixed(buf, data []byte) []byte {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

func readLengthPrefixed(b []byte, off int) ([]byte, int, error) {
	if off+2 > len(b) {
		return nil, off, fmt.Errorf("store: truncated record: length prefix")
	}
	n := int(binary.LittleEndian.Uint16(b[off:]))
	off += 2
	if off+n > len(b) {
		return nil, off, fmt.Errorf("store: truncated record: data")
	}
	return b[off : off+n], off + n, nil
}
