// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mwallet/mwwallet/address"
	"github.com/mwallet/mwwallet/coin"
	"github.com/mwallet/mwwallet/walletdb"
)

// HistoryStatus is the externally visible status of a negotiated
// transaction.
type HistoryStatus uint8

const (
	HistoryPending HistoryStatus = iota
	HistoryInProgress
	HistoryRegistered
	HistoryCompleted
	HistoryFailed
	HistoryCancelled
)

func (s HistoryStatus) String() string {
	switch s {
	case HistoryPending:
		return "Pending"
	case HistoryInProgress:
		return "InProgress"
	case HistoryRegistered:
		return "Registered"
	case HistoryCompleted:
		return "Completed"
	case HistoryFailed:
		return "Failed"
	case HistoryCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("HistoryStatus(%d)", uint8(s))
	}
}

// TxDescription is the externally visible summary of a negotiated
// transaction, independent of its internal parameter bag.
type TxDescription struct {
	TxID   coin.TxID
	Amount uint64
	Fee    uint64

	MyID, PeerID address.WalletID
	IsSender     bool

	Status HistoryStatus

	CreateTime time.Time
	ModifyTime time.Time

	// KernelID is nil until the transaction's kernel has been signed.
	KernelID []byte
}

// HistoryFilter restricts VisitTxHistory/GetTxHistory to a subset of
// records. A zero-valued field imposes no restriction on that dimension.
type HistoryFilter struct {
	Status      []HistoryStatus
	ModifiedAfter  time.Time
	ModifiedBefore time.Time
}

func (f HistoryFilter) matches(d *TxDescription) bool {
	if len(f.Status) > 0 {
		found := false
		for _, st := range f.Status {
			if st == d.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.ModifiedAfter.IsZero() && d.ModifyTime.Before(f.ModifiedAfter) {
		return false
	}
	if !f.ModifiedBefore.IsZero() && d.ModifyTime.After(f.ModifiedBefore) {
		return false
	}
	return true
}

// SaveTxDescription persists d, creating or overwriting its history
// entry.
func (s *Store) SaveTxDescription(d *TxDescription) error {
	err := s.db.Update(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketHistory)
		return b.Put([]byte(d.TxID), serializeTxDescription(d))
	})
	if err != nil {
		return err
	}
	s.notifyTxChanged(changeUpdated, d.TxID)
	return nil
}

// GetTxDescription looks up a transaction's history entry, returning nil
// if it is not known.
func (s *Store) GetTxDescription(txID coin.TxID) (*TxDescription, error) {
	var d *TxDescription
	err := s.db.View(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketHistory)
		v := b.Get([]byte(txID))
		if v == nil {
			return nil
		}
		var err error
		d, err = deserializeTxDescription(txID, v)
		return err
	})
	return d, err
}

// DeleteTxDescription removes a transaction's history entry outright,
// used when a Pending transaction is cancelled.
func (s *Store) DeleteTxDescription(txID coin.TxID) error {
	err := s.db.Update(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketHistory)
		return b.Delete([]byte(txID))
	})
	if err != nil {
		return err
	}
	s.notifyTxChanged(changeRemoved, txID)
	return nil
}

// VisitTxHistory calls fn for every history entry matching filter,
// stopping early if fn returns false. This is the store's
// iteration-based counterpart to a bulk export.
func (s *Store) VisitTxHistory(filter HistoryFilter, fn func(*TxDescription) bool) error {
	err := s.db.View(func(tx walletdb.Tx) error {
		b := tx.RootBucket().Bucket(bucketHistory)
		return b.ForEach(func(k, v []byte) error {
			d, err := deserializeTxDescription(coin.TxID(k), v)
			if err != nil {
				return err
			}
			if !filter.matches(d) {
				return nil
			}
			if !fn(d) {
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

// GetTxHistory returns every history entry matching filter.
func (s *Store) GetTxHistory(filter HistoryFilter) ([]*TxDescription, error) {
	var out []*TxDescription
	err := s.VisitTxHistory(filter, func(d *TxDescription) bool {
		out = append(out, d)
		return true
	})
	return out, err
}

func serializeTxDescription(d *TxDescription) []byte {
	buf := make([]byte, 0, 128)
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:], d.Amount)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], d.Fee)
	buf = append(buf, tmp[:]...)

	buf = append(buf, d.MyID[:]...)
	buf = append(buf, d.PeerID[:]...)

	if d.IsSender {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, byte(d.Status))

	binary.LittleEndian.PutUint64(tmp[:], uint64(d.CreateTime.UnixNano()))
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], uint64(d.ModifyTime.UnixNano()))
	buf = append(buf, tmp[:]...)

	buf = appendLengthPrefixed(buf, d.KernelID)
	return buf
}

func deserializeTxDescription(txID coin.TxID, b []byte) (*TxDescription, error) {
	const idLen = len(address.WalletID{})
	const fixedLen = 8 + 8 + idLen*2 + 1 + 1 + 8 + 8
	if len(b) < fixedLen {
		return nil, fmt.Errorf("store: truncated tx history record")
	}
	d := &TxDescription{TxID: txID}
	off := 0
	d.Amount = binary.LittleEndian.Uint64(b[off:])
	off += 8
	d.Fee = binary.LittleEndian.Uint64(b[off:])
	off += 8

	copy(d.MyID[:], b[off:off+idLen])
	off += idLen
	copy(d.PeerID[:], b[off:off+idLen])
	off += idLen

	d.IsSender = b[off] != 0
	off++
	d.Status = HistoryStatus(b[off])
	off++

	d.CreateTime = time.Unix(0, int64(binary.LittleEndian.Uint64(b[off:]))).UTC()
	off += 8
	d.ModifyTime = time.Unix(0, int64(binary.LittleEndian.Uint64(b[off:]))).UTC()
	off += 8

	kernelID, _, err := readLengthPrefixed(b, off)
	if err != nil {
		return nil, err
	}
	if len(kernelID) > 0 {
		d.KernelID = append([]byte(nil), kernelID...)
	}
	return d, nil
}
