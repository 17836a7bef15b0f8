// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"github.com/mwallet/mwwallet/coin"
)

// RollbackTx undoes the coin-state changes caused by one transaction:
// outputs it was creating are removed outright (they never confirmed),
// and inputs it was spending return to Available.
func (s *Store) RollbackTx(txID coin.TxID) error {
	all, err := s.allCoins()
	if err != nil {
		return err
	}
	var toDelete, toRelease []*coin.Coin
	for _, c := range all {
		if c.CreatingTxID != nil && *c.CreatingTxID == txID {
			toDelete = append(toDelete, c)
		}
		if c.SpendingTxID != nil && *c.SpendingTxID == txID {
			c.RollbackSpending()
			toRelease = append(toRelease, c)
		}
	}
	for _, c := range toDelete {
		if err := s.DeleteCoin(c.ID); err != nil {
			return err
		}
	}
	if len(toRelease) > 0 {
		if err := s.saveCoins(toRelease); err != nil {
			return err
		}
	}
	return nil
}

// RollbackConfirmedUTXO rewinds every coin confirmation recorded above
// height, as happens when the chain reorgs out the block a coin's
// creation had confirmed in. A coin's confirmation height is only
// tracked for its creation event, so only Available/Maturing coins
// (confirmed outputs) are rewound here; an analogous rewind for a coin's
// spend confirmation would need a second height field the coin type does
// not carry, since nothing downstream of this store currently needs it.
func (s *Store) RollbackConfirmedUTXO(height uint64) error {
	all, err := s.allCoins()
	if err != nil {
		return err
	}
	var affected []*coin.Coin
	for _, c := range all {
		if (c.Status == coin.StatusAvailable || c.Status == coin.StatusMaturing) && c.ConfirmHeight > height {
			c.Status = coin.StatusIncoming
			c.ConfirmHeight = 0
			c.MaturityHeight = 0
			affected = append(affected, c)
		}
	}
	if len(affected) == 0 {
		return nil
	}
	return s.saveCoins(affected)
}
