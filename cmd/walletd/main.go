// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// walletd opens a wallet store and keeps it available for transaction
// negotiation until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/mwallet/mwwallet/internal/prompt"
	"github.com/mwallet/mwwallet/store"
)

func openOrCreateStore(cfg *config) (*store.Store, error) {
	if _, err := os.Stat(cfg.WalletDB); os.IsNotExist(err) {
		if !cfg.Create {
			create, err := prompt.ConfirmCreate(cfg.WalletDB)
			if err != nil {
				return nil, err
			}
			if !create {
				return nil, fmt.Errorf("no wallet store at %s", cfg.WalletDB)
			}
		}
		pass, err := prompt.New()
		if err != nil {
			return nil, err
		}
		storLog.Infof("creating wallet store at %s", cfg.WalletDB)
		return store.Create(cfg.WalletDB, pass)
	}

	pass, err := prompt.Existing()
	if err != nil {
		return nil, err
	}
	storLog.Infof("opening wallet store at %s", cfg.WalletDB)
	return store.Open(cfg.WalletDB, pass)
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, _, err := loadConfig()
	if err != nil {
		return 1
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	st, err := openOrCreateStore(cfg)
	if err != nil {
		storLog.Errorf("unable to open wallet store: %v", err)
		return 1
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	storLog.Infof("walletd ready, rpc listen %s", cfg.RPCListen)
	<-ctx.Done()
	storLog.Info("received interrupt, shutting down")

	return 0
}
