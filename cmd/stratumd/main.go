// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// stratumd runs a standalone proof-of-work job server, authenticating
// peers against an access list and broadcasting jobs over TCP or TLS.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/mwallet/mwwallet/stratum"
)

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

	if cfg.RPCCert != "" && cfg.RPCKey != "" {
		if err := ensureCertPair(cfg.RPCCert, cfg.RPCKey, cfg.OneTimeTLSKey); err != nil {
			strmLog.Errorf("unable to generate TLS keypair: %v", err)
			return 1
		}
	}

	srv, err := stratum.NewServer(cfg.Listen, cfg.ACLFile, cfg.RPCCert, cfg.RPCKey)
	if err != nil {
		strmLog.Errorf("unable to construct server: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	strmLog.Infof("stratumd listening on %s", cfg.Listen)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		strmLog.Errorf("server exited: %v", err)
		return 1
	}
	strmLog.Info("received interrupt, shutting down")

	return 0
}
