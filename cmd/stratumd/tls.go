// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// ensureCertPair generates a new TLS certificate and key pair at certFile
// and keyFile unless both already exist. If onlyWriteCert is true, the
// generated key is discarded after the pair is generated rather than
// written to disk.
func ensureCertPair(certFile, keyFile string, onlyWriteCert bool) error {
	if _, err := os.Stat(certFile); err == nil {
		if _, err := os.Stat(keyFile); err == nil {
			return nil
		}
	}

	strmLog.Infof("generating TLS certificate pair")

	certDir, _ := filepath.Split(certFile)
	keyDir, _ := filepath.Split(keyFile)
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return err
	}
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return err
	}

	org := "mwwallet stratum autogenerated cert"
	validUntil := time.Now().Add(10 * 365 * 24 * time.Hour)
	cert, key, err := btcutil.NewTLSCertPair(org, validUntil, nil)
	if err != nil {
		return err
	}

	if err := os.WriteFile(certFile, cert, 0644); err != nil {
		return err
	}
	if onlyWriteCert {
		return nil
	}
	return os.WriteFile(keyFile, key, 0600)
}
