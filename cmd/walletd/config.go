// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	defaultConfigFilename = "walletd.conf"
	defaultLogLevel       = "info"
	defaultLogFilename    = "walletd.log"
	defaultWalletFilename = "wallet.db"
	defaultListenAddr     = "127.0.0.1:9331"
)

var (
	defaultHomeDir    = btcutil.AppDataDir("mwwallet", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = defaultHomeDir
	defaultLogDir     = filepath.Join(defaultHomeDir, "logs")
)

// config defines the configuration options for walletd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store the wallet database and logs"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical} or subsystem=level,..."`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	WalletDB    string `long:"walletdb" description:"Path to the wallet database file"`
	Create      bool   `long:"create" description:"Create the wallet database if it does not already exist"`
	RPCListen   string `long:"rpclisten" description:"Listen address for the negotiator gateway"`
	GatewayAddr string `long:"gatewayaddr" description:"Address of the peer negotiator gateway to dial for outbound negotiations"`
}

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

func parseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid", debugLevel)
		}
		setLogLevels(debugLevel)
		return nil
	}

	for _, pair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(pair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%v]", pair)
		}
		fields := strings.SplitN(pair, "=", 2)
		subsysID, level := fields[0], fields[1]
		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is invalid -- supported subsystems %v", subsysID, supportedSubsystems())
		}
		if !validLogLevel(level) {
			return fmt.Errorf("the specified debug level [%v] is invalid", level)
		}
		setLogLevel(subsysID, level)
	}
	return nil
}

// loadConfig starts from a default configuration, then overlays the config
// file and finally CLI flags, in that order, matching the precedence CLI
// users expect.
func loadConfig() (*config, []string, error) {
	cfg := config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		RPCListen:  defaultListenAddr,
	}

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	if _, err := preParser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	if err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		configFileError = err
	}

	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	if cfg.WalletDB == "" {
		cfg.WalletDB = filepath.Join(cfg.DataDir, defaultWalletFilename)
	} else {
		cfg.WalletDB = cleanAndExpandPath(cfg.WalletDB)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	setLogLevels(defaultLogLevel)

	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	if configFileError != nil {
		storLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
