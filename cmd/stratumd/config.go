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
	defaultConfigFilename = "stratumd.conf"
	defaultLogLevel       = "info"
	defaultLogFilename    = "stratumd.log"
	defaultListenAddr     = "0.0.0.0:3333"
	defaultACLFilename    = "acl.txt"
)

var (
	defaultHomeDir    = btcutil.AppDataDir("mwwallet-stratum", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = defaultHomeDir
	defaultLogDir     = filepath.Join(defaultHomeDir, "logs")
	defaultRPCCert    = filepath.Join(defaultHomeDir, "stratum.cert")
	defaultRPCKey     = filepath.Join(defaultHomeDir, "stratum.key")
)

// config defines the configuration options for stratumd.
type config struct {
	ConfigFile    string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir       string `short:"b" long:"datadir" description:"Directory to store logs and generated TLS material"`
	DebugLevel    string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical} or subsystem=level,..."`
	LogDir        string `long:"logdir" description:"Directory to log output"`
	Listen        string `long:"listen" description:"Address to listen on for stratum peers"`
	ACLFile       string `long:"aclfile" description:"Path to the API-key access list; empty disables the access list"`
	RPCCert       string `long:"rpccert" description:"File containing the TLS certificate"`
	RPCKey        string `long:"rpckey" description:"File containing the TLS certificate key"`
	NoTLS         bool   `long:"notls" description:"Disable TLS and serve plain TCP"`
	OneTimeTLSKey bool   `long:"onetimetlskey" description:"Generate a new TLS certpair at startup, but only write the certificate to disk"`
}

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

func loadConfig() (*config, []string, error) {
	cfg := config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		Listen:     defaultListenAddr,
		ACLFile:    "",
		RPCCert:    defaultRPCCert,
		RPCKey:     defaultRPCKey,
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
	if cfg.ACLFile != "" {
		cfg.ACLFile = cleanAndExpandPath(cfg.ACLFile)
	}

	if cfg.DataDir != defaultDataDir {
		if cfg.RPCCert == defaultRPCCert {
			cfg.RPCCert = filepath.Join(cfg.DataDir, "stratum.cert")
		}
		if cfg.RPCKey == defaultRPCKey {
			cfg.RPCKey = filepath.Join(cfg.DataDir, "stratum.key")
		}
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
		strmLog.Warnf("%v", configFileError)
	}

	if cfg.NoTLS {
		cfg.RPCCert = ""
		cfg.RPCKey = ""
	}

	return &cfg, remainingArgs, nil
}
