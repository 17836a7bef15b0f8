// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/mwallet/mwwallet/chainkd"
	"github.com/mwallet/mwwallet/negotiate"
	"github.com/mwallet/mwwallet/store"
	"github.com/mwallet/mwwallet/txbuilder"
)

// logWriter implements io.Writer so logs may be written to both stdout and
// the rotating log file.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	return logRotator.Write(p)
}

// logRotator pairs the log file with automatic rotation on each use of the
// binary; it is initialized in initLogRotator.
var logRotator *rotator.Rotator

var (
	backendLog = btclog.NewBackend(logWriter{})

	storLog = backendLog.Logger("STOR")
	bldrLog = backendLog.Logger("BLDR")
	negoLog = backendLog.Logger("NEGO")
	ckdLog  = backendLog.Logger("CKD ")
)

// subsystemLoggers maps each four-character subsystem tag to its logger.
var subsystemLoggers = map[string]btclog.Logger{
	"STOR": storLog,
	"BLDR": bldrLog,
	"NEGO": negoLog,
	"CKD ": ckdLog,
}

func init() {
	store.UseLogger(storLog)
	txbuilder.UseLogger(bldrLog)
	negotiate.UseLogger(negoLog)
	chainkd.UseLogger(ckdLog)
}

// initLogRotator initializes the logging rotator to write logs to
// logFile and create roll files in the same directory. It must be called
// before the package-global log rotator variables are used.
func initLogRotator(logFile string) {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create log directory:", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create file rotator:", err)
		os.Exit(1)
	}
	logRotator = r
}

func setLogLevel(subsystemID, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

func setLogLevels(logLevel string) {
	level, _ := btclog.LevelFromString(logLevel)
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}

func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for id := range subsystemLoggers {
		subsystems = append(subsystems, id)
	}
	sort.Strings(subsystems)
	return subsystems
}
