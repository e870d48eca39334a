// Package logs wires up the per-subsystem btclog loggers used across
// this daemon, backed by a jrick/logrotate rotating file writer — the
// same split-backend idiom the teacher uses for its own subsystems
// (each package holds its own `log btclog.Logger`, set once at start
// of day via SetSubsystemLogger).
package logs

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// Backend is the shared btclog backend every subsystem logger is
// spawned from.
var Backend = btclog.NewBackend(os.Stdout)

// subsystems lists every package that pulls a named logger from this
// package, used by InitLogRotator to also fan writes out to a log
// file once one is configured.
var subsystems = map[string]*btclog.Logger{}

// NewSubsystemLogger creates (or returns, if already created) a
// btclog.Logger tagged with subsystem, e.g. "EBCS", "LEDG", "CAMT",
// "CASH", "RPCS" — four-to-five character tags matching the teacher's
// subsystem tag convention.
func NewSubsystemLogger(tag string) btclog.Logger {
	if l, ok := subsystems[tag]; ok {
		return *l
	}
	logger := Backend.Logger(tag)
	subsystems[tag] = &logger
	return logger
}

// InitLogRotator replaces the backend's writer with a rotator writing
// to logFile, preserving stdout as a secondary sink so `go run` and
// systemd journald captures keep working in development.
func InitLogRotator(logFile string, maxSizeMB, maxFiles int) error {
	r, err := rotator.New(logFile, int64(maxSizeMB*1024), false, maxFiles)
	if err != nil {
		return err
	}
	Backend = btclog.NewBackend(io.MultiWriter(os.Stdout, r))
	for tag, l := range subsystems {
		*l = Backend.Logger(tag)
	}
	EBICS, Ledger, Camt, Cashout, RPC = *subsystems["EBCS"], *subsystems["LEDG"],
		*subsystems["CAMT"], *subsystems["CASH"], *subsystems["RPCS"]
	return nil
}

var (
	EBICS   = NewSubsystemLogger("EBCS")
	Ledger  = NewSubsystemLogger("LEDG")
	Camt    = NewSubsystemLogger("CAMT")
	Cashout = NewSubsystemLogger("CASH")
	RPC     = NewSubsystemLogger("RPCS")
)
