package bootloader

import (
	"github.com/moffa90/go-vmboot/logging"
	"github.com/moffa90/go-vmboot/session"
)

// StateChangeCallback is called after every session phase change.
// Implementations should return quickly; they run inside the runtime cycle.
//
// Example:
//
//	rt := bootloader.New(tr, dev, clk,
//	    bootloader.WithStateChangeCallback(func(from, to session.Phase) {
//	        led.Set(to == session.ProgrammingComplete)
//	    }),
//	)
type StateChangeCallback func(from, to session.Phase)

// Logger is the logging interface accepted by the runtime.
// See logging.FromZap for a zap-backed implementation.
type Logger = logging.Logger
