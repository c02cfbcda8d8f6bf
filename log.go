package main

import (
	"github.com/nikandfor/tlog"
)

// Global flags for controlling output verbosity
var VerboseMode bool
var QuietMode bool

// trace writes a structured debug event. Callers guard it with VerboseMode
// when building the arguments is not free.
func trace(msg string, kvs ...any) {
	if !VerboseMode {
		return
	}
	tlog.Printw(msg, kvs...)
}

// span starts a traced region, finished by the returned function
func span(name string, kvs ...any) func() {
	if !VerboseMode {
		return func() {}
	}
	tr := tlog.Start(name, kvs...)
	return func() { tr.Finish() }
}
