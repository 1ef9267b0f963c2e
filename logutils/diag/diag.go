// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package diag turns a line-oriented text sink, such as a serial console or
// framebuffer writer, into a logr.Logger.
package diag

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// PrintLine writes one line of diagnostic output.
type PrintLine func(line string)

// Options configures the diagnostic logger.
type Options struct {
	// Verbosity is the highest V level that is printed.
	Verbosity int
	// LogTimestamp prefixes every line with the time of the call.
	LogTimestamp bool
}

// NewLogger returns a logger that calls printLine exactly once per
// log call with the formatted key/value pairs.
func NewLogger(printLine PrintLine, opts Options) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			printLine(prefix + ": " + args)
			return
		}
		printLine(args)
	}, funcr.Options{
		Verbosity:    opts.Verbosity,
		LogTimestamp: opts.LogTimestamp,
	})
}

// WriterLine adapts w to a PrintLine. Write errors are dropped; diagnostic
// output is best effort.
func WriterLine(w io.Writer) PrintLine {
	return func(line string) {
		_, _ = fmt.Fprintln(w, line)
	}
}
