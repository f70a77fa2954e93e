// Package main hosts the agilentuimf CLI entrypoint and command graph.
//
// The Cobra-based command tree converts one Agilent .d dataset per
// invocation and exposes the individual checks (validation, multiplexing
// classification, frame listing) for files that were converted earlier.
// Configuration resolution and logger setup live here so subcommands stay
// small; the conversion pipeline itself lives in internal/conversion.
package main
