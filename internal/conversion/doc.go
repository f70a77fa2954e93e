// Package conversion runs one Agilent .d to UIMF conversion end to end.
//
// Runner.Run performs the whole unit for a single dataset: preflight checks,
// staging the .d directory into the work area, resolving nested layouts,
// supervising the external converter, transferring the UIMF file back to the
// dataset directory, validating it, and classifying its multiplexing state.
// Every failure, including a panic inside a collaborator, is reported through
// the returned Outcome rather than as an error.
package conversion
