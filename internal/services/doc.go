// Package services defines shared utilities consumed by the conversion stages.
//
// Key responsibilities:
//   - Context helpers that stamp dataset names, stage names, and run
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the configuration/staging/layout/process/post-conversion/validation
//     taxonomy reported back to the caller.
//
// Use these helpers when wiring new stage logic so error reporting and
// observability stay uniform across the pipeline.
package services
