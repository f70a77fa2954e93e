// Package preflight provides readiness checks for the converter executable
// and the filesystem paths a conversion depends on.
//
// These checks run in two contexts:
//   - The conversion runner calls RunAll before staging. If any check fails
//     the run stops with a configuration error before touching the dataset.
//   - The stager calls the FreeSpaceGuard check before copying a dataset
//     into the work directory.
package preflight
