// Package lockqueue coordinates large file transfers between independently
// running conversion instances that share a remote dataset store.
//
// Copier copies directory trees and single files. Files at or above the
// large-file threshold are copied while holding an exclusive file lock in a
// shared lock directory, so many workers moving multi-gigabyte acquisition
// files take turns instead of starving each other. Before every large copy the
// configured Coordinator is signalled (ResetLockQueue); NopCoordinator is the
// default when no coordinator is registered.
package lockqueue
