// Package staging moves Agilent .d dataset directories between the remote
// dataset store and the local work area.
//
// Stager verifies that the acquisition files the converter depends on are
// present before copying, skips datasets that an earlier step already staged,
// and delegates the transfer to a lock-aware copier. CleanStale removes
// abandoned work directories left behind by interrupted conversions, sparing
// any directory whose conversion still holds its run lock.
package staging
