// Package uimf reads frame and scan metadata from UIMF files.
//
// A UIMF file is a SQLite database. Frame metadata lives in the key/value
// tables Frame_Params and Frame_Param_Keys; files written by older tools
// carry a wide Frame_Parameters table instead and have no per-frame
// multiplexing information. Scan rows live in Frame_Scans, where
// NonZeroCount records how many points the decoded spectrum holds.
//
// The reader opens files read-only and never modifies them.
package uimf
